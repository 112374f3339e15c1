package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/parthshah1/carddraw/cards"
	"github.com/parthshah1/carddraw/deployment"
	"github.com/parthshah1/carddraw/failure"
)

var RecordCmd = &cli.Command{
	Name:  "record",
	Usage: "Show the local deployment record",
	Description: "Reads the deployment record without contacting a node. Concurrent\n" +
		"deploys against the same record file are not coordinated: the last\n" +
		"deploy to finish replaces the record.",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "abi",
			Usage: "Print the normalized ABI JSON",
		},
	},
	Action: func(c *cli.Context) error {
		cfg := getConfig(c)
		rec, err := deployment.Load(cfg.DeploymentFile)
		if err != nil {
			return err
		}

		if c.Bool("abi") {
			_, err := os.Stdout.Write(append(rec.RawABI, '\n'))
			return err
		}

		fmt.Printf("Record: %s\n", cfg.DeploymentFile)
		fmt.Printf("Address: %s\n", rec.Address.Hex())
		fmt.Printf("ABI fingerprint: %s\n", rec.Fingerprint())
		fmt.Printf("ABI entries: %d methods, %d events\n", len(rec.ABI.Methods), len(rec.ABI.Events))
		if rec.Network != "" {
			fmt.Printf("Network: %s (Chain ID: %d)\n", rec.Network, rec.ChainID)
		}
		if rec.Deployer != (common.Address{}) {
			fmt.Printf("Deployer: %s\n", rec.Deployer.Hex())
		}
		if rec.TxHash != (common.Hash{}) {
			fmt.Printf("Transaction: %s (block %d)\n", rec.TxHash.Hex(), rec.BlockNumber)
		}
		if !rec.DeployedAt.IsZero() {
			fmt.Printf("Deployed at: %s\n", rec.DeployedAt.UTC().Format("2006-01-02 15:04:05 MST"))
		}
		return nil
	},
}

var CatalogCmd = &cli.Command{
	Name:  "catalog",
	Usage: "Inspect the card metadata catalog",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "List catalog cards",
			Action: func(c *cli.Context) error {
				catalog, err := cards.LoadCatalog(getConfig(c).CatalogFile)
				if err != nil {
					return err
				}
				if catalog.Len() == 0 {
					fmt.Println("No cards found")
					return nil
				}

				fmt.Printf("Found %d card(s):\n", catalog.Len())
				for _, card := range catalog.Cards() {
					label, ok := card.RarityLabel()
					if !ok {
						label = "?"
					}
					fmt.Printf("%4d. %-24s %-3s %s\n", card.ID, card.Name, label, card.Image)
				}
				return nil
			},
		},
		{
			Name:      "show",
			Usage:     "Show the metadata a card id resolves to",
			ArgsUsage: "<card-id>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return failure.Validation("catalog show", fmt.Errorf("expected 1 argument: <card-id>"))
				}
				id, err := strconv.ParseInt(c.Args().Get(0), 10, 64)
				if err != nil {
					return failure.Validation("catalog show", fmt.Errorf("invalid card id %q: %w", c.Args().Get(0), err))
				}

				catalog, err := cards.LoadCatalog(getConfig(c).CatalogFile)
				if err != nil {
					return err
				}
				meta, err := catalog.Resolve(id)
				if err != nil {
					return err
				}

				fmt.Printf("Card %d:\n", meta.ID)
				fmt.Printf("  Name: %s\n", meta.Name)
				fmt.Printf("  Description: %s\n", meta.Description)
				fmt.Printf("  Image: %s\n", meta.Image)
				fmt.Printf("  Rarity: %s (%d)\n", meta.Rarity, meta.Rarity)
				return nil
			},
		},
	},
}
