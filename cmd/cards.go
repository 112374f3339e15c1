package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/parthshah1/carddraw/cards"
	"github.com/parthshah1/carddraw/contract"
	"github.com/parthshah1/carddraw/failure"
)

var DrawCmd = &cli.Command{
	Name:  "draw",
	Usage: "Draw a random card for the signer",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-details",
			Usage: "Do not read the drawn card's details",
		},
	},
	Action: func(c *cli.Context) error {
		cfg := getConfig(c)
		s, err := openSession(c.Context, cfg, true)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := txContext(c.Context, cfg)
		defer cancel()

		fmt.Println("Drawing a random card...")
		w := s.workflow(nil, nil)
		res, err := w.Draw(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Transaction confirmed: %s (block %d)\n", res.TxHash.Hex(), res.BlockNumber)
		fmt.Printf("Card drawn successfully for user: %s\n", res.Recipient.Hex())
		fmt.Printf("New Token ID: %s\n", res.TokenID)

		if c.Bool("no-details") {
			return nil
		}
		details, err := w.Details(ctx, res.TokenID)
		if err != nil {
			log.Warn("Card drawn but details could not be read", "token", res.TokenID, "err", err)
			return nil
		}
		printDetails(res.TokenID.String(), details)
		return nil
	},
}

var MintCmd = &cli.Command{
	Name:  "mint",
	Usage: "Mint a catalog card and set its metadata (contract owner only)",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:     "card-id",
			Usage:    "Catalog card id",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "to",
			Usage: "Recipient address (defaults to the signer)",
		},
		&cli.BoolFlag{
			Name:  "verify",
			Usage: "Read the metadata back and compare it with the catalog",
		},
	},
	Action: func(c *cli.Context) error {
		cfg := getConfig(c)

		catalog, err := cards.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return err
		}
		cardID := c.Int64("card-id")
		if _, err := catalog.Resolve(cardID); err != nil {
			return err
		}
		recipient, err := parseAddress(c.String("to"))
		if err != nil {
			return err
		}

		s, err := openSession(c.Context, cfg, true)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := txContext(c.Context, cfg)
		defer cancel()

		res, err := s.workflow(catalog, nil).Mint(ctx, recipient, cardID, c.Bool("verify"))
		var partial *cards.PartialMintError
		if errors.As(err, &partial) {
			fmt.Printf("Token %s was minted to %s but its metadata is still the default.\n", partial.TokenID, res.Recipient.Hex())
			fmt.Printf("Retry with: setCardMetadata(%s, ...) from the owner account\n", partial.TokenID)
		}
		if err != nil && res == nil {
			return err
		}

		fmt.Printf("Card minted successfully! Card ID: %d\n", res.CardID)
		fmt.Printf("Token ID: %s\n", res.TokenID)
		fmt.Printf("Recipient: %s\n", res.Recipient.Hex())
		fmt.Printf("Mint transaction: %s\n", res.TxHash.Hex())
		if partial != nil {
			return err
		}
		fmt.Printf("Metadata transaction: %s\n", res.MetadataTxHash.Hex())
		fmt.Printf("Rarity: %s (%d)\n", res.Metadata.Rarity, res.Metadata.Rarity)
		if err != nil {
			return err
		}
		if res.Verified {
			fmt.Println("On-chain metadata matches the catalog")
		}
		return nil
	},
}

var DetailsCmd = &cli.Command{
	Name:      "details",
	Usage:     "Show the stored metadata of a token",
	ArgsUsage: "<token-id>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return failure.Validation("details", fmt.Errorf("expected 1 argument: <token-id>"))
		}
		tokenID, err := cards.ParseTokenID(c.Args().Get(0))
		if err != nil {
			return err
		}

		cfg := getConfig(c)
		s, err := openSession(c.Context, cfg, false)
		if err != nil {
			return err
		}
		defer s.Close()

		details, err := s.workflow(nil, nil).Details(c.Context, tokenID)
		if err != nil {
			return err
		}
		printDetails(tokenID.String(), details)
		return nil
	},
}

var VerifyCmd = &cli.Command{
	Name:      "verify",
	Usage:     "Compare a token's stored metadata with a catalog card",
	ArgsUsage: "<token-id>",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:     "card-id",
			Usage:    "Catalog card id the token should match",
			Required: true,
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return failure.Validation("verify", fmt.Errorf("expected 1 argument: <token-id>"))
		}
		tokenID, err := cards.ParseTokenID(c.Args().Get(0))
		if err != nil {
			return err
		}

		cfg := getConfig(c)
		catalog, err := cards.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return err
		}

		s, err := openSession(c.Context, cfg, false)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.workflow(catalog, nil).VerifyCard(c.Context, tokenID, c.Int64("card-id")); err != nil {
			return err
		}
		fmt.Printf("Token %s matches catalog card %d\n", tokenID, c.Int64("card-id"))
		return nil
	},
}

var InfoCmd = &cli.Command{
	Name:  "info",
	Usage: "Show the deployed contract's owner, name and symbol",
	Action: func(c *cli.Context) error {
		cfg := getConfig(c)
		s, err := openSession(c.Context, cfg, false)
		if err != nil {
			return err
		}
		defer s.Close()

		info, err := s.workflow(nil, nil).Info(c.Context)
		if err != nil {
			return err
		}

		fmt.Printf("Contract: %s\n", info.Address.Hex())
		fmt.Printf("Name: %s\n", info.Name)
		fmt.Printf("Symbol: %s\n", info.Symbol)
		fmt.Printf("Owner: %s\n", info.Owner.Hex())
		fmt.Printf("Chain ID: %s\n", s.client.ChainID())
		if s.signer != nil {
			fmt.Printf("Signer: %s (owner: %v)\n", s.signer.Address.Hex(), s.signer.Address == info.Owner)
		}
		return nil
	},
}

func printDetails(tokenID string, d *contract.CardDetails) {
	fmt.Printf("Card Details for Token ID %s:\n", tokenID)
	fmt.Printf("  ID: %s\n", d.Id)
	fmt.Printf("  Name: %s\n", d.Name)
	fmt.Printf("  Description: %s\n", d.Description)
	fmt.Printf("  Image: %s\n", d.Image)
	fmt.Printf("  Rarity: %s (%d)\n", cards.Rarity(d.Rarity), d.Rarity)
}

// parseAddress parses an optional hex address. Empty means the zero address.
func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, failure.Validation("parse address", fmt.Errorf("invalid address %q", s))
	}
	return common.HexToAddress(s), nil
}
