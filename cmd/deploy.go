package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/parthshah1/carddraw/client"
	"github.com/parthshah1/carddraw/config"
	"github.com/parthshah1/carddraw/deployment"
	"github.com/parthshah1/carddraw/failure"
)

var DeployCmd = &cli.Command{
	Name:  "deploy",
	Usage: "Deploy the CardDrawing contract and write the deployment record",
	Description: "Deploys from a Hardhat or Foundry artifact (--artifact), or from a hex\n" +
		"bytecode file (--bin) with an optional ABI file (--abi). The record is\n" +
		"replaced only after the contract is confirmed on-chain. Concurrent deploys\n" +
		"to the same record file are not coordinated; the last to finish wins.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "artifact",
			Usage: "Path to a Hardhat or Foundry artifact JSON",
		},
		&cli.StringFlag{
			Name:  "bin",
			Usage: "Path to a hex bytecode file",
		},
		&cli.StringFlag{
			Name:  "abi",
			Usage: "Path to the ABI JSON for --bin (defaults to the built-in CardDrawing ABI)",
		},
	},
	Action: func(c *cli.Context) error {
		cfg := getConfig(c)

		art, err := loadArtifact(c.String("artifact"), c.String("bin"), c.String("abi"))
		if err != nil {
			return err
		}

		rec, err := deployArtifact(c.Context, cfg, art)
		if err != nil {
			return err
		}

		fmt.Printf("CardDrawing deployed to: %s\n", rec.Address.Hex())
		fmt.Printf("Transaction: %s (block %d)\n", rec.TxHash.Hex(), rec.BlockNumber)
		fmt.Printf("Deployment information saved to %s\n", cfg.DeploymentFile)
		return nil
	},
}

func loadArtifact(artifactPath, binPath, abiPath string) (*deployment.Artifact, error) {
	switch {
	case artifactPath != "" && binPath != "":
		return nil, failure.Validation("load artifact", errors.New("use either --artifact or --bin, not both"))
	case artifactPath != "":
		return deployment.LoadArtifact(artifactPath)
	case binPath != "":
		return deployment.LoadBinArtifact(binPath, abiPath)
	default:
		return nil, failure.Validation("load artifact", errors.New("no contract artifact given: pass --artifact or --bin"))
	}
}

// deployArtifact deploys art with the configured signer and saves the record.
func deployArtifact(ctx context.Context, cfg *config.Config, art *deployment.Artifact) (*deployment.Record, error) {
	signer, err := cfg.RequireSigner()
	if err != nil {
		return nil, err
	}

	cl, err := client.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	fmt.Printf("Deploying to network: %s (Chain ID: %s)\n", cfg.Network, cl.ChainID())

	ctx, cancel := txContext(ctx, cfg)
	defer cancel()

	d := &deployment.Deployer{
		Backend: cl.Backend(),
		Opts:    cl.TxOpts(signer),
		Path:    cfg.DeploymentFile,
		Network: cfg.Network,
	}
	return d.Deploy(ctx, art)
}
