package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/parthshah1/carddraw/config"
	"github.com/parthshah1/carddraw/failure"
)

const configKey = "config"

// NewApp creates a new CLI app
func NewApp() *cli.App {
	app := &cli.App{
		Name:  "carddraw",
		Usage: "Deploy and interact with the CardDrawing NFT contract",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc",
				Usage:   "Ethereum JSON-RPC URL (env: RPC_URL)",
				EnvVars: []string{"RPC_URL", "API_URL"},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Signing key, hex format, 0x prefix optional (env: PRIVATE_KEY)",
				EnvVars: []string{"PRIVATE_KEY"},
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "Network name: " + fmt.Sprint(config.NetworkNames()) + " (env: NETWORK)",
				EnvVars: []string{"NETWORK"},
			},
			&cli.Int64Flag{
				Name:    "chain-id",
				Usage:   "Expected chain id, checked against the node (env: CHAIN_ID)",
				EnvVars: []string{"CHAIN_ID"},
			},
			&cli.StringFlag{
				Name:    "deployment",
				Usage:   "Deployment record file (env: DEPLOYMENT_FILE)",
				EnvVars: []string{"DEPLOYMENT_FILE"},
			},
			&cli.StringFlag{
				Name:    "catalog",
				Usage:   "Card metadata catalog file (env: CATALOG_FILE)",
				EnvVars: []string{"CATALOG_FILE"},
			},
			&cli.Uint64Flag{
				Name:    "gas-limit",
				Usage:   "Gas limit for transactions, 0 = estimate (env: GAS_LIMIT)",
				EnvVars: []string{"GAS_LIMIT"},
			},
			&cli.DurationFlag{
				Name:    "tx-timeout",
				Usage:   "Give up waiting for a command's transactions after this long, 0 = wait (env: TX_TIMEOUT)",
				EnvVars: []string{"TX_TIMEOUT"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: trace, debug, info, warn, error, crit (env: LOG_LEVEL)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Verbose output (env: VERBOSE)",
				EnvVars: []string{"VERBOSE"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg := config.Load()

			if c.IsSet("rpc") {
				cfg.RPC = c.String("rpc")
			}
			if c.IsSet("private-key") {
				cfg.PrivateKey = c.String("private-key")
			}
			if c.IsSet("network") {
				cfg.Network = c.String("network")
			}
			if c.IsSet("chain-id") {
				cfg.ChainID = c.Int64("chain-id")
			}
			if c.IsSet("deployment") {
				cfg.DeploymentFile = c.String("deployment")
			}
			if c.IsSet("catalog") {
				cfg.CatalogFile = c.String("catalog")
			}
			if c.IsSet("gas-limit") {
				cfg.GasLimit = c.Uint64("gas-limit")
			}
			if c.IsSet("tx-timeout") {
				cfg.TxTimeout = c.Duration("tx-timeout")
			}
			if c.IsSet("log-level") {
				cfg.LogLevel = c.String("log-level")
			}
			if c.IsSet("verbose") {
				cfg.Verbose = c.Bool("verbose")
			}

			if err := setupLogging(cfg.LogLevel, cfg.Verbose); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			c.App.Metadata[configKey] = cfg
			return nil
		},
		Commands: []*cli.Command{
			DeployCmd,
			DrawCmd,
			MintCmd,
			DetailsCmd,
			VerifyCmd,
			InfoCmd,
			RecordCmd,
			CatalogCmd,
			WalletCmd,
			ScenarioCmd,
			WatchCmd,
		},
	}
	app.Metadata = map[string]interface{}{}
	return app
}

func getConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Load()
}

func Execute() {
	// .env is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewApp().RunContext(ctx, os.Args)
	stop()

	if err != nil {
		kind := failure.KindOf(err)
		if kind == failure.KindUnknown {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error (%s): %v\n", kind, err)
		}
		os.Exit(kind.ExitCode())
	}
}
