package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/parthshah1/carddraw/cards"
	"github.com/parthshah1/carddraw/config"
	"github.com/parthshah1/carddraw/failure"
	"github.com/parthshah1/carddraw/invariants"
	"github.com/parthshah1/carddraw/orchestrator"
)

var ScenarioCmd = &cli.Command{
	Name:  "scenario",
	Usage: "Run scripted deploy, mint and draw sequences",
	Subcommands: []*cli.Command{
		{
			Name:      "run",
			Usage:     "Run a YAML scenario file",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "report",
					Usage: "Write the invariant report to this JSON file",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return failure.Validation("scenario run", fmt.Errorf("expected 1 argument: <file>"))
				}
				scenario, err := orchestrator.LoadScenario(c.Args().Get(0))
				if err != nil {
					return err
				}

				state := invariants.NewState()
				o := newScenarioOrchestrator(getConfig(c), state)

				fmt.Printf("Running scenario %q (%d tasks)\n", scenario.Name, len(scenario.Tasks))
				results, runErr := o.Run(c.Context, scenario)
				for i, r := range results {
					status := "ok"
					if r.Error != nil {
						status = "FAILED: " + r.Error.Error()
					}
					fmt.Printf("%d. %s (%s) %s [%d attempt(s), %s]\n", i+1, r.TaskName, r.Type, status, r.Attempts, r.Duration.Round(time.Millisecond))
					for _, k := range sortedKeys(r.Output) {
						fmt.Printf("     %s: %v\n", k, r.Output[k])
					}
				}

				state.EmitFinalAssertions()
				if path := c.String("report"); path != "" {
					if err := state.SaveToFile(path); err != nil {
						log.Error("Failed to save invariant report", "path", path, "err", err)
					} else {
						fmt.Printf("Invariant report saved to %s\n", path)
					}
				}

				summary := state.GetSummary()
				fmt.Printf("Summary: %d draws, %d mints, %d partial mints, %d verifications (%d failed), %d anomalies\n",
					summary["drawCount"], summary["mintCount"], summary["partialMintCount"],
					summary["verifyCount"], summary["verifyFailedCount"], summary["anomalyCount"])
				return runErr
			},
		},
	},
}

// newScenarioOrchestrator registers one handler per workflow action. Each
// task opens and closes its own session.
func newScenarioOrchestrator(cfg *config.Config, state *invariants.State) *orchestrator.Orchestrator {
	o := orchestrator.New()

	o.Register("deploy", orchestrator.HandlerFunc(func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		artifact, _ := paramString(params, "artifact")
		bin, _ := paramString(params, "bin")
		abiPath, _ := paramString(params, "abi")
		art, err := loadArtifact(artifact, bin, abiPath)
		if err != nil {
			return nil, err
		}
		rec, err := deployArtifact(ctx, cfg, art)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"address": rec.Address.Hex(),
			"txHash":  rec.TxHash.Hex(),
		}, nil
	}))

	o.Register("draw", orchestrator.HandlerFunc(func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		s, err := openSession(ctx, cfg, true)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		ctx, cancel := txContext(ctx, cfg)
		defer cancel()

		res, err := s.workflow(nil, state).Draw(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"tokenId": res.TokenID.String(),
			"user":    res.Recipient.Hex(),
			"txHash":  res.TxHash.Hex(),
		}, nil
	}))

	o.Register("mint", orchestrator.HandlerFunc(func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		cardID, err := paramInt64(params, "cardId")
		if err != nil {
			return nil, err
		}
		to, _ := paramString(params, "to")
		recipient, err := parseAddress(to)
		if err != nil {
			return nil, err
		}
		verify, err := paramBool(params, "verify")
		if err != nil {
			return nil, err
		}

		catalog, err := cards.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		if _, err := catalog.Resolve(cardID); err != nil {
			return nil, err
		}

		s, err := openSession(ctx, cfg, true)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		ctx, cancel := txContext(ctx, cfg)
		defer cancel()

		// A partial mint still returns the minted token with the error.
		res, err := s.workflow(catalog, state).Mint(ctx, recipient, cardID, verify)
		return mintOutput(res), err
	}))

	o.Register("details", orchestrator.HandlerFunc(func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		raw, err := paramString(params, "tokenId")
		if err != nil {
			return nil, err
		}
		tokenID, err := cards.ParseTokenID(raw)
		if err != nil {
			return nil, err
		}

		s, err := openSession(ctx, cfg, false)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		d, err := s.workflow(nil, state).Details(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		out := map[string]interface{}{
			"id":          d.Id.String(),
			"name":        d.Name,
			"description": d.Description,
			"image":       d.Image,
			"rarity":      int(d.Rarity),
		}
		if want, ok := params["rarity"]; ok {
			expected, err := paramInt64(params, "rarity")
			if err != nil {
				return nil, err
			}
			if int64(d.Rarity) != expected {
				return out, failure.Verify("check details", fmt.Errorf("token %s rarity %d, want %v", tokenID, d.Rarity, want))
			}
		}
		return out, nil
	}))

	o.Register("verify", orchestrator.HandlerFunc(func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		raw, err := paramString(params, "tokenId")
		if err != nil {
			return nil, err
		}
		tokenID, err := cards.ParseTokenID(raw)
		if err != nil {
			return nil, err
		}
		cardID, err := paramInt64(params, "cardId")
		if err != nil {
			return nil, err
		}
		catalog, err := cards.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}

		s, err := openSession(ctx, cfg, false)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		if err := s.workflow(catalog, state).VerifyCard(ctx, tokenID, cardID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"tokenId": tokenID.String(), "verified": true}, nil
	}))

	o.Register("info", orchestrator.HandlerFunc(func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		s, err := openSession(ctx, cfg, false)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		info, err := s.workflow(nil, state).Info(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"address": info.Address.Hex(),
			"owner":   info.Owner.Hex(),
			"name":    info.Name,
			"symbol":  info.Symbol,
		}, nil
	}))

	return o
}

func mintOutput(res *cards.MintResult) map[string]interface{} {
	if res == nil {
		return nil
	}
	out := map[string]interface{}{
		"tokenId":  res.TokenID.String(),
		"cardId":   res.CardID,
		"rarity":   int(res.Metadata.Rarity),
		"to":       res.Recipient.Hex(),
		"txHash":   res.TxHash.Hex(),
		"verified": res.Verified,
	}
	if res.MetadataTxHash != (common.Hash{}) {
		out["metadataTxHash"] = res.MetadataTxHash.Hex()
	}
	return out
}

var errMissingParam = errors.New("missing parameter")

// paramString returns params[key] as a string. Numbers are formatted in
// decimal.
func paramString(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", failure.Validation("read param", fmt.Errorf("%w %q", errMissingParam, key))
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	}
	return "", failure.Validation("read param", fmt.Errorf("parameter %q: unsupported type %T", key, v))
}

func paramInt64(params map[string]interface{}, key string) (int64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, failure.Validation("read param", fmt.Errorf("%w %q", errMissingParam, key))
	}
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case float64:
		if val != math.Trunc(val) {
			return 0, failure.Validation("read param", fmt.Errorf("parameter %q: %v is not an integer", key, val))
		}
		return int64(val), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, failure.Validation("read param", fmt.Errorf("parameter %q: %w", key, err))
		}
		return n, nil
	}
	return 0, failure.Validation("read param", fmt.Errorf("parameter %q: unsupported type %T", key, v))
}

// paramBool returns params[key] as a bool. A missing key is false.
func paramBool(params map[string]interface{}, key string) (bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return false, nil
	}
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return false, failure.Validation("read param", fmt.Errorf("parameter %q: %w", key, err))
		}
		return b, nil
	}
	return false, failure.Validation("read param", fmt.Errorf("parameter %q: unsupported type %T", key, v))
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
