package cmd

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/parthshah1/carddraw/cards"
	"github.com/parthshah1/carddraw/client"
	"github.com/parthshah1/carddraw/config"
	"github.com/parthshah1/carddraw/contract"
	"github.com/parthshah1/carddraw/deployment"
)

// session is the per-invocation binding of config, node connection and the
// deployed contract.
type session struct {
	cfg    *config.Config
	client *client.Client
	signer *config.Signer
	record *deployment.Record
}

// openSession resolves the signer and deployment record before connecting,
// so configuration and persisted-state failures never reach the network.
// A read-only session still uses the signer as call sender if one is set.
func openSession(ctx context.Context, cfg *config.Config, needSigner bool) (*session, error) {
	s := &session{cfg: cfg}

	if needSigner || cfg.PrivateKey != "" {
		signer, err := cfg.RequireSigner()
		if err != nil {
			return nil, err
		}
		s.signer = signer
	}

	rec, err := deployment.Load(cfg.DeploymentFile)
	if err != nil {
		return nil, err
	}
	s.record = rec

	cl, err := client.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.client = cl

	if rec.ChainID != 0 && rec.ChainID != cl.ChainID().Int64() {
		log.Warn("Deployment record is for another chain", "record", rec.ChainID, "node", cl.ChainID(), "address", rec.Address)
	}
	log.Debug("Session opened", "contract", rec.Address, "network", cfg.Network, "signer", s.signerAddress())
	return s, nil
}

func (s *session) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *session) signerAddress() string {
	if s.signer == nil {
		return "none"
	}
	return s.signer.Address.Hex()
}

func (s *session) contract() *contract.CardDrawing {
	var opts *contract.TxOpts
	if s.signer != nil {
		opts = s.client.TxOpts(s.signer)
	}
	return contract.Bind(s.record.Address, s.record.ABI, s.client.Backend(), opts)
}

// workflow binds a workflow to the recorded contract. obs may be nil.
func (s *session) workflow(catalog *cards.Catalog, obs cards.Observer) *cards.Workflow {
	w := cards.NewWorkflow(s.contract(), catalog)
	w.SetObserver(obs)
	return w
}

// txContext bounds ctx by the configured transaction timeout.
func txContext(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg.TxTimeout > 0 {
		return context.WithTimeout(ctx, cfg.TxTimeout)
	}
	return context.WithCancel(ctx)
}
