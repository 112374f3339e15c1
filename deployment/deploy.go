package deployment

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/parthshah1/carddraw/contract"
	"github.com/parthshah1/carddraw/failure"
)

// CreateFunc submits a contract creation and waits for it.
type CreateFunc func(ctx context.Context, backend contract.Backend, opts *contract.TxOpts, parsed abi.ABI, bytecode []byte, args ...interface{}) (*contract.Deployment, error)

// Deployer deploys an artifact and persists the resulting record.
type Deployer struct {
	Backend contract.Backend
	Opts    *contract.TxOpts
	// Path is where the record is written.
	Path    string
	Network string

	Create CreateFunc
	Now    func() time.Time
}

// Deploy creates the contract and, only once it is confirmed with code at
// its address, replaces the record at d.Path.
func (d *Deployer) Deploy(ctx context.Context, art *Artifact) (*Record, error) {
	if art == nil || len(art.Bytecode) == 0 {
		return nil, failure.Validation("deploy", errEmptyArtifact)
	}
	if d.Opts == nil || d.Opts.Key == nil {
		return nil, failure.Config("deploy", contract.ErrNoSigner)
	}

	create := d.Create
	if create == nil {
		create = contract.Deploy
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}

	log.Info("Deploying contract", "name", art.Name, "network", d.Network, "chainId", d.Opts.ChainID, "deployer", d.Opts.From())
	dep, err := create(ctx, d.Backend, d.Opts, art.ABI, art.Bytecode)
	if err != nil {
		if dep != nil && dep.Tx != nil {
			return nil, failure.Sent(failure.Chain("deploy", fmt.Errorf("tx %s: %w", dep.Tx.Hash().Hex(), err)))
		}
		return nil, failure.Chain("deploy", err)
	}

	rec := &Record{
		Address:    dep.Address,
		ABI:        art.ABI,
		RawABI:     art.RawABI,
		Network:    d.Network,
		Deployer:   d.Opts.From(),
		DeployedAt: now(),
	}
	if d.Opts.ChainID != nil {
		rec.ChainID = d.Opts.ChainID.Int64()
	}
	if dep.Tx != nil {
		rec.TxHash = dep.Tx.Hash()
	}
	if dep.Receipt != nil && dep.Receipt.BlockNumber != nil {
		rec.BlockNumber = dep.Receipt.BlockNumber.Uint64()
	}

	if err := Save(d.Path, rec); err != nil {
		log.Error("Contract deployed but record not saved", "address", rec.Address, "path", d.Path, "err", err)
		return rec, err
	}
	log.Info("Deployment record saved", "path", d.Path, "address", rec.Address)
	return rec, nil
}
