package contract

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

// Backend is the subset of an Ethereum JSON-RPC client the binding needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxOpts carries the signing identity and transaction settings.
type TxOpts struct {
	Key          *ecdsa.PrivateKey
	ChainID      *big.Int
	GasLimit     uint64 // 0 = estimate
	PollInterval time.Duration
}

const defaultPollInterval = time.Second

var (
	ErrNoSigner = errors.New("no signing key bound")
	ErrReverted = errors.New("transaction reverted")
	ErrNoCode   = errors.New("no contract code at address")
)

// From returns the sender address for opts.
func (o *TxOpts) From() common.Address {
	if o == nil || o.Key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(o.Key.PublicKey)
}

func (o *TxOpts) pollInterval() time.Duration {
	if o == nil || o.PollInterval <= 0 {
		return defaultPollInterval
	}
	return o.PollInterval
}

// sendTx builds, signs and submits a transaction. A nil to creates a contract.
func sendTx(ctx context.Context, backend Backend, opts *TxOpts, to *common.Address, data []byte) (*types.Transaction, error) {
	if opts == nil || opts.Key == nil {
		return nil, ErrNoSigner
	}
	if opts.ChainID == nil {
		return nil, errors.New("chain id not set")
	}

	fromAddress := opts.From()

	nonce, err := backend.PendingNonceAt(ctx, fromAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		callMsg := ethereum.CallMsg{
			From: fromAddress,
			To:   to,
			Data: data,
		}
		gasLimit, err = backend.EstimateGas(ctx, callMsg)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       to,
		Value:    new(big.Int),
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(opts.ChainID), opts.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	log.Debug("Transaction sent", "hash", signedTx.Hash(), "from", fromAddress, "nonce", nonce, "gas", gasLimit, "gasPrice", gasPrice)
	return signedTx, nil
}

// WaitMined polls for the receipt of tx until it is found or ctx ends.
// A receipt with failed status is returned together with ErrReverted.
func WaitMined(ctx context.Context, backend Backend, tx *types.Transaction, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	hash := tx.Hash()
	for {
		receipt, err := backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s (block %v)", ErrReverted, hash.Hex(), receipt.BlockNumber)
			}
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
		}

		log.Trace("Transaction not yet mined", "hash", hash)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
