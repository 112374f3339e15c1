package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Deployment is the outcome of a confirmed contract creation. Deploy also
// returns it with an error when the transaction was sent but not confirmed.
type Deployment struct {
	Address common.Address
	Tx      *types.Transaction
	Receipt *types.Receipt
}

// Deploy sends a creation transaction for bytecode with packed constructor
// args, waits for it to be mined and checks that code exists at the new
// address.
func Deploy(ctx context.Context, backend Backend, opts *TxOpts, parsed abi.ABI, bytecode []byte, args ...interface{}) (*Deployment, error) {
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("empty bytecode")
	}

	input, err := parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack constructor arguments: %w", err)
	}
	data := make([]byte, 0, len(bytecode)+len(input))
	data = append(data, bytecode...)
	data = append(data, input...)

	tx, err := sendTx(ctx, backend, opts, nil, data)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy contract: %w", err)
	}
	log.Info("Deployment transaction sent", "hash", tx.Hash())

	receipt, err := WaitMined(ctx, backend, tx, opts.pollInterval())
	if err != nil {
		return &Deployment{Tx: tx, Receipt: receipt}, fmt.Errorf("deployment not confirmed: %w", err)
	}

	if err := VerifyCode(ctx, backend, receipt.ContractAddress); err != nil {
		return &Deployment{Address: receipt.ContractAddress, Tx: tx, Receipt: receipt}, err
	}

	log.Info("Contract deployed", "address", receipt.ContractAddress, "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
	return &Deployment{Address: receipt.ContractAddress, Tx: tx, Receipt: receipt}, nil
}

// VerifyCode returns ErrNoCode if nothing is deployed at address.
func VerifyCode(ctx context.Context, backend Backend, address common.Address) error {
	code, err := backend.CodeAt(ctx, address, nil)
	if err != nil {
		return fmt.Errorf("failed to get code at %s: %w", address.Hex(), err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w %s", ErrNoCode, address.Hex())
	}
	return nil
}
