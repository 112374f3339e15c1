package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CardDetails mirrors the Card struct returned by getCardDetails.
type CardDetails struct {
	Id          *big.Int
	Name        string
	Description string
	Image       string
	Rarity      uint8
}

// CardDrawing is a binding to a deployed CardDrawing contract.
type CardDrawing struct {
	address common.Address
	abi     abi.ABI
	backend Backend
	opts    *TxOpts
}

// Bind creates a binding at address using the given ABI. opts may be nil
// for read-only use.
func Bind(address common.Address, parsed abi.ABI, backend Backend, opts *TxOpts) *CardDrawing {
	return &CardDrawing{
		address: address,
		abi:     parsed,
		backend: backend,
		opts:    opts,
	}
}

func (c *CardDrawing) Address() common.Address { return c.address }
func (c *CardDrawing) ABI() abi.ABI             { return c.abi }

// Sender returns the address transactions are sent from, or the zero
// address when the binding is read-only.
func (c *CardDrawing) Sender() common.Address { return c.opts.From() }

func (c *CardDrawing) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: data}
	output, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	if len(output) == 0 {
		if code, err := c.backend.CodeAt(ctx, c.address, nil); err == nil && len(code) == 0 {
			return nil, fmt.Errorf("%s: %w %s", method, ErrNoCode, c.address.Hex())
		}
	}

	result, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return result, nil
}

func (c *CardDrawing) transact(ctx context.Context, method string, args ...interface{}) (*types.Transaction, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	tx, err := sendTx(ctx, c.backend, c.opts, &c.address, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return tx, nil
}

// WaitMined waits for tx using the binding's poll interval.
func (c *CardDrawing) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return WaitMined(ctx, c.backend, tx, c.opts.pollInterval())
}

// DrawCard submits drawCard from the bound signer.
func (c *CardDrawing) DrawCard(ctx context.Context) (*types.Transaction, error) {
	return c.transact(ctx, MethodDrawCard)
}

// MintCard submits mintCard(to, cardId). Only the contract owner may mint.
func (c *CardDrawing) MintCard(ctx context.Context, to common.Address, cardID *big.Int) (*types.Transaction, error) {
	return c.transact(ctx, MethodMintCard, to, cardID)
}

// SetCardMetadata submits setCardMetadata for an existing token.
func (c *CardDrawing) SetCardMetadata(ctx context.Context, tokenID *big.Int, name, description, image string, rarity uint8) (*types.Transaction, error) {
	return c.transact(ctx, MethodSetCardMetadata, tokenID, name, description, image, rarity)
}

func (c *CardDrawing) Owner(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, MethodOwner)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *CardDrawing) Name(ctx context.Context) (string, error) {
	return c.callString(ctx, MethodName)
}

func (c *CardDrawing) Symbol(ctx context.Context) (string, error) {
	return c.callString(ctx, MethodSymbol)
}

func (c *CardDrawing) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	out, err := c.call(ctx, MethodOwnerOf, tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// GetCardDetails reads the metadata stored for tokenID.
func (c *CardDrawing) GetCardDetails(ctx context.Context, tokenID *big.Int) (*CardDetails, error) {
	out, err := c.call(ctx, MethodGetCardDetails, tokenID)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getCardDetails: expected 1 output, got %d", len(out))
	}
	details, ok := abi.ConvertType(out[0], new(CardDetails)).(*CardDetails)
	if !ok || details == nil {
		return nil, errors.New("getCardDetails: unexpected output type")
	}
	return details, nil
}

func (c *CardDrawing) callString(ctx context.Context, method string) (string, error) {
	out, err := c.call(ctx, method)
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected output type %T", method, out[0])
	}
	return s, nil
}
