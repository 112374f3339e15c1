// Package chaintest provides an in-memory chain that executes CardDrawing
// calls, for tests that exercise the real binding and transaction flow.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/parthshah1/carddraw/contract"
)

// TransferTopic is the ERC721 Transfer event signature. The chain emits it
// alongside CardDrawn; it is not part of the CardDrawing ABI.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

const (
	DefaultDescription = "Description for the specific card."
	DefaultImage       = "https://example.com/images/default.png"
	DefaultRarity      = 4
)

// Chain is a single-node chain that mines every transaction immediately.
type Chain struct {
	mu sync.Mutex

	chainID     *big.Int
	signer      types.Signer
	abi         abi.ABI
	blockNumber uint64

	nonces    map[common.Address]uint64
	code      map[common.Address][]byte
	contracts map[common.Address]*cardContract
	receipts  map[common.Hash]*types.Receipt
	logs      []types.Log
	sent      []string

	// SendErr, when set, rejects every submission with this error.
	SendErr error
	// CallErr, when set, fails every eth_call.
	CallErr error
	// Revert lists methods whose execution reverts. "" reverts deployments.
	Revert map[string]bool
	// OmitCardDrawn suppresses CardDrawn logs.
	OmitCardDrawn bool
	// DuplicateCardDrawn emits CardDrawn twice per mint or draw.
	DuplicateCardDrawn bool
	// MalformedCardDrawn emits CardDrawn with truncated data.
	MalformedCardDrawn bool
	// PendingPolls is how many receipt lookups report not found before the
	// receipt becomes visible.
	PendingPolls int
	polls        map[common.Hash]int
}

type cardContract struct {
	owner     common.Address
	nextToken uint64
	holders   map[uint64]common.Address
	cards     map[uint64]contract.CardDetails
}

// New creates an empty chain with the given id.
func New(chainID int64) *Chain {
	id := big.NewInt(chainID)
	return &Chain{
		chainID:   id,
		signer:    types.LatestSignerForChainID(id),
		abi:       contract.DefaultABI(),
		nonces:    make(map[common.Address]uint64),
		code:      make(map[common.Address][]byte),
		contracts: make(map[common.Address]*cardContract),
		receipts:  make(map[common.Hash]*types.Receipt),
		Revert:    make(map[string]bool),
		polls:     make(map[common.Hash]int),
	}
}

func (c *Chain) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Sent returns the method names of submitted transactions, in order.
// Contract creations are recorded as "deploy".
func (c *Chain) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// Install places a CardDrawing contract owned by owner at a fresh address
// without a transaction.
func (c *Chain) Install(owner common.Address) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := crypto.CreateAddress(common.Address{0xca, 0x4d}, uint64(len(c.contracts)))
	c.code[addr] = []byte{0x60, 0x80, 0x60, 0x40}
	c.contracts[addr] = newCardContract(owner)
	return addr
}

// SetCode puts arbitrary code at addr, which then answers no calls.
func (c *Chain) SetCode(addr common.Address, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[addr] = code
}

func newCardContract(owner common.Address) *cardContract {
	return &cardContract{
		owner:     owner,
		nextToken: 1,
		holders:   make(map[uint64]common.Address),
		cards:     make(map[uint64]contract.CardDetails),
	}
}

func (c *Chain) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.code[account]...), nil
}

func (c *Chain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

func (c *Chain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *Chain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 250_000, nil
}

func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if c.polls[hash] < c.PendingPolls {
		c.polls[hash]++
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *Chain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.CallErr != nil {
		return nil, c.CallErr
	}
	if msg.To == nil {
		return nil, errors.New("call without target")
	}
	state, ok := c.contracts[*msg.To]
	if !ok {
		return nil, nil
	}
	method, args, err := c.decode(msg.Data)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case contract.MethodOwner:
		return method.Outputs.Pack(state.owner)
	case contract.MethodName:
		return method.Outputs.Pack("CardDrawing")
	case contract.MethodSymbol:
		return method.Outputs.Pack("CARD")
	case contract.MethodOwnerOf:
		holder, ok := state.holders[args[0].(*big.Int).Uint64()]
		if !ok {
			return nil, errors.New("execution reverted: ERC721: invalid token ID")
		}
		return method.Outputs.Pack(holder)
	case contract.MethodGetCardDetails:
		card, ok := state.cards[args[0].(*big.Int).Uint64()]
		if !ok {
			return nil, errors.New("execution reverted: card does not exist")
		}
		return method.Outputs.Pack(card)
	default:
		return nil, fmt.Errorf("execution reverted: %s is not a view", method.Name)
	}
}

func (c *Chain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return c.SendErr
	}
	if tx.ChainId().Cmp(c.chainID) != 0 {
		return fmt.Errorf("invalid chain id %v", tx.ChainId())
	}
	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if want := c.nonces[from]; tx.Nonce() != want {
		return fmt.Errorf("invalid nonce: got %d, want %d", tx.Nonce(), want)
	}
	c.nonces[from]++
	c.blockNumber++

	receipt := &types.Receipt{
		Type:        tx.Type(),
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		GasUsed:     21_000,
		BlockNumber: new(big.Int).SetUint64(c.blockNumber),
	}

	if tx.To() == nil {
		c.sent = append(c.sent, "deploy")
		addr := crypto.CreateAddress(from, tx.Nonce())
		receipt.ContractAddress = addr
		if c.Revert[""] {
			receipt.Status = types.ReceiptStatusFailed
		} else {
			c.code[addr] = append([]byte(nil), tx.Data()...)
			c.contracts[addr] = newCardContract(from)
		}
		c.receipts[tx.Hash()] = receipt
		return nil
	}

	to := *tx.To()
	state, ok := c.contracts[to]
	if !ok {
		c.sent = append(c.sent, "transfer")
		c.receipts[tx.Hash()] = receipt
		return nil
	}
	method, args, err := c.decode(tx.Data())
	if err != nil {
		return err
	}
	c.sent = append(c.sent, method.Name)

	var logs []*types.Log
	ok = !c.Revert[method.Name]
	if ok {
		logs, ok = c.execute(state, from, method, args)
	}
	if !ok {
		receipt.Status = types.ReceiptStatusFailed
		logs = nil
	}
	for i, l := range logs {
		l.Address = to
		l.TxHash = tx.Hash()
		l.BlockNumber = c.blockNumber
		l.Index = uint(i)
	}
	receipt.Logs = logs
	c.receipts[tx.Hash()] = receipt
	for _, l := range logs {
		c.logs = append(c.logs, *l)
	}
	return nil
}

func (c *Chain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockNumber, nil
}

// FilterLogs matches on block range, addresses and the first topic position
// only.
func (c *Chain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []types.Log
	for _, l := range c.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && (len(l.Topics) == 0 || !containsHash(q.Topics[0], l.Topics[0])) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

// execute applies a state-changing call. It returns false on revert.
func (c *Chain) execute(state *cardContract, from common.Address, method *abi.Method, args []interface{}) ([]*types.Log, bool) {
	switch method.Name {
	case contract.MethodMintCard:
		if from != state.owner {
			return nil, false
		}
		to := args[0].(common.Address)
		cardID := args[1].(*big.Int)
		tokenID := state.mint(to, cardID)
		return c.mintLogs(to, tokenID), true

	case contract.MethodDrawCard:
		tokenID := state.nextToken
		cardID := new(big.Int).SetUint64(tokenID)
		state.mint(from, cardID)
		card := state.cards[tokenID]
		card.Rarity = uint8(tokenID%5) + 1
		state.cards[tokenID] = card
		return c.mintLogs(from, tokenID), true

	case contract.MethodSetCardMetadata:
		if from != state.owner {
			return nil, false
		}
		tokenID := args[0].(*big.Int).Uint64()
		card, ok := state.cards[tokenID]
		if !ok {
			return nil, false
		}
		card.Name = args[1].(string)
		card.Description = args[2].(string)
		card.Image = args[3].(string)
		card.Rarity = args[4].(uint8)
		state.cards[tokenID] = card
		return nil, true
	}
	return nil, false
}

func (s *cardContract) mint(to common.Address, cardID *big.Int) uint64 {
	tokenID := s.nextToken
	s.nextToken++
	s.holders[tokenID] = to
	s.cards[tokenID] = contract.CardDetails{
		Id:          new(big.Int).Set(cardID),
		Name:        fmt.Sprintf("Card #%s", cardID),
		Description: DefaultDescription,
		Image:       DefaultImage,
		Rarity:      DefaultRarity,
	}
	return tokenID
}

func (c *Chain) mintLogs(to common.Address, tokenID uint64) []*types.Log {
	id := new(big.Int).SetUint64(tokenID)
	logs := []*types.Log{{
		Topics: []common.Hash{TransferTopic, {}, common.BytesToHash(to.Bytes()), common.BigToHash(id)},
	}}
	if c.OmitCardDrawn {
		return logs
	}

	event := c.abi.Events[contract.EventCardDrawn]
	data, err := event.Inputs.NonIndexed().Pack(id)
	if err != nil {
		panic(err)
	}
	if c.MalformedCardDrawn {
		data = data[:7]
	}
	drawn := func() *types.Log {
		return &types.Log{
			Topics: []common.Hash{event.ID, common.BytesToHash(to.Bytes())},
			Data:   append([]byte(nil), data...),
		}
	}
	logs = append(logs, drawn())
	if c.DuplicateCardDrawn {
		logs = append(logs, drawn())
	}
	return logs
}

func (c *Chain) decode(data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("execution reverted: missing selector")
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("execution reverted: %w", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("execution reverted: %w", err)
	}
	return method, args, nil
}
