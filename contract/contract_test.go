package contract_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parthshah1/carddraw/contract"
	"github.com/parthshah1/carddraw/contract/chaintest"
)

const testChainID = 31337

func newOpts(t *testing.T) *contract.TxOpts {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &contract.TxOpts{
		Key:          key,
		ChainID:      big.NewInt(testChainID),
		PollInterval: time.Millisecond,
	}
}

func TestEventSignature(t *testing.T) {
	parsed := contract.DefaultABI()
	event, ok := parsed.Events[contract.EventCardDrawn]
	require.True(t, ok)
	assert.Equal(t, crypto.Keccak256Hash([]byte("CardDrawn(address,uint256)")), event.ID)

	for _, name := range []string{
		contract.MethodOwner, contract.MethodName, contract.MethodSymbol, contract.MethodOwnerOf,
		contract.MethodMintCard, contract.MethodDrawCard, contract.MethodGetCardDetails, contract.MethodSetCardMetadata,
	} {
		_, ok := parsed.Methods[name]
		assert.True(t, ok, name)
	}
}

func TestDeployAndInteract(t *testing.T) {
	ctx := context.Background()
	chain := chaintest.New(testChainID)
	opts := newOpts(t)

	dep, err := contract.Deploy(ctx, chain, opts, contract.DefaultABI(), []byte{0x60, 0x80})
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, dep.Address)
	assert.Equal(t, crypto.CreateAddress(opts.From(), 0), dep.Address)

	c := contract.Bind(dep.Address, contract.DefaultABI(), chain, opts)

	owner, err := c.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, opts.From(), owner)

	name, err := c.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CardDrawing", name)

	symbol, err := c.Symbol(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CARD", symbol)

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx, err := c.MintCard(ctx, to, big.NewInt(3))
	require.NoError(t, err)
	receipt, err := c.WaitMined(ctx, tx)
	require.NoError(t, err)
	assert.Len(t, receipt.Logs, 2)

	holder, err := c.OwnerOf(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, to, holder)

	details, err := c.GetCardDetails(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(3), details.Id.Int64())
	assert.Equal(t, "Card #3", details.Name)
	assert.Equal(t, chaintest.DefaultDescription, details.Description)
	assert.Equal(t, chaintest.DefaultImage, details.Image)
	assert.Equal(t, uint8(chaintest.DefaultRarity), details.Rarity)

	tx, err = c.SetCardMetadata(ctx, big.NewInt(1), "Dragon", "Breathes fire", "ipfs://x", 5)
	require.NoError(t, err)
	_, err = c.WaitMined(ctx, tx)
	require.NoError(t, err)

	details, err = c.GetCardDetails(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "Dragon", details.Name)
	assert.Equal(t, uint8(5), details.Rarity)

	assert.Equal(t, []string{"deploy", "mintCard", "setCardMetadata"}, chain.Sent())
}

func TestDeployReverted(t *testing.T) {
	chain := chaintest.New(testChainID)
	chain.Revert[""] = true

	dep, err := contract.Deploy(context.Background(), chain, newOpts(t), contract.DefaultABI(), []byte{0x60})
	require.Error(t, err)
	assert.ErrorIs(t, err, contract.ErrReverted)
	require.NotNil(t, dep)
	assert.NotNil(t, dep.Tx, "sent transaction is reported")
}

func TestDeployEmptyBytecode(t *testing.T) {
	chain := chaintest.New(testChainID)
	_, err := contract.Deploy(context.Background(), chain, newOpts(t), contract.DefaultABI(), nil)
	require.Error(t, err)
	assert.Empty(t, chain.Sent())
}

func TestMintByNonOwnerReverts(t *testing.T) {
	ctx := context.Background()
	chain := chaintest.New(testChainID)
	addr := chain.Install(common.HexToAddress("0x2222222222222222222222222222222222222222"))

	c := contract.Bind(addr, contract.DefaultABI(), chain, newOpts(t))
	tx, err := c.MintCard(ctx, c.Sender(), big.NewInt(1))
	require.NoError(t, err)

	receipt, err := c.WaitMined(ctx, tx)
	require.ErrorIs(t, err, contract.ErrReverted)
	require.NotNil(t, receipt)
	assert.Empty(t, receipt.Logs)
}

func TestTransactWithoutSigner(t *testing.T) {
	chain := chaintest.New(testChainID)
	addr := chain.Install(common.Address{})

	c := contract.Bind(addr, contract.DefaultABI(), chain, nil)
	_, err := c.DrawCard(context.Background())
	assert.ErrorIs(t, err, contract.ErrNoSigner)
	assert.Empty(t, chain.Sent())
}

func TestCallWithoutCode(t *testing.T) {
	chain := chaintest.New(testChainID)
	c := contract.Bind(common.HexToAddress("0x3333333333333333333333333333333333333333"), contract.DefaultABI(), chain, nil)

	_, err := c.Owner(context.Background())
	assert.ErrorIs(t, err, contract.ErrNoCode)
}

func TestWaitMinedPolls(t *testing.T) {
	ctx := context.Background()
	chain := chaintest.New(testChainID)
	chain.PendingPolls = 3
	addr := chain.Install(common.Address{})

	c := contract.Bind(addr, contract.DefaultABI(), chain, newOpts(t))
	tx, err := c.DrawCard(ctx)
	require.NoError(t, err)

	receipt, err := c.WaitMined(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), receipt.TxHash)
}

func TestWaitMinedContextCancelled(t *testing.T) {
	chain := chaintest.New(testChainID)
	chain.PendingPolls = 1 << 30
	addr := chain.Install(common.Address{})

	c := contract.Bind(addr, contract.DefaultABI(), chain, newOpts(t))
	tx, err := c.DrawCard(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.WaitMined(ctx, tx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSendRejected(t *testing.T) {
	chain := chaintest.New(testChainID)
	chain.SendErr = errors.New("insufficient funds for gas * price + value")
	addr := chain.Install(common.Address{})

	c := contract.Bind(addr, contract.DefaultABI(), chain, newOpts(t))
	_, err := c.DrawCard(context.Background())
	assert.ErrorContains(t, err, "insufficient funds")
}
