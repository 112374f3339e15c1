package deployment

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parthshah1/carddraw/contract"
	"github.com/parthshah1/carddraw/contract/chaintest"
	"github.com/parthshah1/carddraw/failure"
)

const testAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRecordAcceptsArrayAndStringABI(t *testing.T) {
	dir := t.TempDir()

	arrayForm := `{"address": "` + testAddress + `", "abi": ` + contract.CardDrawingABI + `}`
	stringForm := `{"address": "` + testAddress + `", "abi": ` + strconv.Quote(contract.CardDrawingABI) + `}`

	a, err := Load(writeFile(t, dir, "array.json", arrayForm))
	require.NoError(t, err)
	s, err := Load(writeFile(t, dir, "string.json", stringForm))
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(testAddress), a.Address)
	assert.Equal(t, a.Address, s.Address)
	assert.JSONEq(t, string(a.RawABI), string(s.RawABI))
	assert.Equal(t, a.Fingerprint(), s.Fingerprint())
	assert.Contains(t, s.ABI.Events, contract.EventCardDrawn)
	assert.Contains(t, s.ABI.Methods, contract.MethodMintCard)
}

func TestRecordContractAddressKey(t *testing.T) {
	dir := t.TempDir()
	rec, err := Load(writeFile(t, dir, "d.json", `{"contractAddress": "`+testAddress+`", "abi": []}`))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), rec.Address)
}

func TestRecordRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployment.json")

	rec, err := NewRecord(common.HexToAddress(testAddress), []byte(contract.CardDrawingABI))
	require.NoError(t, err)
	rec.Network = "hardhat"
	rec.ChainID = 31337
	rec.TxHash = common.HexToHash("0xabc")
	rec.BlockNumber = 7
	rec.DeployedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, Save(path, rec))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, rec.Address, loaded.Address)
	assert.Equal(t, rec.Network, loaded.Network)
	assert.Equal(t, rec.ChainID, loaded.ChainID)
	assert.Equal(t, rec.TxHash, loaded.TxHash)
	assert.Equal(t, rec.BlockNumber, loaded.BlockNumber)
	assert.True(t, rec.DeployedAt.Equal(loaded.DeployedAt))
	assert.Equal(t, rec.Fingerprint(), loaded.Fingerprint())

	// the file keeps the ABI as an array
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, byte('['), raw["abi"][0])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLoadFailures(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"missing address": `{"abi": []}`,
		"bad address":     `{"address": "0x123", "abi": []}`,
		"missing abi":     `{"address": "` + testAddress + `"}`,
		"abi object":      `{"address": "` + testAddress + `", "abi": {"type": "function"}}`,
		"bad abi string":  `{"address": "` + testAddress + `", "abi": "not json"}`,
		"not json":        `deployment`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, dir, "d.json", content))
			require.Error(t, err)
			assert.True(t, failure.Is(err, failure.KindState), err.Error())
		})
	}

	_, err := Load(filepath.Join(dir, "absent.json"))
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindState))
	assert.Contains(t, err.Error(), "run deploy first")
}

func TestLoadArtifactFormats(t *testing.T) {
	dir := t.TempDir()

	hardhat := writeFile(t, dir, "hardhat.json",
		`{"contractName": "CardDrawing", "abi": `+contract.CardDrawingABI+`, "bytecode": "0x6080604052"}`)
	foundry := writeFile(t, dir, "foundry.json",
		`{"abi": `+contract.CardDrawingABI+`, "bytecode": {"object": "0x6080604052", "linkReferences": {}}}`)

	for _, path := range []string{hardhat, foundry} {
		art, err := LoadArtifact(path)
		require.NoError(t, err, path)
		assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, art.Bytecode)
		assert.Contains(t, art.ABI.Methods, contract.MethodDrawCard)
	}

	bin := writeFile(t, dir, "CardDrawing.bin", "6080604052\n")
	art, err := LoadBinArtifact(bin, "")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, art.Bytecode)
	assert.Contains(t, art.ABI.Events, contract.EventCardDrawn)

	_, err = LoadArtifact(writeFile(t, dir, "abstract.json", `{"abi": [], "bytecode": "0x"}`))
	assert.True(t, failure.Is(err, failure.KindValidation))

	_, err = LoadArtifact(writeFile(t, dir, "linked.json", `{"abi": [], "bytecode": "0x60__$abc$__"}`))
	assert.ErrorContains(t, err, "unlinked")
}

func newDeployer(t *testing.T, chain *chaintest.Chain, path string) *Deployer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &Deployer{
		Backend: chain,
		Opts: &contract.TxOpts{
			Key:          key,
			ChainID:      chain.ChainID(),
			PollInterval: time.Millisecond,
		},
		Path:    path,
		Network: "hardhat",
		Now:     func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

func testArtifact(t *testing.T) *Artifact {
	t.Helper()
	art := &Artifact{Name: "CardDrawing", Bytecode: []byte{0x60, 0x80}}
	require.NoError(t, art.setABI([]byte(contract.CardDrawingABI)))
	return art
}

func TestDeployWritesRecord(t *testing.T) {
	chain := chaintest.New(31337)
	path := filepath.Join(t.TempDir(), "deployment.json")
	d := newDeployer(t, chain, path)

	rec, err := d.Deploy(context.Background(), testArtifact(t))
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(d.Opts.From(), 0), rec.Address)
	assert.Equal(t, int64(31337), rec.ChainID)
	assert.Equal(t, d.Opts.From(), rec.Deployer)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, rec.Address, loaded.Address)

	code, err := chain.CodeAt(context.Background(), rec.Address, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, code)
}

func TestRedeployReplacesRecord(t *testing.T) {
	chain := chaintest.New(31337)
	path := filepath.Join(t.TempDir(), "deployment.json")
	d := newDeployer(t, chain, path)

	first, err := d.Deploy(context.Background(), testArtifact(t))
	require.NoError(t, err)
	second, err := d.Deploy(context.Background(), testArtifact(t))
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, second.Address)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, second.Address, loaded.Address)
}

func TestFailedDeployLeavesRecordUntouched(t *testing.T) {
	chain := chaintest.New(31337)
	path := filepath.Join(t.TempDir(), "deployment.json")
	d := newDeployer(t, chain, path)

	_, err := d.Deploy(context.Background(), testArtifact(t))
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	chain.Revert[""] = true
	_, err = d.Deploy(context.Background(), testArtifact(t))
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindChain))
	assert.ErrorIs(t, err, contract.ErrReverted)

	chain.Revert[""] = false
	chain.SendErr = errors.New("insufficient funds for gas * price + value")
	_, err = d.Deploy(context.Background(), testArtifact(t))
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindChain))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFailedFirstDeployWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployment.json")
	d := newDeployer(t, chaintest.New(31337), path)
	d.Create = func(context.Context, contract.Backend, *contract.TxOpts, abi.ABI, []byte, ...interface{}) (*contract.Deployment, error) {
		return nil, errors.New("connection refused")
	}

	_, err := d.Deploy(context.Background(), testArtifact(t))
	require.Error(t, err)
	assert.True(t, failure.Retryable(err))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRevertedDeployIsNotRetryable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployment.json")
	chain := chaintest.New(31337)
	chain.Revert[""] = true
	d := newDeployer(t, chain, path)

	_, err := d.Deploy(context.Background(), testArtifact(t))
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindChain))
	assert.ErrorIs(t, err, contract.ErrReverted)
	assert.False(t, failure.Retryable(err))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDeployRequiresSigner(t *testing.T) {
	d := &Deployer{Backend: chaintest.New(31337), Opts: &contract.TxOpts{ChainID: big.NewInt(31337)}, Path: "unused.json"}
	_, err := d.Deploy(context.Background(), testArtifact(t))
	assert.True(t, failure.Is(err, failure.KindConfig))
}
