package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parthshah1/carddraw/failure"
)

// hardhat's first default account
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func clearEnv(t *testing.T) {
	for _, k := range []string{"RPC_URL", "API_URL", "INFURA_PROJECT_ID", "PRIVATE_KEY", "NETWORK", "CHAIN_ID",
		"DEPLOYMENT_FILE", "CATALOG_FILE", "GAS_LIMIT", "TX_TIMEOUT", "RECEIPT_POLL_INTERVAL", "LOG_LEVEL", "VERBOSE"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, "sepolia", cfg.Network)
	assert.Equal(t, "deployment.json", cfg.DeploymentFile)
	assert.Equal(t, "cards.json", cfg.CatalogFile)
	assert.Equal(t, time.Duration(0), cfg.TxTimeout)
	assert.Equal(t, time.Second, cfg.ReceiptPollInterval)
	assert.Equal(t, uint64(0), cfg.GasLimit)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_URL", "http://node:8545")
	t.Setenv("NETWORK", "hardhat")
	t.Setenv("GAS_LIMIT", "300000")
	t.Setenv("TX_TIMEOUT", "2m")
	t.Setenv("VERBOSE", "true")

	cfg := Load()
	assert.Equal(t, "http://node:8545", cfg.RPC)
	assert.Equal(t, uint64(300000), cfg.GasLimit)
	assert.Equal(t, 2*time.Minute, cfg.TxTimeout)
	assert.True(t, cfg.Verbose)

	t.Setenv("RPC_URL", "http://primary:8545")
	assert.Equal(t, "http://primary:8545", Load().RPC)
}

func TestValidateRejectsBadNumbers(t *testing.T) {
	tests := map[string][2]string{
		"negative gas limit":   {"GAS_LIMIT", "-1"},
		"gas limit typo":       {"GAS_LIMIT", "300k"},
		"chain id typo":        {"CHAIN_ID", "0x7a69"},
		"negative chain id":    {"CHAIN_ID", "-5"},
		"timeout without unit": {"TX_TIMEOUT", "120"},
		"negative timeout":     {"TX_TIMEOUT", "-2m"},
		"bad poll interval":    {"RECEIPT_POLL_INTERVAL", "soon"},
		"bad verbose":          {"VERBOSE", "yes please"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])

			err := Load().Validate()
			require.Error(t, err)
			assert.True(t, failure.Is(err, failure.KindConfig))
			assert.Contains(t, err.Error(), kv[0])
		})
	}
}

func TestLoadKeepsDefaultForBadValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("GAS_LIMIT", "-1")

	cfg := Load()
	assert.Equal(t, uint64(0), cfg.GasLimit)
	assert.Error(t, cfg.Validate())
}

func TestRequireRPCInfura(t *testing.T) {
	clearEnv(t)
	t.Setenv("INFURA_PROJECT_ID", "abc123")

	rpc, err := Load().RequireRPC()
	require.NoError(t, err)
	assert.Equal(t, "https://sepolia.infura.io/v3/abc123", rpc)
}

func TestRequireRPCMissing(t *testing.T) {
	clearEnv(t)

	_, err := Load().RequireRPC()
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindConfig))
	assert.Contains(t, err.Error(), "RPC_URL")
}

func TestRequireRPCNetworkDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("NETWORK", "Localhost")

	rpc, err := Load().RequireRPC()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", rpc)
}

func TestValidateUnknownNetwork(t *testing.T) {
	clearEnv(t)
	t.Setenv("NETWORK", "goerli")

	err := Load().Validate()
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindConfig))
	assert.Contains(t, err.Error(), "unknown network")
}

func TestRequireSigner(t *testing.T) {
	clearEnv(t)

	_, err := Load().RequireSigner()
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindConfig))

	t.Setenv("PRIVATE_KEY", testKey)
	signer, err := Load().RequireSigner()
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", signer.Address.Hex())
}

func TestParsePrivateKey(t *testing.T) {
	_, err := ParsePrivateKey("zz")
	assert.ErrorContains(t, err, "invalid hex format")

	_, err = ParsePrivateKey("0x1234")
	assert.ErrorContains(t, err, "invalid private key length")

	key, err := ParsePrivateKey(testKey[2:])
	require.NoError(t, err)
	assert.NotNil(t, key)
}
