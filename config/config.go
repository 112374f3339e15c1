package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/parthshah1/carddraw/failure"
)

// Config holds all configuration for carddraw
type Config struct {
	// Chain connection
	RPC             string
	InfuraProjectID string
	Network         string
	ChainID         int64 // 0 = take the node's chain id

	// Signing identity (hex secp256k1 key)
	PrivateKey string

	// Local files
	DeploymentFile string
	CatalogFile    string

	// Transaction settings
	GasLimit            uint64        // 0 = estimate
	TxTimeout           time.Duration // 0 = wait indefinitely
	ReceiptPollInterval time.Duration

	// Logging
	LogLevel string
	Verbose  bool

	envErrs []error
}

// Load creates a new config from environment variables. Values that do not
// parse are reported by Validate.
func Load() *Config {
	var env envReader
	cfg := &Config{
		RPC:                 getEnv("RPC_URL", getEnv("API_URL", "")),
		InfuraProjectID:     getEnv("INFURA_PROJECT_ID", ""),
		Network:             getEnv("NETWORK", "sepolia"),
		ChainID:             env.getInt64("CHAIN_ID", 0),
		PrivateKey:          getEnv("PRIVATE_KEY", ""),
		DeploymentFile:      getEnv("DEPLOYMENT_FILE", "deployment.json"),
		CatalogFile:         getEnv("CATALOG_FILE", "cards.json"),
		GasLimit:            env.getUint64("GAS_LIMIT", 0),
		TxTimeout:           env.getDuration("TX_TIMEOUT", 0),
		ReceiptPollInterval: env.getDuration("RECEIPT_POLL_INTERVAL", time.Second),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Verbose:             env.getBool("VERBOSE", false),
	}
	cfg.envErrs = env.errs
	return cfg
}

// Validate checks settings that every command depends on.
func (c *Config) Validate() error {
	if err := errors.Join(c.envErrs...); err != nil {
		return failure.Config("validate config", err)
	}
	if _, err := c.NetworkInfo(); err != nil {
		return failure.Config("validate config", err)
	}
	if c.ChainID < 0 {
		return failure.Config("validate config", fmt.Errorf("CHAIN_ID must not be negative, got %d", c.ChainID))
	}
	if c.TxTimeout < 0 {
		return failure.Config("validate config", fmt.Errorf("TX_TIMEOUT must not be negative, got %s", c.TxTimeout))
	}
	if c.DeploymentFile == "" {
		return failure.Config("validate config", errors.New("DEPLOYMENT_FILE must not be empty"))
	}
	if c.ReceiptPollInterval <= 0 {
		return failure.Config("validate config", fmt.Errorf("RECEIPT_POLL_INTERVAL must be positive, got %s", c.ReceiptPollInterval))
	}
	return nil
}

// RequireRPC resolves the RPC endpoint, deriving an Infura URL for known
// networks when only a project id is configured.
func (c *Config) RequireRPC() (string, error) {
	if c.RPC != "" {
		return c.RPC, nil
	}
	network, err := c.NetworkInfo()
	if err != nil {
		return "", failure.Config("resolve RPC endpoint", err)
	}
	if c.InfuraProjectID != "" && network.InfuraName != "" {
		return fmt.Sprintf("https://%s.infura.io/v3/%s", network.InfuraName, c.InfuraProjectID), nil
	}
	if network.DefaultRPC != "" {
		return network.DefaultRPC, nil
	}
	return "", failure.Config("resolve RPC endpoint",
		fmt.Errorf("no RPC endpoint configured for network %q: set RPC_URL (or API_URL), or INFURA_PROJECT_ID", c.Network))
}

// RequireSigner ensures a signing key is configured and parses it.
func (c *Config) RequireSigner() (*Signer, error) {
	if strings.TrimSpace(c.PrivateKey) == "" {
		return nil, failure.Config("load signing key", errors.New("no signing key configured: set PRIVATE_KEY or pass --private-key"))
	}
	key, err := ParsePrivateKey(c.PrivateKey)
	if err != nil {
		return nil, failure.Config("load signing key", err)
	}
	return NewSigner(key), nil
}

// NetworkInfo returns the known network entry for c.Network.
func (c *Config) NetworkInfo() (Network, error) {
	return LookupNetwork(c.Network)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// envReader parses typed environment variables, keeping the fallback and
// recording an error for values that do not parse.
type envReader struct {
	errs []error
}

func (r *envReader) fail(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("invalid %s %q: %w", key, value, err))
}

func (r *envReader) getInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		r.fail(key, value, err)
		return fallback
	}
	return parsed
}

func (r *envReader) getUint64(key string, fallback uint64) uint64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		r.fail(key, value, err)
		return fallback
	}
	return parsed
}

func (r *envReader) getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		r.fail(key, value, err)
		return fallback
	}
	return parsed
}

func (r *envReader) getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		r.fail(key, value, err)
		return fallback
	}
	return parsed
}
