package client

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/parthshah1/carddraw/config"
	"github.com/parthshah1/carddraw/contract"
	"github.com/parthshah1/carddraw/failure"
)

// Client wraps the Ethereum JSON-RPC client
type Client struct {
	eth     *ethclient.Client
	cfg     *config.Config
	chainID *big.Int
}

// New connects to the configured RPC endpoint and resolves the chain id.
// A configured CHAIN_ID that disagrees with the node is a config error.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, failure.Config("connect", fmt.Errorf("config cannot be nil"))
	}

	rpcURL, err := cfg.RequireRPC()
	if err != nil {
		return nil, err
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, failure.Chain("connect", fmt.Errorf("failed to connect to node at %s: %w", rpcURL, err))
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, failure.Chain("connect", fmt.Errorf("failed to get chain id from %s: %w", rpcURL, err))
	}

	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, failure.Config("connect", fmt.Errorf("chain id mismatch: node reports %s, configured %d", chainID, cfg.ChainID))
	}
	if network, err := cfg.NetworkInfo(); err == nil && network.ChainID != chainID.Int64() {
		log.Warn("Node chain id differs from network", "network", network.Name, "expected", network.ChainID, "node", chainID)
	}

	log.Debug("Connected to node", "rpc", rpcURL, "chainId", chainID)
	return &Client{eth: eth, cfg: cfg, chainID: chainID}, nil
}

// Close closes the client connection
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// Backend returns the client as a contract backend.
func (c *Client) Backend() contract.Backend {
	return c.eth
}

// Eth returns the underlying JSON-RPC client.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// GetConfig returns the client configuration
func (c *Client) GetConfig() *config.Config {
	return c.cfg
}

// Balance returns the latest balance of addr in wei.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, failure.Chain("get balance", err)
	}
	return bal, nil
}

// TxOpts builds transaction options for signer using configured gas settings.
func (c *Client) TxOpts(signer *config.Signer) *contract.TxOpts {
	return &contract.TxOpts{
		Key:          signer.Key,
		ChainID:      c.ChainID(),
		GasLimit:     c.cfg.GasLimit,
		PollInterval: c.cfg.ReceiptPollInterval,
	}
}
