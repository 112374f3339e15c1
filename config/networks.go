package config

import (
	"fmt"
	"sort"
	"strings"
)

// Network describes a chain carddraw knows how to reach.
type Network struct {
	Name       string
	ChainID    int64
	InfuraName string // subdomain on infura.io, empty if Infura does not serve it
	DefaultRPC string
	Filecoin   bool
	Testnet    bool
}

var networks = map[string]Network{
	"mainnet":     {Name: "mainnet", ChainID: 1, InfuraName: "mainnet"},
	"sepolia":     {Name: "sepolia", ChainID: 11155111, InfuraName: "sepolia", Testnet: true},
	"hardhat":     {Name: "hardhat", ChainID: 31337, DefaultRPC: "http://127.0.0.1:8545", Testnet: true},
	"localhost":   {Name: "localhost", ChainID: 31337, DefaultRPC: "http://127.0.0.1:8545", Testnet: true},
	"filecoin":    {Name: "filecoin", ChainID: 314, DefaultRPC: "https://api.node.glif.io/rpc/v1", Filecoin: true},
	"calibration": {Name: "calibration", ChainID: 314159, DefaultRPC: "https://api.calibration.node.glif.io/rpc/v1", Filecoin: true, Testnet: true},
	"devnet":      {Name: "devnet", ChainID: 31415926, DefaultRPC: "http://127.0.0.1:1234/rpc/v1", Filecoin: true, Testnet: true},
}

// LookupNetwork finds a network by case-insensitive name.
func LookupNetwork(name string) (Network, error) {
	n, ok := networks[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q (known: %s)", name, strings.Join(NetworkNames(), ", "))
	}
	return n, nil
}

// NetworkNames lists known network names in sorted order.
func NetworkNames() []string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
