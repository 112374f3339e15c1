package cmd

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/filecoin-project/go-address"
	filbig "github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/lotus/chain/types"
	"github.com/filecoin-project/lotus/chain/types/ethtypes"
	"github.com/urfave/cli/v2"

	"github.com/parthshah1/carddraw/client"
	"github.com/parthshah1/carddraw/failure"
)

// delegatedAddress returns the f410/t410 address of an Ethereum account.
func delegatedAddress(addr common.Address, testnet bool) (string, error) {
	ea, err := ethtypes.CastEthAddress(addr.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to cast Ethereum address: %w", err)
	}
	fa, err := ea.ToFilecoinAddress()
	if err != nil {
		return "", fmt.Errorf("failed to convert Ethereum address to Filecoin address: %w", err)
	}

	if testnet {
		address.CurrentNetwork = address.Testnet
	} else {
		address.CurrentNetwork = address.Mainnet
	}
	return fa.String(), nil
}

func formatFIL(wei *big.Int) string {
	return types.FIL(filbig.NewFromGo(wei)).String()
}

func formatEther(wei *big.Int) string {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, new(big.Float).SetInt64(params.Ether))
	return f.Text('f', 6) + " ETH"
}

var WalletCmd = &cli.Command{
	Name:  "wallet",
	Usage: "Show the signer's address and balance",
	Action: func(c *cli.Context) error {
		cfg := getConfig(c)
		signer, err := cfg.RequireSigner()
		if err != nil {
			return err
		}
		network, err := cfg.NetworkInfo()
		if err != nil {
			return failure.Config("wallet", err)
		}

		fmt.Printf("Ethereum Address: %s\n", signer.Address.Hex())
		if network.Filecoin {
			fa, err := delegatedAddress(signer.Address, network.Testnet)
			if err != nil {
				return failure.Validation("wallet", err)
			}
			fmt.Printf("Filecoin Address: %s\n", fa)
		}

		cl, err := client.New(c.Context, cfg)
		if err != nil {
			return err
		}
		defer cl.Close()

		bal, err := cl.Balance(c.Context, signer.Address)
		if err != nil {
			return err
		}
		if network.Filecoin {
			fmt.Printf("Balance: %s (%s attoFIL)\n", formatFIL(bal), bal)
		} else {
			fmt.Printf("Balance: %s (%s wei)\n", formatEther(bal), bal)
		}
		return nil
	},
}
