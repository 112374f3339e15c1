package config

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the identity transactions are sent from.
type Signer struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// ParsePrivateKey parses a hex secp256k1 key, 0x prefix optional.
func ParsePrivateKey(privateKeyStr string) (*ecdsa.PrivateKey, error) {
	privateKeyStr = strings.TrimPrefix(strings.TrimSpace(privateKeyStr), "0x")

	privateKeyBytes, err := hex.DecodeString(privateKeyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid hex format: %w", err)
	}

	if len(privateKeyBytes) != 32 {
		return nil, fmt.Errorf("invalid private key length: got %d bytes, want 32 bytes", len(privateKeyBytes))
	}

	privateKey, err := crypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return privateKey, nil
}
