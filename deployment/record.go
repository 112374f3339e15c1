package deployment

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/parthshah1/carddraw/failure"
)

// Record is the persisted result of a successful deployment.
type Record struct {
	Address common.Address
	ABI     abi.ABI
	// RawABI is the compact JSON array the ABI was parsed from.
	RawABI json.RawMessage

	Network     string
	ChainID     int64
	TxHash      common.Hash
	Deployer    common.Address
	BlockNumber uint64
	DeployedAt  time.Time
}

type recordJSON struct {
	Address         string          `json:"address,omitempty"`
	ContractAddress string          `json:"contractAddress,omitempty"`
	ABI             json.RawMessage `json:"abi"`
	Network         string          `json:"network,omitempty"`
	ChainID         int64           `json:"chainId,omitempty"`
	TxHash          string          `json:"txHash,omitempty"`
	Deployer        string          `json:"deployer,omitempty"`
	BlockNumber     uint64          `json:"blockNumber,omitempty"`
	DeployedAt      *time.Time      `json:"deployedAt,omitempty"`
}

// NewRecord builds a record from an address and raw ABI JSON.
func NewRecord(address common.Address, rawABI []byte) (*Record, error) {
	normalized, parsed, err := NormalizeABI(rawABI)
	if err != nil {
		return nil, err
	}
	return &Record{Address: address, ABI: parsed, RawABI: normalized}, nil
}

// NormalizeABI accepts an ABI as a JSON array or as a JSON string holding
// the array, and returns the compact array form with its parsed ABI.
func NormalizeABI(raw []byte) (json.RawMessage, abi.ABI, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, abi.ABI{}, errors.New("abi is missing")
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, abi.ABI{}, fmt.Errorf("failed to decode string-encoded abi: %w", err)
		}
		raw = bytes.TrimSpace([]byte(inner))
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, abi.ABI{}, errors.New("abi must be a JSON array")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, abi.ABI{}, fmt.Errorf("invalid abi JSON: %w", err)
	}

	parsed, err := abi.JSON(bytes.NewReader(compact.Bytes()))
	if err != nil {
		return nil, abi.ABI{}, fmt.Errorf("failed to parse abi: %w", err)
	}
	return json.RawMessage(compact.Bytes()), parsed, nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var wire recordJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	addr := wire.Address
	if addr == "" {
		addr = wire.ContractAddress
	}
	if addr == "" {
		return errors.New("contract address is missing")
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid contract address %q", addr)
	}

	normalized, parsed, err := NormalizeABI(wire.ABI)
	if err != nil {
		return err
	}

	*r = Record{
		Address:     common.HexToAddress(addr),
		ABI:         parsed,
		RawABI:      normalized,
		Network:     wire.Network,
		ChainID:     wire.ChainID,
		BlockNumber: wire.BlockNumber,
	}
	if wire.TxHash != "" {
		r.TxHash = common.HexToHash(wire.TxHash)
	}
	if wire.Deployer != "" {
		if !common.IsHexAddress(wire.Deployer) {
			return fmt.Errorf("invalid deployer address %q", wire.Deployer)
		}
		r.Deployer = common.HexToAddress(wire.Deployer)
	}
	if wire.DeployedAt != nil {
		r.DeployedAt = *wire.DeployedAt
	}
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	wire := recordJSON{
		Address:     r.Address.Hex(),
		ABI:         r.RawABI,
		Network:     r.Network,
		ChainID:     r.ChainID,
		BlockNumber: r.BlockNumber,
	}
	if len(wire.ABI) == 0 {
		wire.ABI = json.RawMessage("[]")
	}
	if r.TxHash != (common.Hash{}) {
		wire.TxHash = r.TxHash.Hex()
	}
	if r.Deployer != (common.Address{}) {
		wire.Deployer = r.Deployer.Hex()
	}
	if !r.DeployedAt.IsZero() {
		t := r.DeployedAt.UTC()
		wire.DeployedAt = &t
	}
	return json.Marshal(wire)
}

// Fingerprint is the SHA3-256 of the normalized ABI, hex encoded.
func (r *Record) Fingerprint() string {
	sum := sha3.Sum256(r.RawABI)
	return hex.EncodeToString(sum[:])
}

// Load reads the record at path. Missing or malformed records are
// persisted-state failures.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, failure.State("load deployment record", fmt.Errorf("no deployment record at %s, run deploy first", path))
		}
		return nil, failure.State("load deployment record", fmt.Errorf("failed to read %s: %w", path, err))
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, failure.State("load deployment record", fmt.Errorf("failed to parse %s: %w", path, err))
	}
	return &rec, nil
}

// Save writes rec to path, replacing any existing record. The file is
// written to a temporary sibling and renamed into place.
func Save(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return failure.State("save deployment record", fmt.Errorf("failed to encode record: %w", err))
	}
	data = append(data, '\n')

	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return failure.State("save deployment record", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
