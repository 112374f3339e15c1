package deployment

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/parthshah1/carddraw/contract"
	"github.com/parthshah1/carddraw/failure"
)

// Artifact is compiled contract output ready for deployment.
type Artifact struct {
	Name     string
	ABI      abi.ABI
	RawABI   json.RawMessage
	Bytecode []byte
}

type artifactJSON struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     json.RawMessage `json:"bytecode"`
}

// LoadArtifact reads a Hardhat (bytecode string) or Foundry
// (bytecode.object) artifact JSON file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.Validation("load artifact", fmt.Errorf("failed to read artifact: %w", err))
	}

	var wire artifactJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, failure.Validation("load artifact", fmt.Errorf("failed to parse artifact %s: %w", path, err))
	}

	code, err := bytecodeField(wire.Bytecode)
	if err != nil {
		return nil, failure.Validation("load artifact", fmt.Errorf("%s: %w", path, err))
	}
	bytecode, err := decodeBytecode(code)
	if err != nil {
		return nil, failure.Validation("load artifact", fmt.Errorf("%s: %w", path, err))
	}

	art := &Artifact{Name: wire.ContractName, Bytecode: bytecode}
	if err := art.setABI(wire.ABI); err != nil {
		return nil, failure.Validation("load artifact", fmt.Errorf("%s: %w", path, err))
	}
	return art, nil
}

// LoadBinArtifact reads a hex bytecode file and an optional ABI JSON file.
// Without an ABI file the embedded CardDrawing ABI is used.
func LoadBinArtifact(binPath, abiPath string) (*Artifact, error) {
	code, err := os.ReadFile(binPath)
	if err != nil {
		return nil, failure.Validation("load artifact", fmt.Errorf("failed to read bytecode: %w", err))
	}
	bytecode, err := decodeBytecode(string(code))
	if err != nil {
		return nil, failure.Validation("load artifact", fmt.Errorf("%s: %w", binPath, err))
	}

	rawABI := []byte(contract.CardDrawingABI)
	if abiPath != "" {
		if rawABI, err = os.ReadFile(abiPath); err != nil {
			return nil, failure.Validation("load artifact", fmt.Errorf("failed to read abi: %w", err))
		}
	}

	art := &Artifact{Name: "CardDrawing", Bytecode: bytecode}
	if err := art.setABI(rawABI); err != nil {
		return nil, failure.Validation("load artifact", err)
	}
	return art, nil
}

func (a *Artifact) setABI(raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		raw = []byte(contract.CardDrawingABI)
	}
	normalized, parsed, err := NormalizeABI(raw)
	if err != nil {
		return err
	}
	a.RawABI, a.ABI = normalized, parsed
	return nil
}

func bytecodeField(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errEmptyArtifact
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid bytecode: %w", err)
		}
		return s, nil
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("invalid bytecode object: %w", err)
	}
	return obj.Object, nil
}

func decodeBytecode(code string) ([]byte, error) {
	code = strings.TrimPrefix(strings.TrimSpace(code), "0x")
	if code == "" {
		return nil, errors.New("bytecode is empty (abstract contract or interface?)")
	}
	if strings.Contains(code, "__") {
		return nil, errors.New("bytecode has unlinked library placeholders")
	}
	b, err := hex.DecodeString(code)
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode hex: %w", err)
	}
	return b, nil
}

var errEmptyArtifact = errors.New("artifact has no bytecode")
