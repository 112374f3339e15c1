package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// CardDrawingABI is the interface of the CardDrawing contract. Deployments
// normally persist the ABI from the compiled artifact; this copy is used
// when an artifact only ships bytecode.
const CardDrawingABI = `[
	{"type": "constructor", "inputs": [], "stateMutability": "nonpayable"},
	{
		"type": "event", "name": "CardDrawn", "anonymous": false,
		"inputs": [
			{"name": "user",    "type": "address", "indexed": true},
			{"name": "tokenId", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "function", "name": "owner", "stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "address"}]
	},
	{
		"type": "function", "name": "name", "stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "string"}]
	},
	{
		"type": "function", "name": "symbol", "stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "string"}]
	},
	{
		"type": "function", "name": "ownerOf", "stateMutability": "view",
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"outputs": [{"name": "", "type": "address"}]
	},
	{
		"type": "function", "name": "mintCard", "stateMutability": "nonpayable",
		"inputs": [
			{"name": "to",     "type": "address"},
			{"name": "cardId", "type": "uint256"}
		],
		"outputs": []
	},
	{
		"type": "function", "name": "drawCard", "stateMutability": "nonpayable",
		"inputs": [],
		"outputs": []
	},
	{
		"type": "function", "name": "getCardDetails", "stateMutability": "view",
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"outputs": [{
			"name": "", "type": "tuple", "internalType": "struct CardDrawing.Card",
			"components": [
				{"name": "id",          "type": "uint256"},
				{"name": "name",        "type": "string"},
				{"name": "description", "type": "string"},
				{"name": "image",       "type": "string"},
				{"name": "rarity",      "type": "uint8"}
			]
		}]
	},
	{
		"type": "function", "name": "setCardMetadata", "stateMutability": "nonpayable",
		"inputs": [
			{"name": "tokenId",     "type": "uint256"},
			{"name": "name",        "type": "string"},
			{"name": "description", "type": "string"},
			{"name": "image",       "type": "string"},
			{"name": "rarity",      "type": "uint8"}
		],
		"outputs": []
	}
]`

// Names of the contract members carddraw relies on.
const (
	EventCardDrawn        = "CardDrawn"
	MethodOwner           = "owner"
	MethodName            = "name"
	MethodSymbol          = "symbol"
	MethodOwnerOf         = "ownerOf"
	MethodMintCard        = "mintCard"
	MethodDrawCard        = "drawCard"
	MethodGetCardDetails  = "getCardDetails"
	MethodSetCardMetadata = "setCardMetadata"
)

// DefaultABI parses CardDrawingABI.
func DefaultABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(CardDrawingABI))
	if err != nil {
		panic("contract: embedded CardDrawing ABI is invalid: " + err.Error())
	}
	return parsed
}
