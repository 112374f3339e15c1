package cards

import (
	"errors"
	"fmt"
)

// Rarity is the on-chain rarity code of a card.
type Rarity uint8

const (
	RarityN Rarity = iota + 1
	RarityR
	RaritySR
	RarityUR
	RaritySSR
)

var ErrUnknownRarity = errors.New("unknown rarity")

var rarityLabels = [...]string{
	RarityN:   "N",
	RarityR:   "R",
	RaritySR:  "SR",
	RarityUR:  "UR",
	RaritySSR: "SSR",
}

// ParseRarity maps a label to its code. Labels are case-sensitive.
func ParseRarity(label string) (Rarity, error) {
	for code := RarityN; code <= RaritySSR; code++ {
		if rarityLabels[code] == label {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w %q (want one of N, R, SR, UR, SSR)", ErrUnknownRarity, label)
}

func (r Rarity) Valid() bool {
	return r >= RarityN && r <= RaritySSR
}

func (r Rarity) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Rarity(%d)", uint8(r))
	}
	return rarityLabels[r]
}
