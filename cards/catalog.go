package cards

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ipfs/go-cid"

	"github.com/parthshah1/carddraw/failure"
)

// RarityTrait is the attribute trait_type holding a card's rarity label.
const RarityTrait = "Rarity"

var ErrUnknownCard = errors.New("card id not in catalog")

type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

// Card is one catalog entry.
type Card struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}

// Metadata is a catalog card with its rarity resolved, ready to be set
// on-chain.
type Metadata struct {
	ID          int64
	Name        string
	Description string
	Image       string
	Rarity      Rarity
}

// RarityLabel returns the value of the Rarity attribute.
func (c Card) RarityLabel() (string, bool) {
	for _, attr := range c.Attributes {
		if attr.TraitType != RarityTrait {
			continue
		}
		label, ok := attr.Value.(string)
		return label, ok
	}
	return "", false
}

// Metadata resolves the card's rarity.
func (c Card) Metadata() (Metadata, error) {
	label, ok := c.RarityLabel()
	if !ok {
		return Metadata{}, fmt.Errorf("card %d has no %s attribute", c.ID, RarityTrait)
	}
	rarity, err := ParseRarity(label)
	if err != nil {
		return Metadata{}, fmt.Errorf("card %d: %w", c.ID, err)
	}
	return Metadata{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Image:       c.Image,
		Rarity:      rarity,
	}, nil
}

// Catalog is the static card metadata keyed by card id.
type Catalog struct {
	cards []Card
	byID  map[int64]int
}

// LoadCatalog reads a catalog file. Unreadable or invalid catalogs are
// persisted-state failures.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.State("load catalog", fmt.Errorf("failed to read catalog: %w", err))
	}
	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, failure.State("load catalog", fmt.Errorf("%s: %w", path, err))
	}
	return catalog, nil
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Cards []Card `json:"cards"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := &Catalog{cards: doc.Cards, byID: make(map[int64]int, len(doc.Cards))}
	for i, card := range doc.Cards {
		if _, dup := c.byID[card.ID]; dup {
			return nil, fmt.Errorf("duplicate card id %d", card.ID)
		}
		if err := checkImageURI(card.Image); err != nil {
			return nil, fmt.Errorf("card %d: %w", card.ID, err)
		}
		c.byID[card.ID] = i
	}
	return c, nil
}

// checkImageURI requires ipfs:// URIs to start with a valid CID.
func checkImageURI(uri string) error {
	rest, ok := strings.CutPrefix(uri, "ipfs://")
	if !ok {
		return nil
	}
	rest = strings.TrimPrefix(rest, "ipfs/")
	root, _, _ := strings.Cut(rest, "/")
	if _, err := cid.Decode(root); err != nil {
		return fmt.Errorf("invalid ipfs image %q: %w", uri, err)
	}
	return nil
}

func (c *Catalog) Len() int { return len(c.cards) }

// Cards returns the entries in file order.
func (c *Catalog) Cards() []Card {
	return append([]Card(nil), c.cards...)
}

func (c *Catalog) Lookup(id int64) (Card, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Card{}, false
	}
	return c.cards[i], true
}

// Resolve returns the metadata to set for card id. Unknown ids and
// missing or unmapped rarities are validation failures.
func (c *Catalog) Resolve(id int64) (Metadata, error) {
	card, ok := c.Lookup(id)
	if !ok {
		return Metadata{}, failure.Validation("resolve card", fmt.Errorf("%w: %d", ErrUnknownCard, id))
	}
	meta, err := card.Metadata()
	if err != nil {
		return Metadata{}, failure.Validation("resolve card", err)
	}
	return meta, nil
}
