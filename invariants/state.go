package invariants

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/antithesishq/antithesis-sdk-go/assert"

	"github.com/parthshah1/carddraw/cards"
)

// State tracks the card workflow invariants for one run:
//  1. every confirmed draw or mint yields exactly one CardDrawn event
//  2. minted tokens get their catalog metadata
//  3. stored metadata matches the catalog when verified
//  4. watched CardDrawn events never repeat a token id
type State struct {
	mu sync.RWMutex

	Draws         []DrawEvent
	Mints         []MintEvent
	PartialMints  []PartialMintEvent
	Verifications []VerifyEvent
	Anomalies     []AnomalyEvent
	Observed      []ObservedEvent

	StartTime   time.Time
	LastEventAt time.Time
}

// DrawEvent records a confirmed draw
type DrawEvent struct {
	TokenID     string `json:"tokenId"`
	User        string `json:"user"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"txHash"`
}

// MintEvent records a mint whose metadata was set
type MintEvent struct {
	TokenID        string `json:"tokenId"`
	CardID         int64  `json:"cardId"`
	Recipient      string `json:"recipient"`
	Rarity         string `json:"rarity"`
	BlockNumber    uint64 `json:"blockNumber"`
	TxHash         string `json:"txHash"`
	MetadataTxHash string `json:"metadataTxHash"`
}

// PartialMintEvent records a token minted without its metadata
type PartialMintEvent struct {
	TokenID string `json:"tokenId"`
	CardID  int64  `json:"cardId"`
	Error   string `json:"error"`
}

type VerifyEvent struct {
	TokenID string `json:"tokenId"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
}

// AnomalyEvent records a receipt whose CardDrawn event could not be used
type AnomalyEvent struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}

// ObservedEvent records a CardDrawn event seen by the watcher
type ObservedEvent struct {
	TokenID     string `json:"tokenId"`
	User        string `json:"user"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"txHash"`
}

var _ cards.Observer = (*State)(nil)

// NewState creates a new invariant state tracker
func NewState() *State {
	return &State{
		StartTime:     time.Now(),
		Draws:         make([]DrawEvent, 0),
		Mints:         make([]MintEvent, 0),
		PartialMints:  make([]PartialMintEvent, 0),
		Verifications: make([]VerifyEvent, 0),
		Anomalies:     make([]AnomalyEvent, 0),
		Observed:      make([]ObservedEvent, 0),
	}
}

func (s *State) OnDraw(res *cards.DrawResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Draws = append(s.Draws, DrawEvent{
		TokenID:     res.TokenID.String(),
		User:        res.Recipient.Hex(),
		BlockNumber: res.BlockNumber,
		TxHash:      res.TxHash.Hex(),
	})
	s.LastEventAt = time.Now()
}

func (s *State) OnMint(res *cards.MintResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Mints = append(s.Mints, MintEvent{
		TokenID:        res.TokenID.String(),
		CardID:         res.CardID,
		Recipient:      res.Recipient.Hex(),
		Rarity:         res.Metadata.Rarity.String(),
		BlockNumber:    res.BlockNumber,
		TxHash:         res.TxHash.Hex(),
		MetadataTxHash: res.MetadataTxHash.Hex(),
	})
	s.LastEventAt = time.Now()
}

// OnPartialMint records a mint whose metadata transaction failed. The token
// is left with default metadata.
func (s *State) OnPartialMint(err *cards.PartialMintError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.PartialMints = append(s.PartialMints, PartialMintEvent{
		TokenID: err.TokenID.String(),
		CardID:  err.CardID,
		Error:   err.Err.Error(),
	})
	s.LastEventAt = time.Now()

	assert.Unreachable(
		"carddraw_mint_metadata_set",
		map[string]any{
			"message": "token minted but setCardMetadata failed",
			"tokenId": err.TokenID.String(),
			"cardId":  err.CardID,
			"error":   err.Err.Error(),
		},
	)
}

func (s *State) OnVerify(tokenID *big.Int, ok bool, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Verifications = append(s.Verifications, VerifyEvent{
		TokenID: tokenID.String(),
		OK:      ok,
		Detail:  detail,
	})
	s.LastEventAt = time.Now()

	assert.Always(
		ok,
		"carddraw_metadata_matches_catalog",
		map[string]any{
			"tokenId": tokenID.String(),
			"detail":  detail,
		},
	)
}

// OnAnomaly records a confirmed transaction without a usable CardDrawn
// event.
func (s *State) OnAnomaly(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Anomalies = append(s.Anomalies, AnomalyEvent{Op: op, Error: err.Error()})
	s.LastEventAt = time.Now()

	assert.Unreachable(
		"carddraw_card_drawn_event_decoded",
		map[string]any{
			"message": "confirmed transaction without exactly one decodable CardDrawn event",
			"op":      op,
			"error":   err.Error(),
		},
	)
}

// RecordCardDrawn records a watched CardDrawn event. It reports false when
// the token id was already seen.
func (s *State) RecordCardDrawn(ev *cards.CardDrawn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokenID := ev.TokenID.String()
	unique := true
	for _, o := range s.Observed {
		if o.TokenID == tokenID {
			unique = false
			break
		}
	}

	rec := ObservedEvent{TokenID: tokenID, User: ev.User.Hex()}
	if ev.Log != nil {
		rec.BlockNumber = ev.Log.BlockNumber
		rec.TxHash = ev.Log.TxHash.Hex()
	}
	s.Observed = append(s.Observed, rec)
	if !unique {
		s.Anomalies = append(s.Anomalies, AnomalyEvent{Op: "watch", Error: fmt.Sprintf("token %s drawn twice", tokenID)})
	}
	s.LastEventAt = time.Now()

	assert.Always(
		unique,
		"carddraw_token_ids_unique",
		map[string]any{
			"tokenId": tokenID,
			"user":    rec.User,
			"txHash":  rec.TxHash,
		},
	)
	return unique
}

// EmitFinalAssertions emits Antithesis assertions based on collected state
func (s *State) EmitFinalAssertions() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assert.Always(
		len(s.Anomalies) == 0,
		"carddraw_events_healthy",
		map[string]any{
			"message":      fmt.Sprintf("%d decoding anomalies", len(s.Anomalies)),
			"anomalyCount": len(s.Anomalies),
			"testDuration": time.Since(s.StartTime).String(),
		},
	)

	assert.Always(
		len(s.PartialMints) == 0,
		"carddraw_mints_complete",
		map[string]any{
			"message":      fmt.Sprintf("%d of %d mints left without metadata", len(s.PartialMints), len(s.Mints)+len(s.PartialMints)),
			"partialCount": len(s.PartialMints),
		},
	)

	assert.Sometimes(
		len(s.Draws)+len(s.Mints) > 0,
		"carddraw_tokens_created",
		map[string]any{
			"message":   fmt.Sprintf("%d draws and %d mints", len(s.Draws), len(s.Mints)),
			"drawCount": len(s.Draws),
			"mintCount": len(s.Mints),
		},
	)

	if len(s.Mints) > 0 {
		assert.Sometimes(
			len(s.Verifications) > 0,
			"carddraw_metadata_verified",
			map[string]any{
				"message":     fmt.Sprintf("%d tokens verified", len(s.Verifications)),
				"verifyCount": len(s.Verifications),
			},
		)
	}
}

// Healthy reports whether no invariant was violated.
func (s *State) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.Anomalies) > 0 || len(s.PartialMints) > 0 {
		return false
	}
	for _, v := range s.Verifications {
		if !v.OK {
			return false
		}
	}
	return true
}

// GetSummary returns a summary of the invariant state
func (s *State) GetSummary() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	failed := 0
	for _, v := range s.Verifications {
		if !v.OK {
			failed++
		}
	}
	return map[string]any{
		"drawCount":         len(s.Draws),
		"mintCount":         len(s.Mints),
		"partialMintCount":  len(s.PartialMints),
		"verifyCount":       len(s.Verifications),
		"verifyFailedCount": failed,
		"anomalyCount":      len(s.Anomalies),
		"observedCount":     len(s.Observed),
		"duration":          time.Since(s.StartTime).String(),
		"lastEventAt":       s.LastEventAt,
	}
}

type stateFile struct {
	StartTime     time.Time          `json:"startTime"`
	LastEventAt   time.Time          `json:"lastEventAt"`
	Draws         []DrawEvent        `json:"draws"`
	Mints         []MintEvent        `json:"mints"`
	PartialMints  []PartialMintEvent `json:"partialMints"`
	Verifications []VerifyEvent      `json:"verifications"`
	Anomalies     []AnomalyEvent     `json:"anomalies"`
	Observed      []ObservedEvent    `json:"observed"`
}

// SaveToFile saves the invariant state to a JSON file
func (s *State) SaveToFile(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := stateFile{
		StartTime:     s.StartTime,
		LastEventAt:   s.LastEventAt,
		Draws:         s.Draws,
		Mints:         s.Mints,
		PartialMints:  s.PartialMints,
		Verifications: s.Verifications,
		Anomalies:     s.Anomalies,
		Observed:      s.Observed,
	}

	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode invariant report: %w", err)
	}

	if err := os.WriteFile(path, bytes, 0644); err != nil {
		return fmt.Errorf("failed to write invariant report: %w", err)
	}
	return nil
}

// LoadStateFromFile loads invariant state from a JSON file
func LoadStateFromFile(path string) (*State, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read invariant report: %w", err)
	}

	var data stateFile
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("failed to parse invariant report: %w", err)
	}

	return &State{
		StartTime:     data.StartTime,
		LastEventAt:   data.LastEventAt,
		Draws:         data.Draws,
		Mints:         data.Mints,
		PartialMints:  data.PartialMints,
		Verifications: data.Verifications,
		Anomalies:     data.Anomalies,
		Observed:      data.Observed,
	}, nil
}
