package invariants

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parthshah1/carddraw/cards"
)

func TestStateRecordsOutcomes(t *testing.T) {
	s := NewState()
	assert.True(t, s.Healthy())

	s.OnDraw(&cards.DrawResult{TokenID: big.NewInt(1), Recipient: common.HexToAddress("0x01"), BlockNumber: 3})
	s.OnMint(&cards.MintResult{
		DrawResult: cards.DrawResult{TokenID: big.NewInt(2), BlockNumber: 4},
		CardID:     7,
		Metadata:   cards.Metadata{Rarity: cards.RaritySSR},
	})
	s.OnVerify(big.NewInt(2), true, "")
	assert.True(t, s.Healthy())

	summary := s.GetSummary()
	assert.Equal(t, 1, summary["drawCount"])
	assert.Equal(t, 1, summary["mintCount"])
	assert.Equal(t, 1, summary["verifyCount"])
	assert.Equal(t, 0, summary["anomalyCount"])
	assert.Equal(t, "SSR", s.Mints[0].Rarity)

	s.EmitFinalAssertions()
}

func TestStateViolations(t *testing.T) {
	s := NewState()
	s.OnPartialMint(&cards.PartialMintError{TokenID: big.NewInt(5), CardID: 1, Err: errors.New("reverted")})
	assert.False(t, s.Healthy())

	s = NewState()
	s.OnAnomaly("draw card", cards.ErrEventNotFound)
	assert.False(t, s.Healthy())
	assert.Equal(t, "draw card", s.Anomalies[0].Op)

	s = NewState()
	s.OnVerify(big.NewInt(1), false, "rarity 4 != 5")
	assert.False(t, s.Healthy())
	assert.Equal(t, 1, s.GetSummary()["verifyFailedCount"])
}

func TestStateReportRoundTrip(t *testing.T) {
	s := NewState()
	s.OnDraw(&cards.DrawResult{TokenID: big.NewInt(9)})
	s.OnPartialMint(&cards.PartialMintError{TokenID: big.NewInt(10), CardID: 2, Err: errors.New("out of gas")})

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, s.SaveToFile(path))

	loaded, err := LoadStateFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, s.Draws, loaded.Draws)
	assert.Equal(t, s.PartialMints, loaded.PartialMints)
	assert.True(t, s.StartTime.Equal(loaded.StartTime))
	assert.False(t, loaded.Healthy())

	_, err = LoadStateFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRecordCardDrawnFlagsRepeatedTokens(t *testing.T) {
	s := NewState()
	user := common.HexToAddress("0x02")

	assert.True(t, s.RecordCardDrawn(&cards.CardDrawn{User: user, TokenID: big.NewInt(1)}))
	assert.True(t, s.RecordCardDrawn(&cards.CardDrawn{User: user, TokenID: big.NewInt(2)}))
	assert.True(t, s.Healthy())

	assert.False(t, s.RecordCardDrawn(&cards.CardDrawn{User: user, TokenID: big.NewInt(2)}))
	assert.False(t, s.Healthy())
	assert.Equal(t, 3, s.GetSummary()["observedCount"])
	assert.Equal(t, "watch", s.Anomalies[0].Op)
}
