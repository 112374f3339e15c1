package cards

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/parthshah1/carddraw/contract"
	"github.com/parthshah1/carddraw/failure"
)

// Contract is the CardDrawing surface the workflows use.
// *contract.CardDrawing implements it.
type Contract interface {
	Address() common.Address
	ABI() abi.ABI
	Sender() common.Address

	DrawCard(ctx context.Context) (*types.Transaction, error)
	MintCard(ctx context.Context, to common.Address, cardID *big.Int) (*types.Transaction, error)
	SetCardMetadata(ctx context.Context, tokenID *big.Int, name, description, image string, rarity uint8) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

	Owner(ctx context.Context) (common.Address, error)
	Name(ctx context.Context) (string, error)
	Symbol(ctx context.Context) (string, error)
	GetCardDetails(ctx context.Context, tokenID *big.Int) (*contract.CardDetails, error)
}

// Observer is notified of workflow outcomes.
type Observer interface {
	OnDraw(res *DrawResult)
	OnMint(res *MintResult)
	OnPartialMint(err *PartialMintError)
	OnVerify(tokenID *big.Int, ok bool, detail string)
	OnAnomaly(op string, err error)
}

type nopObserver struct{}

func (nopObserver) OnDraw(*DrawResult)              {}
func (nopObserver) OnMint(*MintResult)              {}
func (nopObserver) OnPartialMint(*PartialMintError) {}
func (nopObserver) OnVerify(*big.Int, bool, string) {}
func (nopObserver) OnAnomaly(string, error)         {}

// DrawResult describes a confirmed drawCard or mintCard transaction.
type DrawResult struct {
	TxHash      common.Hash
	BlockNumber uint64
	Recipient   common.Address
	TokenID     *big.Int
}

// MintResult describes a mint and the metadata written for it.
type MintResult struct {
	DrawResult
	CardID         int64
	Metadata       Metadata
	MetadataTxHash common.Hash
	Verified       bool
}

// PartialMintError reports a token that was minted but whose metadata
// transaction failed. The token exists on-chain with default metadata.
type PartialMintError struct {
	TokenID *big.Int
	CardID  int64
	Err     error
}

func (e *PartialMintError) Error() string {
	return fmt.Sprintf("token %s minted for card %d but metadata was not set: %v", e.TokenID, e.CardID, e.Err)
}

func (e *PartialMintError) Unwrap() error { return e.Err }

// Info is the contract's identity.
type Info struct {
	Address common.Address
	Owner   common.Address
	Name    string
	Symbol  string
}

// Workflow runs draw, mint and read actions against one contract.
type Workflow struct {
	contract Contract
	catalog  *Catalog
	observer Observer
}

// NewWorkflow binds a workflow. catalog may be nil when minting is not used.
func NewWorkflow(c Contract, catalog *Catalog) *Workflow {
	return &Workflow{contract: c, catalog: catalog, observer: nopObserver{}}
}

// SetObserver replaces the outcome observer. nil disables notifications.
func (w *Workflow) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	w.observer = o
}

// Draw submits drawCard and returns the drawn token.
func (w *Workflow) Draw(ctx context.Context) (*DrawResult, error) {
	const op = "draw card"

	tx, err := w.contract.DrawCard(ctx)
	if err != nil {
		return nil, failure.Chain(op, err)
	}
	log.Info("Drawing card", "tx", tx.Hash(), "from", w.contract.Sender())

	res, err := w.confirm(ctx, op, tx)
	if err != nil {
		return nil, err
	}
	w.observer.OnDraw(res)
	return res, nil
}

// Mint mints catalog card cardID to recipient and sets its metadata. A zero
// recipient means the signer. When verify is set the stored metadata is read
// back and compared with the catalog.
func (w *Workflow) Mint(ctx context.Context, recipient common.Address, cardID int64, verify bool) (*MintResult, error) {
	const op = "mint card"

	if w.catalog == nil {
		return nil, failure.State(op, errors.New("no card catalog loaded"))
	}
	meta, err := w.catalog.Resolve(cardID)
	if err != nil {
		return nil, err
	}
	if recipient == (common.Address{}) {
		recipient = w.contract.Sender()
	}

	tx, err := w.contract.MintCard(ctx, recipient, big.NewInt(cardID))
	if err != nil {
		return nil, failure.Chain(op, err)
	}
	log.Info("Minting card", "tx", tx.Hash(), "card", cardID, "to", recipient)

	drawn, err := w.confirm(ctx, op, tx)
	if err != nil {
		return nil, err
	}
	if drawn.Recipient != recipient {
		log.Warn("CardDrawn recipient differs from mint target", "event", drawn.Recipient, "requested", recipient)
	}

	res := &MintResult{DrawResult: *drawn, CardID: cardID, Metadata: meta}

	metaTx, err := w.contract.SetCardMetadata(ctx, drawn.TokenID, meta.Name, meta.Description, meta.Image, uint8(meta.Rarity))
	if err == nil {
		log.Info("Setting card metadata", "tx", metaTx.Hash(), "token", drawn.TokenID, "rarity", meta.Rarity)
		_, err = w.contract.WaitMined(ctx, metaTx)
	}
	if err != nil {
		partial := &PartialMintError{TokenID: drawn.TokenID, CardID: cardID, Err: err}
		w.observer.OnPartialMint(partial)
		return res, failure.Sent(failure.Chain("set card metadata", partial))
	}
	res.MetadataTxHash = metaTx.Hash()
	w.observer.OnMint(res)

	if verify {
		if err := w.Verify(ctx, drawn.TokenID, meta); err != nil {
			return res, failure.Sent(err)
		}
		res.Verified = true
	}
	return res, nil
}

// Verify reads tokenID's stored metadata and compares it with want.
func (w *Workflow) Verify(ctx context.Context, tokenID *big.Int, want Metadata) error {
	got, err := w.Details(ctx, tokenID)
	if err != nil {
		return err
	}

	var diffs []string
	if got.Name != want.Name {
		diffs = append(diffs, fmt.Sprintf("name %q != %q", got.Name, want.Name))
	}
	if got.Description != want.Description {
		diffs = append(diffs, fmt.Sprintf("description %q != %q", got.Description, want.Description))
	}
	if got.Image != want.Image {
		diffs = append(diffs, fmt.Sprintf("image %q != %q", got.Image, want.Image))
	}
	if Rarity(got.Rarity) != want.Rarity {
		diffs = append(diffs, fmt.Sprintf("rarity %d != %d", got.Rarity, want.Rarity))
	}

	if len(diffs) > 0 {
		detail := strings.Join(diffs, "; ")
		w.observer.OnVerify(tokenID, false, detail)
		return failure.Verify("verify card", fmt.Errorf("token %s metadata mismatch: %s", tokenID, detail))
	}
	w.observer.OnVerify(tokenID, true, "")
	return nil
}

// VerifyCard verifies tokenID against catalog card cardID.
func (w *Workflow) VerifyCard(ctx context.Context, tokenID *big.Int, cardID int64) error {
	if w.catalog == nil {
		return failure.State("verify card", errors.New("no card catalog loaded"))
	}
	meta, err := w.catalog.Resolve(cardID)
	if err != nil {
		return err
	}
	return w.Verify(ctx, tokenID, meta)
}

// Details reads getCardDetails for tokenID.
func (w *Workflow) Details(ctx context.Context, tokenID *big.Int) (*contract.CardDetails, error) {
	details, err := w.contract.GetCardDetails(ctx, tokenID)
	if err != nil {
		return nil, failure.Chain("get card details", err)
	}
	return details, nil
}

// Info reads the contract's owner, name and symbol.
func (w *Workflow) Info(ctx context.Context) (*Info, error) {
	const op = "read contract info"

	owner, err := w.contract.Owner(ctx)
	if err != nil {
		return nil, failure.Chain(op, err)
	}
	name, err := w.contract.Name(ctx)
	if err != nil {
		return nil, failure.Chain(op, err)
	}
	symbol, err := w.contract.Symbol(ctx)
	if err != nil {
		return nil, failure.Chain(op, err)
	}
	return &Info{Address: w.contract.Address(), Owner: owner, Name: name, Symbol: symbol}, nil
}

// confirm waits for tx and extracts its CardDrawn event.
func (w *Workflow) confirm(ctx context.Context, op string, tx *types.Transaction) (*DrawResult, error) {
	receipt, err := w.contract.WaitMined(ctx, tx)
	if err != nil {
		return nil, failure.Sent(failure.Chain(op, err))
	}

	ev, err := FindCardDrawn(w.contract.ABI(), receipt.Logs)
	if err != nil {
		w.observer.OnAnomaly(op, err)
		return nil, failure.Sent(failure.Decode(op, fmt.Errorf("tx %s: %w", tx.Hash().Hex(), err)))
	}

	res := &DrawResult{
		TxHash:    tx.Hash(),
		Recipient: ev.User,
		TokenID:   ev.TokenID,
	}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	log.Info("Card drawn", "user", ev.User, "token", ev.TokenID, "block", res.BlockNumber)
	return res, nil
}

// ParseTokenID parses a positive decimal or 0x-prefixed token id.
func ParseTokenID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	digits := s
	if hex, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		base, digits = 16, hex
	}
	id, ok := new(big.Int).SetString(digits, base)
	if !ok || id.Sign() <= 0 {
		return nil, failure.Validation("parse token id", fmt.Errorf("invalid token id %q: want a positive integer", s))
	}
	return id, nil
}
