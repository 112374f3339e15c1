package cards

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/parthshah1/carddraw/contract"
)

var (
	ErrEventNotFound  = errors.New("CardDrawn event not found")
	ErrDuplicateEvent = errors.New("more than one CardDrawn event")
	ErrMalformedEvent = errors.New("malformed event log")
)

// Event is a decoded log with its arguments in ABI input order.
type Event struct {
	Name string
	Args []interface{}
	Log  *types.Log
}

// CardDrawn is the decoded CardDrawn(address user, uint256 tokenId) event.
type CardDrawn struct {
	User    common.Address
	TokenID *big.Int
	Log     *types.Log
}

// DecodeLogs decodes every log whose first topic matches an event in
// parsed. Logs without topics or with unknown signatures are skipped. A
// CardDrawn log that fails to decode is returned as ErrMalformedEvent;
// other undecodable logs are skipped.
func DecodeLogs(parsed abi.ABI, logs []*types.Log) ([]Event, error) {
	var events []Event
	for _, lg := range logs {
		if lg == nil || len(lg.Topics) == 0 {
			continue
		}
		event, err := parsed.EventByID(lg.Topics[0])
		if err != nil {
			continue
		}
		args, err := decodeEvent(event, lg)
		if err != nil {
			if event.Name != contract.EventCardDrawn {
				// Another contract's event can share a signature, e.g. ERC-20
				// and ERC-721 Transfer.
				log.Debug("Skipping undecodable log", "event", event.Name, "address", lg.Address, "tx", lg.TxHash, "err", err)
				continue
			}
			return nil, fmt.Errorf("%w: %s in tx %s (log %d): %v", ErrMalformedEvent, event.Name, lg.TxHash.Hex(), lg.Index, err)
		}
		events = append(events, Event{Name: event.Name, Args: args, Log: lg})
	}
	return events, nil
}

func decodeEvent(event *abi.Event, lg *types.Log) ([]interface{}, error) {
	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(lg.Topics) != len(indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(lg.Topics))
	}

	values, err := event.Inputs.Unpack(lg.Data)
	if err != nil {
		return nil, err
	}

	args := make([]interface{}, 0, len(event.Inputs))
	nextIndexed, nextValue := 0, 0
	for _, input := range event.Inputs {
		if !input.Indexed {
			args = append(args, values[nextValue])
			nextValue++
			continue
		}
		arg := input
		arg.Name = "value"
		out := make(map[string]interface{}, 1)
		topic := lg.Topics[1+nextIndexed]
		if err := abi.ParseTopicsIntoMap(out, abi.Arguments{arg}, []common.Hash{topic}); err != nil {
			return nil, fmt.Errorf("topic %d: %w", 1+nextIndexed, err)
		}
		args = append(args, out["value"])
		nextIndexed++
	}
	return args, nil
}

// FindCardDrawn returns the single CardDrawn event among logs.
func FindCardDrawn(parsed abi.ABI, logs []*types.Log) (*CardDrawn, error) {
	if _, ok := parsed.Events[contract.EventCardDrawn]; !ok {
		return nil, fmt.Errorf("%w: abi does not declare it", ErrEventNotFound)
	}

	events, err := DecodeLogs(parsed, logs)
	if err != nil {
		return nil, err
	}

	var found []Event
	for _, ev := range events {
		if ev.Name == contract.EventCardDrawn {
			found = append(found, ev)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w in %d receipt logs", ErrEventNotFound, len(logs))
	case 1:
	default:
		return nil, fmt.Errorf("%w: found %d", ErrDuplicateEvent, len(found))
	}

	return cardDrawnFrom(found[0])
}

func cardDrawnFrom(ev Event) (*CardDrawn, error) {
	if len(ev.Args) != 2 {
		return nil, fmt.Errorf("%w: CardDrawn has %d arguments, want 2", ErrMalformedEvent, len(ev.Args))
	}
	user, ok := ev.Args[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: CardDrawn user is %T", ErrMalformedEvent, ev.Args[0])
	}
	tokenID, ok := ev.Args[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: CardDrawn tokenId is %T", ErrMalformedEvent, ev.Args[1])
	}
	return &CardDrawn{User: user, TokenID: tokenID, Log: ev.Log}, nil
}
