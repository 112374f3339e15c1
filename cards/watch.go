package cards

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/parthshah1/carddraw/contract"
	"github.com/parthshah1/carddraw/failure"
)

// LogSource is the node surface the watcher polls. *ethclient.Client
// implements it.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Watcher polls a deployed contract for CardDrawn events. Polling works
// over plain HTTP RPC endpoints.
type Watcher struct {
	source   LogSource
	address  common.Address
	abi      abi.ABI
	topic    common.Hash
	observer Observer
}

func NewWatcher(source LogSource, address common.Address, parsed abi.ABI) (*Watcher, error) {
	event, ok := parsed.Events[contract.EventCardDrawn]
	if !ok {
		return nil, failure.State("watch", fmt.Errorf("%w: abi does not declare it", ErrEventNotFound))
	}
	return &Watcher{
		source:   source,
		address:  address,
		abi:      parsed,
		topic:    event.ID,
		observer: nopObserver{},
	}, nil
}

// SetObserver sets where undecodable logs are reported. nil disables it.
func (w *Watcher) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	w.observer = o
}

// Poll fetches CardDrawn events in blocks (from, latest] and returns them
// with the new cursor. Malformed logs are reported to the observer and
// skipped.
func (w *Watcher) Poll(ctx context.Context, from uint64) (uint64, []*CardDrawn, error) {
	latest, err := w.source.BlockNumber(ctx)
	if err != nil {
		return from, nil, fmt.Errorf("failed to get latest block: %w", err)
	}
	if latest <= from {
		return from, nil, nil
	}

	logs, err := w.source.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from + 1),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{w.address},
		Topics:    [][]common.Hash{{w.topic}},
	})
	if err != nil {
		return from, nil, fmt.Errorf("failed to filter logs: %w", err)
	}

	var drawn []*CardDrawn
	for i := range logs {
		ev, err := w.decode(&logs[i])
		if err != nil {
			log.Warn("Skipping undecodable CardDrawn log", "tx", logs[i].TxHash, "block", logs[i].BlockNumber, "err", err)
			w.observer.OnAnomaly("watch", err)
			continue
		}
		drawn = append(drawn, ev)
	}
	return latest, drawn, nil
}

func (w *Watcher) decode(lg *types.Log) (*CardDrawn, error) {
	events, err := DecodeLogs(w.abi, []*types.Log{lg})
	if err != nil {
		return nil, err
	}
	if len(events) != 1 {
		return nil, fmt.Errorf("%w in tx %s", ErrEventNotFound, lg.TxHash.Hex())
	}
	return cardDrawnFrom(events[0])
}

const defaultWatchInterval = 3 * time.Second

// Run polls every interval from the current head until ctx is done, passing
// each event to handle. RPC errors are logged and retried on the next tick.
// A non-positive interval uses the default.
func (w *Watcher) Run(ctx context.Context, interval time.Duration, handle func(*CardDrawn)) error {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	from, err := w.source.BlockNumber(ctx)
	if err != nil {
		return failure.Chain("watch", fmt.Errorf("failed to get latest block: %w", err))
	}
	log.Info("Watching for CardDrawn events", "contract", w.address, "from", from)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopped watching", "block", from)
			return nil
		case <-ticker.C:
			next, drawn, err := w.Poll(ctx, from)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Warn("Poll failed", "from", from, "err", err)
				continue
			}
			for _, ev := range drawn {
				handle(ev)
			}
			from = next
		}
	}
}
