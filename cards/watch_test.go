package cards

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherPoll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := NewWatcher(f.chain, f.contract.Address(), f.contract.ABI())
	require.NoError(t, err)
	w.SetObserver(f.events)

	start, err := f.chain.BlockNumber(ctx)
	require.NoError(t, err)

	_, err = f.workflow.Draw(ctx)
	require.NoError(t, err)
	_, err = f.workflow.Mint(ctx, f.contract.Sender(), 1, false)
	require.NoError(t, err)

	next, drawn, err := w.Poll(ctx, start)
	require.NoError(t, err)
	require.Len(t, drawn, 2)
	assert.Equal(t, int64(1), drawn[0].TokenID.Int64())
	assert.Equal(t, int64(2), drawn[1].TokenID.Int64())
	assert.Equal(t, f.contract.Sender(), drawn[0].User)
	assert.Greater(t, next, start)

	again, drawn, err := w.Poll(ctx, next)
	require.NoError(t, err)
	assert.Empty(t, drawn)
	assert.Equal(t, next, again)
}

func TestWatcherReportsMalformedLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := NewWatcher(f.chain, f.contract.Address(), f.contract.ABI())
	require.NoError(t, err)
	watched := &recorder{}
	w.SetObserver(watched)

	f.chain.MalformedCardDrawn = true
	_, err = f.workflow.Draw(ctx)
	require.Error(t, err)

	_, drawn, err := w.Poll(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, drawn)
	require.Len(t, watched.anomaly, 1)
	assert.ErrorIs(t, watched.anomaly[0], ErrMalformedEvent)
}

func TestWatcherRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)

	w, err := NewWatcher(f.chain, f.contract.Address(), f.contract.ABI())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan *CardDrawn, 1)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, time.Millisecond, func(ev *CardDrawn) {
			select {
			case got <- ev:
			default:
			}
		})
	}()

	// Give Run time to read the head before drawing.
	time.Sleep(50 * time.Millisecond)
	_, err = f.workflow.Draw(context.Background())
	require.NoError(t, err)

	select {
	case ev := <-got:
		assert.Equal(t, int64(1), ev.TokenID.Int64())
	case <-time.After(2 * time.Second):
		t.Fatal("no event observed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherRunDefaultsInterval(t *testing.T) {
	f := newFixture(t)

	w, err := NewWatcher(f.chain, f.contract.Address(), f.contract.ABI())
	require.NoError(t, err)

	for _, interval := range []time.Duration{0, -time.Second} {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		err := w.Run(ctx, interval, func(*CardDrawn) {})
		cancel()
		assert.NoError(t, err)
	}
}
