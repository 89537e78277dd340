package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncAPI struct {
	mu        sync.Mutex
	snapshots []*OrderBookSnapshot
	errs      []error
	calls     int
}

func (f *fakeSyncAPI) OrderBookSnapshot(ctx context.Context, symbol *MarketSymbol, limit int) (*OrderBookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	snapshot := f.snapshots[0]
	if len(f.snapshots) > 1 {
		f.snapshots = f.snapshots[1:]
	}
	return snapshot, nil
}

func (f *fakeSyncAPI) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func snapshotAt(id uint64) *OrderBookSnapshot {
	return &OrderBookSnapshot{
		Source:       OrderBookSource_Provider,
		LastUpdateID: id,
		Bids:         levels([2]string{"100", "3"}),
		Asks:         levels([2]string{"101", "2"}),
	}
}

func newTestMaintainer(t *testing.T, api ProviderSyncAPI) *OrderbookMaintainer {
	t.Helper()
	symbol, err := NewMarketSymbol("BTC", "USDT")
	require.NoError(t, err)

	return NewOrderBookMaintainer(MaintainerConfig{
		Provider:   "gate",
		Symbol:     symbol,
		Depth:      100,
		CacheSize:  50,
		QueueSize:  50,
		RetryDelay: 10 * time.Millisecond,
	}, api, nil)
}

func TestOrderbookMaintainer_ConvergesFromCache(t *testing.T) {
	api := &fakeSyncAPI{snapshots: []*OrderBookSnapshot{snapshotAt(100)}}
	m := newTestMaintainer(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for id := uint64(95); id <= 110; id++ {
		require.NoError(t, m.Push(ctx, NewOrderBookUpdate(id, id, levels([2]string{"99", "1"}), nil)))
	}

	_, err := m.TakeSnapshot(10)
	assert.ErrorIs(t, err, ErrOrderBookNotSynced)

	m.Start(ctx)
	require.NoError(t, m.WaitSynced(ctx))

	snapshot, err := m.TakeSnapshot(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), snapshot.LastUpdateID)
	assert.Equal(t, [][2]string{{"100", "3"}, {"99", "1"}}, render(snapshot.Bids))
	assert.Equal(t, 1, api.Calls())

	m.Stop()
}

func TestOrderbookMaintainer_RetriesUntilCacheCoversSnapshot(t *testing.T) {
	api := &fakeSyncAPI{snapshots: []*OrderBookSnapshot{snapshotAt(90), snapshotAt(96)}}
	m := newTestMaintainer(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for id := uint64(95); id <= 98; id++ {
		require.NoError(t, m.Push(ctx, NewOrderBookUpdate(id, id, nil, nil)))
	}

	m.Start(ctx)
	require.NoError(t, m.WaitSynced(ctx))

	assert.Equal(t, uint64(98), m.OrderBook().LastUpdateID())
	assert.Equal(t, 2, api.Calls(), "snapshot 90 leaves a gap before 95 and must be refetched")
	m.Stop()
}

func TestOrderbookMaintainer_RetriesFailedSnapshot(t *testing.T) {
	api := &fakeSyncAPI{
		snapshots: []*OrderBookSnapshot{snapshotAt(5)},
		errs:      []error{errors.New("503 service unavailable")},
	}
	m := newTestMaintainer(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.Start(ctx)
	require.NoError(t, m.WaitSynced(ctx))
	assert.Equal(t, 2, api.Calls())
	assert.True(t, m.Synced())
	m.Stop()
}

func TestOrderbookMaintainer_ResyncsOnGap(t *testing.T) {
	api := &fakeSyncAPI{snapshots: []*OrderBookSnapshot{snapshotAt(100), snapshotAt(105)}}
	m := newTestMaintainer(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.Start(ctx)
	require.NoError(t, m.WaitSynced(ctx))
	first := m.OrderBook()

	require.NoError(t, m.Push(ctx, NewOrderBookUpdate(105, 105, nil, nil)))
	require.NoError(t, m.Push(ctx, NewOrderBookUpdate(106, 106, levels([2]string{"99", "4"}), nil)))

	assert.Eventually(t, func() bool {
		return m.OrderBook().LastUpdateID() == 106
	}, 2*time.Second, 5*time.Millisecond)

	assert.NotSame(t, first, m.OrderBook(), "a gap replaces the book")
	assert.Equal(t, OrderBookStatus_Oudated, first.Status())
	assert.Equal(t, 2, api.Calls())
	m.Stop()
}

func TestOrderbookMaintainer_ResetCache(t *testing.T) {
	m := newTestMaintainer(t, &fakeSyncAPI{snapshots: []*OrderBookSnapshot{snapshotAt(1)}})
	ctx := context.Background()

	require.NoError(t, m.Push(ctx, NewOrderBookUpdate(1, 1, nil, nil)))
	require.NoError(t, m.Push(ctx, NewOrderBookUpdate(2, 2, nil, nil)))
	assert.Len(t, m.CachedUpdates(), 2)

	m.ResetCache()
	assert.Empty(t, m.CachedUpdates())
}

func TestOrderbookMaintainer_Stop(t *testing.T) {
	m := newTestMaintainer(t, &fakeSyncAPI{snapshots: []*OrderBookSnapshot{snapshotAt(1)}})

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(context.Background()) }()

	require.NoError(t, m.WaitSynced(context.Background()))
	m.Stop()
	m.Stop()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	err := m.Push(context.Background(), NewOrderBookUpdate(2, 2, nil, nil))
	if err != nil {
		assert.ErrorIs(t, err, ErrMaintainerStopped)
	}
}

func TestOrderbookMaintainer_Follow(t *testing.T) {
	m := newTestMaintainer(t, &fakeSyncAPI{snapshots: []*OrderBookSnapshot{snapshotAt(0)}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := &Subscription[*OrderBookUpdate]{Stream: make(chan *OrderBookUpdate), Topic: "btc_usdt"}
	m.Follow(ctx, sub)
	m.Start(ctx)
	require.NoError(t, m.WaitSynced(ctx))

	sub.Stream <- NewOrderBookUpdate(1, 1, levels([2]string{"100", "7"}), nil)

	assert.Eventually(t, func() bool {
		best, ok := m.OrderBook().BestBid()
		return ok && best.Size == "7"
	}, 2*time.Second, 5*time.Millisecond)
	m.Stop()
}
