package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spooky-finn/gatews-bridge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncAPI struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.OrderBookSnapshot{
		Source:       domain.OrderBookSource_Provider,
		LastUpdateID: 42,
		Bids:         []domain.PriceLevel{domain.MustPriceLevel("100", "1")},
		Asks:         []domain.PriceLevel{domain.MustPriceLevel("101", "2")},
	}, nil
}

type fakeStreamAPI struct {
	syncAPI *fakeSyncAPI
	release chan struct{}
	calls   atomic.Int32
	err     error
}

func (f *fakeStreamAPI) GetOrderBook(ctx context.Context, symbol *domain.MarketSymbol, maxDepth int) *domain.CreateOrderBookResult {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return &domain.CreateOrderBookResult{Err: f.err}
	}

	m := domain.NewOrderBookMaintainer(domain.MaintainerConfig{Provider: "gate", Symbol: symbol}, f.syncAPI, nil)
	m.Start(context.Background())
	if err := m.WaitSynced(ctx); err != nil {
		return &domain.CreateOrderBookResult{Err: err}
	}
	snapshot, err := m.TakeSnapshot(maxDepth)
	return &domain.CreateOrderBookResult{Maintainer: m, Snapshot: snapshot, Err: err}
}

func (f *fakeStreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.OrderBookUpdate], error) {
	return nil, errors.New("not implemented")
}

type fakeConnManager struct {
	stream *fakeStreamAPI
	sync   *fakeSyncAPI
}

func (f *fakeConnManager) StreamAPI(provider string) (domain.ProviderStreamAPI, error) {
	if provider != "gate" {
		return nil, domain.ErrProviderNotFound
	}
	return f.stream, nil
}

func (f *fakeConnManager) SyncAPI(provider string) (domain.ProviderSyncAPI, error) {
	if provider != "gate" {
		return nil, domain.ErrProviderNotFound
	}
	return f.sync, nil
}

func newFakeConnManager() *fakeConnManager {
	syncAPI := &fakeSyncAPI{}
	return &fakeConnManager{
		stream: &fakeStreamAPI{syncAPI: syncAPI},
		sync:   syncAPI,
	}
}

func btcUSDT(t *testing.T) *domain.MarketSymbol {
	symbol, err := domain.NewMarketSymbol("btc", "usdt")
	require.NoError(t, err)
	return symbol
}

func TestGetOrderBookSnapshot_FallsBackThenServesLocalBook(t *testing.T) {
	cm := newFakeConnManager()
	uc := NewOrderBookSnapshotUseCase(context.Background(), cm, nil)
	defer uc.Close()
	symbol := btcUSDT(t)

	snapshot, err := uc.GetOrderBookSnapshot(context.Background(), "gate", symbol, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderBookSource_Provider, snapshot.Source)

	assert.Eventually(t, func() bool {
		_, err := uc.Storage().Get("gate", symbol)
		return err == nil
	}, 3*time.Second, 5*time.Millisecond)

	snapshot, err = uc.GetOrderBookSnapshot(context.Background(), "gate", symbol, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderBookSource_LocalOrderBook, snapshot.Source)
	assert.Equal(t, uint64(42), snapshot.LastUpdateID)
	assert.Equal(t, int32(1), cm.stream.calls.Load())
}

func TestGetOrderBookSnapshot_DeduplicatesCreation(t *testing.T) {
	cm := newFakeConnManager()
	cm.stream.release = make(chan struct{})
	uc := NewOrderBookSnapshotUseCase(context.Background(), cm, nil)
	symbol := btcUSDT(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.GetOrderBookSnapshot(context.Background(), "gate", symbol, 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	close(cm.stream.release)
	uc.Close()

	assert.Equal(t, int32(1), cm.stream.calls.Load())
	assert.Equal(t, int32(5+1), cm.sync.calls.Load(), "five provider snapshots plus one for the local book")
}

func TestGetOrderBookSnapshot_UnknownProvider(t *testing.T) {
	uc := NewOrderBookSnapshotUseCase(context.Background(), newFakeConnManager(), nil)
	defer uc.Close()

	_, err := uc.GetOrderBookSnapshot(context.Background(), "binance", btcUSDT(t), 10)
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestCreateOrderBook(t *testing.T) {
	cm := newFakeConnManager()
	uc := NewOrderBookSnapshotUseCase(context.Background(), cm, nil)
	defer uc.Close()
	symbol := btcUSDT(t)

	require.NoError(t, uc.CreateOrderBook(context.Background(), "gate", symbol))
	require.NoError(t, uc.CreateOrderBook(context.Background(), "gate", symbol))
	assert.Equal(t, int32(1), cm.stream.calls.Load(), "an existing book is not recreated")
	assert.Equal(t, 1, uc.Storage().OrderBookCount("gate"))
}

func TestCreateOrderBook_Error(t *testing.T) {
	cm := newFakeConnManager()
	cm.stream.err = errors.New("boom")
	uc := NewOrderBookSnapshotUseCase(context.Background(), cm, nil)
	defer uc.Close()

	err := uc.CreateOrderBook(context.Background(), "gate", btcUSDT(t))
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, -1, uc.Storage().OrderBookCount("gate"))

	cm.stream.err = nil
	assert.NoError(t, uc.CreateOrderBook(context.Background(), "gate", btcUSDT(t)), "a failed creation can be retried")
}
