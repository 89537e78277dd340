package domain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spooky-finn/gatews-bridge/helpers"
	promclient "github.com/spooky-finn/gatews-bridge/infrastructure/prometheus"
)

var ErrOrderBookNotSynced = errors.New("order book is not synchronized yet")

const (
	DefaultCacheSize  = 500
	DefaultQueueSize  = 500
	DefaultRetryDelay = 500 * time.Millisecond
)

type MaintainerConfig struct {
	Provider   string
	Symbol     *MarketSymbol
	Depth      int // snapshot depth requested from the sync api
	CacheSize  int
	QueueSize  int
	RetryDelay time.Duration
}

func (c MaintainerConfig) withDefaults() MaintainerConfig {
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// OrderbookMaintainer keeps one local order book continuously in sync.
// Updates enter through Push only: they are cached for fast catch-up after
// a snapshot and queued for live application. The maintainer is the single
// writer of its books.
type OrderbookMaintainer struct {
	cfg      MaintainerConfig
	syncAPI  ProviderSyncAPI
	executor Executor

	queue chan *OrderBookUpdate

	cacheMu sync.Mutex
	cache   *UpdateCache

	bookMu    sync.RWMutex
	orderBook *OrderBook
	synced    bool
	syncedCh  chan struct{}
	syncOnce  sync.Once

	done     chan struct{}
	stopOnce sync.Once
}

func NewOrderBookMaintainer(cfg MaintainerConfig, syncAPI ProviderSyncAPI, executor Executor) *OrderbookMaintainer {
	cfg = cfg.withDefaults()
	if executor == nil {
		executor = GoroutineExecutor{}
	}
	return &OrderbookMaintainer{
		cfg:       cfg,
		syncAPI:   syncAPI,
		executor:  executor,
		queue:     make(chan *OrderBookUpdate, cfg.QueueSize),
		cache:     NewUpdateCache(cfg.CacheSize),
		orderBook: NewEmptyOrderBook(cfg.Provider, cfg.Symbol),
		syncedCh:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (m *OrderbookMaintainer) Symbol() *MarketSymbol {
	return m.cfg.Symbol
}

// Push caches update and queues it for the live phase. It blocks while the
// queue is full.
func (m *OrderbookMaintainer) Push(ctx context.Context, update *OrderBookUpdate) error {
	m.cacheMu.Lock()
	if res := m.cache.Append(update); res == CacheRestarted {
		logger.WithFields(map[string]interface{}{
			"symbol": m.cfg.Symbol.String(),
			"first":  update.FirstUpdateID,
			"last":   update.LastUpdateID,
		}).Debug("update not consecutive, cache restarted")
	}
	m.cacheMu.Unlock()

	select {
	case m.queue <- update:
		return nil
	case <-m.done:
		return ErrMaintainerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetCache forgets cached updates. Called when the feed reconnects so a
// catch-up never mixes updates from two sessions.
func (m *OrderbookMaintainer) ResetCache() {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	m.cache.Reset()
}

func (m *OrderbookMaintainer) CachedUpdates() []*OrderBookUpdate {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return m.cache.Items()
}

// Follow feeds every update of subscription into the maintainer until the
// stream closes or the maintainer stops, then unsubscribes.
func (m *OrderbookMaintainer) Follow(ctx context.Context, subscription *Subscription[*OrderBookUpdate]) {
	m.executor.Go(func() {
		if subscription.Unsubscribe != nil {
			defer subscription.Unsubscribe()
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case update, ok := <-subscription.Stream:
				if !ok {
					return
				}
				if err := m.Push(ctx, update); err != nil {
					return
				}
			}
		}
	})
}

// Start runs the maintainer on its executor.
func (m *OrderbookMaintainer) Start(ctx context.Context) {
	m.executor.Go(func() {
		if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).WithField("symbol", m.cfg.Symbol.String()).Error("maintainer exited")
		}
	})
}

// Run alternates between building a synchronized book and consuming live
// updates on it. It returns nil after Stop and ctx.Err() when ctx ends.
func (m *OrderbookMaintainer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	promclient.OpenOrderBookGauge.Inc()
	defer promclient.OpenOrderBookGauge.Dec()

	for {
		book, err := m.constructBaseOrderBook(ctx)
		if err != nil {
			return m.exitErr(ctx)
		}
		m.setOrderBook(book)

		err = m.consume(ctx, book)
		if ctx.Err() != nil {
			return m.exitErr(ctx)
		}

		m.markUnsynced()
		promclient.ResyncCounter.WithLabelValues(m.cfg.Symbol.CurrencyPair(), resyncReason(err)).Inc()
		logger.WithError(err).WithField("symbol", m.cfg.Symbol.String()).Error("failed to update, reconstructing order book")
	}
}

func (m *OrderbookMaintainer) exitErr(ctx context.Context) error {
	select {
	case <-m.done:
		return nil
	default:
		return ctx.Err()
	}
}

// constructBaseOrderBook fetches a snapshot and fast-forwards it through the
// cache. Snapshot and replay failures are retried after RetryDelay.
func (m *OrderbookMaintainer) constructBaseOrderBook(ctx context.Context) (*OrderBook, error) {
	fields := map[string]interface{}{"symbol": m.cfg.Symbol.String()}
	for {
		start := time.Now()
		snapshot, err := m.syncAPI.OrderBookSnapshot(ctx, m.cfg.Symbol, m.cfg.Depth)
		promclient.SnapshotLatency.WithLabelValues(m.cfg.Symbol.CurrencyPair()).Observe(time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.WithError(err).WithFields(fields).Warn("failed to retrieve base order book")
			if err := helpers.Sleep(ctx, m.cfg.RetryDelay); err != nil {
				return nil, err
			}
			continue
		}

		logger.WithFields(fields).WithField("id", snapshot.LastUpdateID).Debug("retrieved new base order book")
		book := NewOrderBook(m.cfg.Provider, m.cfg.Symbol, snapshot)
		if err := m.replayCache(book); err != nil {
			promclient.ResyncCounter.WithLabelValues(m.cfg.Symbol.CurrencyPair(), resyncReason(err)).Inc()
			logger.WithError(err).WithFields(fields).Warn("failed to update")
			if err := helpers.Sleep(ctx, m.cfg.RetryDelay); err != nil {
				return nil, err
			}
			continue
		}
		return book, nil
	}
}

func (m *OrderbookMaintainer) replayCache(book *OrderBook) error {
	for _, update := range m.CachedUpdates() {
		if err := book.ApplyUpdate(update); err != nil {
			return err
		}
	}
	return nil
}

// consume applies queued updates until one fails or ctx ends.
func (m *OrderbookMaintainer) consume(ctx context.Context, book *OrderBook) error {
	applied := promclient.AppliedUpdateCounter.WithLabelValues(m.cfg.Symbol.CurrencyPair())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-m.queue:
			if err := book.ApplyUpdate(update); err != nil {
				return err
			}
			applied.Inc()
		}
	}
}

func (m *OrderbookMaintainer) setOrderBook(book *OrderBook) {
	m.bookMu.Lock()
	previous := m.orderBook
	m.orderBook = book
	m.synced = true
	m.bookMu.Unlock()

	if previous != nil && previous != book {
		previous.Stop()
	}
	m.syncOnce.Do(func() { close(m.syncedCh) })
	logger.WithField("symbol", m.cfg.Symbol.String()).WithField("id", book.LastUpdateID()).Info("order book synchronized")
}

func (m *OrderbookMaintainer) markUnsynced() {
	m.bookMu.Lock()
	defer m.bookMu.Unlock()
	m.synced = false
}

// OrderBook returns the book currently owned by the maintainer. It may be
// replaced by a fresh one after a resync.
func (m *OrderbookMaintainer) OrderBook() *OrderBook {
	m.bookMu.RLock()
	defer m.bookMu.RUnlock()
	return m.orderBook
}

func (m *OrderbookMaintainer) Synced() bool {
	m.bookMu.RLock()
	defer m.bookMu.RUnlock()
	return m.synced
}

// WaitSynced blocks until the first book is live.
func (m *OrderbookMaintainer) WaitSynced(ctx context.Context) error {
	select {
	case <-m.syncedCh:
		return nil
	case <-m.done:
		return ErrMaintainerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *OrderbookMaintainer) TakeSnapshot(limit int) (*OrderBookSnapshot, error) {
	m.bookMu.RLock()
	book, synced := m.orderBook, m.synced
	m.bookMu.RUnlock()

	if !synced {
		return nil, ErrOrderBookNotSynced
	}
	return book.TakeSnapshot(limit), nil
}

func (m *OrderbookMaintainer) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
}

var ErrMaintainerStopped = errors.New("order book maintainer stopped")

func resyncReason(err error) string {
	switch {
	case errors.Is(err, ErrSequenceGap):
		return "gap"
	case errors.Is(err, ErrCrossedBook):
		return "crossed"
	default:
		return "invalid"
	}
}
