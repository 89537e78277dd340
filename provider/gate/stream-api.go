package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/spooky-finn/gatews-bridge/domain"
)

const DefaultUpdateInterval = "100ms"

type StreamAPIConfig struct {
	// Interval is the update frequency requested from the venue.
	Interval      string
	SnapshotLimit int
	CacheSize     int
	QueueSize     int
	RetryDelay    time.Duration
}

type depthSubscriber struct {
	stream chan *domain.OrderBookUpdate
	done   chan struct{}
}

// StreamAPI binds the order book update channel of one connection to local
// order book maintainers. Updates are fanned out by currency pair.
type StreamAPI struct {
	ctx      context.Context
	client   *StreamClient
	syncAPI  domain.ProviderSyncAPI
	executor domain.Executor
	cfg      StreamAPIConfig
	channel  string

	mu          sync.Mutex
	registered  bool
	nextID      int
	subscribers map[string]map[int]*depthSubscriber
}

// NewStreamAPI builds the binding. Maintainers it creates live as long as ctx.
func NewStreamAPI(ctx context.Context, client *StreamClient, syncAPI domain.ProviderSyncAPI, executor domain.Executor, cfg StreamAPIConfig) *StreamAPI {
	if cfg.Interval == "" {
		cfg.Interval = DefaultUpdateInterval
	}
	if executor == nil {
		executor = domain.GoroutineExecutor{}
	}
	return &StreamAPI{
		ctx:         ctx,
		client:      client,
		syncAPI:     syncAPI,
		executor:    executor,
		cfg:         cfg,
		channel:     orderBookUpdateChannel(client.App()),
		subscribers: make(map[string]map[int]*depthSubscriber),
	}
}

type depthUpdateModel struct {
	Time          int64       `json:"t"`
	Symbol        string      `json:"s"`
	FirstUpdateID uint64      `json:"U"`
	LastUpdateID  uint64      `json:"u"`
	Bids          []wireLevel `json:"b"`
	Asks          []wireLevel `json:"a"`
}

func decodeDepthUpdate(raw json.RawMessage) (*domain.OrderBookUpdate, error) {
	var model depthUpdateModel
	if err := json.Unmarshal(raw, &model); err != nil {
		return nil, err
	}
	if model.Symbol == "" {
		return nil, fmt.Errorf("order book update without symbol")
	}
	symbol, err := domain.NewMarketSymbolFromString(model.Symbol)
	if err != nil {
		return nil, err
	}
	bids, err := toPriceLevels(model.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := toPriceLevels(model.Asks)
	if err != nil {
		return nil, err
	}

	update := domain.NewOrderBookUpdate(model.FirstUpdateID, model.LastUpdateID, bids, asks)
	update.Symbol = symbol
	update.EventTime = time.UnixMilli(model.Time)
	return update, nil
}

// handleUpdate runs on the inline lane of the channel, so subscribers see
// updates in arrival order.
func (s *StreamAPI) handleUpdate(_ *StreamClient, resp *Response) {
	if resp.Error != nil {
		logger.WithError(resp.Error).WithField("channel", resp.Channel).Error("order book update channel error")
		return
	}
	if resp.Event != EventUpdate || resp.Result == nil {
		return
	}

	update, err := decodeDepthUpdate(resp.Result)
	if err != nil {
		logger.WithError(err).WithField("channel", resp.Channel).Warn("failed to decode order book update")
		return
	}

	s.mu.Lock()
	subs := make([]*depthSubscriber, 0, len(s.subscribers[update.Symbol.String()]))
	for _, sub := range s.subscribers[update.Symbol.String()] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.stream <- update:
		case <-sub.done:
		}
	}
}

// DepthDiffStream subscribes to the incremental updates of symbol. The
// venue subscription is shared by all local subscribers of the symbol.
func (s *StreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.OrderBookUpdate], error) {
	key := symbol.String()
	payload := []string{symbol.CurrencyPair(), s.cfg.Interval}

	s.mu.Lock()
	if !s.registered {
		s.client.Register(s.channel, Inline(s.handleUpdate))
		s.registered = true
	}
	first := len(s.subscribers[key]) == 0
	if first {
		s.subscribers[key] = make(map[int]*depthSubscriber)
	}
	id := s.nextID
	s.nextID++
	sub := &depthSubscriber{
		stream: make(chan *domain.OrderBookUpdate),
		done:   make(chan struct{}),
	}
	s.subscribers[key][id] = sub
	s.mu.Unlock()

	if first {
		if err := s.client.Subscribe(s.channel, payload); err != nil {
			s.remove(key, id)
			return nil, fmt.Errorf("failed to subscribe %s %v: %w", s.channel, payload, err)
		}
		logger.WithField("channel", s.channel).WithField("payload", payload).Info("subscribed")
	}

	var once sync.Once
	return &domain.Subscription[*domain.OrderBookUpdate]{
		Stream: sub.stream,
		Topic:  fmt.Sprintf("%s:%s", s.channel, symbol.CurrencyPair()),
		Unsubscribe: func() {
			once.Do(func() {
				if s.remove(key, id) {
					if err := s.client.Unsubscribe(s.channel, payload); err != nil {
						logger.WithError(err).WithField("channel", s.channel).Warn("failed to unsubscribe")
					}
				}
			})
		},
	}, nil
}

// remove drops one subscriber and reports whether it was the last of its symbol.
func (s *StreamAPI) remove(key string, id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[key][id]
	if !ok {
		return false
	}
	close(sub.done)
	delete(s.subscribers[key], id)
	if len(s.subscribers[key]) == 0 {
		delete(s.subscribers, key)
		return true
	}
	return false
}

// GetOrderBook starts a maintainer for symbol and waits for its first
// synchronized book. The cache of the maintainer is dropped on every
// reconnect of the connection.
func (s *StreamAPI) GetOrderBook(ctx context.Context, symbol *domain.MarketSymbol, maxDepth int) *domain.CreateOrderBookResult {
	maintainer := domain.NewOrderBookMaintainer(domain.MaintainerConfig{
		Provider:   ProviderName,
		Symbol:     symbol,
		Depth:      s.cfg.SnapshotLimit,
		CacheSize:  s.cfg.CacheSize,
		QueueSize:  s.cfg.QueueSize,
		RetryDelay: s.cfg.RetryDelay,
	}, s.syncAPI, s.executor)

	sub, err := s.DepthDiffStream(symbol)
	if err != nil {
		return &domain.CreateOrderBookResult{Err: err}
	}
	// Follow unsubscribes when the maintainer stops, which also drops the hook.
	removeHook := s.client.OnConnect(maintainer.ResetCache)
	unsubscribe := sub.Unsubscribe
	sub.Unsubscribe = func() {
		removeHook()
		unsubscribe()
	}
	maintainer.Follow(s.ctx, sub)
	maintainer.Start(s.ctx)

	if err := maintainer.WaitSynced(ctx); err != nil {
		maintainer.Stop()
		return &domain.CreateOrderBookResult{Err: fmt.Errorf("order book %s not synchronized: %w", symbol, err)}
	}

	snapshot, err := maintainer.TakeSnapshot(maxDepth)
	if err != nil {
		maintainer.Stop()
		return &domain.CreateOrderBookResult{Err: err}
	}
	return &domain.CreateOrderBookResult{
		Maintainer: maintainer,
		Snapshot:   snapshot,
	}
}
