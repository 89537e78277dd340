package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spooky-finn/gatews-bridge/domain"
	"github.com/spooky-finn/gatews-bridge/infrastructure/logging"
)

const STARTING = "starting"

const DefaultCreateTimeout = 30 * time.Second

var logger = logging.GetLogger().WithComponent("orderbook-snapshot-usecase")

type OrderBookSnapshotUseCase struct {
	ctx           context.Context
	connManager   domain.ConnManager
	storage       *domain.OrderBookStorage
	createTimeout time.Duration

	waitingRoom sync.Map
	wg          sync.WaitGroup
}

// NewOrderBookSnapshotUseCase serves snapshots of local books. Books are
// created lazily on first request and live as long as ctx.
func NewOrderBookSnapshotUseCase(
	ctx context.Context, connManager domain.ConnManager, storage *domain.OrderBookStorage,
) *OrderBookSnapshotUseCase {
	if storage == nil {
		storage = domain.NewOrderBookStorage()
	}
	return &OrderBookSnapshotUseCase{
		ctx:           ctx,
		connManager:   connManager,
		storage:       storage,
		createTimeout: DefaultCreateTimeout,
	}
}

func (o *OrderBookSnapshotUseCase) Storage() *domain.OrderBookStorage {
	return o.storage
}

// GetOrderBookSnapshot returns the snapshot of the local book when it is in
// sync. Otherwise the snapshot comes from the provider api and, if no local
// book exists yet, its creation starts in the background.
func (o *OrderBookSnapshotUseCase) GetOrderBookSnapshot(
	ctx context.Context, provider string, symbol *domain.MarketSymbol, limit int,
) (*domain.OrderBookSnapshot, error) {
	maintainer, err := o.storage.Get(provider, symbol)
	switch {
	case err == nil:
		snapshot, err := maintainer.TakeSnapshot(limit)
		if err == nil {
			return snapshot, nil
		}
		logger.WithFields(logging.Fields{"provider": provider, "symbol": symbol.String()}).
			Debug("local order book is resyncing, provider snapshot returned")
	case errors.Is(err, domain.ErrOrderBookNotFound), errors.Is(err, domain.ErrProviderNotFound):
		o.startOrderBook(provider, symbol)
	default:
		return nil, err
	}

	syncAPI, err := o.connManager.SyncAPI(provider)
	if err != nil {
		return nil, err
	}
	return syncAPI.OrderBookSnapshot(ctx, symbol, limit)
}

// CreateOrderBook starts a local book and waits until it is in sync. A book
// that already exists is left untouched.
func (o *OrderBookSnapshotUseCase) CreateOrderBook(
	ctx context.Context, provider string, symbol *domain.MarketSymbol,
) error {
	if _, err := o.storage.Get(provider, symbol); err == nil {
		return nil
	}

	key := o.getWaitingRoomKey(provider, symbol)
	if _, loaded := o.waitingRoom.LoadOrStore(key, STARTING); loaded {
		return nil
	}
	defer o.waitingRoom.Delete(key)

	return o.createOrderBook(ctx, provider, symbol)
}

// startOrderBook creates the book in the background unless it is already
// being created.
func (o *OrderBookSnapshotUseCase) startOrderBook(provider string, symbol *domain.MarketSymbol) {
	key := o.getWaitingRoomKey(provider, symbol)
	if _, loaded := o.waitingRoom.LoadOrStore(key, STARTING); loaded {
		logger.WithFields(logging.Fields{"provider": provider, "symbol": symbol.String()}).
			Debug("orderbook is initing, provider snapshot returned")
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.waitingRoom.Delete(key)

		ctx, cancel := context.WithTimeout(o.ctx, o.createTimeout)
		defer cancel()
		if err := o.createOrderBook(ctx, provider, symbol); err != nil {
			logger.WithError(err).WithFields(logging.Fields{"provider": provider, "symbol": symbol.String()}).
				Error("failed to create order book")
		}
	}()
}

func (o *OrderBookSnapshotUseCase) createOrderBook(
	ctx context.Context, provider string, symbol *domain.MarketSymbol,
) error {
	streamAPI, err := o.connManager.StreamAPI(provider)
	if err != nil {
		return err
	}

	result := streamAPI.GetOrderBook(ctx, symbol, 0)
	if result.Err != nil {
		return fmt.Errorf("failed to create order book %s on %s: %w", symbol, provider, result.Err)
	}

	o.storage.Add(provider, symbol, result.Maintainer)
	logger.WithFields(logging.Fields{"provider": provider, "symbol": symbol.String()}).
		Info("orderbook is added to the runtime storage")
	return nil
}

// Close waits for background creations and stops every stored maintainer.
func (o *OrderBookSnapshotUseCase) Close() {
	o.wg.Wait()
	for _, m := range o.storage.All() {
		m.Stop()
	}
}

func (o *OrderBookSnapshotUseCase) getWaitingRoomKey(provider string, symbol *domain.MarketSymbol) string {
	return fmt.Sprintf("%s-%s", provider, symbol.String())
}
