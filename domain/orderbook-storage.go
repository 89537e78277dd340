package domain

import (
	"errors"
	"sync"

	"github.com/spooky-finn/gatews-bridge/infrastructure/logging"
)

var logger = logging.GetLogger().WithComponent("domain")

var ErrOrderBookNotFound = errors.New("order book not found")
var ErrProviderNotFound = errors.New("provider not found")

// OrderBookStorage indexes running maintainers by provider and symbol.
type OrderBookStorage struct {
	mu      sync.RWMutex
	storage map[string]map[string]*OrderbookMaintainer
}

func NewOrderBookStorage() *OrderBookStorage {
	return &OrderBookStorage{
		storage: make(map[string]map[string]*OrderbookMaintainer),
	}
}

func (o *OrderBookStorage) Add(provider string, symbol *MarketSymbol, maintainer *OrderbookMaintainer) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.storage[provider]; !ok {
		o.storage[provider] = make(map[string]*OrderbookMaintainer)
	}
	o.storage[provider][symbol.String()] = maintainer
}

func (o *OrderBookStorage) Get(provider string, symbol *MarketSymbol) (*OrderbookMaintainer, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	books, ok := o.storage[provider]
	if !ok {
		return nil, ErrProviderNotFound
	}
	maintainer, ok := books[symbol.String()]
	if !ok {
		return nil, ErrOrderBookNotFound
	}
	return maintainer, nil
}

// Remove drops the maintainer and returns it so the caller can stop it.
func (o *OrderBookStorage) Remove(provider string, symbol *MarketSymbol) (*OrderbookMaintainer, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	maintainer, ok := o.storage[provider][symbol.String()]
	if ok {
		delete(o.storage[provider], symbol.String())
	}
	return maintainer, ok
}

func (o *OrderBookStorage) OrderBookCount(provider string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if _, ok := o.storage[provider]; !ok {
		logger.WithField("provider", provider).Debug("provider not found")
		return -1
	}
	return len(o.storage[provider])
}

func (o *OrderBookStorage) All() []*OrderbookMaintainer {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []*OrderbookMaintainer
	for _, books := range o.storage {
		for _, m := range books {
			out = append(out, m)
		}
	}
	return out
}
