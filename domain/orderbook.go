package domain

import (
	"sync"
	"time"
)

type OrderBookSource string
type OrderBookStatus string

const (
	OrderBookSource_Provider       OrderBookSource = "Provider"
	OrderBookSource_LocalOrderBook OrderBookSource = "LocalOrderBook"

	OrderBookStatus_Ok      OrderBookStatus = "Ok"
	OrderBookStatus_Oudated OrderBookStatus = "Outdated"
)

type OrderBookSnapshot struct {
	Source       OrderBookSource
	LastUpdateID uint64
	Bids         []PriceLevel
	Asks         []PriceLevel
}

// OrderBookUpdate announces the level changes for ids FirstUpdateID..LastUpdateID.
type OrderBookUpdate struct {
	Symbol        *MarketSymbol
	FirstUpdateID uint64
	LastUpdateID  uint64
	Bids          []PriceLevel
	Asks          []PriceLevel
	EventTime     time.Time
}

func NewOrderBookUpdate(firstUpdateID, lastUpdateID uint64, bids []PriceLevel, asks []PriceLevel) *OrderBookUpdate {
	return &OrderBookUpdate{
		FirstUpdateID: firstUpdateID,
		LastUpdateID:  lastUpdateID,
		Bids:          bids,
		Asks:          asks,
	}
}

// OrderBook is a sequenced local book. Only its owner calls ApplyUpdate;
// readers go through TakeSnapshot and the Best* accessors.
type OrderBook struct {
	Provider string
	Symbol   *MarketSymbol

	asks           *OrderBookSide
	bids           *OrderBookSide
	lastUpdateID   uint64
	lastUpdateTime time.Time

	status   OrderBookStatus
	updateMx sync.RWMutex
}

func NewEmptyOrderBook(provider string, symbol *MarketSymbol) *OrderBook {
	return &OrderBook{
		Provider: provider,
		Symbol:   symbol,
		asks:     NewAskSide(),
		bids:     NewBidSide(),
		status:   OrderBookStatus_Ok,
	}
}

func NewOrderBook(provider string, symbol *MarketSymbol, snapshot *OrderBookSnapshot) *OrderBook {
	return &OrderBook{
		Provider:       provider,
		Symbol:         symbol,
		asks:           NewAskSide(snapshot.Asks...),
		bids:           NewBidSide(snapshot.Bids...),
		lastUpdateID:   snapshot.LastUpdateID,
		lastUpdateTime: time.Now(),
		status:         OrderBookStatus_Ok,
	}
}

// ApplyUpdate applies one incremental update. Outdated updates are ignored.
// A gap or a crossed result invalidates the book for good.
func (ob *OrderBook) ApplyUpdate(update *OrderBookUpdate) error {
	ob.updateMx.Lock()
	defer ob.updateMx.Unlock()

	if ob.status != OrderBookStatus_Ok {
		return ErrOrderBookInvalid
	}

	if err := ValidateSequence(update, ob.lastUpdateID); err != nil {
		if err == ErrOrderBookUpdateIsOutdated {
			return nil
		}
		ob.status = OrderBookStatus_Oudated
		return err
	}

	for _, level := range update.Asks {
		ob.asks.Apply(level)
	}
	for _, level := range update.Bids {
		ob.bids.Apply(level)
	}

	bestAsk, hasAsk := ob.asks.Best()
	bestBid, hasBid := ob.bids.Best()
	if hasAsk && hasBid && bestAsk.Price.LessThanOrEqual(bestBid.Price) {
		ob.status = OrderBookStatus_Oudated
		return &CrossedBookError{BestAsk: bestAsk.Price, BestBid: bestBid.Price}
	}

	ob.lastUpdateID = update.LastUpdateID
	ob.lastUpdateTime = time.Now()
	return nil
}

func (ob *OrderBook) Stop() {
	ob.updateMx.Lock()
	defer ob.updateMx.Unlock()
	ob.status = OrderBookStatus_Oudated
}

func (ob *OrderBook) Status() OrderBookStatus {
	ob.updateMx.RLock()
	defer ob.updateMx.RUnlock()
	return ob.status
}

func (ob *OrderBook) LastUpdateID() uint64 {
	ob.updateMx.RLock()
	defer ob.updateMx.RUnlock()
	return ob.lastUpdateID
}

func (ob *OrderBook) LastUpdateTime() time.Time {
	ob.updateMx.RLock()
	defer ob.updateMx.RUnlock()
	return ob.lastUpdateTime
}

func (ob *OrderBook) BestAsk() (PriceLevel, bool) {
	ob.updateMx.RLock()
	defer ob.updateMx.RUnlock()
	return ob.asks.Best()
}

func (ob *OrderBook) BestBid() (PriceLevel, bool) {
	ob.updateMx.RLock()
	defer ob.updateMx.RUnlock()
	return ob.bids.Best()
}

func (ob *OrderBook) Depth() (asks int, bids int) {
	ob.updateMx.RLock()
	defer ob.updateMx.RUnlock()
	return ob.asks.Len(), ob.bids.Len()
}

func (ob *OrderBook) TakeSnapshot(limit int) *OrderBookSnapshot {
	ob.updateMx.RLock()
	defer ob.updateMx.RUnlock()

	return &OrderBookSnapshot{
		Source:       OrderBookSource_LocalOrderBook,
		LastUpdateID: ob.lastUpdateID,
		Bids:         ob.bids.Levels(limit),
		Asks:         ob.asks.Levels(limit),
	}
}
