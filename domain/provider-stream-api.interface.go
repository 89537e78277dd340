package domain

import "context"

// ProviderSyncAPI fetches authoritative order book snapshots.
type ProviderSyncAPI interface {
	OrderBookSnapshot(ctx context.Context, symbol *MarketSymbol, limit int) (*OrderBookSnapshot, error)
}

type CreateOrderBookResult struct {
	Maintainer *OrderbookMaintainer
	Snapshot   *OrderBookSnapshot
	Err        error
}

type ProviderStreamAPI interface {
	GetOrderBook(ctx context.Context, symbol *MarketSymbol, maxDepth int) *CreateOrderBookResult
	DepthDiffStream(symbol *MarketSymbol) (*Subscription[*OrderBookUpdate], error)
}
