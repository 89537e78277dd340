package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levels(pairs ...[2]string) []PriceLevel {
	out := make([]PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, MustPriceLevel(p[0], p[1]))
	}
	return out
}

func render(side []PriceLevel) [][2]string {
	out := make([][2]string, 0, len(side))
	for _, l := range side {
		out = append(out, [2]string{l.Price.String(), l.Size})
	}
	return out
}

func newTestBook(t *testing.T, id uint64, bids, asks []PriceLevel) *OrderBook {
	t.Helper()
	symbol, err := NewMarketSymbol("BTC", "USDT")
	require.NoError(t, err)

	return NewOrderBook("MockProvider", symbol, &OrderBookSnapshot{
		LastUpdateID: id,
		Bids:         bids,
		Asks:         asks,
	})
}

func TestNewOrderBook(t *testing.T) {
	ob := newTestBook(t, 123,
		levels([2]string{"9900", "2"}, [2]string{"10000", "1"}),
		levels([2]string{"10200", "2.5"}, [2]string{"10100", "1.5"}),
	)

	assert.Equal(t, "MockProvider", ob.Provider)
	assert.Equal(t, uint64(123), ob.LastUpdateID())
	assert.Equal(t, OrderBookStatus_Ok, ob.Status())

	snapshot := ob.TakeSnapshot(0)
	assert.Equal(t, [][2]string{{"10000", "1"}, {"9900", "2"}}, render(snapshot.Bids), "bids should be descending")
	assert.Equal(t, [][2]string{{"10100", "1.5"}, {"10200", "2.5"}}, render(snapshot.Asks), "asks should be ascending")
}

func TestOrderBook_ApplyUpdate(t *testing.T) {
	ob := newTestBook(t, 123,
		levels([2]string{"10000", "1"}, [2]string{"9900", "2"}),
		levels([2]string{"10300", "1.5"}, [2]string{"10200", "2.5"}),
	)

	update := NewOrderBookUpdate(124, 124,
		levels([2]string{"9800", "3"}),
		levels([2]string{"10300", "2"}, [2]string{"10200", "0"}),
	)
	require.NoError(t, ob.ApplyUpdate(update))

	snapshot := ob.TakeSnapshot(0)
	assert.Equal(t, uint64(124), snapshot.LastUpdateID)
	assert.Equal(t, [][2]string{{"10300", "2"}}, render(snapshot.Asks))
	assert.Equal(t, [][2]string{{"10000", "1"}, {"9900", "2"}, {"9800", "3"}}, render(snapshot.Bids))
}

func TestOrderBook_ApplyUpdate_RemovesAsk(t *testing.T) {
	ob := newTestBook(t, 10, levels([2]string{"100.0", "3"}), levels([2]string{"101.0", "2"}))

	err := ob.ApplyUpdate(NewOrderBookUpdate(11, 11, nil, levels([2]string{"101.0", "0"})))
	require.NoError(t, err)

	asks, bids := ob.Depth()
	assert.Equal(t, 0, asks)
	assert.Equal(t, 1, bids)
	assert.Equal(t, uint64(11), ob.LastUpdateID())
}

func TestOrderBook_ApplyUpdate_Outdated(t *testing.T) {
	ob := newTestBook(t, 50, levels([2]string{"100", "3"}), levels([2]string{"101", "2"}))

	tests := []struct {
		name        string
		first, last uint64
	}{
		{"Duplicate", 50, 50},
		{"Older", 40, 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ob.ApplyUpdate(NewOrderBookUpdate(tt.first, tt.last, levels([2]string{"100", "9"}), nil))
			assert.NoError(t, err)

			best, ok := ob.BestBid()
			require.True(t, ok)
			assert.Equal(t, "3", best.Size, "outdated update must not mutate the book")
			assert.Equal(t, uint64(50), ob.LastUpdateID())
		})
	}
}

func TestOrderBook_ApplyUpdate_Overlapping(t *testing.T) {
	ob := newTestBook(t, 50, levels([2]string{"100", "3"}), levels([2]string{"101", "2"}))

	err := ob.ApplyUpdate(NewOrderBookUpdate(45, 55, levels([2]string{"99", "1"}), nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(55), ob.LastUpdateID())
}

func TestOrderBook_ApplyUpdate_Gap(t *testing.T) {
	ob := newTestBook(t, 50, levels([2]string{"100", "3"}), levels([2]string{"101", "2"}))

	err := ob.ApplyUpdate(NewOrderBookUpdate(53, 54, levels([2]string{"100.5", "1"}), nil))
	require.ErrorIs(t, err, ErrSequenceGap)

	var gap *SequenceGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, uint64(51), gap.Expected)
	assert.Equal(t, uint64(53), gap.First)

	asks, bids := ob.Depth()
	assert.Equal(t, 1, asks)
	assert.Equal(t, 1, bids, "gap must not mutate the book")
	assert.Equal(t, uint64(50), ob.LastUpdateID())
	assert.Equal(t, OrderBookStatus_Oudated, ob.Status())

	err = ob.ApplyUpdate(NewOrderBookUpdate(51, 51, nil, nil))
	assert.ErrorIs(t, err, ErrOrderBookInvalid)
}

func TestOrderBook_ApplyUpdate_Crossed(t *testing.T) {
	ob := newTestBook(t, 50, levels([2]string{"100", "3"}), levels([2]string{"101", "2"}))

	err := ob.ApplyUpdate(NewOrderBookUpdate(51, 51, levels([2]string{"101", "1"}), nil))
	require.ErrorIs(t, err, ErrCrossedBook)
	assert.True(t, IsResyncRequired(err))
	assert.Equal(t, OrderBookStatus_Oudated, ob.Status())
	assert.Equal(t, uint64(50), ob.LastUpdateID())
}

func TestOrderBook_ApplyUpdate_KeepsSidesOrdered(t *testing.T) {
	ob := newTestBook(t, 0, nil, nil)

	updates := []*OrderBookUpdate{
		NewOrderBookUpdate(1, 1, levels([2]string{"10", "1"}, [2]string{"12", "1"}), levels([2]string{"20", "1"})),
		NewOrderBookUpdate(2, 3, levels([2]string{"11", "4"}, [2]string{"12", "2"}), levels([2]string{"15", "1"}, [2]string{"25", "1"})),
		NewOrderBookUpdate(4, 4, levels([2]string{"10", "0"}, [2]string{"13", "1"}), levels([2]string{"20", "0"}, [2]string{"14", "3"})),
	}
	for _, u := range updates {
		require.NoError(t, ob.ApplyUpdate(u))
	}

	snapshot := ob.TakeSnapshot(0)
	assert.Equal(t, [][2]string{{"13", "1"}, {"12", "2"}, {"11", "4"}}, render(snapshot.Bids))
	assert.Equal(t, [][2]string{{"14", "3"}, {"15", "1"}, {"25", "1"}}, render(snapshot.Asks))
	assert.Equal(t, uint64(4), snapshot.LastUpdateID)
}

func TestOrderBook_TakeSnapshot(t *testing.T) {
	ob := newTestBook(t, 123,
		levels([2]string{"10000", "1"}, [2]string{"9900", "2"}),
		levels([2]string{"10100", "1.5"}, [2]string{"10200", "2.5"}),
	)

	result := ob.TakeSnapshot(1)

	assert.Equal(t, uint64(123), result.LastUpdateID)
	assert.Equal(t, OrderBookSource_LocalOrderBook, result.Source)
	assert.Equal(t, [][2]string{{"10100", "1.5"}}, render(result.Asks))
	assert.Equal(t, [][2]string{{"10000", "1"}}, render(result.Bids))

	result.Asks[0].Size = "999"
	best, _ := ob.BestAsk()
	assert.Equal(t, "1.5", best.Size, "snapshot must be a copy")
}

func TestOrderBookSide(t *testing.T) {
	side := NewBidSide()
	side.Apply(MustPriceLevel("10.300", "1"))
	side.Apply(MustPriceLevel("10.3", "2"))

	assert.Equal(t, 1, side.Len(), "levels are unique by price")
	level, ok := side.Get(MustPriceLevel("10.30", "0").Price)
	require.True(t, ok)
	assert.Equal(t, "2", level.Size)

	assert.False(t, side.Remove(MustPriceLevel("11", "0").Price), "removing an absent level is not an error")
	side.Apply(MustPriceLevel("10.3", "0.000"))
	assert.Equal(t, 0, side.Len())

	_, err := NewPriceLevel("abc", "1")
	assert.Error(t, err)
	_, err = NewPriceLevel("1", "")
	assert.Error(t, err)
}
