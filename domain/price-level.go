package domain

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// PriceLevel is one row of a book side. Two levels are the same level when
// their prices are equal; the size is carried verbatim as the venue sent it.
type PriceLevel struct {
	Price decimal.Decimal
	Size  string
}

func NewPriceLevel(price string, size string) (PriceLevel, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return PriceLevel{}, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if _, err := decimal.NewFromString(size); err != nil {
		return PriceLevel{}, fmt.Errorf("invalid size %q: %w", size, err)
	}
	return PriceLevel{Price: p, Size: size}, nil
}

// MustPriceLevel panics on malformed input. Meant for literals and tests.
func MustPriceLevel(price string, size string) PriceLevel {
	level, err := NewPriceLevel(price, size)
	if err != nil {
		panic(err)
	}
	return level
}

// IsRemoval reports whether the level deletes its price from the side.
func (l PriceLevel) IsRemoval() bool {
	size, err := decimal.NewFromString(l.Size)
	return err == nil && size.IsZero()
}

func (l PriceLevel) SamePrice(other PriceLevel) bool {
	return l.Price.Equal(other.Price)
}

func (l PriceLevel) String() string {
	return fmt.Sprintf("(%s, %s)", l.Price.String(), l.Size)
}

// OrderBookSide keeps levels unique by price, ascending for asks and
// descending for bids, so index 0 is always the best level.
type OrderBookSide struct {
	descending bool
	levels     []PriceLevel
}

func NewAskSide(levels ...PriceLevel) *OrderBookSide {
	return newOrderBookSide(false, levels)
}

func NewBidSide(levels ...PriceLevel) *OrderBookSide {
	return newOrderBookSide(true, levels)
}

func newOrderBookSide(descending bool, levels []PriceLevel) *OrderBookSide {
	side := &OrderBookSide{
		descending: descending,
		levels:     make([]PriceLevel, 0, len(levels)),
	}
	for _, level := range levels {
		side.Apply(level)
	}
	return side
}

// search returns the index where price is or would be inserted.
func (s *OrderBookSide) search(price decimal.Decimal) (int, bool) {
	i := sort.Search(len(s.levels), func(i int) bool {
		if s.descending {
			return s.levels[i].Price.LessThanOrEqual(price)
		}
		return s.levels[i].Price.GreaterThanOrEqual(price)
	})
	return i, i < len(s.levels) && s.levels[i].Price.Equal(price)
}

// Apply removes the level when its size is zero and upserts it otherwise.
func (s *OrderBookSide) Apply(level PriceLevel) {
	if level.IsRemoval() {
		s.Remove(level.Price)
		return
	}
	s.Upsert(level)
}

func (s *OrderBookSide) Upsert(level PriceLevel) {
	i, found := s.search(level.Price)
	if found {
		s.levels[i].Size = level.Size
		return
	}
	s.levels = append(s.levels, PriceLevel{})
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = level
}

// Remove reports whether a level was removed. Absent prices are not an error.
func (s *OrderBookSide) Remove(price decimal.Decimal) bool {
	i, found := s.search(price)
	if !found {
		return false
	}
	s.levels = append(s.levels[:i], s.levels[i+1:]...)
	return true
}

func (s *OrderBookSide) Best() (PriceLevel, bool) {
	if len(s.levels) == 0 {
		return PriceLevel{}, false
	}
	return s.levels[0], true
}

func (s *OrderBookSide) Get(price decimal.Decimal) (PriceLevel, bool) {
	i, found := s.search(price)
	if !found {
		return PriceLevel{}, false
	}
	return s.levels[i], true
}

func (s *OrderBookSide) Len() int {
	return len(s.levels)
}

// Levels returns a copy of the best limit levels, all of them when limit <= 0.
func (s *OrderBookSide) Levels(limit int) []PriceLevel {
	n := len(s.levels)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]PriceLevel, n)
	copy(out, s.levels[:n])
	return out
}
