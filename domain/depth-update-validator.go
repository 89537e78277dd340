package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Outdated updates are already covered by the book and are skipped silently.
	ErrOrderBookUpdateIsOutdated = errors.New("order book update is outdated")
	// A gap means ids were lost between the book and the update; the book has to be rebuilt.
	ErrSequenceGap = errors.New("order book update is out of sequence")
	// A crossed book has best ask <= best bid after an update.
	ErrCrossedBook = errors.New("order book is crossed")
	// An invalidated book refuses further updates.
	ErrOrderBookInvalid = errors.New("order book is invalidated and must be rebuilt")
)

type SequenceGapError struct {
	Expected uint64
	First    uint64
	Last     uint64
}

func (e *SequenceGapError) Error() string {
	return fmt.Sprintf("base order book ID %d falls behind update between %d-%d", e.Expected-1, e.First, e.Last)
}

func (e *SequenceGapError) Is(target error) bool {
	return target == ErrSequenceGap
}

type CrossedBookError struct {
	BestAsk decimal.Decimal
	BestBid decimal.Decimal
}

func (e *CrossedBookError) Error() string {
	return fmt.Sprintf("price overlapping, min ask price %s not greater than max bid price %s", e.BestAsk, e.BestBid)
}

func (e *CrossedBookError) Is(target error) bool {
	return target == ErrCrossedBook
}

// ValidateSequence decides whether update can be applied on top of a book
// positioned at lastUpdateID. nil means the update covers lastUpdateID+1.
func ValidateSequence(update *OrderBookUpdate, lastUpdateID uint64) error {
	next := lastUpdateID + 1
	if update.LastUpdateID < next {
		return ErrOrderBookUpdateIsOutdated
	}
	if update.FirstUpdateID > next {
		return &SequenceGapError{Expected: next, First: update.FirstUpdateID, Last: update.LastUpdateID}
	}
	return nil
}

// IsResyncRequired reports whether err forces the book to be rebuilt from a snapshot.
func IsResyncRequired(err error) bool {
	return errors.Is(err, ErrSequenceGap) || errors.Is(err, ErrCrossedBook) || errors.Is(err, ErrOrderBookInvalid)
}
