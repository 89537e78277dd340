package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSameBaseQuote     = errors.New("base and quote must be different")
	ErrEmptyAsset        = errors.New("base and quote must not be empty")
	ErrInvalidSymbolText = errors.New("invalid symbol string")
)

type MarketSymbol struct {
	BaseAsset  string
	QuoteAsset string
}

func NewMarketSymbol(base string, quote string) (*MarketSymbol, error) {
	if base == "" || quote == "" {
		return nil, ErrEmptyAsset
	}
	base = strings.ToLower(base)
	quote = strings.ToLower(quote)
	if base == quote {
		return nil, ErrSameBaseQuote
	}
	return &MarketSymbol{
		BaseAsset:  base,
		QuoteAsset: quote,
	}, nil
}

// NewMarketSymbolFromString parses a venue currency pair such as BTC_USDT.
func NewMarketSymbolFromString(s string) (*MarketSymbol, error) {
	split := strings.Split(s, "_")
	if len(split) != 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbolText, s)
	}
	return NewMarketSymbol(split[0], split[1])
}

func (ms *MarketSymbol) Join(separator string) string {
	return fmt.Sprintf("%s%s%s", ms.BaseAsset, separator, ms.QuoteAsset)
}

func (ms *MarketSymbol) String() string {
	return ms.Join("_")
}

// CurrencyPair is the upper case form the venue uses in payloads and results.
func (ms *MarketSymbol) CurrencyPair() string {
	return strings.ToUpper(ms.Join("_"))
}

func (ms *MarketSymbol) Equal(other *MarketSymbol) bool {
	return other != nil && ms.BaseAsset == other.BaseAsset && ms.QuoteAsset == other.QuoteAsset
}
