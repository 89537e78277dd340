package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spooky-finn/gatews-bridge/domain"
	"github.com/spooky-finn/gatews-bridge/helpers"
	"golang.org/x/time/rate"
)

const DefaultSnapshotLimit = 100

type SyncAPIConfig struct {
	BaseURL string
	App     string
	Settle  string
	// Limit is used when the caller asks for a non positive depth.
	Limit         int
	RatePerSecond float64
	Timeout       time.Duration
}

// SyncAPI fetches order book snapshots over the REST api. Requests are paced
// by a token bucket so resync storms stay under the venue rate limit.
type SyncAPI struct {
	cfg        SyncAPIConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewSyncAPI(cfg SyncAPIConfig) *SyncAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SnapshotBaseURL
	}
	if cfg.App == "" {
		cfg.App = AppSpot
	}
	if cfg.Settle == "" {
		cfg.Settle = "usdt"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultSnapshotLimit
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	burst := int(cfg.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &SyncAPI{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
	}
}

type orderBookSnapshotModel struct {
	ID      uint64      `json:"id"`
	Current int64       `json:"current"`
	Update  int64       `json:"update"`
	Asks    []wireLevel `json:"asks"`
	Bids    []wireLevel `json:"bids"`
}

type apiErrorModel struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

func (api *SyncAPI) snapshotURL(symbol *domain.MarketSymbol, limit int) string {
	base := strings.TrimRight(api.cfg.BaseURL, "/")
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("with_id", "true")

	switch api.cfg.App {
	case AppFutures:
		q.Set("contract", symbol.CurrencyPair())
		return fmt.Sprintf("%s/futures/%s/order_book?%s", base, api.cfg.Settle, q.Encode())
	case AppPilot:
		q.Set("currency_pair", symbol.CurrencyPair())
		return fmt.Sprintf("%s/pilot/order_book?%s", base, q.Encode())
	default:
		q.Set("currency_pair", symbol.CurrencyPair())
		return fmt.Sprintf("%s/spot/order_book?%s", base, q.Encode())
	}
}

func (api *SyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	if limit <= 0 {
		limit = api.cfg.Limit
	}
	if err := api.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.snapshotURL(symbol, limit), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get order book snapshot: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorModel
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Label != "" {
			return nil, fmt.Errorf("order book snapshot %s: status %d: %s %s", symbol, resp.StatusCode, apiErr.Label, apiErr.Message)
		}
		return nil, fmt.Errorf("order book snapshot %s: status %d: %s", symbol, resp.StatusCode, helpers.Truncate(body, 256))
	}

	data := &orderBookSnapshotModel{}
	if err := json.Unmarshal(body, data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response body: %w, response: %s", err, helpers.Truncate(body, 256))
	}
	if data.ID == 0 {
		return nil, fmt.Errorf("order book snapshot %s: response carries no id", symbol)
	}

	asks, err := toPriceLevels(data.Asks)
	if err != nil {
		return nil, err
	}
	bids, err := toPriceLevels(data.Bids)
	if err != nil {
		return nil, err
	}

	return &domain.OrderBookSnapshot{
		Source:       domain.OrderBookSource_Provider,
		LastUpdateID: data.ID,
		Bids:         bids,
		Asks:         asks,
	}, nil
}
