package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spooky-finn/gatews-bridge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncAPI_SpotSnapshot(t *testing.T) {
	var query string
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":10,"current":1700000000123,"update":1700000000100,"asks":[["101.0","2"]],"bids":[["100.0","3"],["99.5","1"]]}`))
	}))
	defer server.Close()

	api := NewSyncAPI(SyncAPIConfig{BaseURL: server.URL})
	symbol, _ := domain.NewMarketSymbol("BTC", "USDT")

	snapshot, err := api.OrderBookSnapshot(context.Background(), symbol, 0)
	require.NoError(t, err)

	assert.Equal(t, "/spot/order_book", path)
	assert.Equal(t, "currency_pair=BTC_USDT&limit=100&with_id=true", query)
	assert.Equal(t, uint64(10), snapshot.LastUpdateID)
	assert.Equal(t, domain.OrderBookSource_Provider, snapshot.Source)
	require.Len(t, snapshot.Asks, 1)
	require.Len(t, snapshot.Bids, 2)
	assert.Equal(t, "101", snapshot.Asks[0].Price.String())
	assert.Equal(t, "2", snapshot.Asks[0].Size)
	assert.Equal(t, "99.5", snapshot.Bids[1].Price.String())
}

func TestSyncAPI_FuturesSnapshot(t *testing.T) {
	var path, query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"id":77,"asks":[{"p":"61.5","s":120}],"bids":[{"p":"61.4","s":"30"}]}`))
	}))
	defer server.Close()

	api := NewSyncAPI(SyncAPIConfig{BaseURL: server.URL, App: AppFutures, Settle: "usdt"})
	symbol, _ := domain.NewMarketSymbol("ETH", "USDT")

	snapshot, err := api.OrderBookSnapshot(context.Background(), symbol, 20)
	require.NoError(t, err)

	assert.Equal(t, "/futures/usdt/order_book", path)
	assert.Equal(t, "contract=ETH_USDT&limit=20&with_id=true", query)
	assert.Equal(t, uint64(77), snapshot.LastUpdateID)
	assert.Equal(t, "120", snapshot.Asks[0].Size)
	assert.Equal(t, "30", snapshot.Bids[0].Size)
}

func TestSyncAPI_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"VenueError", http.StatusBadRequest, `{"label":"INVALID_CURRENCY_PAIR","message":"unknown pair"}`, "INVALID_CURRENCY_PAIR"},
		{"PlainError", http.StatusBadGateway, `upstream down`, "upstream down"},
		{"NoID", http.StatusOK, `{"asks":[],"bids":[]}`, "no id"},
		{"BadLevel", http.StatusOK, `{"id":1,"asks":[["x","1"]],"bids":[]}`, "invalid price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			api := NewSyncAPI(SyncAPIConfig{BaseURL: server.URL})
			symbol, _ := domain.NewMarketSymbol("BTC", "USDT")

			_, err := api.OrderBookSnapshot(context.Background(), symbol, 10)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
