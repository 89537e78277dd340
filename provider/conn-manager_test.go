package provider

import (
	"context"
	"testing"
	"time"

	"github.com/spooky-finn/gatews-bridge/config"
	"github.com/spooky-finn/gatews-bridge/domain"
	"github.com/spooky-finn/gatews-bridge/provider/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionManager_ResolvesProviders(t *testing.T) {
	cm := NewConnectionManager(context.Background(), config.Default(), domain.GoroutineExecutor{})
	defer cm.Close()

	streamAPI, err := cm.StreamAPI("gate")
	require.NoError(t, err)
	assert.Same(t, cm.GateStreamAPI, streamAPI)

	syncAPI, err := cm.SyncAPI("gate")
	require.NoError(t, err)
	assert.Same(t, cm.GateSyncAPI, syncAPI)

	_, err = cm.StreamAPI("binance")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
	_, err = cm.SyncAPI("kucoin")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	assert.Equal(t, []string{"gate"}, cm.Providers())
}

func TestConnectionManager_CloseWithoutInit(t *testing.T) {
	cm := NewConnectionManager(context.Background(), config.Default(), nil)
	cm.Close()

	select {
	case <-cm.GateWS.Done():
	case <-time.After(time.Second):
		t.Fatal("stream client not closed")
	}
	assert.Equal(t, gate.StateClosed, cm.GateWS.State())
}

func TestStreamClientConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Gate.App = "futures"
	cfg.Gate.Settle = "btc"
	cfg.Gate.Key, cfg.Gate.Secret = "k", "s"
	cfg.Gate.MaxRetry = -1

	got := StreamClientConfig(cfg)
	assert.Equal(t, "futures", got.App)
	assert.Equal(t, "btc", got.Settle)
	assert.Equal(t, "k", got.Key)
	assert.Equal(t, "s", got.Secret)
	assert.Equal(t, -1, got.MaxRetry)
	assert.Equal(t, cfg.Gate.PingInterval, got.PingInterval)

	sync := SyncAPIConfig(cfg)
	assert.Equal(t, "futures", sync.App)
	assert.Equal(t, cfg.Snapshot.Limit, sync.Limit)

	stream := StreamAPIConfig(cfg)
	assert.Equal(t, cfg.Maintainer.CacheSize, stream.CacheSize)
	assert.Equal(t, cfg.Maintainer.RetryDelay, stream.RetryDelay)
}
