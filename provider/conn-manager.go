package provider

import (
	"context"
	"fmt"

	"github.com/spooky-finn/gatews-bridge/config"
	"github.com/spooky-finn/gatews-bridge/domain"
	"github.com/spooky-finn/gatews-bridge/infrastructure/logging"
	"github.com/spooky-finn/gatews-bridge/provider/gate"
)

var logger = logging.GetLogger().WithComponent("conn-manager")

// ConnectionManager owns the venue connection and the APIs bound to it.
type ConnectionManager struct {
	GateWS        *gate.StreamClient
	GateSyncAPI   *gate.SyncAPI
	GateStreamAPI *gate.StreamAPI

	cancel context.CancelFunc
}

// NewConnectionManager builds the venue clients. Handlers run on
// handlerExecutor; maintainers and connection duties run on their own
// goroutines. Nothing is dialed before Init.
func NewConnectionManager(ctx context.Context, cfg *config.Config, handlerExecutor domain.Executor) *ConnectionManager {
	ctx, cancel := context.WithCancel(ctx)

	streamClient := gate.NewStreamClient(StreamClientConfig(cfg), nil, gate.WithHandlerExecutor(handlerExecutor))
	syncAPI := gate.NewSyncAPI(SyncAPIConfig(cfg))
	streamAPI := gate.NewStreamAPI(ctx, streamClient, syncAPI, nil, StreamAPIConfig(cfg))

	return &ConnectionManager{
		GateWS:        streamClient,
		GateSyncAPI:   syncAPI,
		GateStreamAPI: streamAPI,
		cancel:        cancel,
	}
}

func StreamClientConfig(cfg *config.Config) gate.Config {
	return gate.Config{
		App:              cfg.Gate.App,
		Settle:           cfg.Gate.Settle,
		Testnet:          cfg.Gate.Testnet,
		URL:              cfg.Gate.URL,
		Key:              cfg.Gate.Key,
		Secret:           cfg.Gate.Secret,
		PingInterval:     cfg.Gate.PingInterval,
		MaxRetry:         cfg.Gate.MaxRetry,
		BaseDelay:        cfg.Gate.BaseDelay,
		SkipTLSVerify:    cfg.Gate.SkipTLSVerify,
		ShowReconnectMsg: cfg.Gate.ShowReconnectMsg,
	}
}

func SyncAPIConfig(cfg *config.Config) gate.SyncAPIConfig {
	return gate.SyncAPIConfig{
		BaseURL:       cfg.Snapshot.BaseURL,
		App:           cfg.Gate.App,
		Settle:        cfg.Gate.Settle,
		Limit:         cfg.Snapshot.Limit,
		RatePerSecond: cfg.Snapshot.RatePerSecond,
	}
}

func StreamAPIConfig(cfg *config.Config) gate.StreamAPIConfig {
	return gate.StreamAPIConfig{
		SnapshotLimit: cfg.Snapshot.Limit,
		CacheSize:     cfg.Maintainer.CacheSize,
		QueueSize:     cfg.Maintainer.QueueSize,
		RetryDelay:    cfg.Maintainer.RetryDelay,
	}
}

// Init starts the connection. The stream client dials and reconnects in the
// background; requests sent before the first connect are queued.
func (cm *ConnectionManager) Init(ctx context.Context) {
	cm.GateWS.Start(ctx)
	logger.WithField("url", cm.GateWS.URL()).Info("gate stream client started")
}

func (cm *ConnectionManager) StreamAPI(provider string) (domain.ProviderStreamAPI, error) {
	switch provider {
	case gate.ProviderName:
		return cm.GateStreamAPI, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, provider)
}

func (cm *ConnectionManager) SyncAPI(provider string) (domain.ProviderSyncAPI, error) {
	switch provider {
	case gate.ProviderName:
		return cm.GateSyncAPI, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, provider)
}

// Providers lists the venues this manager serves.
func (cm *ConnectionManager) Providers() []string {
	return []string{gate.ProviderName}
}

// Close stops the maintainers started through the stream api and closes the
// connection.
func (cm *ConnectionManager) Close() {
	cm.cancel()
	cm.GateWS.Close()
}
