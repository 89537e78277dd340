package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spooky-finn/gatews-bridge/config"
	"github.com/spooky-finn/gatews-bridge/domain"
	"github.com/spooky-finn/gatews-bridge/infrastructure/logging"
	promclient "github.com/spooky-finn/gatews-bridge/infrastructure/prometheus"
	"github.com/spooky-finn/gatews-bridge/provider"
	"github.com/spooky-finn/gatews-bridge/provider/gate"
	"github.com/spooky-finn/gatews-bridge/rpc"
	"github.com/spooky-finn/gatews-bridge/usecase"
	"golang.org/x/sync/errgroup"
)

var logger = logging.GetLogger().WithComponent("main")

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	if err := logging.GetLogger().Configure(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.MaxAge); err != nil {
		logger.WithError(err).Fatal("failed to configure logger")
	}

	symbols, err := parseSymbols(cfg.Symbols)
	if err != nil {
		logger.WithError(err).Fatal("invalid symbols")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handlerPool := domain.NewWorkerPool(cfg.Maintainer.Workers)
	defer handlerPool.Close()

	connManager := provider.NewConnectionManager(ctx, cfg, handlerPool)
	defer connManager.Close()
	connManager.Init(ctx)

	snapshotUseCase := usecase.NewOrderBookSnapshotUseCase(ctx, connManager, domain.NewOrderBookStorage())
	defer snapshotUseCase.Close()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		reg := promclient.NewRegistry()
		g.Go(func() error {
			return promclient.StartPromClientServer(ctx, cfg.Metrics.Addr, reg)
		})
	}

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if err := snapshotUseCase.CreateOrderBook(ctx, gate.ProviderName, symbol); err != nil {
				logger.WithError(err).WithField("symbol", symbol.String()).Error("failed to start order book")
			}
			return nil
		})
	}

	srv := rpc.NewServer(snapshotUseCase, &rpc.ValidationServiceConfig{
		AvailableProviders: connManager.Providers(),
	})
	g.Go(func() error {
		return rpc.Serve(ctx, cfg.RPC.Addr, srv)
	})

	g.Go(func() error {
		select {
		case <-connManager.GateWS.Done():
			if ctx.Err() != nil {
				return nil
			}
			return connManager.GateWS.Err()
		case <-ctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("bridge stopped")
		return
	}
	logger.Info("bridge stopped")
}

func parseSymbols(in []string) ([]*domain.MarketSymbol, error) {
	out := make([]*domain.MarketSymbol, 0, len(in))
	for _, s := range in {
		symbol, err := domain.NewMarketSymbolFromString(s)
		if err != nil {
			return nil, fmt.Errorf("symbol %q: %w", s, err)
		}
		out = append(out, symbol)
	}
	return out, nil
}
