package promclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spooky-finn/gatews-bridge/infrastructure/logging"
)

var logger = logging.GetLogger().WithComponent("promclient")

var OpenOrderBookGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "gate_open_order_book",
		Help: "local order books currently maintained",
	},
)

var ConnectionStateGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "gate_ws_connection_state",
		Help: "1 for the current state of the websocket connection, 0 otherwise",
	},
	[]string{"app", "state"},
)

var ReconnectCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gate_ws_connect_attempts_total",
		Help: "websocket connection attempts by result",
	},
	[]string{"app", "result"},
)

var DecodeErrorCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gate_ws_decode_errors_total",
		Help: "inbound frames dropped because they could not be decoded",
	},
	[]string{"app"},
)

var SentMessageCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gate_ws_sent_messages_total",
		Help: "outbound messages written, replays included",
	},
	[]string{"app", "kind"},
)

var ResyncCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gate_order_book_resync_total",
		Help: "order book rebuilds by reason",
	},
	[]string{"symbol", "reason"},
)

var AppliedUpdateCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gate_order_book_updates_applied_total",
		Help: "incremental updates applied to local order books",
	},
	[]string{"symbol"},
)

var SnapshotLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "gate_order_book_snapshot_seconds",
		Help:    "order book snapshot request latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"symbol"},
)

// NewRegistry registers every collector of the bridge plus the go runtime collector.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		OpenOrderBookGauge,
		ConnectionStateGauge,
		ReconnectCounter,
		DecodeErrorCounter,
		SentMessageCounter,
		ResyncCounter,
		AppliedUpdateCounter,
		SnapshotLatency,
		collectors.NewGoCollector(),
	)
	return reg
}

// StartPromClientServer serves /metrics on addr until ctx is done.
func StartPromClientServer(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("prometheus server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
