package gate

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spooky-finn/gatews-bridge/domain"
	"github.com/spooky-finn/gatews-bridge/helpers"
	promclient "github.com/spooky-finn/gatews-bridge/infrastructure/prometheus"
	"golang.org/x/sync/errgroup"
)

type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateDraining
	StateClosed
)

var connStates = []ConnState{StateDisconnected, StateConnecting, StateConnected, StateDraining, StateClosed}

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Config struct {
	App     string
	Settle  string
	Testnet bool
	// URL overrides the endpoint derived from App, Settle and Testnet.
	URL string

	Key    string
	Secret string

	PingInterval time.Duration
	// MaxRetry bounds consecutive failed connection attempts. Zero means
	// DefaultMaxRetry, negative means unlimited.
	MaxRetry  int
	BaseDelay time.Duration

	SkipTLSVerify    bool
	ShowReconnectMsg bool
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.App == "" {
		c.App = AppSpot
	}
	if c.URL == "" {
		c.URL = Endpoint(c.App, c.Settle, c.Testnet)
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.MaxRetry == 0 {
		c.MaxRetry = DefaultMaxRetry
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	return c
}

type Option func(*StreamClient)

// WithHandlerExecutor runs handlers on e instead of the client executor.
func WithHandlerExecutor(e domain.Executor) Option {
	return func(c *StreamClient) {
		c.dispatcher = NewDispatcher(e)
	}
}

// StreamClient owns one websocket connection to the venue. It reconnects
// with a linear backoff and replays everything it ever sent after each
// reconnect, so subscriptions survive transient disconnects.
type StreamClient struct {
	cfg        Config
	signer     *Signer
	dispatcher *Dispatcher
	ledger     *OutboundLedger
	executor   domain.Executor
	dialer     *websocket.Dialer

	state   atomic.Int32
	started atomic.Bool
	writeMu sync.Mutex

	mu        sync.Mutex
	cancel    context.CancelFunc
	closing   bool
	onConnect []connectHook
	nextHook  int

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

func NewStreamClient(cfg Config, executor domain.Executor, opts ...Option) *StreamClient {
	cfg = cfg.withDefaults()
	if executor == nil {
		executor = domain.GoroutineExecutor{}
	}

	dialer := &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		EnableCompression: false,
	}
	if cfg.SkipTLSVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	c := &StreamClient{
		cfg:        cfg,
		signer:     NewSigner(cfg.Key, cfg.Secret),
		dispatcher: NewDispatcher(executor),
		ledger:     NewOutboundLedger(),
		executor:   executor,
		dialer:     dialer,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.setState(StateDisconnected)
	return c
}

func (c *StreamClient) App() string {
	return c.cfg.App
}

func (c *StreamClient) URL() string {
	return c.cfg.URL
}

func (c *StreamClient) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *StreamClient) setState(s ConnState) {
	c.state.Store(int32(s))
	for _, st := range connStates {
		v := 0.0
		if st == s {
			v = 1
		}
		promclient.ConnectionStateGauge.WithLabelValues(c.cfg.App, st.String()).Set(v)
	}
}

// Done is closed once the client reached StateClosed.
func (c *StreamClient) Done() <-chan struct{} {
	return c.done
}

// Err returns the terminal error after Done is closed. It is nil after Close.
func (c *StreamClient) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *StreamClient) finish(err error) {
	c.doneOnce.Do(func() {
		c.err = err
		c.setState(StateClosed)
		close(c.done)
	})
}

// Start runs the client on its executor.
func (c *StreamClient) Start(ctx context.Context) {
	c.executor.Go(func() {
		if err := c.Run(ctx); err != nil {
			logger.WithError(err).WithField("app", c.cfg.App).Error("stream client stopped")
		}
	})
}

// Run connects and keeps the connection alive until Close, ctx cancellation
// or reconnect exhaustion. It may be called once.
func (c *StreamClient) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("stream client already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.cancel = cancel
	c.mu.Unlock()

	err := c.loop(ctx)
	c.finish(err)
	return err
}

func (c *StreamClient) loop(ctx context.Context) error {
	fields := map[string]interface{}{"app": c.cfg.App, "url": c.cfg.URL}
	retry := 0
	for {
		if ctx.Err() != nil {
			return c.drain(ctx)
		}

		c.setState(StateConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.drain(ctx)
			}
			retry++
			promclient.ReconnectCounter.WithLabelValues(c.cfg.App, "failure").Inc()
			logger.WithError(err).WithFields(fields).Warnf("failed to connect to server for the %d time, try again later", retry)

			if c.cfg.MaxRetry > 0 && retry >= c.cfg.MaxRetry {
				logger.WithFields(fields).Errorf("max reconnect time %d reached, give it up", c.cfg.MaxRetry)
				return fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, retry, err)
			}
			_ = helpers.Sleep(ctx, c.cfg.BaseDelay*time.Duration(retry))
			continue
		}

		promclient.ReconnectCounter.WithLabelValues(c.cfg.App, "success").Inc()
		if retry > 0 && c.cfg.ShowReconnectMsg {
			logger.WithFields(fields).Warnf("reconnect succeeded after retrying %d times", retry)
		}
		retry = 0

		c.setState(StateConnected)
		c.runConnectHooks()

		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return c.drain(ctx)
		}
		logger.WithError(err).WithFields(fields).Warn("websocket connection lost, retry to reconnect")
	}
}

// drain finishes a shutdown. A deliberate Close ends without error.
func (c *StreamClient) drain(ctx context.Context) error {
	c.setState(StateDraining)
	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()
	if closing {
		return nil
	}
	return ctx.Err()
}

func (c *StreamClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	return conn, nil
}

// serve runs the read, write and keep-alive duties of one connection. The
// first duty to fail tears the others down.
func (c *StreamClient) serve(ctx context.Context, conn *websocket.Conn) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(conn) })
	g.Go(func() error { return c.writeLoop(gctx, conn) })
	g.Go(func() error { return c.keepAlive(gctx, conn) })
	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})
	return g.Wait()
}

func (c *StreamClient) readLoop(conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return &TransportError{Op: "read", Err: err}
		}

		resp, err := DecodeResponse(msg)
		if err != nil {
			promclient.DecodeErrorCounter.WithLabelValues(c.cfg.App).Inc()
			logger.WithError(err).WithField("app", c.cfg.App).Warn("dropping inbound message")
			continue
		}
		c.dispatcher.Dispatch(c, resp)
	}
}

func (c *StreamClient) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for _, req := range c.ledger.History() {
		if err := c.writeRequest(conn, req); err != nil {
			return err
		}
		if c.cfg.ShowReconnectMsg {
			logger.WithFields(map[string]interface{}{
				"channel": req.Channel,
				"event":   req.Event(),
				"payload": req.Payload,
			}).Info("replayed request")
		}
	}

	for {
		req, err := c.ledger.Next(ctx)
		if err != nil {
			return err
		}
		if err := c.writeRequest(conn, req); err != nil {
			return err
		}
	}
}

func (c *StreamClient) writeRequest(conn *websocket.Conn, req *Request) error {
	data, err := req.Encode(c.signer, time.Now())
	if err != nil {
		logger.WithError(err).WithField("channel", req.Channel).Error("failed to encode request, skipped")
		return nil
	}
	if err := c.write(conn, data); err != nil {
		return err
	}
	promclient.SentMessageCounter.WithLabelValues(c.cfg.App, req.Event()).Inc()
	return nil
}

func (c *StreamClient) keepAlive(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			data, err := encodePing(c.cfg.App, now)
			if err != nil {
				return err
			}
			if err := c.write(conn, data); err != nil {
				return err
			}
			promclient.SentMessageCounter.WithLabelValues(c.cfg.App, "ping").Inc()
		}
	}
}

func (c *StreamClient) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close stops the client without waiting for its duties. It is safe to call
// more than once and from any goroutine.
func (c *StreamClient) Close() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel == nil {
		c.finish(nil)
		return
	}
	// the run loop moves through Draining to Closed on its own
	cancel()
}

type connectHook struct {
	id int
	fn func()
}

// OnConnect registers fn to run after every successful connection, before
// the replay starts. The returned func removes the hook; it may be called
// more than once.
func (c *StreamClient) OnConnect(fn func()) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextHook
	c.nextHook++
	c.onConnect = append(c.onConnect, connectHook{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { c.removeConnectHook(id) })
	}
}

func (c *StreamClient) removeConnectHook(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, h := range c.onConnect {
		if h.id == id {
			c.onConnect = append(c.onConnect[:i], c.onConnect[i+1:]...)
			return
		}
	}
}

func (c *StreamClient) runConnectHooks() {
	c.mu.Lock()
	hooks := make([]connectHook, len(c.onConnect))
	copy(hooks, c.onConnect)
	c.mu.Unlock()

	for _, h := range hooks {
		h.fn()
	}
}

// Send queues req for the write loop. Requests needing credentials fail
// here when none are configured; the connection is not affected.
func (c *StreamClient) Send(req *Request) error {
	if req.RequireAuth && !c.signer.HasCredentials() {
		return ErrCredentialsMissing
	}
	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()
	if closing {
		return ErrClientClosed
	}
	c.ledger.Enqueue(req)
	return nil
}

func (c *StreamClient) Subscribe(channel string, payload []string) error {
	return c.Send(NewSubscribeRequest(channel, payload, nil))
}

func (c *StreamClient) SubscribeWithOptions(channel string, payload []string, opts *SubscribeOptions) error {
	return c.Send(NewSubscribeRequest(channel, payload, opts))
}

func (c *StreamClient) Unsubscribe(channel string, payload []string) error {
	return c.Send(NewUnsubscribeRequest(channel, payload))
}

// APICall logs in and then issues the api request on channel. It returns
// the request id the response will carry.
func (c *StreamClient) APICall(channel string, param any, header string, reqID string) (string, error) {
	if !c.signer.HasCredentials() {
		return "", ErrCredentialsMissing
	}
	req := NewAPIRequest(channel, param, header, reqID)
	if err := c.Send(NewAPIRequest(c.loginChannel(), nil, header, req.ReqID)); err != nil {
		return "", err
	}
	if err := c.Send(req); err != nil {
		return "", err
	}
	return req.ReqID, nil
}

func (c *StreamClient) loginChannel() string {
	if c.cfg.App == AppSpot {
		return loginChannel(AppSpot)
	}
	return loginChannel(AppFutures)
}

func (c *StreamClient) Register(channel string, h Handler) {
	c.dispatcher.Register(channel, h)
}

func (c *StreamClient) Unregister(channel string) {
	c.dispatcher.Unregister(channel)
}

func (c *StreamClient) SetDefaultHandler(h Handler) {
	c.dispatcher.SetDefault(h)
}

// SubscribedPayloads lists the payload entries currently subscribed on
// channel according to the sent history, in first subscription order.
func (c *StreamClient) SubscribedPayloads(channel string) []string {
	var order []string
	active := map[string]bool{}
	for _, req := range c.ledger.History() {
		if req.Channel != channel {
			continue
		}
		for _, p := range req.Markets() {
			switch req.Kind {
			case KindSubscribe:
				if _, seen := active[p]; !seen {
					order = append(order, p)
				}
				active[p] = true
			case KindUnsubscribe:
				active[p] = false
			}
		}
	}

	out := make([]string, 0, len(order))
	for _, p := range order {
		if active[p] {
			out = append(out, p)
		}
	}
	return out
}
