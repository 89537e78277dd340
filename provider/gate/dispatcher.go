package gate

import (
	"runtime/debug"
	"sync"

	"github.com/gammazero/deque"
	"github.com/spooky-finn/gatews-bridge/domain"
)

type HandlerFunc func(c *StreamClient, resp *Response)

// Handler is a HandlerFunc plus the way it is run. Inline handlers of one
// channel run one at a time in arrival order; scheduled handlers are handed
// to the executor one invocation each.
type Handler struct {
	fn     HandlerFunc
	inline bool
}

func Inline(fn HandlerFunc) Handler {
	return Handler{fn: fn, inline: true}
}

func Scheduled(fn HandlerFunc) Handler {
	return Handler{fn: fn}
}

func (h Handler) IsInline() bool {
	return h.inline
}

type route struct {
	handler Handler
	lane    *lane
}

// Dispatcher routes decoded responses by channel. Dispatch never blocks on
// a handler.
type Dispatcher struct {
	mu       sync.RWMutex
	routes   map[string]*route
	fallback *route
	executor domain.Executor

	// lanes outlive their routes so a replaced inline handler keeps the
	// arrival order of its channel.
	lanes        map[string]*lane
	fallbackLane *lane
}

func NewDispatcher(executor domain.Executor) *Dispatcher {
	if executor == nil {
		executor = domain.GoroutineExecutor{}
	}
	return &Dispatcher{
		routes:   make(map[string]*route),
		executor: executor,
		lanes:    make(map[string]*lane),
	}
}

// Register sets the handler of channel, replacing any previous one.
func (d *Dispatcher) Register(channel string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := &route{handler: h}
	if h.inline {
		l, ok := d.lanes[channel]
		if !ok {
			l = &lane{executor: d.executor}
			d.lanes[channel] = l
		}
		r.lane = l
	}
	d.routes[channel] = r
}

func (d *Dispatcher) Unregister(channel string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.routes, channel)
}

// SetDefault sets the handler for channels without one. A nil fn removes it.
func (d *Dispatcher) SetDefault(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h.fn == nil {
		d.fallback = nil
		return
	}
	r := &route{handler: h}
	if h.inline {
		if d.fallbackLane == nil {
			d.fallbackLane = &lane{executor: d.executor}
		}
		r.lane = d.fallbackLane
	}
	d.fallback = r
}

func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.routes))
	for ch := range d.routes {
		out = append(out, ch)
	}
	return out
}

// Dispatch hands resp to exactly one handler and reports whether one was found.
func (d *Dispatcher) Dispatch(c *StreamClient, resp *Response) bool {
	d.mu.RLock()
	r, ok := d.routes[resp.Channel]
	if !ok {
		r = d.fallback
	}
	d.mu.RUnlock()

	if r == nil {
		return false
	}

	fn := r.handler.fn
	task := func() { invoke(fn, c, resp) }
	if r.lane != nil {
		r.lane.submit(task)
	} else {
		d.executor.Go(task)
	}
	return true
}

func invoke(fn HandlerFunc, c *StreamClient, resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(map[string]interface{}{
				"channel": resp.Channel,
				"panic":   r,
				"stack":   string(debug.Stack()),
			}).Error("handler panicked")
		}
	}()
	fn(c, resp)
}

// lane runs its tasks serially. At most one drain is scheduled at a time.
type lane struct {
	mu       sync.Mutex
	pending  deque.Deque[func()]
	running  bool
	executor domain.Executor
}

func (l *lane) submit(task func()) {
	l.mu.Lock()
	l.pending.PushBack(task)
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	l.executor.Go(l.drain)
}

func (l *lane) drain() {
	for {
		l.mu.Lock()
		if l.pending.Len() == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		task := l.pending.PopFront()
		l.mu.Unlock()

		task()
	}
}
