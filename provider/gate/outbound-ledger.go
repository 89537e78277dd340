package gate

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// OutboundLedger is the FIFO of requests waiting for the write loop plus the
// history of everything that left it. The history is replayed after every
// reconnect and is never compacted.
type OutboundLedger struct {
	mu      sync.Mutex
	pending deque.Deque[*Request]
	history []*Request
	notify  chan struct{}
}

func NewOutboundLedger() *OutboundLedger {
	return &OutboundLedger{notify: make(chan struct{}, 1)}
}

func (l *OutboundLedger) Enqueue(req *Request) {
	l.mu.Lock()
	l.pending.PushBack(req)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Next pops the oldest pending request, blocking until one is available.
// The request is recorded in history before it is returned, so a request
// whose write fails is still replayed on the next connection.
func (l *OutboundLedger) Next(ctx context.Context) (*Request, error) {
	for {
		l.mu.Lock()
		if l.pending.Len() > 0 {
			req := l.pending.PopFront()
			l.history = append(l.history, req)
			l.mu.Unlock()
			return req, nil
		}
		l.mu.Unlock()

		select {
		case <-l.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// History returns the sent requests in send order.
func (l *OutboundLedger) History() []*Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Request, len(l.history))
	copy(out, l.history)
	return out
}

func (l *OutboundLedger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending.Len()
}
