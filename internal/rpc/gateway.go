// Package rpc is the request/response gateway to downstream services.
// Requests go out with a correlation id; replies are matched back to the
// waiting Future by that id.  Delivery is at most once: there are no
// retries and no idempotency key, so a timed out call has an unknown
// effect on the remote side.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/edusmart-auth/internal/logging"
)

var (
	// ErrTimeout is returned by Await when no reply arrived in time.
	ErrTimeout = errors.New("rpc: timed out waiting for reply")
	// ErrNotConnected is returned by a transport with no live channel.
	ErrNotConnected = errors.New("rpc: transport not connected")
)

// Request is one outbound message.
type Request struct {
	Queue         string
	CorrelationID string
	Body          []byte
}

// Transport moves requests to the broker.  Replies come back through
// Gateway.Resolve.
type Transport interface {
	Publish(ctx context.Context, req Request) error
}

// Gateway owns the table of calls waiting for a reply.
type Gateway struct {
	transport Transport
	timeout   time.Duration
	log       logging.Logger

	mu      sync.Mutex
	pending map[string]chan []byte
}

func NewGateway(t Transport, timeout time.Duration, log logging.Logger) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		transport: t,
		timeout:   timeout,
		log:       log,
		pending:   make(map[string]chan []byte),
	}
}

// Call publishes req on queue and returns a Future for the reply.  The
// timeout clock starts now, not at Await.
func Call[Req, Resp any](ctx context.Context, g *Gateway, queue string, req Req) (*Future[Resp], error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal %s request: %w", queue, err)
	}
	id := uuid.NewString()
	reply := g.register(id)

	if err := g.transport.Publish(ctx, Request{Queue: queue, CorrelationID: id, Body: body}); err != nil {
		g.release(id)
		return nil, fmt.Errorf("rpc: publish %s: %w", queue, err)
	}
	return &Future[Resp]{
		gw:       g,
		id:       id,
		queue:    queue,
		reply:    reply,
		deadline: time.Now().Add(g.timeout),
	}, nil
}

// Resolve hands a reply body to the call waiting on correlationID.  It
// reports false when nobody is waiting, which is the case for replies that
// arrive after a timeout or cancellation.
func (g *Gateway) Resolve(correlationID string, body []byte) bool {
	g.mu.Lock()
	ch, ok := g.pending[correlationID]
	if ok {
		delete(g.pending, correlationID)
	}
	g.mu.Unlock()

	if !ok {
		g.log.Warn(context.Background(), "rpc: dropping reply with no waiter", "correlation_id", correlationID)
		return false
	}
	ch <- body
	return true
}

// Pending is the number of calls still waiting for a reply.
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func (g *Gateway) register(id string) chan []byte {
	ch := make(chan []byte, 1)
	g.mu.Lock()
	g.pending[id] = ch
	g.mu.Unlock()
	return ch
}

func (g *Gateway) release(id string) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}
