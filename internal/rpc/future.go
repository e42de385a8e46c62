package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Future is a pending reply of type T.  Await may be called more than once;
// every call after the first returns the same outcome.
type Future[T any] struct {
	gw       *Gateway
	id       string
	queue    string
	reply    chan []byte
	deadline time.Time

	once sync.Once
	val  T
	err  error
}

// CorrelationID identifies the request on the wire.
func (f *Future[T]) CorrelationID() string { return f.id }

// Await blocks until the reply arrives, the gateway timeout passes
// (ErrTimeout) or ctx is done (ctx.Err()).  The pending slot is released on
// every path.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	f.once.Do(func() {
		f.val, f.err = f.wait(ctx)
	})
	return f.val, f.err
}

func (f *Future[T]) wait(ctx context.Context) (T, error) {
	defer f.gw.release(f.id)

	var zero T
	timer := time.NewTimer(time.Until(f.deadline))
	defer timer.Stop()

	select {
	case body := <-f.reply:
		var out T
		if err := json.Unmarshal(body, &out); err != nil {
			return zero, fmt.Errorf("rpc: decode %s reply: %w", f.queue, err)
		}
		return out, nil
	case <-timer.C:
		f.gw.log.Warn(ctx, "rpc: reply timed out", "queue", f.queue, "correlation_id", f.id)
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
