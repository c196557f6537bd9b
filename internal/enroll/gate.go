package enroll

import (
	"context"
	"errors"
	"sync"

	"github.com/your-org/facegate/internal/observability"
)

var ErrOperationInFlight = errors.New("operation already in flight for session")

// Gate allows one in-flight operation per session key. Acquire turns a
// second caller away; Wait queues it behind the holder.
type Gate struct {
	mu     sync.Mutex
	active map[string]chan struct{}
}

func NewGate() *Gate {
	return &Gate{active: make(map[string]chan struct{})}
}

// Acquire reserves key and returns the function that releases it. An empty
// key is never gated.
func (g *Gate) Acquire(key string) (func(), error) {
	if key == "" {
		return func() {}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[key]; busy {
		observability.OperationsRejected.Inc()
		return nil, ErrOperationInFlight
	}
	return g.hold(key), nil
}

// Wait blocks until key is free, then reserves it like Acquire.
func (g *Gate) Wait(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return func() {}, nil
	}

	for {
		g.mu.Lock()
		done, busy := g.active[key]
		if !busy {
			release := g.hold(key)
			g.mu.Unlock()
			return release, nil
		}
		g.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// hold must be called with g.mu held.
func (g *Gate) hold(key string) func() {
	done := make(chan struct{})
	g.active[key] = done

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, key)
			g.mu.Unlock()
			close(done)
		})
	}
}

// Busy reports whether key currently holds the gate.
func (g *Gate) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[key]
	return ok
}
