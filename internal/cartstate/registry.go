package cartstate

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const DefaultIdleTimeout = 30 * time.Minute

var ErrRegistryClosed = errors.New("cart registry closed")

// Factory builds an unstarted reconciler for a session
type Factory func(sessionID string) *Reconciler

// Registry keeps one started reconciler per active session
type Registry struct {
	factory Factory
	idle    time.Duration
	now     func() time.Time

	mu          sync.Mutex
	reconcilers map[string]*Reconciler
	starting    map[string]*startCall
	closed      bool
}

// startCall is a reconciler start in flight; later callers for the same
// session wait on done instead of starting their own.
type startCall struct {
	done chan struct{}
	r    *Reconciler
	err  error
}

func NewRegistry(factory Factory, idle time.Duration) *Registry {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Registry{
		factory:     factory,
		idle:        idle,
		now:         time.Now,
		reconcilers: make(map[string]*Reconciler),
		starting:    make(map[string]*startCall),
	}
}

// Get returns the session's reconciler, starting one on first use. The
// registry lock is not held while a reconciler starts, so a slow
// subscription only delays callers for that one session.
func (g *Registry) Get(ctx context.Context, sessionID string) (*Reconciler, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if r, ok := g.reconcilers[sessionID]; ok {
		g.mu.Unlock()
		return r, nil
	}
	if call, ok := g.starting[sessionID]; ok {
		g.mu.Unlock()
		select {
		case <-call.done:
			return call.r, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &startCall{done: make(chan struct{})}
	g.starting[sessionID] = call
	g.mu.Unlock()

	r := g.factory(sessionID)
	err := r.Start(ctx)

	g.mu.Lock()
	delete(g.starting, sessionID)
	switch {
	case err != nil:
		call.err = err
	case g.closed:
		call.err = ErrRegistryClosed
	default:
		g.reconcilers[sessionID] = r
		call.r = r
	}
	g.mu.Unlock()

	if err == nil && call.err != nil {
		r.Close()
	}
	close(call.done)
	return call.r, call.err
}

// Evict closes reconcilers that have been idle longer than the timeout and
// have no observers. It returns how many were closed.
func (g *Registry) Evict() int {
	cutoff := g.now().Add(-g.idle)

	g.mu.Lock()
	var idle []*Reconciler
	for id, r := range g.reconcilers {
		if r.observerCount() == 0 && r.idleSince().Before(cutoff) {
			idle = append(idle, r)
			delete(g.reconcilers, id)
		}
	}
	g.mu.Unlock()

	for _, r := range idle {
		r.Close()
	}
	return len(idle)
}

// Run evicts idle reconcilers every interval until ctx is done
func (g *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Evict(); n > 0 {
				log.Printf("[Cart] Evicted %d idle session(s)", n)
			}
		}
	}
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reconcilers)
}

// Close stops every reconciler. Starts still in flight are closed as they
// finish and later calls to Get fail with ErrRegistryClosed.
func (g *Registry) Close() {
	g.mu.Lock()
	g.closed = true
	all := g.reconcilers
	g.reconcilers = make(map[string]*Reconciler)
	g.mu.Unlock()

	for _, r := range all {
		r.Close()
	}
}
