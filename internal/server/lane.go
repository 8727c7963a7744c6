package server

import (
	"context"
	"sync"
)

// lanes serializes exchanges per session so concurrent messages on one
// session see each other's history. Idle lanes are dropped.
type lanes struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	sem     chan struct{}
	waiters int
}

func newLanes() *lanes {
	return &lanes{lanes: make(map[string]*lane)}
}

// acquire blocks until key's lane is free or ctx is done.
func (l *lanes) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{sem: make(chan struct{}, 1)}
		l.lanes[key] = ln
	}
	ln.waiters++
	l.mu.Unlock()

	select {
	case ln.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, ln, false)
		return nil, ctx.Err()
	}
	return func() { l.release(key, ln, true) }, nil
}

func (l *lanes) release(key string, ln *lane, held bool) {
	if held {
		<-ln.sem
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ln.waiters--
	if ln.waiters == 0 {
		delete(l.lanes, key)
	}
}

// len returns the number of sessions with in-flight or queued exchanges.
func (l *lanes) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
