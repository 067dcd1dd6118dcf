package session

import (
	"context"
	"sync"
)

// gate admits one turn per session inside this process. Slots are created on demand
// and dropped when the last waiter leaves, so idle sessions cost nothing.
type gate struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	token   chan struct{} // buffered(1): holding the token means owning the session
	waiters int
}

func newGate() *gate {
	return &gate{slots: make(map[string]*slot)}
}

// enter blocks until the session is free or ctx ends. On success the returned
// function must be called exactly once to leave.
func (g *gate) enter(ctx context.Context, sessionID string) (func(), error) {
	g.mu.Lock()
	s, ok := g.slots[sessionID]
	if !ok {
		s = &slot{token: make(chan struct{}, 1)}
		g.slots[sessionID] = s
	}
	s.waiters++
	g.mu.Unlock()

	leave := func() {
		<-s.token
		g.leave(sessionID, s)
	}
	select {
	case s.token <- struct{}{}:
		return leave, nil
	default:
	}
	select {
	case s.token <- struct{}{}:
		return leave, nil
	case <-ctx.Done():
		g.leave(sessionID, s)
		return nil, ctx.Err()
	}
}

func (g *gate) leave(sessionID string, s *slot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s.waiters--
	if s.waiters == 0 {
		delete(g.slots, sessionID)
	}
}

// size reports how many sessions currently hold or wait for a slot.
func (g *gate) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slots)
}
