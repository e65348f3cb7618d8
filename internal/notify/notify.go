// Package notify implements the reload broadcast: a payload-free signal that
// wakes every connected viewer when any tracked file changes. Subscribers
// come and go with viewer connections; the publisher never blocks on them.
package notify

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultInterval is the minimum spacing between broadcast signals. Bursts
// inside the window coalesce into the leading signal plus one trailing
// signal, so a storm of writes still ends with viewers seeing the final
// state.
const defaultInterval = 100 * time.Millisecond

// Subscriber is one listener handle. Its channel carries at most one pending
// signal; a subscriber that has not drained the previous signal simply keeps
// the one it has.
type Subscriber struct {
	n  *Notifier
	ch chan struct{}
}

// C returns the channel a reload signal arrives on.
func (s *Subscriber) C() <-chan struct{} { return s.ch }

// Close detaches the subscriber. Safe to call once; the channel is closed so
// pending receives unblock.
func (s *Subscriber) Close() {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if _, ok := s.n.subs[s]; !ok {
		return
	}
	delete(s.n.subs, s)
	close(s.ch)
}

// Notifier fans a reload signal out to all current subscribers. Publishing
// with zero subscribers is a no-op. Rapid publishes coalesce: at least one
// signal is always delivered after the last publish of a burst.
type Notifier struct {
	mu      sync.Mutex
	subs    map[*Subscriber]struct{}
	limiter *rate.Limiter
	pending bool
}

// New creates a notifier with the default coalescing window.
func New() *Notifier {
	return NewWithInterval(defaultInterval)
}

// NewWithInterval creates a notifier whose broadcasts are spaced at least
// interval apart (bursts coalesce). A zero interval disables coalescing.
func NewWithInterval(interval time.Duration) *Notifier {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Notifier{
		subs:    make(map[*Subscriber]struct{}),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Subscribe registers a new listener. The caller must Close it when the
// viewer disconnects.
func (n *Notifier) Subscribe() *Subscriber {
	s := &Subscriber{n: n, ch: make(chan struct{}, 1)}
	n.mu.Lock()
	n.subs[s] = struct{}{}
	n.mu.Unlock()
	return s
}

// Subscribers reports the current listener count.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Publish sends a reload signal to every currently subscribed listener.
// Within the coalescing window it schedules exactly one trailing broadcast
// instead, so callers may invoke it on every event without flooding viewers.
// It never blocks on slow subscribers.
func (n *Notifier) Publish() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.limiter.Allow() {
		n.broadcastLocked()
		return
	}
	if n.pending {
		return
	}
	n.pending = true
	delay := n.limiter.Reserve().Delay()
	time.AfterFunc(delay, func() {
		n.mu.Lock()
		n.pending = false
		n.broadcastLocked()
		n.mu.Unlock()
	})
}

// broadcastLocked delivers to every subscriber without blocking. A full
// channel means the subscriber already has an undelivered signal, which is
// equivalent.
func (n *Notifier) broadcastLocked() {
	for s := range n.subs {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}
