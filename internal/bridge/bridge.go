// Package bridge implements the webhook synchronization bridge: two keyed
// rendezvous protocols that let an inbound webhook handler and an
// independently-scheduled workflow execution exchange values without holding
// references to each other.
//
// Protocol A pairs a suspended HTTP request (Await) with the workflow's
// eventual HTTP response artifact (Deliver). Protocol B lets the workflow
// side discover that a webhook fired (StoreEvent / Poll) with at-most-once
// consumption. Both protocols share the retention sweep that bounds memory
// under abandoned keys.
//
// All state is process-lifetime only; the bridge does not coordinate across
// instances.
package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultRetention is how long an unconsumed stored response or inbound
	// event survives before the sweep removes it.
	DefaultRetention = 5 * time.Minute

	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 60 * time.Second

	// DefaultPollInterval is the re-check cadence of Protocol B's Poll.
	DefaultPollInterval = 500 * time.Millisecond
)

// Response is the HTTP response artifact a workflow delivers for a
// correlation key. Header keys follow net/http's canonical form.
type Response struct {
	StatusCode int         `json:"statusCode"`
	Headers    http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body,omitempty"`
}

// InboundEvent captures a raw webhook invocation stored for Protocol B
// polling. Sensitive headers (cookie, authorization) are stripped by the
// HTTP layer before the event reaches the bridge.
type InboundEvent struct {
	Body      any               `json:"body"`
	Query     map[string]string `json:"query,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Timestamp time.Time         `json:"timestamp"`

	consumed bool
	storedAt time.Time
}

type storedResponse struct {
	resp     *Response
	storedAt time.Time
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithRetention overrides the retention window for stored entries.
func WithRetention(d time.Duration) Option {
	return func(b *Bridge) { b.retention = d }
}

// WithSweepInterval overrides the background sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(b *Bridge) { b.sweepInterval = d }
}

// WithPollInterval overrides Protocol B's poll re-check cadence.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bridge) { b.pollInterval = d }
}

// WithLogger sets the bridge's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// Bridge holds the per-key rendezvous state for both protocols. All methods
// are safe for concurrent use; a single mutex serializes every state
// transition, which is what makes the deliver/await race deterministic.
type Bridge struct {
	mu        sync.Mutex
	waiters   map[string]chan *Response
	responses map[string]*storedResponse
	events    map[string]*InboundEvent

	retention     time.Duration
	sweepInterval time.Duration
	pollInterval  time.Duration
	logger        *slog.Logger
}

// New creates a bridge with default retention and poll settings.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		waiters:       make(map[string]chan *Response),
		responses:     make(map[string]*storedResponse),
		events:        make(map[string]*InboundEvent),
		retention:     DefaultRetention,
		sweepInterval: DefaultSweepInterval,
		pollInterval:  DefaultPollInterval,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Await blocks until a response is delivered for key or the timeout elapses.
// A response delivered before Await is consumed immediately. On timeout or
// context cancellation it returns (nil, false); the absence of a response is
// an expected outcome, not an error.
//
// At most one waiter is live per key. If a second Await registers for a key
// while the first is still waiting, the later registration wins and the
// earlier waiter runs out its timeout unresolved.
func (b *Bridge) Await(ctx context.Context, key string, timeout time.Duration) (*Response, bool) {
	key = NormalizeKey(key)

	b.mu.Lock()
	if stored, ok := b.responses[key]; ok {
		delete(b.responses, key)
		b.mu.Unlock()
		return stored.resp, true
	}
	ch := make(chan *Response, 1)
	b.waiters[key] = ch
	b.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, true
	case <-timer.C:
	case <-ctx.Done():
	}

	// Deregister, then drain: a Deliver that ran between the timeout firing
	// and the lock being acquired has already handed us the response.
	b.mu.Lock()
	if b.waiters[key] == ch {
		delete(b.waiters, key)
	}
	b.mu.Unlock()

	select {
	case resp := <-ch:
		return resp, true
	default:
		return nil, false
	}
}

// Deliver hands a response to the waiter registered for key, or stores it
// for a future Await if none is waiting. It reports whether a waiter was
// resolved directly. Stored responses are consumed exactly once and removed
// by the sweep after the retention window.
func (b *Bridge) Deliver(key string, resp *Response) bool {
	key = NormalizeKey(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.waiters[key]; ok {
		delete(b.waiters, key)
		ch <- resp
		return true
	}
	b.responses[key] = &storedResponse{resp: resp, storedAt: time.Now()}
	return false
}

// StoreEvent records (or overwrites) the inbound event for key and re-arms
// it as unconsumed.
func (b *Bridge) StoreEvent(key string, ev *InboundEvent) {
	key = NormalizeKey(key)

	b.mu.Lock()
	ev.consumed = false
	ev.storedAt = time.Now()
	b.events[key] = ev
	b.mu.Unlock()
}

// Poll repeatedly checks for an unconsumed inbound event under key until
// one is found or the timeout elapses. On success the event is atomically
// marked consumed before it is returned, so two concurrent pollers for the
// same key can never both receive it.
func (b *Bridge) Poll(ctx context.Context, key string, timeout time.Duration) (*InboundEvent, bool) {
	key = NormalizeKey(key)

	if ev, ok := b.tryConsume(key); ok {
		return ev, true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(b.pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if ev, ok := b.tryConsume(key); ok {
				return ev, true
			}
		case <-deadline.C:
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (b *Bridge) tryConsume(key string) (*InboundEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev, ok := b.events[key]
	if !ok || ev.consumed {
		return nil, false
	}
	ev.consumed = true
	return ev, true
}

// Clear drops the stored inbound event for key, if any.
func (b *Bridge) Clear(key string) {
	key = NormalizeKey(key)

	b.mu.Lock()
	delete(b.events, key)
	b.mu.Unlock()
}

// Reset re-arms the stored inbound event for key as unconsumed so it can be
// polled again. It reports whether an event existed.
func (b *Bridge) Reset(key string) bool {
	key = NormalizeKey(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	ev, ok := b.events[key]
	if !ok {
		return false
	}
	ev.consumed = false
	return true
}

// Sweep removes stored responses and inbound events older than the
// retention window, regardless of consumption state, and reports how many
// entries were removed.
func (b *Bridge) Sweep() int {
	cutoff := time.Now().Add(-b.retention)

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, stored := range b.responses {
		if stored.storedAt.Before(cutoff) {
			delete(b.responses, key)
			removed++
		}
	}
	for key, ev := range b.events {
		if ev.storedAt.Before(cutoff) {
			delete(b.events, key)
			removed++
		}
	}
	return removed
}

// Run executes the background sweep until ctx is cancelled. The runtime
// starts this once at process start.
func (b *Bridge) Run(ctx context.Context) {
	tick := time.NewTicker(b.sweepInterval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if removed := b.Sweep(); removed > 0 {
				b.logger.Debug("bridge sweep removed stale entries",
					slog.Int("removed", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
