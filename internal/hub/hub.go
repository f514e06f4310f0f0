// Package hub implements the process-wide event broadcast hub. Progress
// events published for a workflow are fanned out to every open subscription
// for that workflow; delivery is best-effort and nothing is buffered for
// observers that are not connected.
package hub

import (
	"sync"
)

// subscriptionBuffer is the per-subscription channel depth. A subscriber
// whose buffer is full misses events rather than blocking the publisher.
const subscriptionBuffer = 16

// Subscription is a live stream handle returned by Subscribe.
type Subscription struct {
	workflowID string
	ch         chan Event
}

// Events returns the channel progress events are delivered on. The channel
// is closed when the subscription is unsubscribed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// WorkflowID returns the workflow this subscription observes.
func (s *Subscription) WorkflowID() string {
	return s.workflowID
}

// Hub is a registry of open subscriptions keyed by workflow identifier.
// All methods are safe for concurrent use.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a new stream for the given workflow and immediately
// queues a synthetic "connected" event on it.
func (h *Hub) Subscribe(workflowID string) *Subscription {
	sub := &Subscription{
		workflowID: workflowID,
		ch:         make(chan Event, subscriptionBuffer),
	}

	// Queue the connected event before the subscription is visible to
	// Publish/Unsubscribe so it is always first on the channel.
	ev := NewEvent(EventConnected, "")
	ev.WorkflowID = workflowID
	sub.ch <- ev

	h.mu.Lock()
	set, ok := h.subs[workflowID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[workflowID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Publish delivers an event to every open subscription for workflowID.
// With no subscribers it is a silent no-op. A subscriber that cannot accept
// the event without blocking misses it; publishing never blocks and a slow
// or broken subscriber never affects delivery to the others.
func (h *Hub) Publish(workflowID string, ev Event) {
	ev.WorkflowID = workflowID

	// Sends happen under the read lock: Unsubscribe closes channels under
	// the write lock, so a send can never race a close.
	h.mu.RLock()
	for sub := range h.subs[workflowID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	h.mu.RUnlock()
}

// Unsubscribe removes the subscription and closes its event channel. When
// the last subscription for a workflow is removed the per-workflow entry is
// deleted so the registry does not grow without bound.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	set, ok := h.subs[sub.workflowID]
	if ok {
		if _, live := set[sub]; live {
			delete(set, sub)
			close(sub.ch)
		}
		if len(set) == 0 {
			delete(h.subs, sub.workflowID)
		}
	}
	h.mu.Unlock()
}

// SubscriberCount reports how many subscriptions are open for a workflow.
func (h *Hub) SubscriberCount(workflowID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[workflowID])
}
