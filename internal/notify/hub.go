package notify

import (
	"context"
	"sync"
	"time"
)

// Hub fans notifications out to in-process waiters. Each key holds one
// broadcast channel that is closed and replaced on Notify, so every
// subscriber blocked on that key wakes at once.
//
// Notifications are advisory. A waiter that wakes (or times out) must
// re-check the store; the hub makes no delivery guarantee of its own.
type Hub struct {
	mu      sync.Mutex
	waiters map[string]chan struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{waiters: make(map[string]chan struct{})}
}

// ArrivalKey is the hub key for messages becoming claimable on a queue.
func ArrivalKey(queue string) string { return "arrival/" + queue }

// CompletionKey is the hub key for acknowledged messages on a queue.
func CompletionKey(queue string) string { return "completion/" + queue }

func (h *Hub) channel(key string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.waiters[key]
	if !ok {
		ch = make(chan struct{})
		h.waiters[key] = ch
	}
	return ch
}

// Subscribe returns a channel that is closed the next time key is notified.
// Callers re-subscribe after each wake.
func (h *Hub) Subscribe(key string) <-chan struct{} {
	return h.channel(key)
}

// Notify wakes every subscriber currently waiting on key.
func (h *Hub) Notify(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.waiters[key]; ok {
		close(ch)
		delete(h.waiters, key)
	}
}

// Wait blocks until key is notified, the timeout elapses, or ctx is
// cancelled. It reports true when woken by a notification. A false return
// with a nil ctx.Err() means the timeout elapsed; callers poll the store
// either way.
func (h *Hub) Wait(ctx context.Context, key string, timeout time.Duration) bool {
	ch := h.channel(key)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
