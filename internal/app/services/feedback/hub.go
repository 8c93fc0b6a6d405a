package feedback

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Hub fans rating events out to subscribers of one tenant. Slow subscribers
// lose events instead of stalling the rating path.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{}
	buffer  int
	dropped atomic.Int64
}

type subscription struct {
	ch chan Event
}

// NewHub returns an empty hub. buffer <= 0 selects DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[string]map[*subscription]struct{}), buffer: buffer}
}

func tenantKey(facilityID, messID string) string {
	return facilityID + "/" + messID
}

// Subscribe registers interest in one tenant's events. The returned cancel
// function closes the channel and is safe to call more than once.
func (h *Hub) Subscribe(facilityID, messID string) (<-chan Event, func()) {
	key := tenantKey(facilityID, messID)
	sub := &subscription{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*subscription]struct{})
	}
	h.subs[key][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[key], sub)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Notify implements Notifier.
func (h *Hub) Notify(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[tenantKey(e.FacilityID, e.MessID)] {
		select {
		case sub.ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers counts live subscriptions across all tenants.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// Dropped reports how many events were discarded for full queues.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
