package notify

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

// Hub fans notifications out to in-process subscribers such as the RPC
// event stream. Slow subscribers miss notifications rather than block the
// pipeline.
type Hub struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers map[uint64]*subscription
}

type subscription struct {
	ch     chan Notification
	events map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: map[uint64]*subscription{}}
}

// Subscribe returns a channel receiving the named events, or every event
// when none are named. The returned func must be called to release it.
func (h *Hub) Subscribe(events ...string) (<-chan Notification, func()) {
	sub := &subscription{ch: make(chan Notification, subscriberBuffer)}
	if len(events) > 0 {
		sub.events = make(map[string]struct{}, len(events))
		for _, e := range events {
			sub.events[e] = struct{}{}
		}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subscribers[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) Deliver(_ context.Context, n Notification) {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		if s.events != nil {
			if _, ok := s.events[n.Event]; !ok {
				continue
			}
		}
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- n:
		default:
		}
	}
}

// Fanout hands every notification to each of its deliverers in order.
type Fanout []Deliverer

func (f Fanout) Deliver(ctx context.Context, n Notification) {
	for _, d := range f {
		d.Deliver(ctx, n)
	}
}
