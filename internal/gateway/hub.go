package gateway

import "sync"

// subscriberBuffer is the per-subscriber channel capacity. A consumer that
// falls this far behind starts losing events; the store's merge logic is
// idempotent so a dropped duplicate is harmless, and a full resync is
// always one Initialize away.
const subscriberBuffer = 64

// Hub fans typed change events out to per-user subscribers. It backs the
// in-process adapters and the AMQP bridge; network adapters publish into a
// Hub after every successful mutation.
type Hub[E any] struct {
	mu      sync.Mutex
	subs    map[int]*hubSub[E]
	feeds   map[int]*hubSub[E]
	nextID  int
	dropped int
}

type hubSub[E any] struct {
	userID string
	ch     chan E
	closed bool
}

func NewHub[E any]() *Hub[E] {
	return &Hub[E]{
		subs:  make(map[int]*hubSub[E]),
		feeds: make(map[int]*hubSub[E]),
	}
}

// Subscribe registers a subscriber for events belonging to userID. The
// cancel func removes the subscription and closes the channel; calling it
// more than once is safe.
func (h *Hub[E]) Subscribe(userID string) (<-chan E, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := &hubSub[E]{userID: userID, ch: make(chan E, subscriberBuffer)}
	h.subs[id] = sub

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if s, ok := h.subs[id]; ok && !s.closed {
			s.closed = true
			close(s.ch)
			delete(h.subs, id)
		}
	}
	return sub.ch, cancel
}

// Feed registers a subscriber that receives locally published events for
// every user. Bridges use it to forward changes to other instances;
// events delivered via PublishRemote never reach the feed.
func (h *Hub[E]) Feed() (<-chan E, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := &hubSub[E]{ch: make(chan E, subscriberBuffer)}
	h.feeds[id] = sub

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if s, ok := h.feeds[id]; ok && !s.closed {
			s.closed = true
			close(s.ch)
			delete(h.feeds, id)
		}
	}
	return sub.ch, cancel
}

// Publish delivers the event to every subscriber of userID and to the
// feeds. Sends never block; a subscriber with a full buffer misses the
// event.
func (h *Hub[E]) Publish(userID string, ev E) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.deliverLocked(userID, ev)
	for _, s := range h.feeds {
		if s.closed {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped++
		}
	}
}

// PublishRemote delivers an event that originated on another instance.
// It reaches per-user subscribers but not the feeds, so a bridge never
// echoes it back to the broker.
func (h *Hub[E]) PublishRemote(userID string, ev E) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverLocked(userID, ev)
}

func (h *Hub[E]) deliverLocked(userID string, ev E) {
	for _, s := range h.subs {
		if s.userID != userID || s.closed {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped++
		}
	}
}

// SubscriberCount reports active subscriptions, used by tests and the
// readiness endpoint.
func (h *Hub[E]) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped reports how many events were discarded because a subscriber
// buffer was full.
func (h *Hub[E]) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
