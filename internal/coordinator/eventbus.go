package coordinator

import (
	"sync"
	"sync/atomic"

	"pkt.systems/hyperlockd/internal/metrics"
)

// eventBus assigns monotonic event ids, fans events out to subscribed
// handles' sessions, and tracks per-event delivery counters so an event
// retires once every targeted session has acked it. Every emitter takes
// Coordinator §4.5's default (no-barrier) path: enqueue and return, relying
// on the retransmit-until-acked queue in Session for eventual delivery
// rather than blocking the caller on a future client acknowledgement.
type eventBus struct {
	nextID atomic.Uint64

	mu     sync.Mutex
	events map[uint64]*Event

	metrics *metrics.Collector
}

func newEventBus(m *metrics.Collector) *eventBus {
	return &eventBus{
		events:  make(map[uint64]*Event),
		metrics: m,
	}
}

// sessionLookup resolves a session by id; supplied by Service so eventBus
// stays decoupled from the session registry's internals.
type sessionLookup func(id uint64) (*Session, bool)

// emit assigns a fresh event id, fans it out to every handle in targets
// (deduplicated by the caller), and returns the event. Each delivery
// increments the event's pending counter by one; sessions receive one
// Notification per selected handle.
func (b *eventBus) emit(nodeName string, kind EventKind, payload EventPayload, targets []*Handle, lookup sessionLookup) *Event {
	ev := &Event{
		ID:       b.nextID.Add(1),
		NodeName: nodeName,
		Kind:     kind,
		Payload:  payload,
		pending:  int32(len(targets)),
	}
	b.mu.Lock()
	if len(targets) > 0 {
		b.events[ev.ID] = ev
	}
	b.mu.Unlock()

	for _, h := range targets {
		sess, ok := lookup(h.SessionID)
		if !ok {
			b.acknowledge(ev.ID)
			continue
		}
		sess.enqueue(&Notification{EventID: ev.ID, HandleID: h.ID, Kind: kind, Payload: payload})
		b.metrics.NotificationSent(1)
	}
	return ev
}

// acknowledge decrements the pending counter on the event identified by id.
// When the counter reaches zero the event retires and is dropped from the
// bus.
func (b *eventBus) acknowledge(id uint64) {
	b.mu.Lock()
	ev, ok := b.events[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	remaining := atomic.AddInt32(&ev.pending, -1)
	if remaining > 0 {
		b.mu.Unlock()
		return
	}
	delete(b.events, id)
	b.mu.Unlock()
}
