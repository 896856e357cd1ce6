package eventlog

import (
	"sync"

	"github.com/dustin/go-humanize"
)

// DefaultSubscriberBuffer is the default per-subscriber channel capacity,
// mirroring the reference service's per-viewer send buffer sizing.
const DefaultSubscriberBuffer = 256

// Subscription is the lazy live sequence returned by Store.Subscribe. A
// consumer ranges over Events until Done is closed; at that point no more
// events will ever arrive (the store was closed, or this subscriber was
// evicted for falling behind — EvictedTail distinguishes the two).
type Subscription struct {
	// Events delivers buffered-then-live NormalizedEvents in append order.
	Events <-chan NormalizedEvent
	// Done is closed exactly once, after Events is closed, signalling the
	// consumer may stop ranging.
	Done <-chan struct{}

	store *Store
	id    uint64
}

// Unsubscribe detaches this subscription from the store. Safe to call more
// than once and safe to call after the store has already closed it.
func (s *Subscription) Unsubscribe() {
	s.store.unsubscribe(s.id)
}

// Store is the append-only, multi-subscriber LogStore (C1). append is
// wait-free for a single producer (it only needs the short critical section
// to copy into the buffer and fan out); Subscribe replays the current
// buffer snapshot before transitioning a consumer to live delivery.
//
// Modeled on the reference service's session host: a short-held mutex
// around the buffer plus a map of per-subscriber buffered channels, with a
// drop-tail eviction policy for subscribers that fall behind rather than
// ever blocking the writer.
type Store struct {
	mu     sync.Mutex
	events []NormalizedEvent
	subs   map[uint64]*subState
	nextID uint64
	closed bool

	agentType      string
	subscriberBuf  int
}

type subState struct {
	ch     chan NormalizedEvent
	done   chan struct{}
	closed bool
}

// New constructs an empty LogStore for the given agent type. subscriberBuf
// overrides the per-subscriber channel capacity; 0 selects
// DefaultSubscriberBuffer.
func New(agentType string, subscriberBuf int) *Store {
	if subscriberBuf <= 0 {
		subscriberBuf = DefaultSubscriberBuffer
	}
	return &Store{
		subs:          make(map[uint64]*subState),
		agentType:     agentType,
		subscriberBuf: subscriberBuf,
	}
}

// Append adds an event to the buffer and fans it out to every live
// subscriber. A subscriber whose channel is full has its tail dropped: it
// is evicted with a trailing EntrySystem marker describing how much was
// lost, and Append itself never blocks on a slow consumer.
func (s *Store) Append(event NormalizedEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.events = append(s.events, event)
	// Snapshot subscriber ids so we can evict without mutating the map
	// while ranging over it.
	type target struct {
		id    uint64
		state *subState
	}
	targets := make([]target, 0, len(s.subs))
	for id, st := range s.subs {
		targets = append(targets, target{id, st})
	}
	s.mu.Unlock()

	for _, t := range targets {
		// The last slot of every subscriber channel is held back for the
		// eviction marker, so a full buffer means cap-1 queued events.
		if len(t.state.ch) >= cap(t.state.ch)-1 {
			s.evict(t.id, t.state.ch)
			continue
		}
		select {
		case t.state.ch <- event:
		default:
			s.evict(t.id, t.state.ch)
		}
	}
}

// evict drops a subscriber for falling behind, delivering a trailing System
// marker first into the slot Append keeps free for it. The buffer size
// (not counting that slot) is reported in the marker so a host UI can at
// least say how large the subscriber's send buffer was.
func (s *Store) evict(id uint64, ch chan NormalizedEvent) {
	s.mu.Lock()
	st, ok := s.subs[id]
	if !ok || st.closed {
		s.mu.Unlock()
		return
	}
	st.closed = true
	delete(s.subs, id)
	s.mu.Unlock()

	marker := NewSystemEvent(s.agentType,
		"dropped subscriber tail: send buffer ("+humanize.Comma(int64(cap(ch)-1))+" events) exceeded, no further events will be delivered")
	select {
	case st.ch <- marker:
	default:
	}
	close(st.ch)
	close(st.done)
}

// Subscribe returns a Subscription that first replays the current buffer
// snapshot, then transitions to live delivery, per the Subscription's
// subscribe-time suffix-of-global-order guarantee.
func (s *Store) Subscribe() *Subscription {
	s.mu.Lock()
	id := s.nextID
	s.nextID++

	snapshot := make([]NormalizedEvent, len(s.events))
	copy(snapshot, s.events)

	st := &subState{
		ch:   make(chan NormalizedEvent, s.subscriberBuf+len(snapshot)+1),
		done: make(chan struct{}),
	}
	if s.closed {
		// No point registering a subscriber on a closed store; hand back
		// the snapshot and an already-done channel.
		s.mu.Unlock()
		for _, e := range snapshot {
			st.ch <- e
		}
		close(st.ch)
		close(st.done)
		return &Subscription{Events: st.ch, Done: st.done, store: s, id: id}
	}

	s.subs[id] = st
	s.mu.Unlock()

	for _, e := range snapshot {
		st.ch <- e
	}

	return &Subscription{Events: st.ch, Done: st.done, store: s, id: id}
}

func (s *Store) unsubscribe(id uint64) {
	s.mu.Lock()
	st, ok := s.subs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.subs, id)
	if st.closed {
		s.mu.Unlock()
		return
	}
	st.closed = true
	s.mu.Unlock()
	close(st.ch)
	close(st.done)
}

// Close signals "no more writes": every live subscriber's channel is closed
// once any buffered sends drain, satisfying the sole-writer "no more
// writes" handoff the design notes call for. Close is idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[uint64]*subState)
	s.mu.Unlock()

	for _, st := range subs {
		if st.closed {
			continue
		}
		close(st.ch)
		close(st.done)
	}
}

// Snapshot returns a copy of every event appended so far.
func (s *Store) Snapshot() []NormalizedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NormalizedEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of events appended so far.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
