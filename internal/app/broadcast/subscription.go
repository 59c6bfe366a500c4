package broadcast

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

var errBufferFull = errors.New("subscriber buffer full")

// Subscription is one dashboard's ordered event feed.
type Subscription struct {
	id          string
	meta        SubscriberMeta
	connectedAt time.Time
	buffer      int

	mu      sync.Mutex
	events  chan interfaces.OrderEvent
	started bool
	closed  bool
	backlog []interfaces.OrderEvent

	delivered atomic.Int64
	dropped   atomic.Int64
}

func newSubscription(id string, meta SubscriberMeta, buffer int) *Subscription {
	return &Subscription{
		id:          id,
		meta:        meta,
		connectedAt: time.Now().UTC(),
		buffer:      buffer,
	}
}

func (s *Subscription) ID() string { return s.id }

// Events is closed when the subscription is removed from the hub.
func (s *Subscription) Events() <-chan interfaces.OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// start sizes the channel to hold every initial event, then flushes live
// events that arrived during initialisation. Returns how many of those were
// dropped.
func (s *Subscription) start(initial []interfaces.OrderEvent) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.dropped.Load()
	s.events = make(chan interfaces.OrderEvent, len(initial)+s.buffer)
	if s.closed {
		close(s.events)
		return 0
	}
	for _, ev := range initial {
		s.send(ev)
	}
	for _, ev := range s.backlog {
		s.send(ev)
	}
	s.backlog = nil
	s.started = true
	return s.dropped.Load() - before
}

func (s *Subscription) push(ev interfaces.OrderEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if !s.started {
		if len(s.backlog) >= s.buffer {
			s.dropped.Add(1)
			return false
		}
		s.backlog = append(s.backlog, ev)
		return true
	}
	return s.send(ev)
}

// send must be called with mu held.
func (s *Subscription) send(ev interfaces.OrderEvent) bool {
	select {
	case s.events <- ev:
		s.delivered.Add(1)
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.backlog = nil
	if s.events != nil {
		close(s.events)
	}
}

func (s *Subscription) info() interfaces.SubscriberInfo {
	return interfaces.SubscriberInfo{
		ID:          s.id,
		RemoteAddr:  s.meta.RemoteAddr,
		UserAgent:   s.meta.UserAgent,
		ConnectedAt: s.connectedAt,
		Delivered:   s.delivered.Load(),
		Dropped:     s.dropped.Load(),
	}
}
