package metric

import (
	"sync"

	"github.com/exclusivedisjunction/regisd/internal/ring"
)

// DefaultRingCapacity is the Bounded Ring's default capacity (spec.md §3).
const DefaultRingCapacity = 50

// Store bundles the Bounded Ring with its subscriber fan-out: the
// Metric Sampler Task is the sole writer (Push), and both the Broadcast
// Task and client workers serving Status/Metrics requests are readers.
//
// The fan-out list is grounded on the teacher's SSE subscriber registry
// (internal/rpc/server_core.go's subscribersMu/subscribers/nextSubID),
// generalized from HTTP response writers to plain Go channels since
// regisd's broadcast transport is raw TCP, not HTTP/SSE.
type Store struct {
	ring *ring.Ring[Sample]

	subMu     sync.Mutex
	subs      map[uint64]chan Sample
	nextSubID uint64
}

// NewStore constructs a Store with the given ring capacity.
func NewStore(capacity int) *Store {
	return &Store{
		ring: ring.New[Sample](capacity),
		subs: make(map[uint64]chan Sample),
	}
}

// Push inserts s into the ring and notifies every current subscriber.
// Called only by the Metric Sampler Task (spec.md §4.8 step 2-3).
func (s *Store) Push(sample Sample) {
	s.ring.Insert(sample)

	s.subMu.Lock()
	subs := make([]chan Sample, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.subMu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- sample:
		default:
			// Backpressure: a subscriber that isn't draining its channel
			// misses this sample rather than stalling the sampler
			// (spec.md §4.9's best-effort pub/sub).
		}
	}
}

// Subscribe registers a new subscriber channel and returns it along with
// an unsubscribe function. The channel is buffered so a momentary stall
// in the consumer doesn't immediately drop samples.
func (s *Store) Subscribe(buffer int) (ch <-chan Sample, unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	c := make(chan Sample, buffer)
	s.subs[id] = c
	s.subMu.Unlock()

	return c, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Status returns the most recent sample, or false if none have been
// produced yet (spec.md §4.10 Status request).
func (s *Store) Status() (Sample, bool) {
	return s.ring.Back()
}

// Window returns the most recent n samples, capped at ring capacity
// (spec.md §4.10 Metrics(n) request).
func (s *Store) Window(n int) []Sample {
	if n > s.ring.Capacity() {
		n = s.ring.Capacity()
	}
	return s.ring.Last(n)
}

// Capacity returns the underlying ring's fixed capacity.
func (s *Store) Capacity() int {
	return s.ring.Capacity()
}
