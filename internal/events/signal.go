package events

import "sync"

// Signal is an observable value. Subscribers receive the current value
// immediately (when one has been published) and every later update.
// Slow subscribers drop updates rather than block the publisher, the
// same policy the sync event channel uses.
type Signal[T any] struct {
	mu       sync.Mutex
	value    T
	hasValue bool
	subs     map[int]chan T
	next     int
}

// NewSignal creates an empty signal.
func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{subs: make(map[int]chan T)}
}

// Set publishes a new value to all subscribers.
func (s *Signal[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = v
	s.hasValue = true

	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			// Subscriber not keeping up, drop the update.
		}
	}
}

// Get returns the current value and whether one has been published.
func (s *Signal[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.hasValue
}

// Subscribe registers a subscriber. The returned subscription's channel
// yields the current value first (if any), then subsequent updates.
func (s *Signal[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan T, buffer)
	id := s.next
	s.next++
	s.subs[id] = ch

	if s.hasValue {
		ch <- s.value
	}

	return &Subscription[T]{
		C: ch,
		cancel: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		},
	}
}

// Subscription is a cancellable stream of signal values.
type Subscription[T any] struct {
	C      <-chan T
	cancel func()
	once   sync.Once
}

// Cancel stops delivery and closes the channel. Safe to call twice.
func (s *Subscription[T]) Cancel() {
	s.once.Do(s.cancel)
}
