package state

import (
	"sync"

	"ctgmonitor/internal/domain"
)

// Summary is the type-erased view of one stream used by status surfaces.
type Summary interface {
	Kind() domain.StreamKind
	Status() domain.ConnectionStatus
	SetStatus(status domain.ConnectionStatus) domain.ConnectionStatus
	Len() int
	Capacity() int
	Clear()
}

// Stream is a bounded FIFO buffer with last-value and status cells.
// Params: ring storage guarded by its own mutex.
// Returns: O(1) append with oldest-first eviction once full.
type Stream[T any] struct {
	kind   domain.StreamKind
	notify func(Change)

	mu      sync.RWMutex
	items   []T
	head    int
	size    int
	last    T
	hasLast bool
	status  domain.ConnectionStatus
}

func newStream[T any](kind domain.StreamKind, capacity int, notify func(Change)) *Stream[T] {
	return &Stream[T]{
		kind:   kind,
		notify: notify,
		items:  make([]T, capacity),
		status: domain.StatusDisconnected,
	}
}

// Kind returns stream identity.
func (s *Stream[T]) Kind() domain.StreamKind {
	return s.kind
}

// Capacity returns maximum retained item count.
func (s *Stream[T]) Capacity() int {
	return len(s.items)
}

// Append stores item as newest element and last value.
// Params: decoded item.
// Returns: none; evicts the oldest element when the buffer is full.
func (s *Stream[T]) Append(item T) {
	s.mu.Lock()
	capacity := len(s.items)
	if s.size < capacity {
		s.items[(s.head+s.size)%capacity] = item
		s.size++
	} else {
		s.items[s.head] = item
		s.head = (s.head + 1) % capacity
	}
	s.last = item
	s.hasLast = true
	s.mu.Unlock()

	s.emit(ChangeAppend)
}

// Samples returns buffered items oldest first.
// Params: none.
// Returns: fresh copy safe for caller mutation.
func (s *Stream[T]) Samples() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, s.size)
	capacity := len(s.items)
	for i := 0; i < s.size; i++ {
		out[i] = s.items[(s.head+i)%capacity]
	}
	return out
}

// Last returns most recently appended item.
// Params: none.
// Returns: item and true, or zero value and false when empty.
func (s *Stream[T]) Last() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

// Len returns buffered item count.
func (s *Stream[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Status returns current connection status.
func (s *Stream[T]) Status() domain.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus records connection status and notifies observers.
// Params: new status; repeated values are still reported so consumers can decide on suppression.
// Returns: previous status.
func (s *Stream[T]) SetStatus(status domain.ConnectionStatus) domain.ConnectionStatus {
	s.mu.Lock()
	previous := s.status
	s.status = status
	s.mu.Unlock()

	s.emit(ChangeStatus)
	return previous
}

// Clear drops all buffered items and the last value; status is kept.
func (s *Stream[T]) Clear() {
	s.mu.Lock()
	var zero T
	for i := range s.items {
		s.items[i] = zero
	}
	s.head = 0
	s.size = 0
	s.last = zero
	s.hasLast = false
	s.mu.Unlock()

	s.emit(ChangeClear)
}

func (s *Stream[T]) emit(kind ChangeKind) {
	if s.notify != nil {
		s.notify(Change{Stream: s.kind, Kind: kind})
	}
}
