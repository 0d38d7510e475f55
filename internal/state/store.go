package state

import (
	"sync"

	"ctgmonitor/internal/domain"
)

// DefaultMaxDataPoints bounds each stream buffer when no size is configured.
const DefaultMaxDataPoints = 1000

// ChangeKind classifies one store mutation.
type ChangeKind string

const (
	ChangeAppend ChangeKind = "append"
	ChangeStatus ChangeKind = "status"
	ChangeClear  ChangeKind = "clear"
)

// Change describes one committed mutation of a stream.
// Params: affected stream and mutation class.
// Returns: payload delivered to subscribers after the stream lock is released.
type Change struct {
	Stream domain.StreamKind
	Kind   ChangeKind
}

// Observer receives store changes.
type Observer func(Change)

// Store owns the three stream buffers and their connection statuses.
// Params: per-stream ring buffers and observer registry.
// Returns: single mutator of ingested domain state.
type Store struct {
	AI           *Stream[domain.AIMessage]
	HeartRate    *Stream[domain.Sample]
	Contractions *Stream[domain.Sample]

	observersMu sync.RWMutex
	observers   []registeredObserver
	nextID      uint64
}

type registeredObserver struct {
	id uint64
	fn Observer
}

// NewStore creates empty buffers with disconnected statuses.
// Params: per-stream capacity; values <=0 use DefaultMaxDataPoints.
// Returns: initialized store.
func NewStore(maxDataPoints int) *Store {
	if maxDataPoints <= 0 {
		maxDataPoints = DefaultMaxDataPoints
	}
	store := &Store{}
	store.AI = newStream[domain.AIMessage](domain.StreamAI, maxDataPoints, store.publish)
	store.HeartRate = newStream[domain.Sample](domain.StreamHeartRate, maxDataPoints, store.publish)
	store.Contractions = newStream[domain.Sample](domain.StreamContractions, maxDataPoints, store.publish)
	return store
}

// Samples returns the sample stream for heart-rate or contractions.
// Params: stream kind.
// Returns: stream handle, or nil for the AI stream and unknown kinds.
func (s *Store) Samples(kind domain.StreamKind) *Stream[domain.Sample] {
	switch kind {
	case domain.StreamHeartRate:
		return s.HeartRate
	case domain.StreamContractions:
		return s.Contractions
	default:
		return nil
	}
}

// Info returns type-erased summary access to any stream.
// Params: stream kind.
// Returns: summary view, or nil for unknown kinds.
func (s *Store) Info(kind domain.StreamKind) Summary {
	switch kind {
	case domain.StreamAI:
		return s.AI
	case domain.StreamHeartRate:
		return s.HeartRate
	case domain.StreamContractions:
		return s.Contractions
	default:
		return nil
	}
}

// SetStatus records a connection status for one stream.
// Params: stream kind and new status.
// Returns: none; unknown kinds are ignored.
func (s *Store) SetStatus(kind domain.StreamKind, status domain.ConnectionStatus) {
	if info := s.Info(kind); info != nil {
		info.SetStatus(status)
	}
}

// ClearAll empties every buffer and last-sample cell.
func (s *Store) ClearAll() {
	s.AI.Clear()
	s.HeartRate.Clear()
	s.Contractions.Clear()
}

// ResetStatuses sets every stream status back to disconnected.
func (s *Store) ResetStatuses() {
	for _, kind := range domain.StreamKinds() {
		s.SetStatus(kind, domain.StatusDisconnected)
	}
}

// Subscribe registers observer for all future changes.
// Params: callback invoked synchronously on the mutating goroutine, in registration order.
// Returns: cancel function; safe to call more than once.
func (s *Store) Subscribe(fn Observer) func() {
	if fn == nil {
		return func() {}
	}
	s.observersMu.Lock()
	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, registeredObserver{id: id, fn: fn})
	s.observersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.observersMu.Lock()
			defer s.observersMu.Unlock()
			for i, registered := range s.observers {
				if registered.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) publish(change Change) {
	s.observersMu.RLock()
	observers := s.observers
	s.observersMu.RUnlock()

	for _, registered := range observers {
		registered.fn(change)
	}
}
