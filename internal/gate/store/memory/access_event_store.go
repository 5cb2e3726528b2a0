package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pdkslab/pdksgate/internal/gate/store"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// AccessEventStore is an in-memory append-only log of access decisions.
// It is intended for use in tests and dev environments.
type AccessEventStore struct {
	mu     sync.Mutex
	events []types.AccessEvent
	byKey  map[string]int
}

func NewAccessEventStore() *AccessEventStore {
	return &AccessEventStore{byKey: make(map[string]int)}
}

func (s *AccessEventStore) InsertIfAbsent(_ context.Context, ev types.AccessEvent, prior store.PriorKey) (types.AccessEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.byKey[ev.IdempotencyKey]; ok {
		return s.events[i], false, nil
	}
	if i, ok := s.byKey[prior.Key]; ok && prior.Key != "" && !s.events[i].OccurredAt.Before(prior.Since) {
		return s.events[i], false, nil
	}
	s.byKey[ev.IdempotencyKey] = len(s.events)
	s.events = append(s.events, ev)
	return ev, true, nil
}

func (s *AccessEventStore) LatestAllowed(_ context.Context, serial, credential string, since time.Time) (*types.AccessEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if ev.DeviceSerial == serial && ev.Credential == credential &&
			ev.Decision == types.Allow && !ev.OccurredAt.Before(since) {
			return &ev, nil
		}
	}
	return nil, nil
}

func (s *AccessEventStore) MarkRelayConfirmed(_ context.Context, eventID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID != eventID {
			continue
		}
		if s.events[i].Decision != types.Allow || s.events[i].RelayConfirmedAt != nil {
			return false, nil
		}
		t := at.UTC()
		s.events[i].RelayConfirmedAt = &t
		return true, nil
	}
	return false, nil
}

// Events returns a copy of all recorded events.  Test-only helper.
func (s *AccessEventStore) Events() []types.AccessEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AccessEvent, len(s.events))
	copy(out, s.events)
	return out
}
