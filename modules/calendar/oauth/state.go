package oauth

import (
	"context"
	"sync"
	"time"

	"calendar-engine/core/constants"
	"calendar-engine/core/logger"
	"calendar-engine/modules/calendar/entity"

	"github.com/google/uuid"
)

// StateEntry ties an in-flight OAuth authorization to the organization
// that started it.
type StateEntry struct {
	OrganizationID uuid.UUID       `json:"organization_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Provider       entity.Provider `json:"provider"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (e StateEntry) expiredAt(now time.Time) bool {
	return now.Sub(e.CreatedAt) > constants.OAuthStateTTL
}

// StateStore holds pending OAuth state tokens. Consume is single-use:
// the entry is removed before it is returned, and entries past their TTL
// are rejected at read time whether or not a sweep has run.
type StateStore interface {
	Save(ctx context.Context, state string, entry StateEntry) error
	Consume(ctx context.Context, state string) (*StateEntry, error)
	Sweep(ctx context.Context) (int, error)
}

type memoryStateStore struct {
	mu      sync.Mutex
	entries map[string]StateEntry
	nowFunc func() time.Time
}

// NewMemoryStateStore backs single-node deployments and tests.
func NewMemoryStateStore() StateStore {
	return &memoryStateStore{
		entries: make(map[string]StateEntry),
		nowFunc: time.Now,
	}
}

func (s *memoryStateStore) Save(ctx context.Context, state string, entry StateEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[state] = entry
	return nil
}

func (s *memoryStateStore) Consume(ctx context.Context, state string) (*StateEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return nil, nil
	}
	delete(s.entries, state)

	if entry.expiredAt(s.nowFunc()) {
		logger.Warn("StateStore:Consume:Expired", "age", s.nowFunc().Sub(entry.CreatedAt).String())
		return nil, nil
	}
	return &entry, nil
}

func (s *memoryStateStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.nowFunc()
	for state, entry := range s.entries {
		if entry.expiredAt(now) {
			delete(s.entries, state)
			removed++
		}
	}
	return removed, nil
}
