package oauth

import (
	"context"
	"encoding/json"
	"time"

	"calendar-engine/core/cache"
	"calendar-engine/core/constants"
	"calendar-engine/core/logger"
)

type redisStateStore struct {
	cache   cache.Cache
	nowFunc func() time.Time
}

// NewRedisStateStore shares pending states across instances. Keys carry
// the state TTL so redis expires what a sweep would.
func NewRedisStateStore(c cache.Cache) StateStore {
	return &redisStateStore{
		cache:   c,
		nowFunc: time.Now,
	}
}

func (s *redisStateStore) key(state string) string {
	return constants.RedisKeyOAuthState + state
}

func (s *redisStateStore) Save(ctx context.Context, state string, entry StateEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.key(state), string(payload), constants.OAuthStateTTL)
}

func (s *redisStateStore) Consume(ctx context.Context, state string) (*StateEntry, error) {
	// GETDEL makes the read single-use even under concurrent callbacks.
	payload, err := s.cache.GetDel(ctx, s.key(state))
	if err != nil {
		return nil, err
	}
	if payload == "" {
		return nil, nil
	}

	var entry StateEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		logger.Error("StateStore:Consume:BadPayload:", err)
		return nil, nil
	}

	// Key TTL already bounds the entry lifetime; the read check keeps the
	// guarantee if a key was written without one.
	if entry.expiredAt(s.nowFunc()) {
		return nil, nil
	}
	return &entry, nil
}

func (s *redisStateStore) Sweep(ctx context.Context) (int, error) {
	// Redis expires state keys itself.
	return 0, nil
}
