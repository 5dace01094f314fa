package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

const (
	sessionLockTTL   = 10 * time.Second
	sessionLockRetry = 10 * time.Millisecond
)

// ErrLockTimeout is returned when a session lock cannot be acquired.
var ErrLockTimeout = errors.New("session lock timeout")

// releaseLock deletes the lock only if it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// SessionRepository stores candidate screens in Redis.
type SessionRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionRepository creates a new SessionRepository. ttl bounds how long an
// idle browsing session survives.
func NewSessionRepository(rdb *redis.Client, ttl time.Duration) *SessionRepository {
	return &SessionRepository{rdb: rdb, ttl: ttl}
}

// Get returns the session's screen, or the login screen if it has none.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (model.Screen, error) {
	raw, err := r.rdb.Get(ctx, config.CacheKey.CandidateSessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.LoginScreen{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return model.DecodeScreen(raw)
}

// Set replaces the session's screen and refreshes its TTL.
func (r *SessionRepository) Set(ctx context.Context, sessionID string, screen model.Screen) error {
	raw, err := model.EncodeScreen(screen)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, config.CacheKey.CandidateSessionKey(sessionID), raw, r.ttl).Err()
}

// ClearAll purges every slot of the session.
func (r *SessionRepository) ClearAll(ctx context.Context, sessionID string) error {
	return r.rdb.Del(ctx, config.CacheKey.CandidateSessionKey(sessionID)).Err()
}

// Lock acquires the per-session lock with SET NX, polling until ctx ends or
// the lock TTL elapses.
func (r *SessionRepository) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := config.CacheKey.CandidateSessionLockKey(sessionID)
	token := uuid.New().String()
	deadline := time.Now().Add(sessionLockTTL)

	for {
		ok, err := r.rdb.SetNX(ctx, key, token, sessionLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			return func() {
				// Release with a fresh context so a cancelled request still unlocks.
				_ = releaseLock.Run(context.Background(), r.rdb, []string{key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sessionLockRetry):
		}
	}
}
