package repository

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/stemsi/exstem-quiz/internal/model"
)

const (
	memoryLockStripes = 64
	memorySweepEvery  = time.Minute
)

// MemorySessionRepository keeps candidate screens in process memory. Screens
// are stored encoded so callers never share state with the store. Like the
// Redis keys, an entry expires ttl after its last write.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	locks    [memoryLockStripes]sync.Mutex
	ttl      time.Duration
	now      func() time.Time
}

type memorySession struct {
	raw      []byte
	lastSeen time.Time
}

// NewMemorySessionRepository creates an empty in-process session store.
// A ttl <= 0 keeps sessions until they are cleared.
func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// StartSweeper evicts expired sessions every minute until ctx is cancelled.
func (r *MemorySessionRepository) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(memorySweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// Sweep removes expired sessions and returns how many were dropped.
func (r *MemorySessionRepository) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	dropped := 0
	for sid, s := range r.sessions {
		if r.expired(s, now) {
			delete(r.sessions, sid)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of stored sessions, expired ones included.
func (r *MemorySessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *MemorySessionRepository) Get(_ context.Context, sessionID string) (model.Screen, error) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok || r.expired(s, r.now()) {
		return model.LoginScreen{}, nil
	}
	return model.DecodeScreen(s.raw)
}

func (r *MemorySessionRepository) Set(_ context.Context, sessionID string, screen model.Screen) error {
	raw, err := model.EncodeScreen(screen)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.sessions[sessionID] = memorySession{raw: raw, lastSeen: r.now()}
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) ClearAll(_ context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) Lock(_ context.Context, sessionID string) (func(), error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	l := &r.locks[h.Sum32()%memoryLockStripes]
	l.Lock()
	return l.Unlock, nil
}

func (r *MemorySessionRepository) expired(s memorySession, now time.Time) bool {
	return r.ttl > 0 && now.Sub(s.lastSeen) > r.ttl
}
