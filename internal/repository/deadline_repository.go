package repository

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-quiz/internal/config"
)

// DeadlineRepository keeps in-progress sessions in a Redis sorted set scored
// by their deadline (unix milliseconds).
type DeadlineRepository struct {
	rdb *redis.Client
}

// NewDeadlineRepository creates a new DeadlineRepository.
func NewDeadlineRepository(rdb *redis.Client) *DeadlineRepository {
	return &DeadlineRepository{rdb: rdb}
}

func (r *DeadlineRepository) Schedule(ctx context.Context, sessionID string, at time.Time) error {
	return r.rdb.ZAdd(ctx, config.CacheKey.DeadlineQueueKey(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: sessionID,
	}).Err()
}

func (r *DeadlineRepository) Cancel(ctx context.Context, sessionID string) error {
	return r.rdb.ZRem(ctx, config.CacheKey.DeadlineQueueKey(), sessionID).Err()
}

// Due lists sessions whose deadline is at or before now.
func (r *DeadlineRepository) Due(ctx context.Context, now time.Time) ([]string, error) {
	return r.rdb.ZRangeByScore(ctx, config.CacheKey.DeadlineQueueKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
}

// MemoryDeadlineRepository is the in-process deadline queue.
type MemoryDeadlineRepository struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
}

// NewMemoryDeadlineRepository creates an empty in-process deadline queue.
func NewMemoryDeadlineRepository() *MemoryDeadlineRepository {
	return &MemoryDeadlineRepository{deadlines: make(map[string]time.Time)}
}

func (r *MemoryDeadlineRepository) Schedule(_ context.Context, sessionID string, at time.Time) error {
	r.mu.Lock()
	r.deadlines[sessionID] = at
	r.mu.Unlock()
	return nil
}

func (r *MemoryDeadlineRepository) Cancel(_ context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.deadlines, sessionID)
	r.mu.Unlock()
	return nil
}

func (r *MemoryDeadlineRepository) Due(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []string
	for id, at := range r.deadlines {
		if !at.After(now) {
			due = append(due, id)
		}
	}
	return due, nil
}
