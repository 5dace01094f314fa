package repository

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

const feedBuffer = 16

// RedisResultFeed fans new ledger rows out over Redis Pub/Sub so every
// server instance's admin stream sees them.
type RedisResultFeed struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisResultFeed creates a new RedisResultFeed.
func NewRedisResultFeed(rdb *redis.Client, log zerolog.Logger) *RedisResultFeed {
	return &RedisResultFeed{
		rdb: rdb,
		log: log.With().Str("component", "result_feed").Logger(),
	}
}

func (f *RedisResultFeed) Publish(ctx context.Context, rec model.ResultRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, config.CacheKey.ResultFeedChannel(), raw).Err()
}

// Subscribe streams published rows until ctx ends.
func (f *RedisResultFeed) Subscribe(ctx context.Context) <-chan model.ResultRecord {
	out := make(chan model.ResultRecord, feedBuffer)
	pubsub := f.rdb.Subscribe(ctx, config.CacheKey.ResultFeedChannel())

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var rec model.ResultRecord
				if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
					f.log.Warn().Err(err).Msg("Invalid result payload")
					continue
				}
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// MemoryResultFeed is the in-process result broadcaster.
type MemoryResultFeed struct {
	mu   sync.Mutex
	subs map[chan model.ResultRecord]struct{}
}

// NewMemoryResultFeed creates a broadcaster with no subscribers.
func NewMemoryResultFeed() *MemoryResultFeed {
	return &MemoryResultFeed{subs: make(map[chan model.ResultRecord]struct{})}
}

// Publish delivers rec to every subscriber; a full subscriber misses it.
func (f *MemoryResultFeed) Publish(_ context.Context, rec model.ResultRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- rec:
		default:
		}
	}
	return nil
}

func (f *MemoryResultFeed) Subscribe(ctx context.Context) <-chan model.ResultRecord {
	ch := make(chan model.ResultRecord, feedBuffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, ch)
		close(ch)
		f.mu.Unlock()
	}()
	return ch
}
