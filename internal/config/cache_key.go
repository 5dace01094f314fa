package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateSessionKey returns the cache key holding a candidate's screen state.
func (r *CacheKeyStruct) CandidateSessionKey(sessionID string) string {
	return fmt.Sprintf("quiz:session:%s", sessionID)
}

// CandidateSessionLockKey returns the cache key used as a per-session mutation lock.
func (r *CacheKeyStruct) CandidateSessionLockKey(sessionID string) string {
	return fmt.Sprintf("quiz:session:%s:lock", sessionID)
}

// DeadlineQueueKey returns the sorted set of in-progress sessions scored by deadline.
func (r *CacheKeyStruct) DeadlineQueueKey() string {
	return "quiz:deadlines"
}

// ResultFeedChannel returns the Redis PubSub channel carrying new ledger rows.
func (r *CacheKeyStruct) ResultFeedChannel() string {
	return "quiz:results:feed"
}

var CacheKey = NewCacheKeyStruct()
