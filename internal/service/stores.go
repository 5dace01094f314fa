package service

import (
	"context"
	"time"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// SessionStore holds one screen per candidate session. A missing session
// reads as the login screen.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (model.Screen, error)
	Set(ctx context.Context, sessionID string, screen model.Screen) error
	ClearAll(ctx context.Context, sessionID string) error
	// Lock serializes mutations of one session. The returned func releases it.
	Lock(ctx context.Context, sessionID string) (func(), error)
}

// Ledger is the append-only record of completed attempts.
type Ledger interface {
	Append(ctx context.Context, rec model.ResultRecord) error
	// ReadAll returns repository.ErrLedgerAbsent when nothing was ever written
	// (or the ledger was cleared).
	ReadAll(ctx context.Context) ([]model.ResultRecord, error)
	Clear(ctx context.Context) error
}

// DeadlineQueue schedules the timeout submission of in-progress sessions.
type DeadlineQueue interface {
	Schedule(ctx context.Context, sessionID string, at time.Time) error
	Cancel(ctx context.Context, sessionID string) error
	Due(ctx context.Context, now time.Time) ([]string, error)
}

// ResultPublisher announces newly appended ledger rows.
type ResultPublisher interface {
	Publish(ctx context.Context, rec model.ResultRecord) error
}
