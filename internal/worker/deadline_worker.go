package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DueLister lists sessions whose deadline has passed.
type DueLister interface {
	Due(ctx context.Context, now time.Time) ([]string, error)
}

// Expirer submits a session whose time is up.
type Expirer interface {
	Expire(ctx context.Context, sessionID string) (bool, error)
}

// DeadlineWorker fires the timeout submission of every in-progress session
// once its deadline passes, whether or not the candidate is still connected.
type DeadlineWorker struct {
	queue    DueLister
	expirer  Expirer
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewDeadlineWorker(queue DueLister, expirer Expirer, interval time.Duration, log zerolog.Logger) *DeadlineWorker {
	if interval <= 0 {
		interval = time.Second
	}
	return &DeadlineWorker{
		queue:    queue,
		expirer:  expirer,
		interval: interval,
		now:      time.Now,
		log:      log.With().Str("component", "deadline_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop
// ----------------------------------------------------------------

func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("DeadlineWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("DeadlineWorker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep expires every session that is due now. It returns how many sessions
// were submitted by this sweep.
func (w *DeadlineWorker) Sweep(ctx context.Context) int {
	due, err := w.queue.Due(ctx, w.now())
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Failed to list due sessions")
		}
		return 0
	}

	submitted := 0
	for _, sid := range due {
		if ctx.Err() != nil {
			return submitted
		}
		fired, err := w.expirer.Expire(ctx, sid)
		if err != nil {
			// Left in the queue; the next sweep retries.
			w.log.Warn().Err(err).Str("session_id", sid).Msg("Timeout submission failed")
			continue
		}
		if fired {
			submitted++
		}
	}

	if submitted > 0 {
		w.log.Info().Int("submitted", submitted).Msg("Auto-submitted expired exams")
	}
	return submitted
}
