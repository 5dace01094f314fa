package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
)

// Flow errors.
var (
	ErrIdentityRequired = errors.New("name and roll number are required")
	ErrInvalidOption    = errors.New("option must be one of A, B, C, D")
	ErrSessionBusy      = errors.New("session is locked by another request")
)

const (
	loginMessage     = "Enter your details to begin the exam. The timer starts immediately after clicking 'Start'."
	submittedMessage = "Your exam has been submitted successfully."
	expiredMessage   = "TIME EXPIRED! Your answers were auto-submitted."
)

// ExamView is one render of the exam screen.
type ExamView struct {
	Screen    model.ScreenKind `json:"screen"`
	Message   string           `json:"message,omitempty"`
	Candidate *model.Candidate `json:"candidate,omitempty"`
	Timer     *Countdown       `json:"timer,omitempty"`
	Notice    string           `json:"notice,omitempty"`
	Questions []QuestionView   `json:"questions,omitempty"`
	Report    *model.Report    `json:"report,omitempty"`
}

// ExamFlowService drives the Login -> In-Progress -> Submitted state machine.
// Every public method is one render pass: it takes the session lock, applies
// the timer guard, performs the action and returns the re-rendered view.
type ExamFlowService struct {
	cfg       *config.Config
	key       model.AnswerKey
	store     SessionStore
	ledger    Ledger
	deadlines DeadlineQueue
	feed      ResultPublisher
	images    *QuestionImageService
	now       func() time.Time
	log       zerolog.Logger
}

// NewExamFlowService creates a new ExamFlowService. feed may be nil.
func NewExamFlowService(
	cfg *config.Config,
	key model.AnswerKey,
	store SessionStore,
	ledger Ledger,
	deadlines DeadlineQueue,
	feed ResultPublisher,
	images *QuestionImageService,
	log zerolog.Logger,
) *ExamFlowService {
	return &ExamFlowService{
		cfg:       cfg,
		key:       key,
		store:     store,
		ledger:    ledger,
		deadlines: deadlines,
		feed:      feed,
		images:    images,
		now:       time.Now,
		log:       log.With().Str("component", "exam_flow").Logger(),
	}
}

// WithClock replaces the time source.
func (s *ExamFlowService) WithClock(now func() time.Time) *ExamFlowService {
	s.now = now
	return s
}

// NewSession registers a fresh session on the login screen.
func (s *ExamFlowService) NewSession(ctx context.Context, sessionID string) (*ExamView, error) {
	if err := s.store.Set(ctx, sessionID, model.LoginScreen{}); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s.render(ctx, sessionID, model.LoginScreen{})
}

// Render re-evaluates the timer guard and returns the current screen.
func (s *ExamFlowService) Render(ctx context.Context, sessionID string) (*ExamView, error) {
	return s.withSession(ctx, sessionID, func(screen model.Screen) (model.Screen, error) {
		return screen, nil
	})
}

// Start moves a session from the login screen to the exam. Empty identity
// fields leave the session untouched. On any other screen Start is a no-op.
func (s *ExamFlowService) Start(ctx context.Context, sessionID, name, roll string) (*ExamView, error) {
	if name == "" || roll == "" {
		return nil, ErrIdentityRequired
	}

	return s.withSession(ctx, sessionID, func(screen model.Screen) (model.Screen, error) {
		if screen.Kind() != model.ScreenLogin {
			return screen, nil
		}

		now := s.now()
		ip := &model.InProgressScreen{
			Candidate: model.Candidate{Name: name, Roll: roll},
			StartTime: now,
			Answers:   make([]model.Option, s.cfg.TotalQuestions),
		}
		if err := s.store.Set(ctx, sessionID, ip); err != nil {
			return nil, fmt.Errorf("store started session: %w", err)
		}

		deadline := now.Add(s.cfg.ExamDuration)
		if err := s.deadlines.Schedule(ctx, sessionID, deadline); err != nil {
			// The render guard still submits on the next interaction.
			s.log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to schedule deadline")
		}

		s.log.Info().
			Str("session_id", sessionID).
			Str("roll", roll).
			Time("deadline", deadline).
			Msg("Exam started")
		return ip, nil
	})
}

// Answer records the selection for question (1-based). The last selection
// wins; OptionNone clears it. Once submitted, answers are immutable.
func (s *ExamFlowService) Answer(ctx context.Context, sessionID string, question int, opt model.Option) (*ExamView, error) {
	if question < 1 || question > s.cfg.TotalQuestions {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuestion, question)
	}
	if opt.Answered() && !opt.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOption, opt)
	}

	return s.withSession(ctx, sessionID, func(screen model.Screen) (model.Screen, error) {
		ip, ok := screen.(*model.InProgressScreen)
		if !ok {
			return screen, nil
		}
		ip.Answers[question-1] = opt
		if err := s.store.Set(ctx, sessionID, ip); err != nil {
			return nil, fmt.Errorf("store answer: %w", err)
		}
		return ip, nil
	})
}

// SubmitEarly ends an in-progress attempt before the deadline.
func (s *ExamFlowService) SubmitEarly(ctx context.Context, sessionID string) (*ExamView, error) {
	return s.withSession(ctx, sessionID, func(screen model.Screen) (model.Screen, error) {
		ip, ok := screen.(*model.InProgressScreen)
		if !ok {
			return screen, nil
		}
		return s.submit(ctx, sessionID, ip, model.SubmitReasonEarly)
	})
}

// Logout purges every slot of the session, returning it to the login screen.
func (s *ExamFlowService) Logout(ctx context.Context, sessionID string) (*ExamView, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.store.ClearAll(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("clear session: %w", err)
	}
	if err := s.deadlines.Cancel(ctx, sessionID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to cancel deadline")
	}
	return s.render(ctx, sessionID, model.LoginScreen{})
}

// Expire applies the timer guard on behalf of the deadline worker. It reports
// whether this call performed the timeout submission.
func (s *ExamFlowService) Expire(ctx context.Context, sessionID string) (bool, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return false, err
	}
	defer unlock()

	screen, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}

	ip, ok := screen.(*model.InProgressScreen)
	if !ok {
		// Submitted, logged out or evicted; nothing left to fire.
		return false, s.deadlines.Cancel(ctx, sessionID)
	}
	if !s.countdown(ip).Expired {
		return false, nil
	}
	if _, err := s.submit(ctx, sessionID, ip, model.SubmitReasonTimeout); err != nil {
		return false, err
	}
	return true, nil
}

// withSession runs one locked render pass: load, timer guard, action, render.
func (s *ExamFlowService) withSession(
	ctx context.Context,
	sessionID string,
	action func(model.Screen) (model.Screen, error),
) (*ExamView, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	screen, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	// Timer guard: an expired attempt is submitted before anything else, so a
	// late action never lands on the exam.
	if ip, ok := screen.(*model.InProgressScreen); ok && s.countdown(ip).Expired {
		if screen, err = s.submit(ctx, sessionID, ip, model.SubmitReasonTimeout); err != nil {
			return nil, err
		}
	}

	if screen, err = action(screen); err != nil {
		return nil, err
	}
	return s.render(ctx, sessionID, screen)
}

// submit grades the attempt, switches the session to the report and appends
// the attempt to the ledger. The report is stored first: if the append fails
// the in-progress screen is restored, so a retried pass appends exactly once.
func (s *ExamFlowService) submit(
	ctx context.Context,
	sessionID string,
	ip *model.InProgressScreen,
	reason model.SubmitReason,
) (*model.SubmittedScreen, error) {
	now := s.now()
	report := BuildReport(ip.Candidate, ip.Answers, s.key, ip.StartTime, now, reason)
	rec := model.NewResultRecord(now, ip.Candidate, report.Score, report.Total)

	sub := &model.SubmittedScreen{Report: report}
	if err := s.store.Set(ctx, sessionID, sub); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}

	if err := s.ledger.Append(ctx, rec); err != nil {
		if rbErr := s.store.Set(ctx, sessionID, ip); rbErr != nil {
			s.log.Error().Err(rbErr).Str("session_id", sessionID).Msg("Failed to restore session after ledger error")
		}
		return nil, fmt.Errorf("append result: %w", err)
	}

	if err := s.deadlines.Cancel(ctx, sessionID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to cancel deadline")
	}
	if s.feed != nil {
		if err := s.feed.Publish(ctx, rec); err != nil {
			s.log.Warn().Err(err).Msg("Failed to publish result")
		}
	}

	s.log.Info().
		Str("session_id", sessionID).
		Str("roll", ip.Candidate.Roll).
		Str("score", rec.Score).
		Str("reason", string(reason)).
		Msg("Exam submitted and graded")

	return sub, nil
}

func (s *ExamFlowService) lock(ctx context.Context, sessionID string) (func(), error) {
	unlock, err := s.store.Lock(ctx, sessionID)
	if errors.Is(err, repository.ErrLockTimeout) {
		return nil, ErrSessionBusy
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return unlock, nil
}

func (s *ExamFlowService) countdown(ip *model.InProgressScreen) Countdown {
	return NewCountdown(ip.StartTime, s.now(), s.cfg.ExamDuration, s.cfg.UrgentThreshold)
}

// render builds the view of screen. Emitting the urgent notice is the only
// mutation it performs.
func (s *ExamFlowService) render(ctx context.Context, sessionID string, screen model.Screen) (*ExamView, error) {
	switch v := screen.(type) {
	case *model.InProgressScreen:
		cd := s.countdown(v)
		view := &ExamView{
			Screen:    model.ScreenInProgress,
			Candidate: &v.Candidate,
			Timer:     &cd,
			Questions: s.images.Questions(v.Answers),
		}
		if boundary, fire := NextNotice(cd.RemainingSeconds, s.cfg.UrgentThreshold, v.NotifiedBoundary); fire {
			v.NotifiedBoundary = boundary
			if err := s.store.Set(ctx, sessionID, v); err != nil {
				return nil, fmt.Errorf("store notice: %w", err)
			}
			view.Notice = NoticeMessage(boundary)
		}
		return view, nil

	case *model.SubmittedScreen:
		msg := submittedMessage
		if v.Report.Reason == model.SubmitReasonTimeout {
			msg = expiredMessage
		}
		report := v.Report
		return &ExamView{
			Screen:    model.ScreenSubmitted,
			Message:   msg,
			Candidate: &report.Candidate,
			Report:    &report,
		}, nil

	default:
		return &ExamView{Screen: model.ScreenLogin, Message: loginMessage}, nil
	}
}
