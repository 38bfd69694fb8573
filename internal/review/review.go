// Package review grades cards against the lifecycle state machine and
// records each grading in the review log.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/memorium/internal/domain"
	"github.com/conorfennell/memorium/internal/lifecycle"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence the recorder needs. ApplyReview must write the
// schedule and the event in one transaction and reject stale versions with
// domain.ErrConcurrentModification.
type Store interface {
	GetSchedule(ctx context.Context, cardID int64) (domain.Schedule, error)
	EnsureSchedule(ctx context.Context, cardID int64, now time.Time) error
	ApplyReview(ctx context.Context, s domain.Schedule, ev domain.ReviewEvent) error
	ResetCard(ctx context.Context, cardID int64, now time.Time) (domain.Schedule, error)
}

// Result is the outcome of one grading call.
type Result struct {
	Schedule  domain.Schedule    `json:"schedule"`
	Event     domain.ReviewEvent `json:"event"`
	Graduated bool               `json:"graduated"`
}

// Service grades cards. It is safe for concurrent use; conflicting gradings
// of one card are serialized by the store's version check.
type Service struct {
	store   Store
	machine *lifecycle.Machine
	clock   lifecycle.Clock
	logger  *zap.Logger
	newID   func() string
}

// NewService creates a Service. A nil logger disables logging.
func NewService(store Store, machine *lifecycle.Machine, clock lifecycle.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		machine: machine,
		clock:   clock,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Grade applies a grade to a card on behalf of userID. Ownership must be
// checked by the caller. The raw grade is validated before anything is read
// or written. A conflicting concurrent write is retried once with fresh
// state; a second conflict is returned as domain.ErrConcurrentModification.
func (s *Service) Grade(ctx context.Context, userID, cardID int64, raw int) (Result, error) {
	grade, err := domain.ParseGrade(raw)
	if err != nil {
		return Result{}, err
	}

	res, err := s.gradeOnce(ctx, userID, cardID, grade)
	if errors.Is(err, domain.ErrConcurrentModification) {
		s.logger.Warn("Retrying grade after concurrent modification",
			zap.Int64("card_id", cardID), zap.Int64("user_id", userID))
		res, err = s.gradeOnce(ctx, userID, cardID, grade)
	}
	if err != nil {
		if errors.Is(err, domain.ErrConsistencyViolation) {
			s.logger.Error("Schedule and review log diverged",
				zap.Int64("card_id", cardID), zap.Error(err))
		}
		return Result{}, err
	}

	s.logger.Debug("Card graded",
		zap.Int64("card_id", cardID),
		zap.Int64("user_id", userID),
		zap.Stringer("grade", grade),
		zap.Stringer("from", res.Event.StateBefore),
		zap.Stringer("to", res.Schedule.State),
		zap.Time("due_at", res.Schedule.DueAt),
	)
	return res, nil
}

func (s *Service) gradeOnce(ctx context.Context, userID, cardID int64, grade domain.Grade) (Result, error) {
	now := s.clock.Now()
	sched, err := s.loadSchedule(ctx, cardID, now)
	if err != nil {
		return Result{}, err
	}

	out, err := s.machine.Apply(sched, grade, now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to grade card %d: %w", cardID, err)
	}

	ev := domain.ReviewEvent{
		ID:               s.newID(),
		CardID:           cardID,
		UserID:           userID,
		Grade:            grade,
		StateBefore:      out.StateBefore,
		GradedAt:         now,
		CountsTowardGoal: out.CountsTowardGoal,
	}
	// The store matches on the version that was read.
	out.Schedule.Version = sched.Version
	if err := s.store.ApplyReview(ctx, out.Schedule, ev); err != nil {
		return Result{}, err
	}
	out.Schedule.Version++

	return Result{Schedule: out.Schedule, Event: ev, Graduated: out.Graduated}, nil
}

// loadSchedule reads a card's schedule, creating a New one first when the
// card was inserted without it.
func (s *Service) loadSchedule(ctx context.Context, cardID int64, now time.Time) (domain.Schedule, error) {
	sched, err := s.store.GetSchedule(ctx, cardID)
	if !errors.Is(err, domain.ErrScheduleMissing) {
		return sched, err
	}

	s.logger.Info("Card has no schedule, creating one", zap.Int64("card_id", cardID))
	if err := s.store.EnsureSchedule(ctx, cardID, now); err != nil {
		return domain.Schedule{}, err
	}
	return s.store.GetSchedule(ctx, cardID)
}

// Predict simulates steps future reviews of a card, all graded with the
// given grade. A raw grade of 0 means Good and steps <= 0 means the default
// step count. Nothing is persisted.
func (s *Service) Predict(ctx context.Context, cardID int64, raw, steps int) ([]lifecycle.PredictedStep, error) {
	grade := lifecycle.DefaultPredictGrade
	if raw != 0 {
		g, err := domain.ParseGrade(raw)
		if err != nil {
			return nil, err
		}
		grade = g
	}

	now := s.clock.Now()
	sched, err := s.loadSchedule(ctx, cardID, now)
	if err != nil {
		return nil, err
	}
	return s.machine.Predict(sched, grade, steps, now)
}

// Reset returns a card to New and deletes its review history.
func (s *Service) Reset(ctx context.Context, cardID int64) (domain.Schedule, error) {
	sched, err := s.store.ResetCard(ctx, cardID, s.clock.Now())
	if err != nil {
		return domain.Schedule{}, err
	}
	s.logger.Info("Card reset", zap.Int64("card_id", cardID))
	return sched, nil
}
