// Package streak tracks daily review goals and consecutive-day streaks.
//
// A day counts toward a streak when the user's goal-counting reviews graded
// that calendar day reach the daily goal. Days are calendar days in one
// configured location.
package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/memorium/internal/domain"
	"github.com/conorfennell/memorium/internal/lifecycle"
	"go.uber.org/zap"
)

// Day is the goal-counting review count of one calendar day.
type Day struct {
	Date  string // YYYY-MM-DD
	Count int
}

// Advance recomputes a streak for today. It only looks at yesterday's and
// today's buckets, so the cost does not grow with the review history. The
// second return value is false when st was already computed for today; st
// is then returned unchanged.
func Advance(st domain.UserStreakState, yesterday, today Day) (domain.UserStreakState, bool) {
	if st.LastStreakUpdate == today.Date {
		return st, false
	}

	goal := st.DailyGoal
	if goal <= 0 {
		goal = domain.DefaultDailyGoal
	}

	switch {
	case st.LastStreakUpdate == yesterday.Date && yesterday.Count >= goal:
		st.CurrentStreak++
	case today.Count >= goal:
		st.CurrentStreak = 1
	default:
		st.CurrentStreak = 0
	}
	st.MaxStreak = max(st.MaxStreak, st.CurrentStreak)
	st.LastStreakUpdate = today.Date
	return st, true
}

// Store is the persistence the aggregator needs.
type Store interface {
	GetStreakState(ctx context.Context, userID int64) (domain.UserStreakState, error)
	SaveStreak(ctx context.Context, st domain.UserStreakState) error
	SetDailyGoal(ctx context.Context, userID int64, goal int) error
	CountGoalReviews(ctx context.Context, userID int64, from, to time.Time) (int, error)
}

// Progress is the per-user summary shown after reviewing.
type Progress struct {
	CompletedToday int  `json:"completed_today"`
	DailyGoal      int  `json:"daily_goal"`
	GoalMet        bool `json:"goal_met"`
	CurrentStreak  int  `json:"current_streak"`
	MaxStreak      int  `json:"max_streak"`
}

// Service computes goals and streaks against a Store.
type Service struct {
	store  Store
	clock  lifecycle.Clock
	loc    *time.Location
	logger *zap.Logger
}

// NewService creates a Service that counts days in loc (UTC when nil).
func NewService(store Store, clock lifecycle.Clock, loc *time.Location, logger *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, clock: clock, loc: loc, logger: logger}
}

// CompletedToday counts the user's goal-counting reviews graded today.
func (s *Service) CompletedToday(ctx context.Context, userID int64) (int, error) {
	today := lifecycle.StartOfDay(s.clock.Now(), s.loc)
	return s.store.CountGoalReviews(ctx, userID, today, today.AddDate(0, 0, 1))
}

// UpdateStreak recomputes the user's streak for today and persists it. It
// is idempotent within a calendar day.
func (s *Service) UpdateStreak(ctx context.Context, userID int64) (domain.UserStreakState, error) {
	st, err := s.store.GetStreakState(ctx, userID)
	if err != nil {
		return domain.UserStreakState{}, err
	}

	now := s.clock.Now()
	todayStart := lifecycle.StartOfDay(now, s.loc)
	today := Day{Date: lifecycle.DateString(todayStart, s.loc)}
	if st.LastStreakUpdate == today.Date {
		return st, nil
	}

	yesterdayStart := todayStart.AddDate(0, 0, -1)
	yesterday := Day{Date: lifecycle.DateString(yesterdayStart, s.loc)}

	if yesterday.Count, err = s.store.CountGoalReviews(ctx, userID, yesterdayStart, todayStart); err != nil {
		return domain.UserStreakState{}, err
	}
	if today.Count, err = s.store.CountGoalReviews(ctx, userID, todayStart, todayStart.AddDate(0, 0, 1)); err != nil {
		return domain.UserStreakState{}, err
	}

	next, changed := Advance(st, yesterday, today)
	if !changed {
		return st, nil
	}
	if err := s.store.SaveStreak(ctx, next); err != nil {
		return domain.UserStreakState{}, err
	}

	s.logger.Debug("Streak updated",
		zap.Int64("user_id", userID),
		zap.String("date", today.Date),
		zap.Int("current_streak", next.CurrentStreak),
		zap.Int("max_streak", next.MaxStreak),
	)
	return next, nil
}

// Progress updates the streak and reports it with today's goal progress.
func (s *Service) Progress(ctx context.Context, userID int64) (Progress, error) {
	st, err := s.UpdateStreak(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	done, err := s.CompletedToday(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	return Progress{
		CompletedToday: done,
		DailyGoal:      st.DailyGoal,
		GoalMet:        done >= st.DailyGoal,
		CurrentStreak:  st.CurrentStreak,
		MaxStreak:      st.MaxStreak,
	}, nil
}

// SetDailyGoal changes the user's daily goal. It must be within
// 1..domain.MaxDailyGoal.
func (s *Service) SetDailyGoal(ctx context.Context, userID int64, goal int) error {
	if goal < 1 || goal > domain.MaxDailyGoal {
		return fmt.Errorf("%w: got %d", domain.ErrInvalidDailyGoal, goal)
	}
	return s.store.SetDailyGoal(ctx, userID, goal)
}
