// Package stats reports on the review log and the schedules of a user's
// cards. Day boundaries are calendar days in the configured location.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/memorium/internal/domain"
	"github.com/conorfennell/memorium/internal/lifecycle"
	"github.com/conorfennell/memorium/internal/storage"
)

// RecentEventsLimit is how many events ModuleStats returns.
const RecentEventsLimit = 10

const (
	// DefaultRangeDays is the length of the daily range when none is given.
	DefaultRangeDays = 7
	// MaxRangeDays bounds the daily range.
	MaxRangeDays = 366
)

// Store is the read side the reports need.
type Store interface {
	GetModule(ctx context.Context, id int64) (domain.Module, error)
	ListEvents(ctx context.Context, f storage.EventFilter) ([]domain.ReviewEvent, error)
	RecentModuleEvents(ctx context.Context, moduleID int64, limit int) ([]storage.ModuleEvent, error)
	ModuleSchedules(ctx context.Context, moduleID int64) ([]storage.ScheduleSummary, error)
	CountStates(ctx context.Context, userID int64) (map[domain.State]int, error)
	DueCounts(ctx context.Context, userID int64, before time.Time) ([]storage.ModuleDue, error)
}

// WeekDay is one day of the weekly report.
type WeekDay struct {
	Date        string `json:"date"`
	GoalReviews int    `json:"goal_reviews"`
	AnyReviews  int    `json:"any_reviews"`
}

// DayStats is one day of the daily report. The state columns count reviews
// by the state the card was in before it was graded.
type DayStats struct {
	Date        string `json:"date"`
	GoalReviews int    `json:"goal_reviews"`
	New         int    `json:"new"`
	Learning    int    `json:"learning"`
	Review      int    `json:"review"`
	Mastered    int    `json:"mastered"`
}

// StateCounts counts cards per lifecycle state.
type StateCounts struct {
	Total    int `json:"total"`
	New      int `json:"new"`
	Learning int `json:"learning"`
	Review   int `json:"review"`
	Mastered int `json:"mastered"`
}

func (c *StateCounts) add(s domain.State, n int) {
	c.Total += n
	switch s {
	case domain.New:
		c.New += n
	case domain.Learning:
		c.Learning += n
	case domain.Review:
		c.Review += n
	case domain.Mastered:
		c.Mastered += n
	}
}

// ModuleStats summarizes one module.
type ModuleStats struct {
	Module domain.Module `json:"module"`
	StateCounts
	Due          int                   `json:"due"`
	RecentEvents []storage.ModuleEvent `json:"recent_events"`
}

// Service builds reports.
type Service struct {
	store Store
	clock lifecycle.Clock
	loc   *time.Location
}

// NewService creates a Service that counts days in loc (UTC when nil).
func NewService(store Store, clock lifecycle.Clock, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, clock: clock, loc: loc}
}

// Weekly reports Monday through Sunday of the current week.
func (s *Service) Weekly(ctx context.Context, userID int64) ([]WeekDay, error) {
	today := lifecycle.StartOfDay(s.clock.Now(), s.loc)
	offset := (int(today.Weekday()) + 6) % 7 // days since Monday
	monday := today.AddDate(0, 0, -offset)
	next := monday.AddDate(0, 0, 7)

	events, err := s.store.ListEvents(ctx, storage.EventFilter{UserID: userID, From: monday, To: next})
	if err != nil {
		return nil, err
	}

	week := make([]WeekDay, 7)
	index := make(map[string]int, 7)
	for i := range week {
		date := lifecycle.DateString(monday.AddDate(0, 0, i), s.loc)
		week[i].Date = date
		index[date] = i
	}
	for _, ev := range events {
		i, ok := index[lifecycle.DateString(ev.GradedAt, s.loc)]
		if !ok {
			continue
		}
		week[i].AnyReviews++
		if ev.CountsTowardGoal {
			week[i].GoalReviews++
		}
	}
	return week, nil
}

// Daily reports every day from from to to inclusive, both given as
// YYYY-MM-DD. Empty bounds default to the last DefaultRangeDays days ending
// today. A non-zero moduleID restricts the report to that module.
func (s *Service) Daily(ctx context.Context, userID int64, from, to string, moduleID int64) ([]DayStats, error) {
	today := lifecycle.StartOfDay(s.clock.Now(), s.loc)
	end, err := s.parseDay(to, today)
	if err != nil {
		return nil, err
	}
	start, err := s.parseDay(from, end.AddDate(0, 0, -(DefaultRangeDays - 1)))
	if err != nil {
		return nil, err
	}
	if end.Before(start) || lifecycle.DaysBetween(start, end, s.loc) >= MaxRangeDays {
		return nil, fmt.Errorf("invalid range %s..%s: %w", from, to, domain.ErrInvalidRange)
	}

	events, err := s.store.ListEvents(ctx, storage.EventFilter{
		UserID:   userID,
		ModuleID: moduleID,
		From:     start,
		To:       end.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, err
	}

	var days []DayStats
	index := make(map[string]int)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := lifecycle.DateString(d, s.loc)
		index[date] = len(days)
		days = append(days, DayStats{Date: date})
	}
	for _, ev := range events {
		i, ok := index[lifecycle.DateString(ev.GradedAt, s.loc)]
		if !ok {
			continue
		}
		day := &days[i]
		if ev.CountsTowardGoal {
			day.GoalReviews++
		}
		switch ev.StateBefore {
		case domain.New:
			day.New++
		case domain.Learning:
			day.Learning++
		case domain.Review:
			day.Review++
		case domain.Mastered:
			day.Mastered++
		}
	}
	return days, nil
}

func (s *Service) parseDay(v string, fallback time.Time) (time.Time, error) {
	if v == "" {
		return fallback, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", v, domain.ErrInvalidRange)
	}
	return t, nil
}

// Module summarizes a module's schedules and its latest reviews. Due counts
// cards past New whose due date has arrived.
func (s *Service) Module(ctx context.Context, moduleID int64) (ModuleStats, error) {
	m, err := s.store.GetModule(ctx, moduleID)
	if err != nil {
		return ModuleStats{}, err
	}
	schedules, err := s.store.ModuleSchedules(ctx, moduleID)
	if err != nil {
		return ModuleStats{}, err
	}
	recent, err := s.store.RecentModuleEvents(ctx, moduleID, RecentEventsLimit)
	if err != nil {
		return ModuleStats{}, err
	}

	out := ModuleStats{Module: m, RecentEvents: recent}
	now := s.clock.Now()
	for _, sc := range schedules {
		out.add(sc.State, 1)
		if sc.State != domain.New && !sc.DueAt.After(now) {
			out.Due++
		}
	}
	return out, nil
}

// LearningProgress counts the user's cards per lifecycle state.
func (s *Service) LearningProgress(ctx context.Context, userID int64) (StateCounts, error) {
	counts, err := s.store.CountStates(ctx, userID)
	if err != nil {
		return StateCounts{}, err
	}
	var out StateCounts
	for state, n := range counts {
		out.add(state, n)
	}
	return out, nil
}

// ModuleDue counts, per module of the user, the cards due before tomorrow.
func (s *Service) ModuleDue(ctx context.Context, userID int64) ([]storage.ModuleDue, error) {
	tomorrow := lifecycle.StartOfDay(s.clock.Now(), s.loc).AddDate(0, 0, 1)
	return s.store.DueCounts(ctx, userID, tomorrow)
}
