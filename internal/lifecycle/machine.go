// Package lifecycle holds the per-card scheduling state machine. It layers
// the New/Learning/Review/Mastered lifecycle on top of a pluggable memory
// model and can replay itself to predict future due dates.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/conorfennell/memorium/internal/domain"
	"github.com/conorfennell/memorium/internal/fsrs"
)

// Config holds the graduation and mastery rules.
type Config struct {
	// GraduationGoodCount is how many back-to-back Good/Easy grades move a
	// card from Learning to Review.
	GraduationGoodCount int
	// RecencyWindowDays bounds the calendar-day gap between two Good/Easy
	// grades that still count as back-to-back.
	RecencyWindowDays int
	// MasteredReviewCount is the review count at which an Easy grade marks
	// a card Mastered.
	MasteredReviewCount int
	// LapseResetDifficulty resets difficulty along with stability on a lapse.
	LapseResetDifficulty bool
	// PredictSteps is how many reviews Predict simulates when asked for none.
	PredictSteps int
}

func DefaultConfig() Config {
	return Config{
		GraduationGoodCount:  3,
		RecencyWindowDays:    2,
		MasteredReviewCount:  18,
		LapseResetDifficulty: true,
		PredictSteps:         DefaultPredictSteps,
	}
}

// Outcome is the result of grading a card once.
type Outcome struct {
	Schedule         domain.Schedule
	StateBefore      domain.State
	CountsTowardGoal bool
	Graduated        bool
}

// Machine applies grades to schedules.
type Machine struct {
	model fsrs.Model
	cfg   Config
	loc   *time.Location
}

// NewMachine builds a Machine. A nil loc means UTC.
func NewMachine(model fsrs.Model, cfg Config, loc *time.Location) *Machine {
	if loc == nil {
		loc = time.UTC
	}
	return &Machine{model: model, cfg: cfg, loc: loc}
}

// Location is the timezone used for day boundaries.
func (m *Machine) Location() *time.Location {
	return m.loc
}

// Apply grades the schedule at now and returns the next schedule. The input
// is not modified, and nothing is returned on error.
func (m *Machine) Apply(s domain.Schedule, grade domain.Grade, now time.Time) (Outcome, error) {
	if !grade.IsValid() {
		return Outcome{}, fmt.Errorf("%w: %d", domain.ErrInvalidGrade, int(grade))
	}

	out := Outcome{StateBefore: s.State}
	next := s
	next.LastReviewedAt = timePtr(now)
	today := StartOfDay(now, m.loc)

	switch s.State {
	case domain.New:
		m.startLearning(&next, grade, now, today)
	case domain.Learning:
		graduated, err := m.learn(&next, s, grade, now, today)
		if err != nil {
			return Outcome{}, err
		}
		out.Graduated = graduated
	case domain.Review, domain.Mastered:
		if grade == domain.Again {
			m.lapse(&next, today)
		} else if err := m.review(&next, s, grade, now, today); err != nil {
			return Outcome{}, err
		}
	default:
		return Outcome{}, fmt.Errorf("card %d has unknown schedule state %d", s.CardID, int(s.State))
	}

	out.Schedule = next
	out.CountsTowardGoal = grade.Recalled() && (s.State.InReview() || out.Graduated)
	return out, nil
}

func (m *Machine) startLearning(next *domain.Schedule, grade domain.Grade, now, today time.Time) {
	next.State = domain.Learning
	next.LearningStep = 1
	next.DueAt = today
	if grade.Recalled() {
		next.ConsecutiveGoodCount = 1
		next.LastGoodAt = timePtr(now)
	} else {
		next.ConsecutiveGoodCount = 0
		next.LastGoodAt = nil
	}
}

func (m *Machine) learn(next *domain.Schedule, prev domain.Schedule, grade domain.Grade, now, today time.Time) (bool, error) {
	if !grade.Recalled() {
		next.LearningStep = 1
		next.DueAt = today
		next.ConsecutiveGoodCount = 0
		next.LastGoodAt = nil
		if grade == domain.Again {
			next.LapseCount++
		}
		return false, nil
	}

	count := 1
	if prev.LastGoodAt != nil && m.recent(*prev.LastGoodAt, now) {
		count = prev.ConsecutiveGoodCount + 1
	}
	if count < m.cfg.GraduationGoodCount {
		next.LearningStep = prev.LearningStep + 1
		next.DueAt = today
		next.ConsecutiveGoodCount = count
		next.LastGoodAt = timePtr(now)
		return false, nil
	}

	res, err := m.model.Apply(memoryCard(prev, fsrs.Learning), grade, now)
	if err != nil {
		return false, fmt.Errorf("failed to graduate card %d: %w", prev.CardID, err)
	}
	adopt(next, res)
	next.State = domain.Review
	next.DueAt = res.Due
	clearLearning(next)
	return true, nil
}

// lapse demotes a forgotten Review/Mastered card. The memory model's own
// lapse values are discarded in favour of an empty card.
func (m *Machine) lapse(next *domain.Schedule, today time.Time) {
	next.State = domain.Learning
	next.Stability = 0
	if m.cfg.LapseResetDifficulty {
		next.Difficulty = 0
	}
	next.ReviewCount = 0
	next.LapseCount++
	next.DueAt = today
	next.LearningStep = 1
	next.ConsecutiveGoodCount = 0
	next.LastGoodAt = nil
}

func (m *Machine) review(next *domain.Schedule, prev domain.Schedule, grade domain.Grade, now, today time.Time) error {
	res, err := m.model.Apply(memoryCard(prev, fsrs.Review), grade, now)
	if err != nil {
		return fmt.Errorf("failed to review card %d: %w", prev.CardID, err)
	}
	adopt(next, res)
	clearLearning(next)

	if res.State != fsrs.Review {
		next.State = domain.Learning
		next.LearningStep = 1
		next.DueAt = today
		return nil
	}

	next.DueAt = res.Due
	if grade == domain.Easy && res.ReviewCount >= m.cfg.MasteredReviewCount {
		next.State = domain.Mastered
	} else {
		next.State = domain.Review
	}
	return nil
}

func (m *Machine) recent(lastGood, now time.Time) bool {
	days := DaysBetween(lastGood, now, m.loc)
	if days < 0 {
		days = -days
	}
	return days <= m.cfg.RecencyWindowDays
}

func memoryCard(s domain.Schedule, state fsrs.MemoryState) fsrs.Card {
	return fsrs.Card{
		Stability:   s.Stability,
		Difficulty:  s.Difficulty,
		ReviewCount: s.ReviewCount,
		LapseCount:  s.LapseCount,
		LastReview:  s.LastReviewedAt,
		Due:         s.DueAt,
		State:       state,
	}
}

func adopt(next *domain.Schedule, res fsrs.Card) {
	next.Stability = res.Stability
	next.Difficulty = res.Difficulty
	next.ReviewCount = res.ReviewCount
	next.LapseCount = res.LapseCount
}

func clearLearning(s *domain.Schedule) {
	s.LearningStep = 0
	s.ConsecutiveGoodCount = 0
	s.LastGoodAt = nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
