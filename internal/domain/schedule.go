package domain

import (
	"fmt"
	"time"
)

// State is the lifecycle classification of a card's schedule.
type State int

const (
	New State = iota
	Learning
	Review
	Mastered
)

var (
	stateNames  = [...]string{New: "new", Learning: "learning", Review: "review", Mastered: "mastered"}
	stateByName = map[string]State{
		"new":      New,
		"learning": Learning,
		"review":   Review,
		"mastered": Mastered,
	}
)

// IsValid reports whether s is one of the four lifecycle states.
func (s State) IsValid() bool {
	return s >= New && s <= Mastered
}

// InReview reports whether the card is in the long-term review cycle.
func (s State) InReview() bool {
	return s == Review || s == Mastered
}

func (s State) String() string {
	if s.IsValid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid state: %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	v, ok := stateByName[string(text)]
	if !ok {
		return fmt.Errorf("invalid state: %q", text)
	}
	*s = v
	return nil
}

// Schedule holds the scheduling state of exactly one card.
//
// LearningStep, ConsecutiveGoodCount and LastGoodAt only carry meaning while
// State is Learning and are zeroed in every other state. Version is bumped on
// every persisted change and guards against lost updates.
type Schedule struct {
	CardID               int64      `json:"card_id"`
	State                State      `json:"state"`
	Stability            float64    `json:"stability"`
	Difficulty           float64    `json:"difficulty"`
	ReviewCount          int        `json:"review_count"`
	LapseCount           int        `json:"lapse_count"`
	DueAt                time.Time  `json:"due_at"`
	LastReviewedAt       *time.Time `json:"last_reviewed_at,omitempty"`
	LearningStep         int        `json:"learning_step"`
	ConsecutiveGoodCount int        `json:"consecutive_good_count"`
	LastGoodAt           *time.Time `json:"last_good_at,omitempty"`
	Version              int64      `json:"-"`
}

// NewSchedule returns the schedule a card starts with: New, due immediately,
// with empty memory parameters.
func NewSchedule(cardID int64, now time.Time) Schedule {
	return Schedule{
		CardID: cardID,
		State:  New,
		DueAt:  now,
	}
}
