package lifecycle

import (
	"time"

	"github.com/conorfennell/memorium/internal/domain"
)

const (
	DefaultPredictSteps = 6
	DefaultPredictGrade = domain.Good
)

// PredictedStep is one simulated review.
type PredictedStep struct {
	Step  int          `json:"step"`
	DueAt time.Time    `json:"due_at"`
	State domain.State `json:"state"`
}

// Predict simulates steps reviews of s, all graded grade, without persisting
// anything. A non-positive steps means the configured PredictSteps. The first
// review happens at now and each following one at the due date produced by
// the step before it.
func (m *Machine) Predict(s domain.Schedule, grade domain.Grade, steps int, now time.Time) ([]PredictedStep, error) {
	if steps <= 0 {
		steps = m.cfg.PredictSteps
	}
	if steps <= 0 {
		steps = DefaultPredictSteps
	}
	out := make([]PredictedStep, 0, steps)
	cur, at := s, now
	for i := 1; i <= steps; i++ {
		o, err := m.Apply(cur, grade, at)
		if err != nil {
			return nil, err
		}
		cur = o.Schedule
		at = cur.DueAt
		out = append(out, PredictedStep{Step: i, DueAt: cur.DueAt, State: cur.State})
	}
	return out, nil
}
