// Package fsrs implements the memory model behind card scheduling: given a
// card's stability and difficulty, the time since it was last seen and a
// grade, it produces the next memory parameters and a due date.
package fsrs

import (
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/memorium/internal/domain"
)

// MemoryState is the model's own view of where a card is.
type MemoryState int

const (
	Learning MemoryState = iota + 1
	Review
	Relearning
)

func (s MemoryState) String() string {
	switch s {
	case Learning:
		return "learning"
	case Review:
		return "review"
	case Relearning:
		return "relearning"
	default:
		return fmt.Sprintf("MemoryState(%d)", int(s))
	}
}

// Card is the model's input and output. Stability 0 marks a card that has
// never been through the model.
type Card struct {
	Stability   float64
	Difficulty  float64
	ReviewCount int
	LapseCount  int
	LastReview  *time.Time
	Due         time.Time
	State       MemoryState
}

// EmptyCard is the canonical representation of a card the model has not seen.
func EmptyCard() Card {
	return Card{State: Learning}
}

// Model computes the next memory state of a card. Implementations must not
// have side effects so they can be run speculatively.
type Model interface {
	Apply(card Card, grade domain.Grade, now time.Time) (Card, error)
}

// FSRS is the free spaced repetition scheduler memory model.
type FSRS struct {
	p      Params
	decay  float64
	factor float64
}

var _ Model = (*FSRS)(nil)

// New returns a model using p, or DefaultParams when p is nil.
func New(p *Params) (*FSRS, error) {
	if p == nil {
		p = DefaultParams()
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fsrs parameters: %w", err)
	}
	decay := -p.Weights[20]
	return &FSRS{
		p:      *p,
		decay:  decay,
		factor: math.Pow(0.9, 1/decay) - 1,
	}, nil
}

// Apply runs one review through the model.
func (m *FSRS) Apply(c Card, grade domain.Grade, now time.Time) (Card, error) {
	if !grade.IsValid() {
		return Card{}, fmt.Errorf("%w: %d", domain.ErrInvalidGrade, int(grade))
	}
	if c.State < Learning || c.State > Relearning {
		return Card{}, fmt.Errorf("unsupported memory state %s", c.State)
	}

	next := c
	var elapsed float64
	if c.LastReview != nil {
		elapsed = math.Max(now.Sub(*c.LastReview).Hours()/24, 0)
	}

	if c.Stability <= 0 {
		next.Stability = m.initStability(grade)
		if c.Difficulty > 0 {
			next.Difficulty = m.nextDifficulty(clampD(c.Difficulty), grade)
		} else {
			next.Difficulty = clampD(m.initDifficulty(grade))
		}
	} else {
		d := clampD(c.Difficulty)
		if elapsed < 1 {
			next.Stability = m.shortTermStability(c.Stability, grade)
		} else {
			r := m.retrievability(elapsed, c.Stability)
			next.Stability = m.nextStability(d, c.Stability, r, grade)
		}
		next.Difficulty = m.nextDifficulty(d, grade)
	}

	reviewed := now
	next.LastReview = &reviewed
	next.ReviewCount++

	switch {
	case grade == domain.Again && c.State == Review:
		next.State = Relearning
		next.LapseCount++
		next.Due = now.Add(m.p.RelearningStep)
	case grade == domain.Again:
		next.Due = now.Add(m.p.RelearningStep)
	default:
		next.State = Review
		next.Due = now.AddDate(0, 0, m.nextInterval(next.Stability))
	}
	return next, nil
}

// Retrievability is the probability of recalling a card of the given
// stability after elapsedDays.
func (m *FSRS) Retrievability(elapsedDays, stability float64) float64 {
	if stability <= 0 {
		return 0
	}
	return m.retrievability(math.Max(elapsedDays, 0), stability)
}

func (m *FSRS) retrievability(elapsedDays, stability float64) float64 {
	return math.Pow(1+m.factor*elapsedDays/stability, m.decay)
}

func (m *FSRS) initStability(g domain.Grade) float64 {
	return clampS(m.p.Weights[g-1])
}

// initDifficulty is left unclamped because mean reversion targets the raw
// value for Easy.
func (m *FSRS) initDifficulty(g domain.Grade) float64 {
	w := m.p.Weights
	return w[4] - math.Exp(w[5]*float64(g-1)) + 1
}

// nextInterval converts stability into whole days at the desired retention.
func (m *FSRS) nextInterval(stability float64) int {
	ivl := stability / m.factor * (math.Pow(m.p.DesiredRetention, 1/m.decay) - 1)
	days := int(math.Round(ivl))
	if days < 1 {
		days = 1
	}
	if days > m.p.MaximumInterval {
		days = m.p.MaximumInterval
	}
	return days
}

func (m *FSRS) shortTermStability(s float64, g domain.Grade) float64 {
	w := m.p.Weights
	inc := math.Exp(w[17]*(float64(g)-3+w[18])) * math.Pow(s, -w[19])
	if g.Recalled() {
		inc = math.Max(inc, 1)
	}
	return clampS(s * inc)
}

func (m *FSRS) nextDifficulty(d float64, g domain.Grade) float64 {
	w := m.p.Weights
	delta := -w[6] * (float64(g) - 3)
	damped := d + (10-d)*delta/9
	return clampD(w[7]*m.initDifficulty(domain.Easy) + (1-w[7])*damped)
}

func (m *FSRS) nextStability(d, s, r float64, g domain.Grade) float64 {
	if g == domain.Again {
		return clampS(m.forgetStability(d, s, r))
	}
	return clampS(m.recallStability(d, s, r, g))
}

func (m *FSRS) recallStability(d, s, r float64, g domain.Grade) float64 {
	w := m.p.Weights
	bonus := 1.0
	switch g {
	case domain.Hard:
		bonus = w[15]
	case domain.Easy:
		bonus = w[16]
	}
	return s * (1 + math.Exp(w[8])*(11-d)*math.Pow(s, -w[9])*(math.Exp((1-r)*w[10])-1)*bonus)
}

func (m *FSRS) forgetStability(d, s, r float64) float64 {
	w := m.p.Weights
	long := w[11] * math.Pow(d, -w[12]) * (math.Pow(s+1, w[13]) - 1) * math.Exp((1-r)*w[14])
	short := s / math.Exp(w[17]*w[18])
	return math.Min(long, short)
}

func clampS(s float64) float64 {
	return math.Max(s, 0.001)
}

func clampD(d float64) float64 {
	return math.Min(math.Max(d, 1), 10)
}
