package fsrs

import (
	"math"
	"testing"
	"time"

	"github.com/conorfennell/memorium/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func mustModel(t *testing.T) *FSRS {
	t.Helper()
	m, err := New(nil)
	require.NoError(t, err)
	return m
}

func TestNewRejectsInvalidParams(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(p *Params)
	}{
		{"weight below bound", func(p *Params) { p.Weights[0] = -1 }},
		{"weight above bound", func(p *Params) { p.Weights[20] = 2 }},
		{"retention of one", func(p *Params) { p.DesiredRetention = 1 }},
		{"zero maximum interval", func(p *Params) { p.MaximumInterval = 0 }},
		{"negative relearning step", func(p *Params) { p.RelearningStep = -time.Minute }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			tc.modify(p)
			_, err := New(p)
			assert.Error(t, err)
		})
	}
}

func TestApplyEmptyCard(t *testing.T) {
	m := mustModel(t)

	next, err := m.Apply(EmptyCard(), domain.Good, t0)
	require.NoError(t, err)

	assert.InDelta(t, DefaultWeights[2], next.Stability, 1e-9)
	assert.InDelta(t, clampD(m.initDifficulty(domain.Good)), next.Difficulty, 1e-9)
	assert.Equal(t, Review, next.State)
	assert.Equal(t, 1, next.ReviewCount)
	assert.Equal(t, 0, next.LapseCount)
	require.NotNil(t, next.LastReview)
	assert.True(t, next.LastReview.Equal(t0))
	assert.True(t, next.Due.Equal(t0.AddDate(0, 0, 2)), "due %v", next.Due)
}

func TestApplyInvalidGrade(t *testing.T) {
	m := mustModel(t)
	for _, g := range []domain.Grade{0, 5, -1} {
		_, err := m.Apply(EmptyCard(), g, t0)
		assert.ErrorIs(t, err, domain.ErrInvalidGrade)
	}
}

func TestApplyAgainFromReviewRelearns(t *testing.T) {
	m := mustModel(t)
	last := t0.AddDate(0, 0, -10)
	card := Card{
		Stability:   10,
		Difficulty:  5,
		ReviewCount: 4,
		LapseCount:  1,
		LastReview:  &last,
		Due:         t0,
		State:       Review,
	}

	next, err := m.Apply(card, domain.Again, t0)
	require.NoError(t, err)

	assert.Equal(t, Relearning, next.State)
	assert.Equal(t, 2, next.LapseCount)
	assert.Equal(t, 5, next.ReviewCount)
	assert.Less(t, next.Stability, card.Stability)
	assert.Greater(t, next.Difficulty, card.Difficulty)
	assert.True(t, next.Due.Equal(t0.Add(10*time.Minute)))
}

func TestApplyAgainWhileLearningStaysLearning(t *testing.T) {
	m := mustModel(t)
	next, err := m.Apply(EmptyCard(), domain.Again, t0)
	require.NoError(t, err)
	assert.Equal(t, Learning, next.State)
	assert.Equal(t, 0, next.LapseCount)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	m := mustModel(t)
	last := t0.AddDate(0, 0, -3)
	card := Card{Stability: 4, Difficulty: 5, LastReview: &last, State: Review}

	_, err := m.Apply(card, domain.Good, t0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, card.Stability)
	assert.True(t, card.LastReview.Equal(last))
}

func TestHigherStabilityNeverDueEarlier(t *testing.T) {
	m := mustModel(t)
	stabilities := []float64{0.01, 0.1, 0.5, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144, 233, 377, 610}

	for _, grade := range []domain.Grade{domain.Good, domain.Easy} {
		for _, elapsedDays := range []int{0, 1, 2, 5, 10, 30, 100, 365} {
			for _, difficulty := range []float64{1, 3, 5, 7.5, 10} {
				last := t0.AddDate(0, 0, -elapsedDays)
				var prev time.Time
				for i, s := range stabilities {
					card := Card{Stability: s, Difficulty: difficulty, LastReview: &last, State: Review}
					next, err := m.Apply(card, grade, t0)
					require.NoError(t, err)
					if i > 0 {
						assert.False(t, next.Due.Before(prev),
							"grade=%s elapsed=%d d=%.1f: stability %.2f due %v before %v",
							grade, elapsedDays, difficulty, s, next.Due, prev)
					}
					prev = next.Due
				}
			}
		}
	}
}

func TestRetrievabilityAtStabilityMatchesTarget(t *testing.T) {
	m := mustModel(t)
	for _, s := range []float64{1, 7, 42} {
		assert.InDelta(t, 0.9, m.Retrievability(s, s), 1e-9)
	}
	assert.Equal(t, 0.0, m.Retrievability(3, 0))
}

func TestNextInterval(t *testing.T) {
	m := mustModel(t)
	assert.Equal(t, 16, m.nextInterval(15.6))
	assert.Equal(t, 1, m.nextInterval(0.01))

	p := DefaultParams()
	p.MaximumInterval = 30
	capped, err := New(p)
	require.NoError(t, err)
	assert.Equal(t, 30, capped.nextInterval(500))
}

func TestDifficultyStaysBounded(t *testing.T) {
	m := mustModel(t)
	d := 5.0
	for i := 0; i < 50; i++ {
		d = m.nextDifficulty(d, domain.Again)
	}
	assert.LessOrEqual(t, d, 10.0)

	for i := 0; i < 50; i++ {
		d = m.nextDifficulty(d, domain.Easy)
	}
	assert.GreaterOrEqual(t, d, 1.0)
	assert.False(t, math.IsNaN(d))
}
