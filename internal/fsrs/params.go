package fsrs

import (
	"fmt"
	"time"
)

// DefaultWeights are the published FSRS-6 default weights.
var DefaultWeights = [21]float64{
	0.212, 1.2931, 2.3065, 8.2956, // w0..w3 initial stability per grade
	6.4133, 0.8334, 3.0194, 0.001, // w4..w7 difficulty
	1.8722, 0.1666, 0.796, 1.4835, // w8..w11 recall stability
	0.0614, 0.2629, 1.6483, 0.6014, // w12..w15 forget stability, hard penalty
	1.8729, 0.5425, 0.0912, 0.0658, // w16..w19 easy bonus, short-term
	0.1542, // w20 decay
}

var (
	lowerBounds = [21]float64{
		0.001, 0.001, 0.001, 0.001,
		1.0, 0.001, 0.001, 0.001,
		0.0, 0.0, 0.001, 0.001,
		0.001, 0.001, 0.0, 0.0,
		1.0, 0.0, 0.0, 0.0,
		0.1,
	}
	upperBounds = [21]float64{
		100.0, 100.0, 100.0, 100.0,
		10.0, 4.0, 4.0, 0.75,
		4.5, 0.8, 3.5, 5.0,
		0.25, 0.9, 4.0, 1.0,
		6.0, 2.0, 2.0, 0.8,
		0.8,
	}
)

// Params holds the tunables of the memory model.
type Params struct {
	Weights          [21]float64
	DesiredRetention float64       // target recall probability at the due date
	MaximumInterval  int           // days
	RelearningStep   time.Duration // delay after a failed recall
}

// DefaultParams provides the parameters used when nothing is configured.
func DefaultParams() *Params {
	return &Params{
		Weights:          DefaultWeights,
		DesiredRetention: 0.9,
		MaximumInterval:  36500,
		RelearningStep:   10 * time.Minute,
	}
}

// Validate checks every weight against its bound and the scalar settings
// against their ranges.
func (p *Params) Validate() error {
	for i, w := range p.Weights {
		if w < lowerBounds[i] || w > upperBounds[i] {
			return fmt.Errorf("weight w[%d] = %f outside [%f, %f]", i, w, lowerBounds[i], upperBounds[i])
		}
	}
	if p.DesiredRetention <= 0 || p.DesiredRetention >= 1 {
		return fmt.Errorf("desired retention %f outside (0, 1)", p.DesiredRetention)
	}
	if p.MaximumInterval < 1 {
		return fmt.Errorf("maximum interval %d must be at least one day", p.MaximumInterval)
	}
	if p.RelearningStep < 0 {
		return fmt.Errorf("relearning step %s must not be negative", p.RelearningStep)
	}
	return nil
}
