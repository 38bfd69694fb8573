package domain

import "fmt"

// Grade is the learner's assessment of how well a card was recalled.
// 1: Again (forgot)
// 2: Hard
// 3: Good
// 4: Easy
type Grade int

const (
	Again Grade = iota + 1
	Hard
	Good
	Easy
)

var gradeNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

// ParseGrade converts the integer received at the API boundary into a Grade.
func ParseGrade(v int) (Grade, error) {
	g := Grade(v)
	if !g.IsValid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidGrade, v)
	}
	return g, nil
}

// IsValid reports whether g is one of Again, Hard, Good or Easy.
func (g Grade) IsValid() bool {
	return g >= Again && g <= Easy
}

// Recalled reports whether the grade counts as a successful recall for
// graduation and daily goals.
func (g Grade) Recalled() bool {
	return g == Good || g == Easy
}

func (g Grade) String() string {
	if g.IsValid() {
		return gradeNames[g]
	}
	return fmt.Sprintf("Grade(%d)", int(g))
}
