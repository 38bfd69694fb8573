package domain

// DefaultDailyGoal is used when a user has not configured a goal.
const DefaultDailyGoal = 20

// MaxDailyGoal is the largest goal a user may configure.
const MaxDailyGoal = 1000

// UserStreakState is the per-user bookkeeping consulted by the streak
// aggregator. LastStreakUpdate is a calendar date formatted YYYY-MM-DD in
// the configured location, empty when the streak was never computed.
type UserStreakState struct {
	UserID           int64  `json:"user_id"`
	DailyGoal        int    `json:"daily_goal"`
	CurrentStreak    int    `json:"current_streak"`
	MaxStreak        int    `json:"max_streak"`
	LastStreakUpdate string `json:"last_streak_update,omitempty"`
}
