package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/memorium/internal/domain"
)

type userRow struct {
	ID               int64  `db:"id"`
	DailyGoal        int    `db:"daily_goal"`
	CurrentStreak    int    `db:"current_streak"`
	MaxStreak        int    `db:"max_streak"`
	LastStreakUpdate string `db:"last_streak_update"`
}

// CreateUser inserts a user with the given daily goal and returns its ID.
func (db *DB) CreateUser(ctx context.Context, name string, dailyGoal int) (int64, error) {
	if dailyGoal <= 0 {
		dailyGoal = domain.DefaultDailyGoal
	}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (name, daily_goal) VALUES (?, ?)
	`, name, dailyGoal)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for user %q: %w", name, err)
	}
	return id, nil
}

// GetStreakState loads the goal and streak bookkeeping of a user.
func (db *DB) GetStreakState(ctx context.Context, userID int64) (domain.UserStreakState, error) {
	var row userRow
	err := db.conn.GetContext(ctx, &row, `
		SELECT id, daily_goal, current_streak, max_streak, last_streak_update
		FROM users WHERE id = ?
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserStreakState{}, fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
		}
		return domain.UserStreakState{}, fmt.Errorf("failed to get streak state for user %d: %w", userID, err)
	}
	goal := row.DailyGoal
	if goal <= 0 {
		goal = domain.DefaultDailyGoal
	}
	return domain.UserStreakState{
		UserID:           row.ID,
		DailyGoal:        goal,
		CurrentStreak:    row.CurrentStreak,
		MaxStreak:        row.MaxStreak,
		LastStreakUpdate: row.LastStreakUpdate,
	}, nil
}

// SaveStreak persists the streak counters and the date they were computed for.
func (db *DB) SaveStreak(ctx context.Context, st domain.UserStreakState) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE users
		SET current_streak = ?, max_streak = ?, last_streak_update = ?
		WHERE id = ?
	`, st.CurrentStreak, st.MaxStreak, st.LastStreakUpdate, st.UserID)
	if err != nil {
		return fmt.Errorf("failed to save streak for user %d: %w", st.UserID, err)
	}
	return expectOne(res, fmt.Sprintf("user %d", st.UserID))
}

// SetDailyGoal updates a user's daily goal.
func (db *DB) SetDailyGoal(ctx context.Context, userID int64, goal int) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE users SET daily_goal = ? WHERE id = ?
	`, goal, userID)
	if err != nil {
		return fmt.Errorf("failed to set daily goal for user %d: %w", userID, err)
	}
	return expectOne(res, fmt.Sprintf("user %d", userID))
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
