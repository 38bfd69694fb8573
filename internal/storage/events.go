package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/memorium/internal/domain"
	"github.com/jmoiron/sqlx"
)

type eventRow struct {
	ID               string `db:"id"`
	CardID           int64  `db:"card_id"`
	UserID           int64  `db:"user_id"`
	Grade            int    `db:"grade"`
	StateBefore      int    `db:"state_before"`
	GradedAt         int64  `db:"graded_at"`
	CountsTowardGoal bool   `db:"counts_toward_goal"`
}

func (r eventRow) toDomain() domain.ReviewEvent {
	return domain.ReviewEvent{
		ID:               r.ID,
		CardID:           r.CardID,
		UserID:           r.UserID,
		Grade:            domain.Grade(r.Grade),
		StateBefore:      domain.State(r.StateBefore),
		GradedAt:         fromMillis(r.GradedAt),
		CountsTowardGoal: r.CountsTowardGoal,
	}
}

func insertEvent(ctx context.Context, tx *sqlx.Tx, ev domain.ReviewEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO review_events (id, card_id, user_id, grade, state_before, graded_at, counts_toward_goal)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.CardID, ev.UserID, int(ev.Grade), int(ev.StateBefore), toMillis(ev.GradedAt), ev.CountsTowardGoal)
	if err != nil {
		return fmt.Errorf("failed to insert review event for card %d: %w", ev.CardID, err)
	}
	return nil
}

// CountGoalReviews counts the user's goal-counting reviews graded in [from, to).
func (db *DB) CountGoalReviews(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM review_events
		WHERE user_id = ? AND counts_toward_goal = 1 AND graded_at >= ? AND graded_at < ?
	`, userID, toMillis(from), toMillis(to))
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews for user %d: %w", userID, err)
	}
	return n, nil
}

// EventFilter narrows ListEvents. Zero values leave a dimension unfiltered.
type EventFilter struct {
	UserID   int64
	CardID   int64
	ModuleID int64
	From     time.Time // inclusive
	To       time.Time // exclusive
}

// ListEvents returns review events matching f, oldest first.
func (db *DB) ListEvents(ctx context.Context, f EventFilter) ([]domain.ReviewEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != 0 {
		where = append(where, "e.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.CardID != 0 {
		where = append(where, "e.card_id = ?")
		args = append(args, f.CardID)
	}
	if f.ModuleID != 0 {
		where = append(where, "c.module_id = ?")
		args = append(args, f.ModuleID)
	}
	if !f.From.IsZero() {
		where = append(where, "e.graded_at >= ?")
		args = append(args, toMillis(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "e.graded_at < ?")
		args = append(args, toMillis(f.To))
	}

	query := `
		SELECT e.id, e.card_id, e.user_id, e.grade, e.state_before, e.graded_at, e.counts_toward_goal
		FROM review_events e JOIN cards c ON c.id = e.card_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.graded_at, e.rowid"

	var rows []eventRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list review events: %w", err)
	}
	events := make([]domain.ReviewEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toDomain())
	}
	return events, nil
}

// ModuleEvent is a review event joined with the card it graded.
type ModuleEvent struct {
	domain.ReviewEvent
	Front string `json:"front"`
	Back  string `json:"back"`
}

// RecentModuleEvents returns the latest limit review events of a module,
// newest first.
func (db *DB) RecentModuleEvents(ctx context.Context, moduleID int64, limit int) ([]ModuleEvent, error) {
	var rows []struct {
		eventRow
		Front string `db:"front"`
		Back  string `db:"back"`
	}
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT e.id, e.card_id, e.user_id, e.grade, e.state_before, e.graded_at, e.counts_toward_goal,
		       c.front, c.back
		FROM review_events e JOIN cards c ON c.id = e.card_id
		WHERE c.module_id = ?
		ORDER BY e.graded_at DESC, e.rowid DESC
		LIMIT ?
	`, moduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent events for module %d: %w", moduleID, err)
	}
	events := make([]ModuleEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, ModuleEvent{ReviewEvent: r.toDomain(), Front: r.Front, Back: r.Back})
	}
	return events, nil
}
