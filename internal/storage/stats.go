package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/memorium/internal/domain"
)

// ScheduleSummary is the state and due time of one schedule.
type ScheduleSummary struct {
	CardID int64
	State  domain.State
	DueAt  time.Time
}

// ModuleSchedules returns the schedule summary of every card in a module.
func (db *DB) ModuleSchedules(ctx context.Context, moduleID int64) ([]ScheduleSummary, error) {
	var rows []struct {
		CardID int64 `db:"card_id"`
		State  int   `db:"state"`
		DueAt  int64 `db:"due_at"`
	}
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT s.card_id, s.state, s.due_at
		FROM schedules s JOIN cards c ON c.id = s.card_id
		WHERE c.module_id = ?
		ORDER BY s.card_id
	`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedules for module %d: %w", moduleID, err)
	}
	out := make([]ScheduleSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, ScheduleSummary{CardID: r.CardID, State: domain.State(r.State), DueAt: fromMillis(r.DueAt)})
	}
	return out, nil
}

// CountStates counts the schedules of a user's cards per lifecycle state.
// States with no cards are absent from the map.
func (db *DB) CountStates(ctx context.Context, userID int64) (map[domain.State]int, error) {
	var rows []struct {
		State int `db:"state"`
		N     int `db:"n"`
	}
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT s.state, COUNT(*) AS n
		FROM schedules s
		JOIN cards c ON c.id = s.card_id
		JOIN modules m ON m.id = c.module_id
		WHERE m.user_id = ?
		GROUP BY s.state
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count states for user %d: %w", userID, err)
	}
	counts := make(map[domain.State]int, len(rows))
	for _, r := range rows {
		counts[domain.State(r.State)] = r.N
	}
	return counts, nil
}

// ModuleDue is the number of a module's cards due before some instant.
type ModuleDue struct {
	ModuleID int64  `db:"module_id" json:"module_id"`
	Title    string `db:"title" json:"title"`
	Due      int    `db:"due" json:"due"`
}

// DueCounts returns, for each of the user's modules, how many cards are due
// strictly before the given instant. Modules with nothing due are included.
func (db *DB) DueCounts(ctx context.Context, userID int64, before time.Time) ([]ModuleDue, error) {
	var out []ModuleDue
	err := db.conn.SelectContext(ctx, &out, `
		SELECT m.id AS module_id, m.title,
		       COALESCE(SUM(CASE WHEN s.due_at < ? THEN 1 ELSE 0 END), 0) AS due
		FROM modules m
		LEFT JOIN cards c ON c.module_id = m.id
		LEFT JOIN schedules s ON s.card_id = c.id
		WHERE m.user_id = ?
		GROUP BY m.id, m.title
		ORDER BY m.id
	`, toMillis(before), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count due cards for user %d: %w", userID, err)
	}
	return out, nil
}
