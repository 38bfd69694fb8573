package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/memorium/internal/domain"
	"github.com/jmoiron/sqlx"
)

type scheduleRow struct {
	CardID               int64         `db:"card_id"`
	State                int           `db:"state"`
	Stability            float64       `db:"stability"`
	Difficulty           float64       `db:"difficulty"`
	ReviewCount          int           `db:"review_count"`
	LapseCount           int           `db:"lapse_count"`
	DueAt                int64         `db:"due_at"`
	LastReviewedAt       sql.NullInt64 `db:"last_reviewed_at"`
	LearningStep         int           `db:"learning_step"`
	ConsecutiveGoodCount int           `db:"consecutive_good_count"`
	LastGoodAt           sql.NullInt64 `db:"last_good_at"`
	Version              int64         `db:"version"`
}

func (r scheduleRow) toDomain() domain.Schedule {
	return domain.Schedule{
		CardID:               r.CardID,
		State:                domain.State(r.State),
		Stability:            r.Stability,
		Difficulty:           r.Difficulty,
		ReviewCount:          r.ReviewCount,
		LapseCount:           r.LapseCount,
		DueAt:                fromMillis(r.DueAt),
		LastReviewedAt:       fromNullMillis(r.LastReviewedAt),
		LearningStep:         r.LearningStep,
		ConsecutiveGoodCount: r.ConsecutiveGoodCount,
		LastGoodAt:           fromNullMillis(r.LastGoodAt),
		Version:              r.Version,
	}
}

// GetSchedule loads the schedule of a card. It returns domain.ErrScheduleMissing
// when the card exists without a schedule and domain.ErrNotFound when the
// card itself does not exist.
func (db *DB) GetSchedule(ctx context.Context, cardID int64) (domain.Schedule, error) {
	var row scheduleRow
	err := db.conn.GetContext(ctx, &row, `SELECT * FROM schedules WHERE card_id = ?`, cardID)
	if err == nil {
		return row.toDomain(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Schedule{}, fmt.Errorf("failed to get schedule of card %d: %w", cardID, err)
	}

	var exists bool
	if err := db.conn.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM cards WHERE id = ?)`, cardID); err != nil {
		return domain.Schedule{}, fmt.Errorf("failed to check card %d: %w", cardID, err)
	}
	if !exists {
		return domain.Schedule{}, fmt.Errorf("card %d: %w", cardID, domain.ErrNotFound)
	}
	return domain.Schedule{}, fmt.Errorf("card %d: %w", cardID, domain.ErrScheduleMissing)
}

// EnsureSchedule creates a New schedule for a card that lacks one. It is a
// no-op when the schedule exists.
func (db *DB) EnsureSchedule(ctx context.Context, cardID int64, now time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO schedules (card_id, state, due_at) VALUES (?, ?, ?)
	`, cardID, int(domain.New), toMillis(now))
	if err != nil {
		return fmt.Errorf("failed to create schedule for card %d: %w", cardID, err)
	}
	return nil
}

// ApplyReview writes a graded schedule and appends its review event as one
// unit. s.Version must be the version the schedule was read at; if the row
// has moved on since, nothing is written and domain.ErrConcurrentModification
// is returned.
func (db *DB) ApplyReview(ctx context.Context, s domain.Schedule, ev domain.ReviewEvent) error {
	if ev.CardID != s.CardID {
		return fmt.Errorf("event for card %d applied to schedule of card %d: %w",
			ev.CardID, s.CardID, domain.ErrConsistencyViolation)
	}
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE schedules
			SET state = ?, stability = ?, difficulty = ?, review_count = ?, lapse_count = ?,
			    due_at = ?, last_reviewed_at = ?, learning_step = ?, consecutive_good_count = ?,
			    last_good_at = ?, version = version + 1
			WHERE card_id = ? AND version = ?
		`,
			int(s.State), s.Stability, s.Difficulty, s.ReviewCount, s.LapseCount,
			toMillis(s.DueAt), nullMillis(s.LastReviewedAt), s.LearningStep, s.ConsecutiveGoodCount,
			nullMillis(s.LastGoodAt),
			s.CardID, s.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update schedule of card %d: %w", s.CardID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows for card %d: %w", s.CardID, err)
		}
		switch {
		case n == 0:
			return fmt.Errorf("card %d at version %d: %w", s.CardID, s.Version, domain.ErrConcurrentModification)
		case n > 1:
			return fmt.Errorf("card %d updated %d schedules: %w", s.CardID, n, domain.ErrConsistencyViolation)
		}
		return insertEvent(ctx, tx, ev)
	})
}

// ResetCard puts a card back to its New schedule and deletes its review
// events. The previous history cannot be recovered.
func (db *DB) ResetCard(ctx context.Context, cardID int64, now time.Time) (domain.Schedule, error) {
	fresh := domain.NewSchedule(cardID, now)
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM cards WHERE id = ?)`, cardID); err != nil {
			return fmt.Errorf("failed to check card %d: %w", cardID, err)
		}
		if !exists {
			return fmt.Errorf("card %d: %w", cardID, domain.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM review_events WHERE card_id = ?`, cardID); err != nil {
			return fmt.Errorf("failed to delete review events of card %d: %w", cardID, err)
		}
		var version int64
		err := tx.GetContext(ctx, &version, `SELECT version FROM schedules WHERE card_id = ?`, cardID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return insertSchedule(ctx, tx, fresh)
		case err != nil:
			return fmt.Errorf("failed to read schedule of card %d: %w", cardID, err)
		}
		fresh.Version = version + 1
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE card_id = ?`, cardID); err != nil {
			return fmt.Errorf("failed to clear schedule of card %d: %w", cardID, err)
		}
		return insertSchedule(ctx, tx, fresh)
	})
	if err != nil {
		return domain.Schedule{}, err
	}
	return fresh, nil
}

func insertSchedule(ctx context.Context, tx *sqlx.Tx, s domain.Schedule) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO schedules (card_id, state, stability, difficulty, review_count, lapse_count,
		                       due_at, last_reviewed_at, learning_step, consecutive_good_count,
		                       last_good_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.CardID, int(s.State), s.Stability, s.Difficulty, s.ReviewCount, s.LapseCount,
		toMillis(s.DueAt), nullMillis(s.LastReviewedAt), s.LearningStep, s.ConsecutiveGoodCount,
		nullMillis(s.LastGoodAt), s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule for card %d: %w", s.CardID, err)
	}
	return nil
}
