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

type cardRow struct {
	ID       int64  `db:"id"`
	ModuleID int64  `db:"module_id"`
	Hash     string `db:"hash"`
	Front    string `db:"front"`
	Back     string `db:"back"`
	Context  string `db:"context"`
}

func (r cardRow) toDomain() domain.Card {
	return domain.Card{
		ID:       r.ID,
		ModuleID: r.ModuleID,
		Hash:     r.Hash,
		Front:    r.Front,
		Back:     r.Back,
		Context:  r.Context,
	}
}

const cardColumns = `id, module_id, hash, front, back, context`

// InsertCard inserts a card, its examples and its New schedule atomically,
// so a card never exists without a schedule.
func (db *DB) InsertCard(ctx context.Context, card domain.Card, now time.Time) (int64, error) {
	var id int64
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO cards (module_id, hash, front, back, context)
			VALUES (?, ?, ?, ?, ?)
		`, card.ModuleID, card.Hash, card.Front, card.Back, card.Context)
		if err != nil {
			return fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert ID for card %s: %w", card.Hash, err)
		}
		for i, ex := range card.Examples {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO card_examples (card_id, position, text) VALUES (?, ?, ?)
			`, id, i, ex); err != nil {
				return fmt.Errorf("failed to insert example %d of card %d: %w", i, id, err)
			}
		}
		return insertSchedule(ctx, tx, domain.NewSchedule(id, now))
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetCard retrieves a card and its examples.
func (db *DB) GetCard(ctx context.Context, id int64) (domain.Card, error) {
	var row cardRow
	err := db.conn.GetContext(ctx, &row, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, fmt.Errorf("card %d: %w", id, domain.ErrNotFound)
		}
		return domain.Card{}, fmt.Errorf("failed to get card %d: %w", id, err)
	}
	card := row.toDomain()
	if err := db.conn.SelectContext(ctx, &card.Examples, `
		SELECT text FROM card_examples WHERE card_id = ? ORDER BY position
	`, id); err != nil {
		return domain.Card{}, fmt.Errorf("failed to get examples of card %d: %w", id, err)
	}
	return card, nil
}

// FindCardByHash retrieves a module's card by its content hash.
func (db *DB) FindCardByHash(ctx context.Context, moduleID int64, hash string) (*domain.Card, error) {
	var row cardRow
	err := db.conn.GetContext(ctx, &row, `
		SELECT `+cardColumns+` FROM cards WHERE module_id = ? AND hash = ?
	`, moduleID, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to find card by hash %s: %w", hash, err)
	}
	card := row.toDomain()
	return &card, nil
}

// GetCardsByModule retrieves all cards of a module, without examples.
func (db *DB) GetCardsByModule(ctx context.Context, moduleID int64) ([]domain.Card, error) {
	var rows []cardRow
	if err := db.conn.SelectContext(ctx, &rows, `
		SELECT `+cardColumns+` FROM cards WHERE module_id = ? ORDER BY id
	`, moduleID); err != nil {
		return nil, fmt.Errorf("failed to get cards for module %d: %w", moduleID, err)
	}
	cards := make([]domain.Card, 0, len(rows))
	for _, r := range rows {
		cards = append(cards, r.toDomain())
	}
	return cards, nil
}

// CardOwner returns the ID of the user owning the card's module.
func (db *DB) CardOwner(ctx context.Context, cardID int64) (int64, error) {
	var userID int64
	err := db.conn.GetContext(ctx, &userID, `
		SELECT m.user_id FROM cards c JOIN modules m ON m.id = c.module_id
		WHERE c.id = ?
	`, cardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("card %d: %w", cardID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to get owner of card %d: %w", cardID, err)
	}
	return userID, nil
}

// DeleteCard removes a card with its schedule, examples and review events.
func (db *DB) DeleteCard(ctx context.Context, id int64) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			`DELETE FROM review_events WHERE card_id = ?`,
			`DELETE FROM card_examples WHERE card_id = ?`,
			`DELETE FROM schedules WHERE card_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("failed to delete dependents of card %d: %w", id, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete card %d: %w", id, err)
		}
		return expectOne(res, fmt.Sprintf("card %d", id))
	})
}
