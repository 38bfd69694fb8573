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

type moduleRow struct {
	ID          int64         `db:"id"`
	UserID      int64         `db:"user_id"`
	Title       string        `db:"title"`
	Path        string        `db:"path"`
	Kind        string        `db:"kind"`
	LastScanned sql.NullInt64 `db:"last_scanned"`
}

func (r moduleRow) toDomain() domain.Module {
	return domain.Module{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Path:        r.Path,
		Kind:        domain.ModuleKind(r.Kind),
		LastScanned: fromNullMillis(r.LastScanned),
	}
}

const moduleColumns = `id, user_id, title, path, kind, last_scanned`

// InsertModule inserts a new module and returns its ID.
func (db *DB) InsertModule(ctx context.Context, m domain.Module) (int64, error) {
	if m.Kind == "" {
		m.Kind = domain.ModuleLocal
	}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO modules (user_id, title, path, kind)
		VALUES (?, ?, ?, ?)
	`, m.UserID, m.Title, m.Path, string(m.Kind))
	if err != nil {
		return 0, fmt.Errorf("failed to insert module %q: %w", m.Title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for module %q: %w", m.Title, err)
	}
	return id, nil
}

// GetModule retrieves a module by its ID.
func (db *DB) GetModule(ctx context.Context, id int64) (domain.Module, error) {
	var row moduleRow
	err := db.conn.GetContext(ctx, &row, `SELECT `+moduleColumns+` FROM modules WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Module{}, fmt.Errorf("module %d: %w", id, domain.ErrNotFound)
		}
		return domain.Module{}, fmt.Errorf("failed to get module %d: %w", id, err)
	}
	return row.toDomain(), nil
}

// FindModuleByPath retrieves a user's module synced from path.
func (db *DB) FindModuleByPath(ctx context.Context, userID int64, path string) (*domain.Module, error) {
	var row moduleRow
	err := db.conn.GetContext(ctx, &row, `
		SELECT `+moduleColumns+` FROM modules WHERE user_id = ? AND path = ?
	`, userID, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Module not found
		}
		return nil, fmt.Errorf("failed to find module by path %s: %w", path, err)
	}
	m := row.toDomain()
	return &m, nil
}

// ListModules returns the modules of a user, or of every user when userID is 0.
func (db *DB) ListModules(ctx context.Context, userID int64) ([]domain.Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules`
	var args []any
	if userID != 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id`

	var rows []moduleRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	modules := make([]domain.Module, 0, len(rows))
	for _, r := range rows {
		modules = append(modules, r.toDomain())
	}
	return modules, nil
}

// UpdateModuleLastScanned records when a module's source was last synced.
func (db *DB) UpdateModuleLastScanned(ctx context.Context, id int64, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE modules SET last_scanned = ? WHERE id = ?
	`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for module %d: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("module %d", id))
}

// DeleteModule removes a module with all of its cards, schedules, examples
// and review events in one transaction.
func (db *DB) DeleteModule(ctx context.Context, id int64) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		cardScope := `SELECT id FROM cards WHERE module_id = ?`
		for _, q := range []string{
			`DELETE FROM review_events WHERE card_id IN (` + cardScope + `)`,
			`DELETE FROM card_examples WHERE card_id IN (` + cardScope + `)`,
			`DELETE FROM schedules WHERE card_id IN (` + cardScope + `)`,
			`DELETE FROM cards WHERE module_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("failed to delete contents of module %d: %w", id, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM modules WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete module %d: %w", id, err)
		}
		return expectOne(res, fmt.Sprintf("module %d", id))
	})
}
