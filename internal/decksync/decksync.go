// Package decksync reconciles modules with the deck files they are backed
// by: new cards are inserted with a New schedule and cards whose content no
// longer appears in the source are deleted along with their history.
package decksync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/memorium/internal/cardhash"
	"github.com/conorfennell/memorium/internal/domain"
	"github.com/conorfennell/memorium/internal/gitsource"
	"github.com/conorfennell/memorium/internal/lifecycle"
	"github.com/conorfennell/memorium/internal/parser"
	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Store is the persistence the syncer needs.
type Store interface {
	InsertModule(ctx context.Context, m domain.Module) (int64, error)
	FindModuleByPath(ctx context.Context, userID int64, path string) (*domain.Module, error)
	ListModules(ctx context.Context, userID int64) ([]domain.Module, error)
	UpdateModuleLastScanned(ctx context.Context, id int64, at time.Time) error
	FindCardByHash(ctx context.Context, moduleID int64, hash string) (*domain.Card, error)
	InsertCard(ctx context.Context, card domain.Card, now time.Time) (int64, error)
	GetCardsByModule(ctx context.Context, moduleID int64) ([]domain.Card, error)
	DeleteCard(ctx context.Context, id int64) error
}

// Report summarizes the reconciliation of one module.
type Report struct {
	ModuleID int64
	Parsed   int
	Inserted int
	Deleted  int
	Errors   []error
}

// Syncer reconciles modules against their sources.
type Syncer struct {
	store    Store
	clock    lifecycle.Clock
	reposDir string
	logger   *zap.Logger
}

// New creates a Syncer that checks git sources out under reposDir.
func New(store Store, clock lifecycle.Clock, reposDir string, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{store: store, clock: clock, reposDir: reposDir, logger: logger}
}

// AddModule registers a deck source for a user. Git URLs become git
// modules; anything else is a local directory. Adding the same path twice
// returns the existing module.
func (s *Syncer) AddModule(ctx context.Context, userID int64, path string) (domain.Module, error) {
	kind := domain.ModuleLocal
	if gitsource.IsRemote(path) {
		kind = domain.ModuleGit
		if _, err := gitsource.LocalPath(s.reposDir, path); err != nil {
			return domain.Module{}, err
		}
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return domain.Module{}, fmt.Errorf("failed to resolve path %s: %w", path, err)
		}
		path = abs
	}

	existing, err := s.store.FindModuleByPath(ctx, userID, path)
	if err != nil {
		return domain.Module{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	m := domain.Module{
		UserID: userID,
		Title:  strings.TrimSuffix(filepath.Base(path), ".git"),
		Path:   path,
		Kind:   kind,
	}
	if m.ID, err = s.store.InsertModule(ctx, m); err != nil {
		return domain.Module{}, err
	}
	s.logger.Info("Module added", zap.Int64("module_id", m.ID), zap.String("kind", string(kind)), zap.String("path", path))
	return m, nil
}

// Run reconciles every module that has a source. A failing module is logged
// and skipped; the first such error is returned after all modules ran.
func (s *Syncer) Run(ctx context.Context) error {
	return s.run(ctx, 0)
}

// RunForUser is Run restricted to the modules of one user.
func (s *Syncer) RunForUser(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("invalid user %d: %w", userID, domain.ErrNotFound)
	}
	return s.run(ctx, userID)
}

func (s *Syncer) run(ctx context.Context, userID int64) error {
	modules, err := s.store.ListModules(ctx, userID)
	if err != nil {
		return err
	}

	var firstErr error
	for _, m := range modules {
		if m.Path == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.SyncModule(ctx, m); err != nil {
			s.logger.Error("Module sync failed", zap.Int64("module_id", m.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SyncModule reconciles one module with its source.
func (s *Syncer) SyncModule(ctx context.Context, m domain.Module) (Report, error) {
	dir := m.Path
	if m.Kind == domain.ModuleGit {
		local, err := gitsource.LocalPath(s.reposDir, m.Path)
		if err != nil {
			return Report{}, err
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return Report{}, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := gitsource.Sync(ctx, m.Path, local, s.logger); err != nil {
			return Report{}, err
		}
		dir = local
	}

	rep, err := s.reconcile(ctx, m.ID, dir)
	if err != nil {
		return rep, err
	}
	if err := s.store.UpdateModuleLastScanned(ctx, m.ID, s.clock.Now()); err != nil {
		rep.Errors = append(rep.Errors, err)
	}

	s.logger.Info("Module reconciled",
		zap.Int64("module_id", m.ID),
		zap.String("dir", dir),
		zap.Int("parsed", rep.Parsed),
		zap.Int("inserted", rep.Inserted),
		zap.Int("deleted", rep.Deleted),
		zap.Int("errors", len(rep.Errors)),
	)
	return rep, nil
}

func (s *Syncer) reconcile(ctx context.Context, moduleID int64, dir string) (Report, error) {
	rep := Report{ModuleID: moduleID}
	seen := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}

		cards, err := parser.ParseFile(path)
		if err != nil {
			rep.Errors = append(rep.Errors, err)
			return nil
		}
		for _, card := range cards {
			card.ModuleID = moduleID
			card.Hash = cardhash.Sum(card)
			rep.Parsed++
			if seen[card.Hash] {
				continue
			}
			seen[card.Hash] = true

			existing, err := s.store.FindCardByHash(ctx, moduleID, card.Hash)
			if err != nil {
				rep.Errors = append(rep.Errors, err)
				continue
			}
			if existing != nil {
				continue
			}
			if _, err := s.store.InsertCard(ctx, card, s.clock.Now()); err != nil {
				rep.Errors = append(rep.Errors, err)
				continue
			}
			rep.Inserted++
		}
		return nil
	})
	if walkErr != nil {
		return rep, fmt.Errorf("failed to walk %s: %w", dir, walkErr)
	}

	// Orphans are only removed after a clean walk.
	if len(rep.Errors) > 0 {
		return rep, nil
	}
	cards, err := s.store.GetCardsByModule(ctx, moduleID)
	if err != nil {
		return rep, err
	}
	for _, c := range cards {
		if seen[c.Hash] {
			continue
		}
		if err := s.store.DeleteCard(ctx, c.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			rep.Errors = append(rep.Errors, err)
			continue
		}
		s.logger.Debug("Orphaned card deleted", zap.Int64("card_id", c.ID), zap.String("hash", c.Hash))
		rep.Deleted++
	}
	return rep, nil
}

// Schedule runs Run every interval until the returned stop function is
// called. Runs never overlap.
func (s *Syncer) Schedule(ctx context.Context, interval time.Duration) (stop func(), err error) {
	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()
	_, err = sched.Every(interval).Do(func() {
		if err := s.Run(ctx); err != nil {
			s.logger.Warn("Scheduled sync finished with errors", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule sync: %w", err)
	}
	sched.StartAsync()
	s.logger.Info("Periodic sync scheduled", zap.Duration("interval", interval))
	return sched.Stop, nil
}
