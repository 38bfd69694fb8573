package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conorfennell/memorium/internal/config"
	"github.com/conorfennell/memorium/internal/decksync"
	"github.com/conorfennell/memorium/internal/fsrs"
	"github.com/conorfennell/memorium/internal/lifecycle"
	"github.com/conorfennell/memorium/internal/logging"
	"github.com/conorfennell/memorium/internal/review"
	"github.com/conorfennell/memorium/internal/stats"
	"github.com/conorfennell/memorium/internal/storage"
	"github.com/conorfennell/memorium/internal/streak"
	"github.com/conorfennell/memorium/internal/web"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	// 1. Define and parse command-line flags
	flags := pflag.NewFlagSet("memorium", pflag.ExitOnError)
	configPath := flags.String("config", "", "Path to a YAML config file")
	createUser := flags.String("create-user", "", "Create a user with this name and print its ID")
	addModule := flags.String("add-module", "", "Register a deck directory or git URL for --user")
	userID := flags.Int64("user", 0, "User ID that --add-module registers the module for")
	runSync := flags.Bool("sync", false, "Reconcile all modules with their sources and exit")
	serve := flags.Bool("serve", false, "Run the HTTP API")
	config.RegisterFlags(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	// 2. Load configuration and build the logger
	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 3. Open the database
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database opened", zap.String("path", cfg.DBPath))

	// 4. Wire the services
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("Invalid timezone", zap.Error(err))
	}
	params, err := cfg.FSRSParams()
	if err != nil {
		logger.Fatal("Invalid FSRS parameters", zap.Error(err))
	}
	model, err := fsrs.New(params)
	if err != nil {
		logger.Fatal("Failed to create memory model", zap.Error(err))
	}
	clock := lifecycle.SystemClock{}
	machine := lifecycle.NewMachine(model, cfg.Lifecycle(), loc)
	syncer := decksync.New(db, clock, cfg.Sync.ReposDir, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *createUser != "":
		id, err := db.CreateUser(ctx, *createUser, cfg.Goal.DefaultDailyGoal)
		if err != nil {
			logger.Fatal("Failed to create user", zap.Error(err))
		}
		fmt.Println(id)

	case *addModule != "":
		if *userID <= 0 {
			logger.Fatal("--add-module requires --user")
		}
		m, err := syncer.AddModule(ctx, *userID, *addModule)
		if err != nil {
			logger.Fatal("Failed to add module", zap.Error(err))
		}
		fmt.Printf("Module %d (%s) registered for user %d. Run --sync to import its cards.\n", m.ID, m.Kind, m.UserID)

	case *runSync:
		if err := syncer.Run(ctx); err != nil {
			logger.Fatal("Sync finished with errors", zap.Error(err))
		}

	case *serve:
		srv := web.NewServer(web.Deps{
			DB:      db,
			Reviews: review.NewService(db, machine, clock, logger),
			Streaks: streak.NewService(db, clock, loc, logger),
			Stats:   stats.NewService(db, clock, loc),
			Syncer:  syncer,
			Logger:  logger,
		})
		if err := runServer(ctx, cfg, srv, syncer, logger); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}

	default:
		fmt.Fprintln(os.Stderr, "Usage: memorium [--create-user NAME | --add-module PATH --user ID | --sync | --serve] [options]")
		flags.PrintDefaults()
	}
}

func runServer(ctx context.Context, cfg *config.Config, handler http.Handler, syncer *decksync.Syncer, logger *zap.Logger) error {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Sync.Interval > 0 {
		stopSync, err := syncer.Schedule(ctx, cfg.Sync.Interval)
		if err != nil {
			return err
		}
		defer stopSync()
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", cfg.HTTP.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
