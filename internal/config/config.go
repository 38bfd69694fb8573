// Package config loads the application configuration from defaults, an
// optional .env file, an optional YAML file, MEMORIUM_ environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/conorfennell/memorium/internal/domain"
	"github.com/conorfennell/memorium/internal/fsrs"
	"github.com/conorfennell/memorium/internal/lifecycle"
	"github.com/conorfennell/memorium/internal/logging"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read. A double underscore
// separates nesting levels: MEMORIUM_HTTP__ADDR sets http.addr.
const EnvPrefix = "MEMORIUM_"

type Config struct {
	DBPath   string         `koanf:"db_path" validate:"required"`
	HTTP     HTTPConfig     `koanf:"http"`
	Log      logging.Config `koanf:"log"`
	Schedule ScheduleConfig `koanf:"schedule"`
	FSRS     FSRSConfig     `koanf:"fsrs"`
	Goal     GoalConfig     `koanf:"goal"`
	Sync     SyncConfig     `koanf:"sync"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

// ScheduleConfig drives the lifecycle state machine. Timezone fixes the
// calendar used for every day boundary.
type ScheduleConfig struct {
	Timezone             string `koanf:"timezone" validate:"required"`
	GraduationGoodCount  int    `koanf:"graduation_good_count" validate:"gte=1"`
	RecencyWindowDays    int    `koanf:"recency_window_days" validate:"gte=0"`
	MasteredReviewCount  int    `koanf:"mastered_review_count" validate:"gte=1"`
	LapseResetDifficulty bool   `koanf:"lapse_reset_difficulty"`
	PredictSteps         int    `koanf:"predict_steps" validate:"gte=1,lte=50"`
}

type FSRSConfig struct {
	DesiredRetention float64       `koanf:"desired_retention" validate:"gt=0,lt=1"`
	MaximumInterval  int           `koanf:"maximum_interval" validate:"gte=1"`
	RelearningStep   time.Duration `koanf:"relearning_step" validate:"gte=0"`
	// Weights overrides the 21 default FSRS weights when set.
	Weights []float64 `koanf:"weights" validate:"omitempty,len=21"`
}

type GoalConfig struct {
	DefaultDailyGoal int `koanf:"default_daily_goal" validate:"gte=1,lte=1000"`
}

// SyncConfig controls module sources. A zero Interval disables periodic sync.
type SyncConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gte=0"`
	ReposDir string        `koanf:"repos_dir" validate:"required"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	lc := lifecycle.DefaultConfig()
	fp := fsrs.DefaultParams()
	return &Config{
		DBPath: "memorium.db",
		HTTP:   HTTPConfig{Addr: ":8080"},
		Log:    logging.DefaultConfig(),
		Schedule: ScheduleConfig{
			Timezone:             "UTC",
			GraduationGoodCount:  lc.GraduationGoodCount,
			RecencyWindowDays:    lc.RecencyWindowDays,
			MasteredReviewCount:  lc.MasteredReviewCount,
			LapseResetDifficulty: lc.LapseResetDifficulty,
			PredictSteps:         lifecycle.DefaultPredictSteps,
		},
		FSRS: FSRSConfig{
			DesiredRetention: fp.DesiredRetention,
			MaximumInterval:  fp.MaximumInterval,
			RelearningStep:   fp.RelearningStep,
		},
		Goal: GoalConfig{DefaultDailyGoal: domain.DefaultDailyGoal},
		Sync: SyncConfig{ReposDir: "repos"},
	}
}

// Load builds the configuration. path names an optional YAML file and flags
// an optional parsed flag set holding the flags of RegisterFlags (e.g.
// --db_path, --http.addr). Other flags in the set are ignored. Only flags set
// on the command line, or keys nothing else provided, are taken from flags.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(configFlags(flags), ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and that the timezone exists.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.FSRSParams(); err != nil {
		return err
	}
	return nil
}

// Location resolves Schedule.Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

// FSRSParams returns the validated memory-model parameters.
func (c *Config) FSRSParams() (*fsrs.Params, error) {
	p := fsrs.DefaultParams()
	p.DesiredRetention = c.FSRS.DesiredRetention
	p.MaximumInterval = c.FSRS.MaximumInterval
	p.RelearningStep = c.FSRS.RelearningStep
	if len(c.FSRS.Weights) > 0 {
		copy(p.Weights[:], c.FSRS.Weights)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fsrs parameters: %w", err)
	}
	return p, nil
}

// Lifecycle returns the state machine settings.
func (c *Config) Lifecycle() lifecycle.Config {
	return lifecycle.Config{
		GraduationGoodCount:  c.Schedule.GraduationGoodCount,
		RecencyWindowDays:    c.Schedule.RecencyWindowDays,
		MasteredReviewCount:  c.Schedule.MasteredReviewCount,
		LapseResetDifficulty: c.Schedule.LapseResetDifficulty,
		PredictSteps:         c.Schedule.PredictSteps,
	}
}

// flagKeys are the configuration keys RegisterFlags exposes as flags.
var flagKeys = []string{
	"db_path",
	"http.addr",
	"log.level",
	"schedule.timezone",
	"sync.interval",
	"sync.repos_dir",
}

// RegisterFlags adds a flag for the most commonly overridden keys, with the
// defaults of Default.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("db_path", d.DBPath, "Path to the SQLite database file")
	flags.String("http.addr", d.HTTP.Addr, "HTTP listen address")
	flags.String("log.level", d.Log.Level, "Log level: debug, info, warn or error")
	flags.String("schedule.timezone", d.Schedule.Timezone, "IANA timezone for day boundaries")
	flags.Duration("sync.interval", d.Sync.Interval, "Period of the background sync in --serve mode (0 disables)")
	flags.String("sync.repos_dir", d.Sync.ReposDir, "Directory for git source checkouts")
}

// configFlags returns a view of flags holding only the configuration keys.
// A mode flag such as --sync would otherwise collide with the sync section.
func configFlags(flags *pflag.FlagSet) *pflag.FlagSet {
	out := pflag.NewFlagSet(flags.Name(), pflag.ContinueOnError)
	for _, key := range flagKeys {
		if f := flags.Lookup(key); f != nil {
			out.AddFlag(f)
		}
	}
	return out
}
