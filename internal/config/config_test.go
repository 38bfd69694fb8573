package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/memorium/internal/domain"
	"github.com/conorfennell/memorium/internal/fsrs"
	"github.com/conorfennell/memorium/internal/lifecycle"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory so no stray .env is read.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
	assert.Equal(t, 18, cfg.Lifecycle().MasteredReviewCount)
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "memorium.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: from-file.db
http:
  addr: ":9000"
schedule:
  timezone: Europe/Berlin
  mastered_review_count: 10
fsrs:
  relearning_step: 5m
sync:
  interval: 1h
`), 0o644))

	t.Setenv("MEMORIUM_HTTP__ADDR", ":9100")
	t.Setenv("MEMORIUM_GOAL__DEFAULT_DAILY_GOAL", "30")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--db_path", "from-flag.db"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "from-flag.db", cfg.DBPath)
	assert.Equal(t, ":9100", cfg.HTTP.Addr)
	assert.Equal(t, "Europe/Berlin", cfg.Schedule.Timezone)
	assert.Equal(t, 10, cfg.Schedule.MasteredReviewCount)
	assert.Equal(t, 30, cfg.Goal.DefaultDailyGoal)
	assert.Equal(t, 5*time.Minute, cfg.FSRS.RelearningStep)
	assert.Equal(t, time.Hour, cfg.Sync.Interval)
	assert.Equal(t, 3, cfg.Schedule.GraduationGoodCount, "untouched keys keep their defaults")
}

func TestLoadIgnoresModeFlags(t *testing.T) {
	isolate(t)

	flags := pflag.NewFlagSet("memorium", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.String("create-user", "", "")
	flags.String("add-module", "", "")
	flags.Int64("user", 0, "")
	flags.Bool("sync", false, "")
	flags.Bool("serve", false, "")
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--serve", "--sync.interval", "2m"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "repos", cfg.Sync.ReposDir)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)

	require.NoError(t, flags.Parse([]string{"--sync"}))
	cfg, err = Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "repos", cfg.Sync.ReposDir)
}

func TestPredictStepsReachMachine(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "memorium.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schedule:\n  predict_steps: 4\n"), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	params, err := cfg.FSRSParams()
	require.NoError(t, err)
	model, err := fsrs.New(params)
	require.NoError(t, err)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	m := lifecycle.NewMachine(model, cfg.Lifecycle(), time.UTC)
	steps, err := m.Predict(domain.NewSchedule(1, now), lifecycle.DefaultPredictGrade, 0, now)
	require.NoError(t, err)
	assert.Len(t, steps, 4)
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MEMORIUM_DB_PATH=from-dotenv.db\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("MEMORIUM_DB_PATH") })

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.db", cfg.DBPath)
}

func TestLoadRejectsInvalid(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{"unknown timezone", "schedule:\n  timezone: Mars/Olympus\n"},
		{"retention out of range", "fsrs:\n  desired_retention: 1.5\n"},
		{"goal too large", "goal:\n  default_daily_goal: 5000\n"},
		{"wrong weight count", "fsrs:\n  weights: [1, 2, 3]\n"},
		{"weight out of bounds", "fsrs:\n  weights: [0.2, 1.2, 3.2, 15.7, 7.1, 0.5, 1.4, 0.005, 1.5, 0.1, 1.0, 1.9, 0.1, 0.3, 2.3, 0.2, 2.9, 0.5, 0.3, 0.1, -5]\n"},
		{"unknown log level", "log:\n  level: loud\n"},
		{"bad yaml", "db_path: [\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := isolate(t)
			path := filepath.Join(dir, "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o644))
			_, err := Load(path, nil)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
