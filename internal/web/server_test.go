package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/conorfennell/memorium/internal/decksync"
	"github.com/conorfennell/memorium/internal/domain"
	"github.com/conorfennell/memorium/internal/fsrs"
	"github.com/conorfennell/memorium/internal/lifecycle"
	"github.com/conorfennell/memorium/internal/review"
	"github.com/conorfennell/memorium/internal/stats"
	"github.com/conorfennell/memorium/internal/storage"
	"github.com/conorfennell/memorium/internal/streak"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	srv      *Server
	deps     Deps
	db       *storage.DB
	clock    *lifecycle.FixedClock
	userID   int64
	otherID  int64
	moduleID int64
	cardID   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	userID, err := db.CreateUser(ctx, "erin", 0)
	require.NoError(t, err)
	otherID, err := db.CreateUser(ctx, "frank", 0)
	require.NoError(t, err)
	moduleID, err := db.InsertModule(ctx, domain.Module{UserID: userID, Title: "Italian"})
	require.NoError(t, err)
	cardID, err := db.InsertCard(ctx, domain.Card{ModuleID: moduleID, Hash: "h", Front: "ciao", Back: "hi"}, t0)
	require.NoError(t, err)

	model, err := fsrs.New(nil)
	require.NoError(t, err)
	clock := lifecycle.NewFixedClock(t0)
	machine := lifecycle.NewMachine(model, lifecycle.DefaultConfig(), time.UTC)

	deps := Deps{
		DB:      db,
		Reviews: review.NewService(db, machine, clock, nil),
		Streaks: streak.NewService(db, clock, time.UTC, nil),
		Stats:   stats.NewService(db, clock, time.UTC),
	}
	return &fixture{srv: NewServer(deps), deps: deps, db: db, clock: clock, userID: userID, otherID: otherID, moduleID: moduleID, cardID: cardID}
}

// withSyncer rebuilds the server with module sources enabled.
func (f *fixture) withSyncer(t *testing.T) {
	t.Helper()
	f.deps.Syncer = decksync.New(f.db, f.clock, t.TempDir(), nil)
	f.srv = NewServer(f.deps)
}

func (f *fixture) do(t *testing.T, user int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != 0 {
		req.Header.Set(UserHeader, strconv.FormatInt(user, 10))
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) cardPath(suffix string) string {
	return "/cards/" + strconv.FormatInt(f.cardID, 10) + suffix
}

func TestReviewEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, f.userID, http.MethodPost, f.cardPath("/review"), map[string]int{"grade": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Schedule struct {
			State        string `json:"state"`
			LearningStep int    `json:"learning_step"`
		} `json:"schedule"`
		Event struct {
			StateBefore string `json:"state_before"`
		} `json:"event"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "learning", res.Schedule.State)
	assert.Equal(t, 1, res.Schedule.LearningStep)
	assert.Equal(t, "new", res.Event.StateBefore)
}

func TestReviewEndpointErrors(t *testing.T) {
	f := newFixture(t)
	testCases := []struct {
		name   string
		user   int64
		path   string
		body   any
		status int
	}{
		{"no user", 0, f.cardPath("/review"), map[string]int{"grade": 3}, http.StatusUnauthorized},
		{"invalid grade", f.userID, f.cardPath("/review"), map[string]int{"grade": 7}, http.StatusBadRequest},
		{"missing grade", f.userID, f.cardPath("/review"), map[string]int{}, http.StatusBadRequest},
		{"zero grade", f.userID, f.cardPath("/review"), map[string]int{"grade": 0}, http.StatusBadRequest},
		{"not owner", f.otherID, f.cardPath("/review"), map[string]int{"grade": 3}, http.StatusForbidden},
		{"unknown card", f.userID, "/cards/999/review", map[string]int{"grade": 3}, http.StatusNotFound},
		{"bad id", f.userID, "/cards/abc/review", map[string]int{"grade": 3}, http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.user, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	for _, grade := range []int{0, 5, -1} {
		rec := f.do(t, f.userID, http.MethodPost, f.cardPath("/review"), map[string]int{"grade": grade})
		env := decode[errorEnvelope](t, rec)
		assert.Equal(t, "bad_request", env.Error.Code)
		assert.Contains(t, env.Error.Message, domain.ErrInvalidGrade.Error(), "grade %d", grade)
	}

	events, err := f.db.ListEvents(context.Background(), storage.EventFilter{CardID: f.cardID})
	require.NoError(t, err)
	assert.Empty(t, events, "rejected requests write nothing")
}

func TestPredictionEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, f.userID, http.MethodGet, f.cardPath("/prediction?steps=4"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	steps := decode[[]lifecycle.PredictedStep](t, rec)
	require.Len(t, steps, 4)
	assert.Equal(t, 1, steps[0].Step)
	assert.Equal(t, domain.Learning, steps[0].State)

	rec = f.do(t, f.userID, http.MethodGet, f.cardPath("/prediction"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]lifecycle.PredictedStep](t, rec), lifecycle.DefaultPredictSteps)

	rec = f.do(t, f.userID, http.MethodGet, f.cardPath("/prediction?grade=9"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetEndpoint(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, f.userID, http.MethodPost, f.cardPath("/review"), map[string]int{"grade": 4}).Code)

	rec := f.do(t, f.userID, http.MethodPost, f.cardPath("/reset"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sched := decode[domain.Schedule](t, rec)
	assert.Equal(t, domain.New, sched.State)
}

func TestProgressAndSettings(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, f.userID, http.MethodPut, "/settings", map[string]int{"daily_goal": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, f.userID, http.MethodPut, "/settings", map[string]int{"daily_goal": 1001})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, f.userID, http.MethodPut, "/settings", map[string]int{"daily_goal": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, f.userID, http.MethodGet, "/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[streak.Progress](t, rec)
	assert.Equal(t, streak.Progress{DailyGoal: 1}, p)
}

func TestStatsEndpoints(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, f.userID, http.MethodPost, f.cardPath("/review"), map[string]int{"grade": 3}).Code)

	rec := f.do(t, f.userID, http.MethodGet, "/stats/weekly", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]stats.WeekDay](t, rec), 7)

	rec = f.do(t, f.userID, http.MethodGet, "/stats/daily?from=2025-03-09&to=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []stats.DayStats{{Date: "2025-03-09"}, {Date: "2025-03-10", New: 1}}, decode[[]stats.DayStats](t, rec))

	rec = f.do(t, f.userID, http.MethodGet, "/stats/daily?from=2025-03-10&to=2025-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, f.otherID, http.MethodGet, "/stats/daily?module_id="+strconv.FormatInt(f.moduleID, 10), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, f.userID, http.MethodGet, "/stats/learning", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, stats.StateCounts{Total: 1, Learning: 1}, decode[stats.StateCounts](t, rec))

	rec = f.do(t, f.userID, http.MethodGet, "/stats/modules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []storage.ModuleDue{{ModuleID: f.moduleID, Title: "Italian", Due: 1}}, decode[[]storage.ModuleDue](t, rec))

	modulePath := "/modules/" + strconv.FormatInt(f.moduleID, 10)
	rec = f.do(t, f.userID, http.MethodGet, modulePath+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ms struct {
		Total        int `json:"total"`
		Learning     int `json:"learning"`
		RecentEvents []struct {
			Front string `json:"front"`
		} `json:"recent_events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ms))
	assert.Equal(t, 1, ms.Total)
	assert.Equal(t, 1, ms.Learning)
	require.Len(t, ms.RecentEvents, 1)
	assert.Equal(t, "ciao", ms.RecentEvents[0].Front)

	rec = f.do(t, f.otherID, http.MethodGet, modulePath+"/stats", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestModuleRoutes(t *testing.T) {
	f := newFixture(t)
	modulePath := "/modules/" + strconv.FormatInt(f.moduleID, 10)

	rec := f.do(t, f.userID, http.MethodGet, "/modules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Module](t, rec), 1)

	rec = f.do(t, f.userID, http.MethodPost, "/modules", map[string]string{"path": "/tmp/decks"})
	assert.Equal(t, http.StatusNotImplemented, rec.Code, "no syncer configured")
	assert.Equal(t, "not_implemented", decode[errorEnvelope](t, rec).Error.Code)
	rec = f.do(t, f.userID, http.MethodPost, "/sync", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, http.StatusForbidden, f.do(t, f.otherID, http.MethodDelete, modulePath, nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, f.userID, http.MethodDelete, modulePath, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, f.userID, http.MethodPost, f.cardPath("/review"), map[string]int{"grade": 3}).Code)
}

func TestAddModuleSources(t *testing.T) {
	f := newFixture(t)
	f.withSyncer(t)

	for _, path := range []string{
		"/",
		"/etc",
		"decks/spanish",
		"https://example.com/../../../tmp/x.git",
		"git@example.com:../../../tmp/x.git",
	} {
		rec := f.do(t, f.userID, http.MethodPost, "/modules", map[string]string{"path": path})
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	rec := f.do(t, f.userID, http.MethodPost, "/modules", map[string]string{"path": "https://github.com/someone/italian.git"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[domain.Module](t, rec)
	assert.Equal(t, domain.ModuleGit, m.Kind)
	assert.Equal(t, f.userID, m.UserID)

	modules, err := f.db.ListModules(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, modules, 2, "only the git source was registered")
}

func TestSyncOnlyTouchesCallerModules(t *testing.T) {
	f := newFixture(t)
	f.withSyncer(t)
	ctx := context.Background()

	// A source of another user that cannot be synced: any attempt fails.
	_, err := f.db.InsertModule(ctx, domain.Module{
		UserID: f.otherID,
		Title:  "gone",
		Path:   filepath.Join(t.TempDir(), "gone"),
		Kind:   domain.ModuleLocal,
	})
	require.NoError(t, err)

	rec := f.do(t, f.userID, http.MethodPost, "/sync", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, f.otherID, http.MethodPost, "/sync", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
