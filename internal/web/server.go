// Package web exposes grading, prediction, progress and statistics as a
// JSON API. Callers identify themselves with the X-User-ID header; every
// card and module route checks that the caller owns the resource.
package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/memorium/internal/decksync"
	"github.com/conorfennell/memorium/internal/domain"
	"github.com/conorfennell/memorium/internal/review"
	"github.com/conorfennell/memorium/internal/stats"
	"github.com/conorfennell/memorium/internal/storage"
	"github.com/conorfennell/memorium/internal/streak"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserHeader carries the caller's user ID.
const UserHeader = "X-User-ID"

const userKey = "user_id"

// Deps are the services the server routes to. Syncer may be nil, which
// disables the sync route.
type Deps struct {
	DB      *storage.DB
	Reviews *review.Service
	Streaks *streak.Service
	Stats   *stats.Service
	Syncer  *decksync.Syncer
	Logger  *zap.Logger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	Deps
	router *gin.Engine
}

// NewServer creates and configures a new server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{Deps: deps, router: gin.New()}
	s.router.Use(gin.Recovery(), s.logRequests())
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/")
	api.Use(requireUser())

	cards := api.Group("/cards/:id")
	cards.Use(s.requireCardOwner())
	cards.POST("/review", s.handleReview)
	cards.GET("/prediction", s.handlePrediction)
	cards.POST("/reset", s.handleReset)

	api.GET("/progress", s.handleProgress)
	api.PUT("/settings", s.handleSettings)

	api.GET("/stats/weekly", s.handleWeekly)
	api.GET("/stats/daily", s.handleDaily)
	api.GET("/stats/learning", s.handleLearning)
	api.GET("/stats/modules", s.handleModuleDue)

	api.GET("/modules", s.handleListModules)
	api.POST("/modules", s.handleAddModule)
	module := api.Group("/modules/:id")
	module.Use(s.requireModuleOwner())
	module.GET("/stats", s.handleModuleStats)
	module.DELETE("", s.handleDeleteModule)

	if s.Syncer != nil {
		api.POST("/sync", s.handleSync)
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("Request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(UserHeader), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope{Error: apiError{
				Message: "missing or invalid " + UserHeader + " header",
				Code:    "unauthorized",
			}})
			return
		}
		c.Set(userKey, id)
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(userKey)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorEnvelope{Error: apiError{
			Message: "invalid id " + strconv.Quote(c.Param("id")),
			Code:    "bad_request",
		}})
		return 0, false
	}
	return id, true
}

func (s *Server) requireCardOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		owner, err := s.DB.CardOwner(c.Request.Context(), id)
		if err != nil {
			s.abort(c, err)
			return
		}
		if owner != userID(c) {
			s.abort(c, domain.ErrForbidden)
			return
		}
		c.Set("card_id", id)
		c.Next()
	}
}

func (s *Server) requireModuleOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		m, err := s.DB.GetModule(c.Request.Context(), id)
		if err != nil {
			s.abort(c, err)
			return
		}
		if m.UserID != userID(c) {
			s.abort(c, domain.ErrForbidden)
			return
		}
		c.Set("module_id", id)
		c.Next()
	}
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// abort maps domain errors onto HTTP statuses.
func (s *Server) abort(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrInvalidGrade),
		errors.Is(err, domain.ErrInvalidDailyGoal),
		errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrInvalidSource):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrConcurrentModification):
		status, code = http.StatusConflict, "retry"
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.Logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, errorEnvelope{Error: apiError{Message: msg, Code: code}})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorEnvelope{Error: apiError{Message: err.Error(), Code: "bad_request"}})
}
