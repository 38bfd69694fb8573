package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/conorfennell/memorium/internal/domain"
	"github.com/conorfennell/memorium/internal/gitsource"
	"github.com/gin-gonic/gin"
)

// Grade is checked by review.Service.Grade.
type reviewRequest struct {
	Grade int `json:"grade"`
}

// POST /cards/:id/review
func (s *Server) handleReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.Reviews.Grade(c.Request.Context(), userID(c), c.GetInt64("card_id"), req.Grade)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /cards/:id/prediction?grade=3&steps=6
func (s *Server) handlePrediction(c *gin.Context) {
	grade, err := queryInt(c, "grade")
	if err != nil {
		badRequest(c, err)
		return
	}
	steps, err := queryInt(c, "steps")
	if err != nil {
		badRequest(c, err)
		return
	}
	if steps > maxPredictSteps {
		steps = maxPredictSteps
	}
	pred, err := s.Reviews.Predict(c.Request.Context(), c.GetInt64("card_id"), grade, steps)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, pred)
}

const maxPredictSteps = 50

// POST /cards/:id/reset
func (s *Server) handleReset(c *gin.Context) {
	sched, err := s.Reviews.Reset(c.Request.Context(), c.GetInt64("card_id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

// GET /progress
func (s *Server) handleProgress(c *gin.Context) {
	p, err := s.Streaks.Progress(c.Request.Context(), userID(c))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type settingsRequest struct {
	DailyGoal int `json:"daily_goal"`
}

// PUT /settings
func (s *Server) handleSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.Streaks.SetDailyGoal(c.Request.Context(), userID(c), req.DailyGoal); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"daily_goal": req.DailyGoal})
}

// GET /stats/weekly
func (s *Server) handleWeekly(c *gin.Context) {
	week, err := s.Stats.Weekly(c.Request.Context(), userID(c))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, week)
}

// GET /stats/daily?from=YYYY-MM-DD&to=YYYY-MM-DD&module_id=
func (s *Server) handleDaily(c *gin.Context) {
	moduleID, err := queryInt(c, "module_id")
	if err != nil {
		badRequest(c, err)
		return
	}
	if moduleID != 0 {
		m, err := s.DB.GetModule(c.Request.Context(), int64(moduleID))
		if err != nil {
			s.abort(c, err)
			return
		}
		if m.UserID != userID(c) {
			s.abort(c, domain.ErrForbidden)
			return
		}
	}
	days, err := s.Stats.Daily(c.Request.Context(), userID(c), c.Query("from"), c.Query("to"), int64(moduleID))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, days)
}

// GET /stats/learning
func (s *Server) handleLearning(c *gin.Context) {
	counts, err := s.Stats.LearningProgress(c.Request.Context(), userID(c))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// GET /stats/modules
func (s *Server) handleModuleDue(c *gin.Context) {
	due, err := s.Stats.ModuleDue(c.Request.Context(), userID(c))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, due)
}

// GET /modules/:id/stats
func (s *Server) handleModuleStats(c *gin.Context) {
	st, err := s.Stats.Module(c.Request.Context(), c.GetInt64("module_id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GET /modules
func (s *Server) handleListModules(c *gin.Context) {
	modules, err := s.DB.ListModules(c.Request.Context(), userID(c))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, modules)
}

type addModuleRequest struct {
	Path string `json:"path" binding:"required"`
}

// POST /modules accepts git sources only. Local directories are registered
// from the command line.
func (s *Server) handleAddModule(c *gin.Context) {
	if s.Syncer == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, errorEnvelope{Error: apiError{
			Message: "module sources are disabled",
			Code:    "not_implemented",
		}})
		return
	}
	var req addModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !gitsource.IsRemote(req.Path) {
		s.abort(c, fmt.Errorf("%w: only git repositories can be added over HTTP", domain.ErrInvalidSource))
		return
	}
	m, err := s.Syncer.AddModule(c.Request.Context(), userID(c), req.Path)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// DELETE /modules/:id
func (s *Server) handleDeleteModule(c *gin.Context) {
	if err := s.DB.DeleteModule(c.Request.Context(), c.GetInt64("module_id")); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /sync reconciles the caller's modules in the foreground so the
// caller sees the result.
func (s *Server) handleSync(c *gin.Context) {
	if err := s.Syncer.RunForUser(c.Request.Context(), userID(c)); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
