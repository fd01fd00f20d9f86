package adminhttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"intraday/internal/engine"
	"intraday/internal/execution"
	"intraday/internal/logger"
	"intraday/internal/market"
	"intraday/internal/store"
	"intraday/internal/throttle"
	"intraday/internal/types"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

func (s *Server) handleSessionList(c *gin.Context) {
	status := types.SessionStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	if status != "" && status != types.StatusActive && status != types.StatusStopped {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status 只能是 ACTIVE 或 STOPPED"})
		return
	}
	list, err := s.cfg.Store.List(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []types.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list, "count": len(list)})
}

func (s *Server) handleSessionDetail(c *gin.Context) {
	sess, err := s.cfg.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (s *Server) handleSessionTrades(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.cfg.Store.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	trades, err := s.cfg.Store.ListTrades(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if trades == nil {
		trades = []types.Trade{}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "trades": trades})
}

func (s *Server) handleSessionErrors(c *gin.Context) {
	id := c.Param("id")
	recs, err := s.cfg.Store.ListErrors(c.Request.Context(), id, listLimit(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if recs == nil {
		recs = []types.ErrorRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "errors": recs})
}

func (s *Server) handleApprove(c *gin.Context) {
	sess, err := s.cfg.Controller.Approve(c.Request.Context(), c.Param("id"), s.cfg.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	logger.Infof("HTTP: session %s approved", sess.ID)
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (s *Server) handleClose(c *gin.Context) {
	trade, err := s.cfg.Controller.CloseManual(c.Request.Context(), c.Param("id"), s.cfg.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": trade})
}

func (s *Server) handleStop(c *gin.Context) {
	sess, err := s.cfg.Controller.Stop(c.Request.Context(), c.Param("id"), s.cfg.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (s *Server) handleFrequencyGet(c *gin.Context) {
	if s.cfg.Frequency == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "频率配置未启用"})
		return
	}
	snap := s.cfg.Frequency.Snapshot()
	c.JSON(http.StatusOK, gin.H{"version": snap.Version, "loaded_at": snap.LoadedAt, "frequency": snap.Config})
}

func (s *Server) handleFrequencyPut(c *gin.Context) {
	if s.cfg.Frequency == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "频率配置未启用"})
		return
	}
	var cfg throttle.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.cfg.Frequency.Save(cfg); err != nil {
		writeError(c, err)
		return
	}
	snap := s.cfg.Frequency.Snapshot()
	logger.Infof("HTTP: frequency config updated to version %d", snap.Version)
	c.JSON(http.StatusOK, gin.H{"version": snap.Version, "loaded_at": snap.LoadedAt, "frequency": snap.Config})
}

func (s *Server) handleBacktestList(c *gin.Context) {
	runs, err := s.cfg.Store.ListBacktestRuns(c.Request.Context(), listLimit(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]store.BacktestRun, len(runs))
	for i, r := range runs {
		r.Report = nil
		out[i] = r
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func listLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

// writeError 将领域错误映射为 HTTP 状态码。
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNotStopped), errors.Is(err, engine.ErrNoOpenTrade):
		status = http.StatusConflict
	case errors.Is(err, types.ErrInvalidSession), errors.Is(err, throttle.ErrConfiguration):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, execution.ErrExecutionFailed), errors.Is(err, market.ErrDataUnavailable):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("HTTP %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
