package adminhttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"intraday/internal/logger"
	"intraday/internal/store"
	"intraday/internal/throttle"
	"intraday/internal/types"
)

// Controller 是会话的人工操作入口，由 engine.Engine 实现。
type Controller interface {
	Approve(ctx context.Context, id string, now time.Time) (types.Session, error)
	CloseManual(ctx context.Context, id string, now time.Time) (types.Trade, error)
	Stop(ctx context.Context, id string, now time.Time) (types.Session, error)
}

// FrequencyStore 读写全局频率配置，由 throttle.FileStore 实现。
type FrequencyStore interface {
	Snapshot() throttle.Snapshot
	Save(cfg throttle.Config) error
}

// Reader 是接口需要的只读仓储。
type Reader interface {
	store.SessionStore
	store.TradeStore
	store.ErrorStore
	store.BacktestStore
}

// Server 提供会话状态查询、人工操作与频率配置的 HTTP 服务。
type Server struct {
	addr   string
	router *gin.Engine
	cfg    Config
}

// Config 描述 HTTP 服务依赖。
type Config struct {
	Addr       string
	Controller Controller
	Store      Reader
	// Frequency 为空时 /api/frequency 返回 503。
	Frequency FrequencyStore
	Now       func() time.Time
}

// NewServer 构建 HTTP server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("admin http server requires a store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{addr: cfg.Addr, router: router, cfg: cfg}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	sessions := api.Group("/sessions")
	sessions.GET("", s.handleSessionList)
	sessions.GET("/:id", s.handleSessionDetail)
	sessions.GET("/:id/trades", s.handleSessionTrades)
	sessions.GET("/:id/errors", s.handleSessionErrors)
	if s.cfg.Controller != nil {
		sessions.POST("/:id/approve", s.handleApprove)
		sessions.POST("/:id/close", s.handleClose)
		sessions.POST("/:id/stop", s.handleStop)
	}
	api.GET("/frequency", s.handleFrequencyGet)
	api.PUT("/frequency", s.handleFrequencyPut)
	api.GET("/backtests", s.handleBacktestList)
}

// Handler 暴露路由，便于测试与嵌入。
func (s *Server) Handler() http.Handler {
	if s == nil {
		return nil
	}
	return s.router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("HTTP server listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
