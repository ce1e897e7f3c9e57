// Package api exposes the ordering engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mschirtzinger/tasktree/internal/dashboard"
	"github.com/mschirtzinger/tasktree/internal/duedate"
	"github.com/mschirtzinger/tasktree/internal/ordering"
	"github.com/mschirtzinger/tasktree/internal/tasks"
)

const mod = "api"

// Config configures the HTTP server.
type Config struct {
	Addr   string
	Logger zerolog.Logger

	// Dashboard, when set, is mounted at /ws.
	Dashboard *dashboard.Server
}

// Server serves the REST API.
type Server struct {
	engine *ordering.Engine
	due    *duedate.Parser
	router *gin.Engine
	addr   string
	logger zerolog.Logger
}

// New builds the router for engine.
func New(engine *ordering.Engine, config Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine: engine,
		due:    duedate.New(),
		router: gin.New(),
		addr:   config.Addr,
		logger: config.Logger.With().Str("mod", mod).Logger(),
	}
	if s.addr == "" {
		s.addr = ":8080"
	}

	s.router.Use(s.requestLogger())
	s.router.Use(gin.Recovery())

	s.router.GET("/health", s.health)
	if config.Dashboard != nil {
		s.router.GET("/ws", gin.WrapH(config.Dashboard.Routes()))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/lists", s.getLists)
		v1.POST("/lists", s.postList)
		v1.PATCH("/lists/:list", s.patchList)
		v1.DELETE("/lists/:list", s.deleteList)
		v1.GET("/lists/:list/tasks", s.getTasks)
		v1.POST("/lists/:list/tasks", s.postTask)
		v1.GET("/lists/:list/verify", s.verifyList)
		v1.DELETE("/tasks/:id", s.deleteTask)
		v1.POST("/tasks/:id/toggle-indent", s.toggleIndent)
	}

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("shutdown failed")
		return err
	}
	s.logger.Info().Msg("shutdown")
	return nil
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch tasks.Kind(err) {
	case tasks.KindNotFound:
		return http.StatusNotFound
	case tasks.KindInvalidOperation:
		return http.StatusUnprocessableEntity
	case tasks.KindIntegrity:
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Send()
	}
	body := gin.H{
		"error": err.Error(),
		"kind":  tasks.Kind(err).String(),
	}
	var verr *ordering.VerifyError
	if errors.As(err, &verr) {
		body["problems"] = verr.Problems
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		s.logger.Info().
			Int("code", c.Writer.Status()).
			Str("method", c.Request.Method).
			Str("path", c.Request.RequestURI).
			TimeDiff("latency", time.Now(), startTime).
			Send()
	}
}
