// Package web exposes the bridge over HTTP for browser-side node widgets.
// Every handler answers 200 with a {success, error?, ...} envelope; remote
// failures are payload, never transport faults.
package web

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kmori/shotpipe/internal/config"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/pipe"
	"github.com/kmori/shotpipe/internal/session"
)

// Server is the HTTP surface. Besides the session cache it keeps one
// mutex-guarded selection pipe, mirroring the single-artist workflow of the
// node surface.
type Server struct {
	echo  *echo.Echo
	cache *session.Cache
	cfg   *config.Config
	hist  *sql.DB
	log   *slog.Logger

	mu     sync.Mutex
	site   string
	creds  flow.Credentials
	user   string
	authed bool
	pipe   pipe.Pipe
}

// NewServer creates the server with all routes registered under /vfx-flow.
// hist may be nil; the history endpoint then returns an empty log.
func NewServer(cache *session.Cache, cfg *config.Config, hist *sql.DB, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, cache: cache, cfg: cfg, hist: hist, log: log}
	e.Use(s.requestLog)

	g := e.Group("/vfx-flow")
	g.POST("/login", s.handleLogin)
	g.GET("/status", s.handleStatus)
	g.POST("/logout", s.handleLogout)
	g.GET("/projects", s.handleProjects)
	g.GET("/sequences", s.handleSequences)
	g.GET("/shots", s.handleShots)
	g.GET("/tasks", s.handleTasks)
	g.GET("/versions", s.handleVersions)
	g.POST("/select", s.handleSelect)
	g.GET("/history", s.handleHistory)

	return s
}

// Handler returns the underlying HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		s.log.Info("http",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", c.Response().Status,
		)
		return err
	}
}

// Run starts the server and blocks until SIGINT/SIGTERM or a listen error,
// then shuts down gracefully within the configured timeout.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Web.Bind, s.cfg.Web.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	s.log.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-sigCh:
		s.log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Web.ShutdownTimeout)
		defer cancel()
		return s.echo.Shutdown(ctx)
	}
}
