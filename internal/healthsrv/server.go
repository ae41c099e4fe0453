// Package healthsrv exposes the worker process's liveness/readiness probe
// and Prometheus scrape endpoint on a small echo router, separate from
// the task-dispatch hot path.
package healthsrv

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/contentpipe/internal/metrics"
	"github.com/hrygo/contentpipe/store"
)

// Server serves /healthz (DB ping) and /metrics (Prometheus exposition).
type Server struct {
	echo    *echo.Echo
	store   *store.Store
	metrics *metrics.Exporter
	addr    string
}

func New(addr string, s *store.Store, m *metrics.Exporter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{echo: e, store: s, metrics: m, addr: addr}
	e.GET("/healthz", srv.handleHealthz)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
	return srv
}

func (s *Server) handleHealthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Start runs the health/metrics listener until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
