package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// NewRouter serves /health and /metrics.
func NewRouter(m *Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())
	return r
}

// Serve answers on l until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, l net.Listener, m *Metrics, logger *logrus.Logger) error {
	srv := &http.Server{
		Handler:           NewRouter(m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(l)
	}()
	logger.WithField("addr", l.Addr().String()).Info("monitor listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("monitor shutdown")
		return err
	}
	logger.Debug("monitor stopped")
	return nil
}

// Run listens on addr and serves until ctx is done.
func Run(ctx context.Context, addr string, m *Metrics, logger *logrus.Logger) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, l, m, logger)
}
