package httptransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/satishbabariya/relq/internal/debug"
	"github.com/satishbabariya/relq/service"
)

// Server hosts a service until its context is cancelled.
type Server struct {
	Addr            string
	Service         *service.Service
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
}

// Serve listens on Addr. See ServeListener.
func (s *Server) Serve(ctx context.Context, background ...func(context.Context) error) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr, err)
	}
	return s.ServeListener(ctx, ln, background...)
}

// ServeListener serves on ln and runs every background task alongside.
// It returns when ctx is cancelled or any task fails, after shutting the
// HTTP server down gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener, background ...func(context.Context) error) error {
	logger := debug.Or(s.Logger, "server")
	timeout := s.ShutdownTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: NewHandler(s.Service, logger),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	for _, task := range background {
		task := task
		eg.Go(func() error {
			return task(egctx)
		})
	}

	eg.Go(func() error {
		logger.Info("serving", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
