package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/akumuli/akumulid-edge/internal/api"
	"github.com/akumuli/akumulid-edge/internal/query"
)

func init() {
	Register("HTTP", NewHttpServer)
}

const httpStopDeadline = 5 * time.Second

// HttpServer wraps internal/api.Server as a Server, the only front-end
// that drives the query pipeline (spec.md §4.3).
type HttpServer struct {
	inner *api.Server
}

// NewHttpServer is the Factory registered under "HTTP".
func NewHttpServer(settings ServerSettings) (Server, error) {
	proc := query.NewProcessor(settings.Engine)
	inner := api.New(settings.Addr, settings.ApiKey, proc, settings.Logger)
	return &HttpServer{inner: inner}, nil
}

// Run serves HTTP until ctx is cancelled.
func (s *HttpServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.inner.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *HttpServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), httpStopDeadline)
	defer cancel()
	return s.inner.Shutdown(ctx)
}
