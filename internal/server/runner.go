package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/akumuli/akumulid-edge/internal/config"
	"github.com/akumuli/akumulid-edge/internal/engine"
)

// Runner orchestrates the whole daemon: it opens the engine connection,
// builds one Server per configured endpoint via the registry, and drives
// them from a shared SignalHandler until a graceful stop is requested —
// the main routine spec.md §4.1 describes: "for each [ServerSettings],
// the main routine looks up the factory by settings.name and instantiates
// one server."
type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	conn    *engine.Connection
	signals *SignalHandler
	servers []Server
}

// NewRunner opens the engine connection at cfg.Path and builds every
// configured server, but does not start them.
func NewRunner(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	conn, err := engine.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("runner: open engine: %w", err)
	}

	signals := NewSignalHandler()
	r := &Runner{cfg: cfg, logger: logger, conn: conn, signals: signals}

	specs := []struct {
		name     string
		protocol string
		ep       config.EndpointConfig
	}{
		{"HTTP", "HTTP", cfg.HTTP},
		{"TCP", "RESP", cfg.TCP},
		{"UDP", "UDP", cfg.UDP},
		{"OpenTSDB", "OpenTSDB", cfg.OpenTSDB},
	}

	for _, spec := range specs {
		settings := ServerSettings{
			Name:     spec.name,
			Addr:     net.JoinHostPort(spec.ep.BindAddr, strconv.Itoa(spec.ep.Port)),
			Protocol: spec.protocol,
			PoolSize: spec.ep.PoolSize,
			Engine:   conn,
			Signals:  signals,
			Logger:   logger,
			ApiKey:   cfg.APIKey,
		}
		srv, err := New(settings)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("runner: build %s server: %w", spec.name, err)
		}
		r.servers = append(r.servers, srv)
	}

	return r, nil
}

// Run starts every server against the signal handler's context: a
// registered SIGINT/SIGTERM cancels it, and each Server's own Run
// implementation reacts by calling its Stop. Run blocks until every
// server has returned.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-r.signals.Context().Done()
		cancel()
	}()

	errCh := make(chan error, len(r.servers))
	for _, srv := range r.servers {
		s := srv
		go func() {
			errCh <- s.Run(ctx)
		}()
	}

	var firstErr error
	for range r.servers {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.conn.Close()
	if r.logger != nil {
		r.logger.Info("all servers stopped")
	}
	return firstErr
}

// Stop forces an immediate shutdown without waiting for a signal.
func (r *Runner) Stop() {
	r.signals.Stop()
}
