// Package server implements the multi-protocol acceptor framework named in
// spec.md §2: a registry mapping a protocol name to a server factory, the
// UDP batch ingestor with its worker pool and in-band stop protocol, a
// pipelined TCP front-end shared by RESP and OpenTSDB telnet, an HTTP
// front-end wrapping internal/api, and the shared signal handler all
// concrete servers start and stop against. The acceptor shape — SO_REUSEPORT
// listen helpers, per-connection goroutines, pooled buffers, graceful
// Stop(timeout) — is grounded on the teacher's udp_server.go/tcp_server.go.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/akumuli/akumulid-edge/internal/engine"
)

// Server is implemented by every concrete front-end (TcpServer, UdpServer,
// HttpServer per spec.md §2.3). Run blocks until ctx is cancelled or a
// fatal startup error occurs; Stop requests a graceful shutdown bounded by
// a fixed deadline (UdpServer additionally waits on its stop barrier from
// barrier.go within that deadline).
type Server interface {
	Run(ctx context.Context) error
	Stop() error
}

// Factory builds a named Server instance from config. Concrete servers
// self-register a Factory under their protocol name via init(), mirroring
// internal/proto's parser registry.
type Factory func(settings ServerSettings) (Server, error)

// ServerSettings is the subset of parsed config a Factory needs: the bind
// address, the engine connection, and (for TCP/UDP) the wire protocol and
// pool size. NewRunner translates the config's [HTTP]/[TCP]/[UDP]/
// [OpenTSDB] sections into one ServerSettings per configured endpoint.
type ServerSettings struct {
	Name     string
	Addr     string
	Protocol string
	PoolSize int

	Engine  *engine.Connection
	Signals *SignalHandler
	Logger  *slog.Logger
	ApiKey  string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a named server factory. Called from each server file's
// init().
func Register(protocol string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[protocol] = f
}

// New looks up the factory registered under settings.Protocol and
// constructs a Server from it.
func New(settings ServerSettings) (Server, error) {
	registryMu.RLock()
	f, ok := registry[settings.Protocol]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("server: no factory registered for protocol %q", settings.Protocol)
	}
	return f(settings)
}
