// Package api provides the query/suggest/search/stats REST surface for
// akumulid: the one front-end that talks to internal/query.Processor
// rather than writing to the engine directly (spec.md §4.3: "The HTTP
// server is the only one that uses the query pipeline").
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akumuli/akumulid-edge/internal/api/middleware"
	"github.com/akumuli/akumulid-edge/internal/query"
)

// Server is the query/management REST API server.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds a Server bound to addr, serving proc's query pipeline. An
// empty apiKey disables the X-API-Key check.
func New(addr string, apiKey string, proc *query.Processor, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := &handler{proc: proc, logger: logger}
	registerRoutes(engine, h, apiKey)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{logger: logger, engine: engine, httpServer: httpServer}
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
