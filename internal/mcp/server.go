// Package mcp exposes the task queue to MCP callers.
package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/HyphaGroup/portcullis/internal/agent"
	"github.com/HyphaGroup/portcullis/internal/history"
	"github.com/HyphaGroup/portcullis/internal/logger"
	"github.com/HyphaGroup/portcullis/internal/metrics"
	"github.com/HyphaGroup/portcullis/internal/task"
	"github.com/HyphaGroup/portcullis/internal/tools"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// generateRequestID creates a unique request identifier
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// ServerConfig holds MCP server tuning
type ServerConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Server wraps the MCP server around the task queue
type Server struct {
	queue     *task.Queue
	registry  *tools.Registry
	events    *agent.EventBuffer
	history   *history.Store // nil disables the task_history tool
	limiter   *RateLimiter
	mcpServer *mcp_sdk.Server
}

// NewServer creates a new MCP server instance
func NewServer(queue *task.Queue, registry *tools.Registry, events *agent.EventBuffer, hist *history.Store, cfg ServerConfig) *Server {
	s := &Server{
		queue:    queue,
		registry: registry,
		events:   events,
		history:  hist,
		limiter:  NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}

	s.mcpServer = mcp_sdk.NewServer(&mcp_sdk.Implementation{
		Name:    "portcullis",
		Version: "0.1.0",
	}, nil)

	s.registerTaskTools()
	return s
}

// Serve starts the MCP HTTP server
func (s *Server) Serve(addr string) error {
	// Streamable transport with SSE stream resumption support
	mcpHandler := mcp_sdk.NewStreamableHTTPHandler(func(req *http.Request) *mcp_sdk.Server {
		return s.mcpServer
	}, &mcp_sdk.StreamableHTTPOptions{
		EventStore: mcp_sdk.NewMemoryEventStore(nil),
	})

	// Request ID and logging middleware
	loggingHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
		r = r.WithContext(ctx)

		logger.Info("HTTP %s %s from %s [request_id=%s]", r.Method, r.URL.Path, r.RemoteAddr, requestID)
		mcpHandler.ServeHTTP(w, r)
	})

	rateLimitedHandler := RateLimitMiddleware(s.limiter)(loggingHandler)

	mainMux := http.NewServeMux()

	// Health endpoints
	mainMux.HandleFunc("/health", s.handleHealthCheck)
	mainMux.HandleFunc("/ready", s.handleReadinessCheck)

	// Metrics endpoint (Prometheus scraping)
	mainMux.Handle("/metrics", metrics.Handler())

	// MCP endpoints with metrics middleware
	mainMux.Handle("/mcp", metrics.Middleware(rateLimitedHandler))
	mainMux.Handle("/mcp/", metrics.Middleware(rateLimitedHandler))

	logger.Info("🚀 Portcullis MCP server listening on %s", addr)
	logger.Info("💚 Health check: http://localhost%s/health", addr)
	logger.Info("📊 Metrics: http://localhost%s/metrics", addr)
	return http.ListenAndServe(addr, mainMux)
}

// handleHealthCheck is a basic liveness check
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadinessCheck verifies the server can serve requests
func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.queue == nil || s.registry == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
