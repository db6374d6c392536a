// Package master contains the master-specific logic for the HTTP API.
package master

import (
	"context"
	"net/http"
	"time"

	"github.com/YangYuS8/mlsmanager/internal/master/handlers"
	"github.com/YangYuS8/mlsmanager/internal/master/middleware"
)

// Server is the HTTP server for the master API.
type Server struct {
	httpServer *http.Server
}

// New creates a new master server.
func New(addr string, st handlers.Store, verifier middleware.CredentialVerifier, issuer handlers.TokenIssuer, assigner handlers.Assigner) *Server {
	h := handlers.New(st, issuer, assigner)
	agentMW := middleware.AgentAuth(verifier, st)
	registerMW := middleware.RegisterRateLimit(1, 5)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)

	// Agent endpoints.
	// Registration is the only unauthenticated call: it is how an agent
	// obtains its credential in the first place.
	mux.Handle("POST /api/nodes/register", registerMW(http.HandlerFunc(h.RegisterNode)))
	mux.Handle("POST /api/nodes/{node_id}/heartbeat", agentMW(http.HandlerFunc(h.Heartbeat)))
	mux.Handle("GET /api/nodes/{node_id}/jobs/queue", agentMW(http.HandlerFunc(h.QueuedJobs)))
	mux.Handle("POST /api/nodes/{node_id}/datasets/batch", agentMW(http.HandlerFunc(h.BatchDatasets)))
	mux.Handle("PUT /api/jobs/{id}/status", agentMW(http.HandlerFunc(h.UpdateJobStatus)))
	mux.Handle("POST /api/jobs/{id}/logs", agentMW(http.HandlerFunc(h.AppendJobLogs)))

	// Operator endpoints.
	mux.HandleFunc("GET /api/nodes", h.ListNodes)
	mux.HandleFunc("GET /api/nodes/stats", h.NodeStats)
	mux.HandleFunc("GET /api/nodes/{node_id}", h.GetNode)
	mux.HandleFunc("PATCH /api/nodes/{node_id}", h.UpdateNode)
	mux.HandleFunc("GET /api/nodes/{node_id}/datasets", h.ListDatasets)
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/stats", h.JobStats)
	mux.HandleFunc("POST /api/jobs/assign", h.AssignJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.CancelJob)
	mux.HandleFunc("GET /api/jobs/{id}/logs", h.GetJobLogs)

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
