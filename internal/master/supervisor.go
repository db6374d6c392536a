package master

import (
	"context"
	"log/slog"
)

// BackgroundLoop is a long-running worker owned by the supervisor.
type BackgroundLoop interface {
	Run(ctx context.Context)
	Done() <-chan struct{}
}

// Supervisor owns the master's background loops (scheduler, monitor)
// and ties their lifetimes to one context.
type Supervisor struct {
	loops  []BackgroundLoop
	logger *slog.Logger
}

func NewSupervisor(logger *slog.Logger, loops ...BackgroundLoop) *Supervisor {
	return &Supervisor{loops: loops, logger: logger}
}

// Start launches every loop. Stop waits for them to drain.
func (s *Supervisor) Start(ctx context.Context) {
	for _, loop := range s.loops {
		go loop.Run(ctx)
	}
	s.logger.Info("background loops started", "count", len(s.loops))
}

// Stop blocks until every loop has observed the context cancellation
// and returned.
func (s *Supervisor) Stop() {
	for _, loop := range s.loops {
		<-loop.Done()
	}
	s.logger.Info("background loops stopped")
}
