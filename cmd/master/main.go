// Package main is the entry point for the mlsmanager master.
// The master owns the node registry, the job queue and the scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YangYuS8/mlsmanager/internal/auth"
	"github.com/YangYuS8/mlsmanager/internal/config"
	"github.com/YangYuS8/mlsmanager/internal/logger"
	"github.com/YangYuS8/mlsmanager/internal/master"
	"github.com/YangYuS8/mlsmanager/internal/master/monitor"
	"github.com/YangYuS8/mlsmanager/internal/master/scheduler"
	"github.com/YangYuS8/mlsmanager/internal/observability"
	"github.com/YangYuS8/mlsmanager/internal/store"
	"github.com/YangYuS8/mlsmanager/internal/store/postgres"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: mlsmanager.yaml in current directory)")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateMaster(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres (the "Store")
	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer st.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(st.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "mlsmanager-master", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Use Observable Gauges (Async) that query the DB only when scraped.
	meter := otel.Meter("mlsmanager-master")
	_, err = meter.Int64ObservableGauge("mlsmanager.jobs.pending",
		metric.WithDescription("Current number of jobs waiting for a node"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			stats, err := st.JobStats(ctx)
			if err != nil {
				log.Printf("Failed to count pending jobs: %v", err)
				return nil // Don't crash metrics scrape on DB error
			}
			obs.Observe(int64(stats[store.JobStatusPending]))
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register pending jobs metric: %v", err)
	}

	_, err = meter.Int64ObservableGauge("mlsmanager.nodes.online",
		metric.WithDescription("Current number of online nodes"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			stats, err := st.NodeStats(ctx)
			if err != nil {
				log.Printf("Failed to count online nodes: %v", err)
				return nil
			}
			obs.Observe(int64(stats.OnlineNodes))
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register online nodes metric: %v", err)
	}

	// Start a dedicated metrics server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		log.Printf("Master metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	lg := logger.New("master")

	// Background loops: scheduler assigns pending jobs to nodes, the
	// monitor sweeps dead nodes and stuck jobs.
	sched := scheduler.New(st, st, cfg.SchedulerTick, lg)
	mon := monitor.New(st, st, monitor.Config{
		NodeTick:         cfg.NodeMonitorTick,
		JobTick:          cfg.JobMonitorTick,
		CleanupTick:      cfg.JobCleanupTick,
		NodeOfflineAfter: cfg.NodeOfflineAfter,
		JobStaleAfter:    cfg.JobStaleAfter,
		JobRetention:     cfg.JobRetention,
	}, lg)

	supervisor := master.NewSupervisor(lg, sched, mon)
	supervisor.Start(ctx)

	issuer := auth.NewTokenIssuer(cfg.SecretKey)

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := master.New(addr, st, issuer, issuer, sched)

	go func() {
		log.Printf("MLSManager master starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down master...")
	cancel()
	supervisor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited properly")
}
