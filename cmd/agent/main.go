// Package main is the entry point for the mlsmanager worker agent.
// The agent runs on every compute node: it registers with the master,
// heartbeats, pulls queued jobs and executes them in the requested
// environment (docker, conda, venv or the bare system).
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

	"github.com/YangYuS8/mlsmanager/internal/agent"
	"github.com/YangYuS8/mlsmanager/internal/agent/client"
	"github.com/YangYuS8/mlsmanager/internal/agent/executor"
	"github.com/YangYuS8/mlsmanager/internal/config"
	"github.com/YangYuS8/mlsmanager/internal/logger"
	"github.com/YangYuS8/mlsmanager/internal/observability"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: mlsmanager.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateAgent(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "mlsmanager-agent", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	lg := logger.New("agent")

	mc := client.New(cfg.MasterURL, cfg.NodeID, cfg.TokenFile)
	exec := executor.New(cfg.JobsWorkspace, lg)

	ag := agent.New(agent.Config{
		NodeID:            cfg.NodeID,
		NodeName:          cfg.NodeName,
		Host:              cfg.NodeHost,
		Port:              cfg.NodePort,
		StoragePath:       cfg.StoragePath,
		DatasetsPath:      cfg.DatasetsPath,
		Concurrency:       cfg.Concurrency,
		HeartbeatInterval: cfg.HeartbeatInterval,
		PollInterval:      cfg.JobPollInterval,
		ScanInterval:      cfg.DatasetScanInterval,
	}, mc, exec, lg)

	log.Printf("Agent %s started with concurrency %d", cfg.NodeID, cfg.Concurrency)
	go func() {
		if err := ag.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("Agent stopped: %v", err)
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

	// Start a dedicated metrics server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		log.Printf("Agent metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down agent...")
	cancel()

	<-ag.Done()
}
