// Package config handles configuration loading for the master and agent.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Master settings
	DatabaseURL      string
	HTTPPort         int
	SecretKey        string
	OTELEndpoint     string
	MetricsPort      int
	SchedulerTick    time.Duration
	NodeMonitorTick  time.Duration
	JobMonitorTick   time.Duration
	NodeOfflineAfter time.Duration
	JobStaleAfter    time.Duration
	JobCleanupTick   time.Duration
	JobRetention     time.Duration

	// Agent settings
	MasterURL           string
	NodeID              string
	NodeName            string
	NodeHost            string
	NodePort            int
	HeartbeatInterval   time.Duration
	JobPollInterval     time.Duration
	DatasetScanInterval time.Duration
	StoragePath         string
	DatasetsPath        string
	JobsWorkspace       string
	TokenFile           string
	JobTimeout          time.Duration
	Concurrency         int
}

// Load reads configuration from an optional YAML file and MLS_-prefixed
// environment variables. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_port", 8000)
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("scheduler_tick", "15s")
	v.SetDefault("node_monitor_tick", "30s")
	v.SetDefault("job_monitor_tick", "60s")
	v.SetDefault("node_offline_after", "90s")
	v.SetDefault("job_stale_after", "2h")
	v.SetDefault("job_cleanup_tick", "24h")
	v.SetDefault("job_retention", "720h") // 30 days

	v.SetDefault("master_url", "http://localhost:8000")
	v.SetDefault("node_name", "worker-001")
	v.SetDefault("node_port", 8001)
	v.SetDefault("heartbeat_interval", "30s")
	v.SetDefault("job_poll_interval", "10s")
	v.SetDefault("dataset_scan_interval", "5m")
	v.SetDefault("storage_path", "/data")
	v.SetDefault("datasets_path", "/data/datasets")
	v.SetDefault("jobs_workspace", "/data/jobs")
	v.SetDefault("token_file", "/etc/mls-agent/token")
	v.SetDefault("job_timeout", "1h")
	v.SetDefault("concurrency", 1)

	v.SetEnvPrefix("MLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("mlsmanager")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		// Missing default config file is fine, env and defaults apply.
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		DatabaseURL:      v.GetString("database_url"),
		HTTPPort:         v.GetInt("http_port"),
		SecretKey:        v.GetString("secret_key"),
		OTELEndpoint:     v.GetString("otel_endpoint"),
		MetricsPort:      v.GetInt("metrics_port"),
		SchedulerTick:    v.GetDuration("scheduler_tick"),
		NodeMonitorTick:  v.GetDuration("node_monitor_tick"),
		JobMonitorTick:   v.GetDuration("job_monitor_tick"),
		NodeOfflineAfter: v.GetDuration("node_offline_after"),
		JobStaleAfter:    v.GetDuration("job_stale_after"),
		JobCleanupTick:   v.GetDuration("job_cleanup_tick"),
		JobRetention:     v.GetDuration("job_retention"),

		MasterURL:           strings.TrimSuffix(v.GetString("master_url"), "/"),
		NodeID:              v.GetString("node_id"),
		NodeName:            v.GetString("node_name"),
		NodeHost:            v.GetString("node_host"),
		NodePort:            v.GetInt("node_port"),
		HeartbeatInterval:   v.GetDuration("heartbeat_interval"),
		JobPollInterval:     v.GetDuration("job_poll_interval"),
		DatasetScanInterval: v.GetDuration("dataset_scan_interval"),
		StoragePath:         v.GetString("storage_path"),
		DatasetsPath:        v.GetString("datasets_path"),
		JobsWorkspace:       v.GetString("jobs_workspace"),
		TokenFile:           v.GetString("token_file"),
		JobTimeout:          v.GetDuration("job_timeout"),
		Concurrency:         v.GetInt("concurrency"),
	}

	return cfg, nil
}

// ValidateMaster checks the fields the master process requires.
func (c *Config) ValidateMaster() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key is required")
	}
	return nil
}

// ValidateAgent checks the fields the agent process requires.
func (c *Config) ValidateAgent() error {
	if c.MasterURL == "" {
		return fmt.Errorf("master_url is required")
	}
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	return nil
}
