package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full controller configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Failover    FailoverConfig    `yaml:"failover"`
	Replication ReplicationConfig `yaml:"replication"`
	Backup      BackupConfig      `yaml:"backup"`
	Notify      NotifyConfig      `yaml:"notify"`
	Status      StatusConfig      `yaml:"status"`
}

type ServerConfig struct {
	Port     int    `yaml:"port" default:"8490"`
	LogLevel string `yaml:"log_level" default:"info"`
}

// MonitorConfig drives the health-check loop.
type MonitorConfig struct {
	ServiceName       string        `yaml:"service_name"`
	PrimaryEndpoint   string        `yaml:"primary_endpoint"`
	SecondaryEndpoint string        `yaml:"secondary_endpoint"`
	CheckInterval     time.Duration `yaml:"check_interval" default:"30s"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout" default:"10s"`
	DegradedThreshold time.Duration `yaml:"degraded_threshold" default:"2s"`
	FailoverThreshold int           `yaml:"failover_threshold" default:"3"`
}

// FailoverConfig bounds the orchestration steps. The three commands are
// operator-supplied shell fragments; each runs under the step timeout.
type FailoverConfig struct {
	RTOTarget           time.Duration `yaml:"rto_target" default:"15m"`
	RPOTarget           time.Duration `yaml:"rpo_target" default:"5m"`
	StepTimeout         time.Duration `yaml:"step_timeout" default:"2m"`
	VerifyRetries       int           `yaml:"verify_retries" default:"10"`
	VerifyDelay         time.Duration `yaml:"verify_delay" default:"15s"`
	StopPrimaryCmd      string        `yaml:"stop_primary_cmd"`
	PromoteSecondaryCmd string        `yaml:"promote_secondary_cmd"`
	UpdateRoutingCmd    string        `yaml:"update_routing_cmd"`
}

type ReplicationConfig struct {
	PrimaryDSN   string        `yaml:"primary_dsn"`
	MaxLag       time.Duration `yaml:"max_lag" default:"5m"`
	QueryTimeout time.Duration `yaml:"query_timeout" default:"10s"`
}

type BackupConfig struct {
	Mode   string `yaml:"mode" default:"local"` // "local" or "s3"
	Dir    string `yaml:"dir"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

type NotifyConfig struct {
	SystemID    string          `yaml:"system_id"`
	Environment string          `yaml:"environment" default:"production"`
	RatePerMin  int             `yaml:"rate_per_min" default:"30"`
	Webhooks    []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Secret  string            `yaml:"secret"`
	Headers map[string]string `yaml:"headers"`
}

type StatusConfig struct {
	Mode       string `yaml:"mode" default:"file"` // "file" or "postgres"
	Path       string `yaml:"path" default:"/var/lib/failsafe/recovery-status.json"`
	AttemptLog string `yaml:"attempt_log" default:"/var/lib/failsafe/failover-attempts.jsonl"`
	ReportDir  string `yaml:"report_dir" default:"/var/lib/failsafe/reports"`
	DSN        string `yaml:"dsn"`
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8490,
			LogLevel: "info",
		},
		Monitor: MonitorConfig{
			ServiceName:       "primary",
			CheckInterval:     30 * time.Second,
			ProbeTimeout:      10 * time.Second,
			DegradedThreshold: 2 * time.Second,
			FailoverThreshold: 3,
		},
		Failover: FailoverConfig{
			RTOTarget:     15 * time.Minute,
			RPOTarget:     5 * time.Minute,
			StepTimeout:   2 * time.Minute,
			VerifyRetries: 10,
			VerifyDelay:   15 * time.Second,
		},
		Replication: ReplicationConfig{
			MaxLag:       5 * time.Minute,
			QueryTimeout: 10 * time.Second,
		},
		Backup: BackupConfig{
			Mode: "local",
		},
		Notify: NotifyConfig{
			SystemID:    "failsafe",
			Environment: "production",
			RatePerMin:  30,
		},
		Status: StatusConfig{
			Mode:       "file",
			Path:       "/var/lib/failsafe/recovery-status.json",
			AttemptLog: "/var/lib/failsafe/failover-attempts.jsonl",
			ReportDir:  "/var/lib/failsafe/reports",
		},
	}
}

// Load reads a yaml config file over the defaults, then applies env overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the monitoring loop depends on.
func (c *Config) Validate() error {
	if c.Monitor.PrimaryEndpoint == "" {
		return fmt.Errorf("config: monitor.primary_endpoint is required")
	}
	if c.Monitor.FailoverThreshold <= 0 {
		return fmt.Errorf("config: monitor.failover_threshold must be positive")
	}
	if c.Monitor.CheckInterval <= 0 {
		return fmt.Errorf("config: monitor.check_interval must be positive")
	}
	if c.Monitor.ProbeTimeout <= 0 {
		return fmt.Errorf("config: monitor.probe_timeout must be positive")
	}
	if c.Failover.RTOTarget <= 0 {
		return fmt.Errorf("config: failover.rto_target must be positive")
	}
	if c.Failover.VerifyRetries <= 0 {
		return fmt.Errorf("config: failover.verify_retries must be positive")
	}
	return nil
}
