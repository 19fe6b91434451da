package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("FAILSAFE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if logLevel := os.Getenv("FAILSAFE_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	if ep := os.Getenv("FAILSAFE_PRIMARY_ENDPOINT"); ep != "" {
		cfg.Monitor.PrimaryEndpoint = ep
	}
	if ep := os.Getenv("FAILSAFE_SECONDARY_ENDPOINT"); ep != "" {
		cfg.Monitor.SecondaryEndpoint = ep
	}
	if v := os.Getenv("FAILSAFE_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.CheckInterval = d
		}
	}
	if v := os.Getenv("FAILSAFE_FAILOVER_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.FailoverThreshold = n
		}
	}
	if v := os.Getenv("FAILSAFE_RTO_TARGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Failover.RTOTarget = d
		}
	}

	if cmd := os.Getenv("FAILSAFE_STOP_PRIMARY_CMD"); cmd != "" {
		cfg.Failover.StopPrimaryCmd = cmd
	}
	if cmd := os.Getenv("FAILSAFE_PROMOTE_SECONDARY_CMD"); cmd != "" {
		cfg.Failover.PromoteSecondaryCmd = cmd
	}
	if cmd := os.Getenv("FAILSAFE_UPDATE_ROUTING_CMD"); cmd != "" {
		cfg.Failover.UpdateRoutingCmd = cmd
	}

	if dsn := os.Getenv("FAILSAFE_REPLICATION_DSN"); dsn != "" {
		cfg.Replication.PrimaryDSN = dsn
	}
	if dsn := os.Getenv("FAILSAFE_STATUS_DSN"); dsn != "" {
		cfg.Status.DSN = dsn
	}
	if path := os.Getenv("FAILSAFE_STATUS_PATH"); path != "" {
		cfg.Status.Path = path
	}

	// Add more as needed for production
}
