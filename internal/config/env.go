package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// applyEnv overrides file settings from REPLAY_* variables. AWS credentials
// follow the SDK's own variable names.
func (c *Config) applyEnv() {
	c.Run.Strategy = envOrDefault("REPLAY_STRATEGY", c.Run.Strategy)
	c.Run.PnLMetric = envOrDefault("REPLAY_PNL_METRIC", c.Run.PnLMetric)
	c.Run.TieBreak = envOrDefault("REPLAY_TIE_BREAK", c.Run.TieBreak)
	c.Run.ChangesOnly = envBoolOrDefault("REPLAY_CHANGES_ONLY", c.Run.ChangesOnly)
	c.Run.FundingInterval = envDurationOrDefault("REPLAY_FUNDING_INTERVAL", c.Run.FundingInterval)

	c.Log.Level = envOrDefault("REPLAY_LOG_LEVEL", c.Log.Level)
	c.Log.File = envOrDefault("REPLAY_LOG_FILE", c.Log.File)

	c.Outputs.ReportPath = envOrDefault("REPLAY_REPORT_PATH", c.Outputs.ReportPath)
	c.Outputs.TradeLog = envOrDefault("REPLAY_TRADE_LOG", c.Outputs.TradeLog)
	c.Outputs.Postgres.URL = envOrDefault("REPLAY_POSTGRES_URL", c.Outputs.Postgres.URL)
	c.Outputs.Postgres.BatchSize = envIntOrDefault("REPLAY_PERSIST_BATCH_SIZE", c.Outputs.Postgres.BatchSize)
	c.Outputs.NATS.URL = envOrDefault("REPLAY_NATS_URL", c.Outputs.NATS.URL)
	c.Outputs.ChannelSize = envIntOrDefault("REPLAY_CHANNEL_SIZE", c.Outputs.ChannelSize)

	c.Server.HTTPAddr = envOrDefault("REPLAY_HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = envOrDefault("REPLAY_GRPC_ADDR", c.Server.GRPCAddr)

	c.S3.Endpoint = envOrDefault("REPLAY_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.Region = strings.TrimSpace(envOrDefault("AWS_REGION", c.S3.Region))
	c.S3.AccessKeyID = strings.TrimSpace(envOrDefault("AWS_ACCESS_KEY_ID", c.S3.AccessKeyID))
	c.S3.SecretAccessKey = strings.TrimSpace(envOrDefault("AWS_SECRET_ACCESS_KEY", c.S3.SecretAccessKey))
	if c.Outputs.CloudWatch.Region == "" {
		c.Outputs.CloudWatch.Region = c.S3.Region
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return defaultVal
	}
	return i
}

func envBoolOrDefault(key string, defaultVal bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return defaultVal
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
