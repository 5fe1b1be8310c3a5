// Package config centralizes runtime settings for the orchestrator and
// worker processes. Settings resolve through a viper singleton with the
// precedence Set() > environment > default; every key is overridable via a
// SNOWFORT_ environment variable with dashes mapped to underscores
// (heartbeat-interval becomes SNOWFORT_HEARTBEAT_INTERVAL). The worker keys
// additionally accept the unprefixed names WORKER_ID, BASE_URL,
// ORCHESTRATOR_URL, LOG_LEVEL and a seconds-valued HEARTBEAT_SECONDS.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Keys understood by both processes. Getters below wrap the common ones.
const (
	KeyListenAddr        = "listen"
	KeyWorkerListenAddr  = "worker-listen"
	KeyWorkerID          = "worker-id"
	KeyBaseURL           = "base-url"
	KeyOrchestratorURL   = "orchestrator-url"
	KeyHeartbeatInterval = "heartbeat-interval"
	KeyWorkerTTL         = "worker-ttl"
	KeyTaskTimeout       = "task-timeout"
	KeyWorkerWaitTimeout = "worker-wait-timeout"
	KeyWorkerPoll        = "worker-poll-interval"
	KeyDuckDBThreads     = "duckdb-threads"
	KeyLogLevel          = "log-level"
)

// Initialize builds the viper singleton with defaults and environment
// binding. Safe to call more than once; later calls rebuild from scratch.
func Initialize() error {
	v = viper.New()

	v.SetDefault(KeyListenAddr, ":8700")
	v.SetDefault(KeyWorkerListenAddr, ":8710")
	v.SetDefault(KeyWorkerID, "")
	v.SetDefault(KeyBaseURL, "http://127.0.0.1:8710")
	v.SetDefault(KeyOrchestratorURL, "http://127.0.0.1:8700")
	v.SetDefault(KeyHeartbeatInterval, 15*time.Second)
	v.SetDefault(KeyWorkerTTL, 45*time.Second)
	v.SetDefault(KeyTaskTimeout, 15*time.Second)
	v.SetDefault(KeyWorkerWaitTimeout, 60*time.Second)
	v.SetDefault(KeyWorkerPoll, 500*time.Millisecond)
	v.SetDefault(KeyDuckDBThreads, 0)
	v.SetDefault(KeyLogLevel, "info")

	v.SetEnvPrefix("SNOWFORT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Worker processes also honor the unprefixed variable names. The
	// prefixed form wins when both are set.
	_ = v.BindEnv(KeyWorkerID, "SNOWFORT_WORKER_ID", "WORKER_ID")
	_ = v.BindEnv(KeyBaseURL, "SNOWFORT_BASE_URL", "BASE_URL")
	_ = v.BindEnv(KeyOrchestratorURL, "SNOWFORT_ORCHESTRATOR_URL", "ORCHESTRATOR_URL")
	_ = v.BindEnv(KeyLogLevel, "SNOWFORT_LOG_LEVEL", "LOG_LEVEL")

	// HEARTBEAT_SECONDS is an integer number of seconds feeding the
	// duration-valued heartbeat-interval key.
	if s := os.Getenv("HEARTBEAT_SECONDS"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			v.Set(KeyHeartbeatInterval, time.Duration(secs)*time.Second)
		}
	}

	return nil
}

func ensure() {
	if v == nil {
		_ = Initialize()
	}
}

// Set overrides a key programmatically, taking precedence over env vars.
// Used by cobra flag binding.
func Set(key string, value any) {
	ensure()
	v.Set(key, value)
}

func GetString(key string) string {
	ensure()
	return v.GetString(key)
}

func GetInt(key string) int {
	ensure()
	return v.GetInt(key)
}

func GetDuration(key string) time.Duration {
	ensure()
	return v.GetDuration(key)
}
