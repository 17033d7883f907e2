package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultIsRunnable(t *testing.T) {
	cfg := Default()
	if cfg.ClusterTimeout <= 0 || cfg.RetryPeriod <= 0 || cfg.ScanInterval <= 0 {
		t.Fatalf("Default() has a non-positive duration knob: %+v", cfg)
	}
	if cfg.ListenAddress == "" || cfg.LogDir == "" {
		t.Fatalf("Default() left ListenAddress/LogDir empty: %+v", cfg)
	}
}

func TestFromEnvOverridesDefaults(t *testing.T) {
	vars := map[string]string{
		"CACHENODE_MIGRATE_ON_DEMAND":        "false",
		"CACHENODE_SMALL_FRAGMENT_THRESHOLD": "2048",
		"CACHENODE_CLUSTER_TIMEOUT_MS":       "1500",
		"CACHENODE_RETRY_PERIOD_MS":          "50",
		"CACHENODE_SCAN_INTERVAL_S":          "5",
		"CACHENODE_PROBE_DEPTH_MAX":          "9",
		"CACHENODE_LISTEN_ADDRESS":           ":9999",
		"CACHENODE_LOG_DIR":                  "/tmp/cachenode-test",
	}
	for k, v := range vars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range vars {
			os.Unsetenv(k)
		}
	}()

	cfg := FromEnv(Default())
	if cfg.MigrateOnDemand {
		t.Error("MigrateOnDemand should be false after override")
	}
	if cfg.SmallFragmentThreshold != 2048 {
		t.Errorf("SmallFragmentThreshold = %d, want 2048", cfg.SmallFragmentThreshold)
	}
	if cfg.ClusterTimeout != 1500*time.Millisecond {
		t.Errorf("ClusterTimeout = %v, want 1.5s", cfg.ClusterTimeout)
	}
	if cfg.RetryPeriod != 50*time.Millisecond {
		t.Errorf("RetryPeriod = %v, want 50ms", cfg.RetryPeriod)
	}
	if cfg.ScanInterval != 5*time.Second {
		t.Errorf("ScanInterval = %v, want 5s", cfg.ScanInterval)
	}
	if cfg.ProbeDepthMax != 9 {
		t.Errorf("ProbeDepthMax = %d, want 9", cfg.ProbeDepthMax)
	}
	if cfg.ListenAddress != ":9999" {
		t.Errorf("ListenAddress = %q, want :9999", cfg.ListenAddress)
	}
	if cfg.LogDir != "/tmp/cachenode-test" {
		t.Errorf("LogDir = %q, want /tmp/cachenode-test", cfg.LogDir)
	}
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	os.Setenv("CACHENODE_SMALL_FRAGMENT_THRESHOLD", "not-a-number")
	defer os.Unsetenv("CACHENODE_SMALL_FRAGMENT_THRESHOLD")

	base := Default()
	cfg := FromEnv(base)
	if cfg.SmallFragmentThreshold != base.SmallFragmentThreshold {
		t.Fatalf("malformed env var should leave the default unchanged, got %d", cfg.SmallFragmentThreshold)
	}
}

func TestFromEnvLeavesUnsetKnobsAtDefault(t *testing.T) {
	base := Default()
	cfg := FromEnv(base)
	if cfg != base {
		t.Fatalf("FromEnv with no env vars set should return cfg unchanged: got %+v, want %+v", cfg, base)
	}
}
