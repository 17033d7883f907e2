// Package config holds the tunables that drive the initiator, responder,
// and their collaborators. Grounded on jiva's util.GetReadTimeout/
// GetWriteTimeout/CheckReplicationFactor (util/util.go): small env-backed
// knobs read once at startup rather than a generic config-file framework.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the set of knobs a running cache node needs beyond the wire
// protocol itself. Default() supplies a value for every field; a
// zero-value Config is not runnable, since its durations are zero.
type Config struct {
	// MigrateOnDemand enables the responder's read-miss-becomes-write
	// salvage path.
	MigrateOnDemand bool

	// SmallFragmentThreshold is the byte size at or below which the
	// responder inlines an OPEN_READ reply instead of streaming it.
	SmallFragmentThreshold int64

	// ClusterTimeout bounds how long the initiator waits for a reply
	// before declaring OP_TIMEOUT.
	ClusterTimeout time.Duration

	// RetryPeriod is how long the sequence registry waits before retrying
	// an insert, lookup or remove whose bucket try-lock failed.
	RetryPeriod time.Duration

	// ScanInterval is how often the write-VC reuse cache sweeps for
	// expired entries.
	ScanInterval time.Duration

	// StatsFlushInterval is how often clusterstats journals its counters.
	StatsFlushInterval time.Duration

	// ProbeDepthMax is the upper bound on successor-node probing. It is
	// loaded from the environment, but nothing in this module reads it: no
	// probing is performed.
	ProbeDepthMax int

	ListenAddress string
	LogDir        string
	LogToFile     LogToFile
}

// LogToFile mirrors jiva's util.LogToFile knobs (util/util.go);
// kept as a nested struct so logging.Configure can take it as-is.
type LogToFile struct {
	Enable          bool
	MaxLogFileSize  int
	RetentionPeriod int
	MaxBackups      int
}

const (
	defaultSmallFragmentThreshold = 256 << 10
	defaultClusterTimeout         = 30 * time.Second
	defaultRetryPeriod            = 5 * time.Millisecond
	defaultScanInterval           = time.Minute
	defaultStatsFlushInterval     = 30 * time.Second
	defaultProbeDepthMax          = 5
	defaultListenAddress          = ":7111"
	defaultLogDir                 = "/var/log/cachenode"
)

// Default returns a Config with every knob at its production default.
func Default() Config {
	return Config{
		MigrateOnDemand:        true,
		SmallFragmentThreshold: defaultSmallFragmentThreshold,
		ClusterTimeout:         defaultClusterTimeout,
		RetryPeriod:            defaultRetryPeriod,
		ScanInterval:           defaultScanInterval,
		StatsFlushInterval:     defaultStatsFlushInterval,
		ProbeDepthMax:          defaultProbeDepthMax,
		ListenAddress:          defaultListenAddress,
		LogDir:                 defaultLogDir,
		LogToFile: LogToFile{
			Enable:          true,
			MaxLogFileSize:  100,
			RetentionPeriod: 180,
			MaxBackups:      5,
		},
	}
}

// FromEnv overlays environment-variable overrides onto cfg, following
// jiva's pattern of one env var per knob read via strconv at startup
// (util.GetReadTimeout/GetWriteTimeout/CheckReplicationFactor) rather than a
// config-file parser.
func FromEnv(cfg Config) Config {
	if v := os.Getenv("CACHENODE_MIGRATE_ON_DEMAND"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logrus.Errorf("config: invalid CACHENODE_MIGRATE_ON_DEMAND %q: %v", v, err)
		} else {
			cfg.MigrateOnDemand = b
		}
	}
	if v := os.Getenv("CACHENODE_SMALL_FRAGMENT_THRESHOLD"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			logrus.Errorf("config: invalid CACHENODE_SMALL_FRAGMENT_THRESHOLD %q: %v", v, err)
		} else {
			cfg.SmallFragmentThreshold = n
		}
	}
	if v := os.Getenv("CACHENODE_CLUSTER_TIMEOUT_MS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			logrus.Errorf("config: invalid CACHENODE_CLUSTER_TIMEOUT_MS %q: %v", v, err)
		} else {
			cfg.ClusterTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("CACHENODE_RETRY_PERIOD_MS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			logrus.Errorf("config: invalid CACHENODE_RETRY_PERIOD_MS %q: %v", v, err)
		} else {
			cfg.RetryPeriod = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("CACHENODE_SCAN_INTERVAL_S"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			logrus.Errorf("config: invalid CACHENODE_SCAN_INTERVAL_S %q: %v", v, err)
		} else {
			cfg.ScanInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("CACHENODE_PROBE_DEPTH_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			logrus.Errorf("config: invalid CACHENODE_PROBE_DEPTH_MAX %q: %v", v, err)
		} else {
			cfg.ProbeDepthMax = n
		}
	}
	if v := os.Getenv("CACHENODE_LISTEN_ADDRESS"); v != "" {
		cfg.ListenAddress = v
	}
	if v := os.Getenv("CACHENODE_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	return cfg
}
