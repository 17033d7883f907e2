// Package logging configures process-wide structured logging. Grounded
// directly on jiva's util.StartLoggingToFile/SetLogging
// (util/util.go): logrus output multiplexed to stderr and a
// lumberjack-rotated file, with a small JSON sidecar recording the active
// rotation settings so a restart can recover them.
package logging

import (
	"encoding/json"
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"

	"github.com/jiva-cluster/ccrpc/config"
)

const logInfoFile = "log.info"

var rotator *lumberjack.Logger

// Configure wires logrus to write to stderr and, if enabled, a
// size/age-rotated file under dir. It is idempotent: calling it again
// closes any previously configured rotator first.
func Configure(dir string, lf config.LogToFile) error {
	if rotator != nil {
		if err := rotator.Close(); err != nil {
			return err
		}
		rotator = nil
	}

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if !lf.Enable {
		logrus.SetOutput(os.Stderr)
		return writeLogInfo(dir, lf)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	rotator = &lumberjack.Logger{
		Filename:   dir + "/cachenode.log",
		MaxSize:    lf.MaxLogFileSize,
		MaxAge:     lf.RetentionPeriod,
		MaxBackups: lf.MaxBackups,
		LocalTime:  true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, rotator))

	if err := writeLogInfo(dir, lf); err != nil {
		return err
	}
	logrus.Infof("logging configured: dir=%s maxLogFileSize=%dMB retentionPeriod=%dd maxBackups=%d",
		dir, lf.MaxLogFileSize, lf.RetentionPeriod, lf.MaxBackups)
	return nil
}

// Rotate forces an immediate log rotation, matching jiva's
// util.LogRotate hook for an admin-triggered rotate.
func Rotate() error {
	if rotator == nil {
		return nil
	}
	return rotator.Rotate()
}

func writeLogInfo(dir string, lf config.LogToFile) error {
	path := dir + "/" + logInfoFile
	f, err := os.Create(path + ".tmp")
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(&lf); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(path+".tmp", path)
}
