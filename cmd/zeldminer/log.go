// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog/v2"
	"github.com/jrick/logrotate/rotator"

	"github.com/ouziel-slama/zeldhash-miner/miner"
	"github.com/ouziel-slama/zeldhash-miner/mining"
	"github.com/ouziel-slama/zeldhash-miner/mining/gpu"
)

// logWriter duplicates log output to stdout and, when configured, the
// rotating log file.
type logWriter struct{}

var logRotator *rotator.Rotator

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var (
	logHandler = btclog.NewDefaultHandler(logWriter{})
	log        = btclog.NewSLogger(logHandler)
)

// initLogRotator sets up the rotating file writer. It must be called
// before the first log line that should reach the file.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

// setLogLevel applies the debug level to every subsystem.
func setLogLevel(levelName string) error {
	level, ok := btclog.LevelFromString(levelName)
	if !ok {
		return fmt.Errorf("invalid debug level %q", levelName)
	}
	logHandler.SetLevel(level)
	return nil
}

// useLoggers hands the shared logger to the library packages.
func useLoggers() {
	mining.UseLogger(log)
	gpu.UseLogger(log)
	miner.UseLogger(log)
}
