// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/feebump/broadcast"
	"github.com/btcsuite/feebump/fees"
	"github.com/btcsuite/feebump/node"
	"github.com/btcsuite/feebump/signer"
	"github.com/btcsuite/feebump/strategy"
	"github.com/btcsuite/feebump/txbuilder"
	"github.com/btcsuite/feebump/utxo"
	"github.com/jrick/logrotate/rotator"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if LogRotator != nil {
		LogRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem.  A single backend logger is created and all subsystem
// loggers created from it will write to the backend.  When adding new
// subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
//
// Output only goes to a file once InitLogRotator has been called.
var (
	// backendLog is the logging backend used to create all subsystem loggers.
	backendLog = btclog.NewBackend(logWriter{})

	// LogRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	LogRotator *rotator.Rotator

	slctLog = backendLog.Logger("SLCT")
	txbdLog = backendLog.Logger("TXBD")
	signLog = backendLog.Logger("SIGN")
	feesLog = backendLog.Logger("FEES")
	nodeLog = backendLog.Logger("NODE")
	bcstLog = backendLog.Logger("BCST")
	acclLog = backendLog.Logger("ACCL")
	FbmpLog = backendLog.Logger("FBMP")
)

// Initialize package-global logger variables.
func init() {
	utxo.UseLogger(slctLog)
	txbuilder.UseLogger(txbdLog)
	signer.UseLogger(signLog)
	fees.UseLogger(feesLog)
	node.UseLogger(nodeLog)
	broadcast.UseLogger(bcstLog)
	strategy.UseLogger(acclLog)
}

// SubsystemLoggers maps each subsystem identifier to its associated logger.
var SubsystemLoggers = map[string]btclog.Logger{
	"SLCT": slctLog,
	"TXBD": txbdLog,
	"SIGN": signLog,
	"FEES": feesLog,
	"NODE": nodeLog,
	"BCST": bcstLog,
	"ACCL": acclLog,
	"FBMP": FbmpLog,
}

// InitLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory.  It must be called before the
// package-global log rotater variables are used.
func InitLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	LogRotator = r
	return nil
}

// SetLogLevel sets the logging level for provided subsystem.  Invalid
// subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	// Ignore invalid subsystems.
	logger, ok := SubsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for all subsystem loggers to the passed
// level.
func SetLogLevels(logLevel string) {
	for subsystemID := range SubsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// ValidLogLevel returns whether or not logLevel is a valid debug log level.
func ValidLogLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)
	return ok
}

// SupportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(SubsystemLoggers))
	for subsysID := range SubsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}
