// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/btcpushtx/pushtx"
	"github.com/btcpushtx/pushtx/broadcast"
	"github.com/btcpushtx/pushtx/peer"
	"github.com/btcpushtx/pushtx/peersource"
	"github.com/btcpushtx/pushtx/transport"
)

// logWriter implements an io.Writer that outputs to both standard error
// and the write-end of the log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stderr.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var backendLog = btclog.NewBackend(logWriter{})

var errInvalidLogLevel = errors.New("invalid log level")

// logRotator persists log output to disk alongside stderr; it is left nil
// (stderr-only) until initLogRotator is called.
var logRotator *rotator.Rotator

// Loggers per subsystem, one per package that exposes UseLogger.
var (
	pushLog = backendLog.Logger("PSTX")
	bcstLog = backendLog.Logger("BCST")
	peerLog = backendLog.Logger("PEER")
	srcLog  = backendLog.Logger("PSRC")
	xprtLog = backendLog.Logger("XPRT")
)

func init() {
	pushtx.UseLogger(pushLog)
	broadcast.UseLogger(bcstLog)
	peer.UseLogger(peerLog)
	peersource.UseLogger(srcLog)
	transport.UseLogger(xprtLog)
}

// subsystemLoggers maps each subsystem identifier to its logger, used by
// setLogLevels to apply a single verbosity across all of them.
var subsystemLoggers = map[string]btclog.Logger{
	"PSTX": pushLog,
	"BCST": bcstLog,
	"PEER": peerLog,
	"PSRC": srcLog,
	"XPRT": xprtLog,
}

// initLogRotator creates a rotating log file at logFile; once called, log
// output is written to both stderr and the rotated file.
func initLogRotator(logFile string) error {
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return err
	}
	logRotator = r
	return nil
}

// setLogLevels sets every subsystem logger to levelName, returning an error
// if levelName is not a recognized btclog level.
func setLogLevels(levelName string) error {
	level, ok := btclog.LevelFromString(levelName)
	if !ok {
		return errInvalidLogLevel
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
	return nil
}
