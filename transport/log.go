// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// DisableLog disables all library log output.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger installs logger as the package-wide logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}
