// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pushtx

import "github.com/btcsuite/btclog"

// log is this package's own logger; it only covers transaction parsing and
// the Broadcast entry point. The broadcast/peer/peersource/transport
// packages each keep their own.
var log = btclog.Disabled

// DisableLog disables all library log output from this package.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger installs logger as this package's logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}
