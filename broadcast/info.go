// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package broadcast

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// InfoKind tags the variant held by an Info value. Info is a closed struct
// rather than an interface so callers can switch on Kind without a type
// assertion.
type InfoKind uint8

const (
	// InfoResolvingPeers is emitted once, when peer discovery starts.
	InfoResolvingPeers InfoKind = iota

	// InfoResolvedPeers carries the number of candidate peers found.
	InfoResolvedPeers

	// InfoConnecting is emitted once dialing begins, carrying the
	// transport mode chosen (and the proxy address, if any).
	InfoConnecting

	// InfoBroadcast is emitted each time a transaction is sent to a
	// peer.
	InfoBroadcast

	// InfoRejected is emitted when a peer rejects a transaction we sent
	// it.
	InfoRejected

	// InfoPeerFailure is emitted (for logging/telemetry) whenever a
	// session fails, naming the FailureKind.
	InfoPeerFailure

	// InfoDone is the final event of a run, carrying the outcome.
	InfoDone
)

// FailureKind classifies why a peer session ended in failure, letting a
// caller distinguish failure classes in telemetry without the supervisor's
// own termination policy needing to.
type FailureKind uint8

const (
	FailureDialTimeout FailureKind = iota
	FailureHandshakeTimeout
	FailureSelfConnect
	FailureProtocolViolation
	FailureInactivityTimeout
	FailureConnectionReset
)

func (k FailureKind) String() string {
	switch k {
	case FailureDialTimeout:
		return "dial-timeout"
	case FailureHandshakeTimeout:
		return "handshake-timeout"
	case FailureSelfConnect:
		return "self-connect"
	case FailureProtocolViolation:
		return "protocol-violation"
	case FailureInactivityTimeout:
		return "inactivity-timeout"
	case FailureConnectionReset:
		return "connection-reset"
	default:
		return "unknown"
	}
}

// Info is one event in the supervisor's totally ordered progress stream.
type Info struct {
	Kind InfoKind

	// ResolvedPeers is populated for InfoResolvedPeers.
	ResolvedPeers int

	// TransportMode and ProxyAddr are populated for InfoConnecting.
	TransportMode string
	ProxyAddr     string

	// Peer, Txid are populated for InfoBroadcast, InfoRejected and
	// InfoPeerFailure.
	Peer string
	Txid chainhash.Hash

	// RejectReason is populated for InfoRejected.
	RejectReason string

	// FailureKind is populated for InfoPeerFailure.
	FailureKind FailureKind

	// Report and Err are populated for InfoDone: exactly one is set,
	// mirroring Result<Report, Error>.
	Report *Report
	Err    error
}

// Report summarizes a successful run.
type Report struct {
	// Broadcasts is how many (peer, tx) sends completed.
	Broadcasts int

	// Rejects is how many reject messages were received.
	Rejects int
}
