// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package broadcast implements the supervisor that drives a pool of peer
// sessions to relay a set of transactions onto the Bitcoin P2P network and
// reports progress and a final outcome over an event channel.
package broadcast

import (
	"time"

	"github.com/btcpushtx/pushtx/chaincfg"
	"github.com/btcpushtx/pushtx/transport"
)

// TorMode determines whether and how a local Tor proxy is used.
type TorMode = transport.TorRequirement

const (
	TorOff      = transport.TorOff
	TorTry      = transport.TorTry
	TorRequired = transport.TorRequired
)

// FindPeerStrategy selects how the supervisor discovers candidate peers.
type FindPeerStrategy uint8

const (
	// DNSSeedWithFixedFallback queries DNS seeds, padding the result
	// with a compiled-in fixed list if too few addresses resolve. This
	// is the default.
	DNSSeedWithFixedFallback FindPeerStrategy = iota

	// DNSSeedOnly queries DNS seeds exclusively.
	DNSSeedOnly

	// Custom uses only the addresses supplied in Opts.CustomPeers.
	Custom
)

// Opts configures a broadcast run.
type Opts struct {
	// Network selects which Bitcoin network to connect to.
	Network chaincfg.Network

	// UseTor controls whether and how a local Tor proxy is used.
	UseTor TorMode

	// FindPeerStrategy selects how candidate peers are discovered.
	FindPeerStrategy FindPeerStrategy

	// CustomPeers is consulted only when FindPeerStrategy is Custom; each
	// entry is a host:port or bare IP (default port applied).
	CustomPeers []string

	// TargetPeers is the number of concurrent sessions the supervisor
	// tries to maintain.
	TargetPeers uint16

	// MaxTime bounds the whole run regardless of outcome.
	MaxTime time.Duration

	// SendUnsolicited sends tx immediately upon reaching Active instead
	// of waiting for a getdata.
	SendUnsolicited bool

	// DryRun completes handshakes but never sends inv or tx, used to
	// verify reachability without actually broadcasting.
	DryRun bool
}

// DefaultOpts returns the options used when a caller does not override
// them: mainnet, best-effort Tor, DNS-seed discovery with fixed fallback,
// 10 target peers and a 40s run deadline.
func DefaultOpts() Opts {
	return Opts{
		Network:          chaincfg.Mainnet,
		UseTor:           TorTry,
		FindPeerStrategy: DNSSeedWithFixedFallback,
		TargetPeers:      10,
		MaxTime:          40 * time.Second,
		SendUnsolicited:  false,
		DryRun:           false,
	}
}
