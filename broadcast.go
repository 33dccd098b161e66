// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pushtx broadcasts Bitcoin transactions directly onto the P2P
// network, without going through any centralized relay. See the broadcast
// subpackage for the supervisor that implements the core engine; this
// package is the thin public surface wrapping it plus transaction parsing.
package pushtx

import (
	"context"
	"errors"

	"github.com/btcpushtx/pushtx/broadcast"
	"github.com/btcpushtx/pushtx/chaincfg"
	"github.com/btcpushtx/pushtx/peer"
)

// Re-exported so callers never need to import the broadcast subpackage
// directly.
type (
	Opts             = broadcast.Opts
	Info             = broadcast.Info
	InfoKind         = broadcast.InfoKind
	FailureKind      = broadcast.FailureKind
	Report           = broadcast.Report
	TorMode          = broadcast.TorMode
	FindPeerStrategy = broadcast.FindPeerStrategy
)

const (
	TorOff      = broadcast.TorOff
	TorTry      = broadcast.TorTry
	TorRequired = broadcast.TorRequired

	DNSSeedWithFixedFallback = broadcast.DNSSeedWithFixedFallback
	DNSSeedOnly              = broadcast.DNSSeedOnly
	Custom                   = broadcast.Custom

	InfoResolvingPeers = broadcast.InfoResolvingPeers
	InfoResolvedPeers  = broadcast.InfoResolvedPeers
	InfoConnecting     = broadcast.InfoConnecting
	InfoBroadcast      = broadcast.InfoBroadcast
	InfoRejected       = broadcast.InfoRejected
	InfoDone           = broadcast.InfoDone
)

// Sentinel errors a caller can match with errors.Is against Info.Err.
var (
	ErrNoPeersResolved           = broadcast.ErrNoPeersResolved
	ErrTorRequiredButUnavailable = broadcast.ErrTorRequiredButUnavailable
	ErrAllPeersFailed            = broadcast.ErrAllPeersFailed
	ErrNoneBroadcast             = broadcast.ErrNoneBroadcast
	ErrTimeout                   = broadcast.ErrTimeout
)

// ParseNetwork converts a network name such as the ones accepted on the
// pushtx command line into a Network value.
func ParseNetwork(name string) (Network, error) {
	return chaincfg.ParseNetwork(name)
}

// DefaultOpts returns the options used when a caller does not override
// them. See broadcast.DefaultOpts for the concrete defaults.
func DefaultOpts() Opts {
	return broadcast.DefaultOpts()
}

// Network aliases so callers configuring Opts.Network don't need to import
// the chaincfg subpackage either.
type Network = chaincfg.Network

const (
	Mainnet = chaincfg.Mainnet
	Testnet = chaincfg.Testnet
	Signet  = chaincfg.Signet
	Regtest = chaincfg.Regtest
)

// Broadcast validates transactions and opts, then spawns the broadcast
// supervisor in the background and returns a channel of progress events
// terminated by a single Info with Kind == broadcast.InfoDone.
func Broadcast(ctx context.Context, transactions []Transaction, opts Opts) (<-chan Info, error) {
	if len(transactions) == 0 {
		return nil, errors.New("pushtx: no transactions to broadcast")
	}

	txs := make([]peer.Tx, len(transactions))
	for i, tx := range transactions {
		txs[i] = tx.toPeerTx()
	}

	return broadcast.Run(ctx, txs, opts)
}
