// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

// ProtocolVersion is the latest protocol version this package supports and
// advertises during the handshake.
const ProtocolVersion uint32 = 70016

// MinAcceptableProtocolVersion is the oldest peer protocol version this
// engine will still attempt to speak to, per the wire compatibility
// requirement of supporting protocol version >= 70001.
const MinAcceptableProtocolVersion uint32 = 70001

// ServiceFlag identifies services supported by a peer.
type ServiceFlag uint64

const (
	// SFNodeNetwork indicates a peer is a full node that can serve block
	// and transaction data.
	SFNodeNetwork ServiceFlag = 1 << iota

	// SFNodeGetUTXO indicates a peer supports the getutxo protocol.
	SFNodeGetUTXO

	// SFNodeBloom indicates a peer supports bloom filtering.
	SFNodeBloom

	// SFNodeWitness indicates a peer supports segregated witness.
	SFNodeWitness
)
