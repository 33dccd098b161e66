// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package broadcast

// Error is a closed enum of the ways a broadcast run can fail overall.
// Values are comparable with errors.Is.
type Error struct {
	kind errorKind
}

type errorKind uint8

const (
	kindNoPeersResolved errorKind = iota
	kindTorRequiredButUnavailable
	kindAllPeersFailed
	kindNoneBroadcast
	kindTimeout
)

// Sentinel Error values a caller can compare against with errors.Is.
var (
	// ErrNoPeersResolved means peer discovery produced no candidates at
	// all.
	ErrNoPeersResolved = &Error{kindNoPeersResolved}

	// ErrTorRequiredButUnavailable means UseTor was TorRequired but no
	// local proxy answered the startup probe.
	ErrTorRequiredButUnavailable = &Error{kindTorRequiredButUnavailable}

	// ErrAllPeersFailed means every dialed session failed before any
	// transaction could be sent.
	ErrAllPeersFailed = &Error{kindAllPeersFailed}

	// ErrNoneBroadcast means the peer source was exhausted after at least
	// one transaction was sent to a peer, but no peer ever relayed any of
	// them back.
	ErrNoneBroadcast = &Error{kindNoneBroadcast}

	// ErrTimeout means the global run deadline elapsed.
	ErrTimeout = &Error{kindTimeout}
)

func (e *Error) Error() string {
	switch e.kind {
	case kindNoPeersResolved:
		return "no peers could be resolved"
	case kindTorRequiredButUnavailable:
		return "tor was required but no local proxy was found"
	case kindAllPeersFailed:
		return "all peer connections failed"
	case kindNoneBroadcast:
		return "no sent transaction was relayed back by any peer"
	case kindTimeout:
		return "broadcast run timed out"
	default:
		return "unknown broadcast error"
	}
}

// Is reports whether target is the same Error sentinel, satisfying
// errors.Is without exposing the enum's underlying representation.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.kind == e.kind
}

var _ error = (*Error)(nil)
