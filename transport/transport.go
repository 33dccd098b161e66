// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package transport opens outbound streams to peers, either directly or
// through a local SOCKS5 proxy, and probes for a running Tor client.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/btcpushtx/pushtx/socks5"
)

// torProbeEndpoints are the default local addresses a Tor SOCKS5 proxy
// listens on: 9050 is the system tor daemon, 9150 is the Tor Browser
// bundle's own instance.
var torProbeEndpoints = []string{
	"127.0.0.1:9050",
	"127.0.0.1:9150",
}

// torProbeTimeout bounds how long the startup probe waits for either proxy
// endpoint to accept a connection.
const torProbeTimeout = 300 * time.Millisecond

// ErrDialTimeout is returned when an outbound connect does not complete
// within the configured per-dial timeout.
var ErrDialTimeout = errors.New("transport: dial timeout")

// Mode identifies how outbound connections are made.
type Mode struct {
	// Socks5Addr is non-empty when connections should be proxied
	// through a local SOCKS5 endpoint; empty means direct dialing.
	Socks5Addr string
}

// IsDirect reports whether m dials directly, without a proxy.
func (m Mode) IsDirect() bool {
	return m.Socks5Addr == ""
}

func (m Mode) String() string {
	if m.IsDirect() {
		return "direct"
	}
	return "socks5(" + m.Socks5Addr + ")"
}

// TorRequirement controls how a missing Tor proxy is handled at startup.
type TorRequirement uint8

const (
	// TorOff never probes for or uses a Tor proxy.
	TorOff TorRequirement = iota

	// TorTry probes for a Tor proxy and uses it if found, otherwise
	// falls back to direct dialing.
	TorTry

	// TorRequired probes for a Tor proxy and fails outright if none is
	// found.
	TorRequired
)

// ErrTorRequiredButUnavailable is returned by ResolveMode when TorRequired is
// requested but no local proxy answered the probe.
var ErrTorRequiredButUnavailable = errors.New("transport: tor required but no local proxy found")

// ResolveMode probes for a local Tor proxy according to requirement and
// returns the Mode subsequent dials should use.
func ResolveMode(ctx context.Context, requirement TorRequirement) (Mode, error) {
	if requirement == TorOff {
		return Mode{}, nil
	}

	addr, ok := probeTor(ctx)
	if !ok {
		if requirement == TorRequired {
			return Mode{}, ErrTorRequiredButUnavailable
		}
		log.Infof("no local Tor proxy found, dialing peers directly")
		return Mode{}, nil
	}

	log.Infof("using local Tor proxy at %s", addr)
	return Mode{Socks5Addr: addr}, nil
}

// probeTor attempts a short, non-blocking TCP connect to each known Tor
// proxy endpoint and returns the first one that accepts.
func probeTor(ctx context.Context) (string, bool) {
	for _, addr := range torProbeEndpoints {
		probeCtx, cancel := context.WithTimeout(ctx, torProbeTimeout)
		var d net.Dialer
		conn, err := d.DialContext(probeCtx, "tcp", addr)
		cancel()
		if err == nil {
			conn.Close()
			return addr, true
		}
	}
	return "", false
}

// Dial opens a stream to addr under mode, enforcing timeout as the overall
// deadline for the connect (and, for SOCKS5, the full proxy handshake).
func Dial(ctx context.Context, mode Mode, addr string, timeout time.Duration) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)

	if mode.IsDirect() {
		var d net.Dialer
		conn, err = d.DialContext(dialCtx, "tcp", addr)
	} else {
		conn, err = socks5.Dial(dialCtx, mode.Socks5Addr, addr)
	}

	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s: %v", ErrDialTimeout, addr, err)
		}
		return nil, err
	}

	return conn, nil
}
