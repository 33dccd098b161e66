// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peersource discovers candidate peer addresses for a Bitcoin
// network by querying its DNS seeds, optionally falling back to a small
// compiled-in list of known-good addresses when DNS seeding underperforms.
package peersource

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/btcpushtx/pushtx/chaincfg"
)

// minResolvedBeforeFixedFallback is the number of DNS-resolved addresses
// below which the fixed seed list is consulted to pad out the candidate
// pool. It is fixed, and independent of the number of concurrent sessions
// the broadcast supervisor keeps (Opts.TargetPeers).
const minResolvedBeforeFixedFallback = 16

// Strategy selects how candidate peer addresses are obtained.
type Strategy uint8

const (
	// DNSSeedWithFixedFallback queries DNS seeds and pads the result
	// with the network's fixed seed list if fewer than
	// minResolvedBeforeFixedFallback addresses came back. This is the
	// default strategy.
	DNSSeedWithFixedFallback Strategy = iota

	// DNSSeedOnly queries DNS seeds exclusively and never consults the
	// fixed seed list, even if DNS seeding returns nothing.
	DNSSeedOnly

	// Custom bypasses discovery entirely; the caller supplies the full
	// peer list up front.
	Custom
)

// Resolver discovers peer addresses for a network according to a Strategy.
type Resolver struct {
	strategy Strategy
	params   *chaincfg.Params
	resolver *net.Resolver
	custom   []netip.AddrPort
}

// New returns a Resolver for params using strategy. custom is only
// consulted when strategy is Custom, and is returned by Resolve parsed,
// deduplicated and shuffled.
func New(strategy Strategy, params *chaincfg.Params, custom []string) (*Resolver, error) {
	r := &Resolver{
		strategy: strategy,
		params:   params,
		resolver: net.DefaultResolver,
	}

	if strategy == Custom {
		for _, addr := range custom {
			ap, err := resolveHostPort(addr, params.DefaultPort)
			if err != nil {
				return nil, fmt.Errorf("peersource: invalid custom peer %q: %w", addr, err)
			}
			r.custom = append(r.custom, ap)
		}
	}

	return r, nil
}

// Resolve returns a shuffled list of candidate peer addresses, following
// the Resolver's configured Strategy.
func (r *Resolver) Resolve(ctx context.Context) ([]netip.AddrPort, error) {
	if r.strategy == Custom {
		out := make([]netip.AddrPort, len(r.custom))
		copy(out, r.custom)
		out = dedup(out)
		shuffle(out)
		return out, nil
	}

	resolved := r.queryDNSSeeds(ctx)

	if r.strategy == DNSSeedWithFixedFallback && len(resolved) < minResolvedBeforeFixedFallback {
		log.Infof("only %d addresses from DNS seeds, falling back to fixed seed list", len(resolved))
		resolved = append(resolved, r.fixedSeeds()...)
	}

	resolved = dedup(resolved)
	shuffle(resolved)

	if len(resolved) == 0 {
		return nil, fmt.Errorf("peersource: no peer addresses found for %s", r.params.Name)
	}

	return resolved, nil
}

// queryDNSSeeds resolves every configured DNS seed concurrently, retrying
// each seed briefly through an exponential backoff before giving up on it.
func (r *Resolver) queryDNSSeeds(ctx context.Context) []netip.AddrPort {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []netip.AddrPort
	)

	for _, seed := range r.params.DNSSeeds {
		wg.Add(1)
		go func(seed string) {
			defer wg.Done()

			addrs, err := r.lookupWithRetry(ctx, seed)
			if err != nil {
				log.Debugf("DNS seed %s failed: %v", seed, err)
				return
			}

			mu.Lock()
			for _, ip := range addrs {
				results = append(results, netip.AddrPortFrom(ip, r.params.DefaultPort))
			}
			mu.Unlock()
		}(seed)
	}

	wg.Wait()
	return results
}

// lookupWithRetry resolves host through the configured net.Resolver,
// retrying transient failures with capped exponential backoff.
func (r *Resolver) lookupWithRetry(ctx context.Context, host string) ([]netip.Addr, error) {
	var addrs []net.IPAddr

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	op := func() error {
		lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		found, err := r.resolver.LookupIPAddr(lookupCtx, host)
		if err != nil {
			return err
		}
		addrs = found
		return nil
	}

	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}

	out := make([]netip.Addr, 0, len(addrs))
	for _, ip := range addrs {
		if a, ok := netip.AddrFromSlice(ip.IP.To16()); ok {
			out = append(out, a.Unmap())
		}
	}
	return out, nil
}

// fixedSeeds parses the network's compiled-in fixed seed list.
func (r *Resolver) fixedSeeds() []netip.AddrPort {
	out := make([]netip.AddrPort, 0, len(r.params.FixedSeeds))
	for _, s := range r.params.FixedSeeds {
		ap, err := netip.ParseAddrPort(s)
		if err != nil {
			log.Warnf("skipping malformed fixed seed %q: %v", s, err)
			continue
		}
		out = append(out, ap)
	}
	return out
}

// resolveHostPort parses addr as host:port (defaulting to defaultPort if no
// port is given) and resolves it to a netip.AddrPort, accepting either an
// IP literal or a hostname.
func resolveHostPort(addr string, defaultPort uint16) (netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		portStr = ""
	}

	port := defaultPort
	if portStr != "" {
		var p uint64
		if _, err := fmt.Sscanf(portStr, "%d", &p); err != nil {
			return netip.AddrPort{}, fmt.Errorf("invalid port %q", portStr)
		}
		port = uint16(p)
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(ip.Unmap(), port), nil
	}

	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return netip.AddrPort{}, fmt.Errorf("cannot resolve %q: %w", host, err)
	}
	ip, ok := netip.AddrFromSlice(ips[0].To16())
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("cannot parse resolved address for %q", host)
	}
	return netip.AddrPortFrom(ip.Unmap(), port), nil
}

// dedup removes duplicate addresses, preserving the first occurrence's
// position.
func dedup(addrs []netip.AddrPort) []netip.AddrPort {
	seen := make(map[netip.AddrPort]struct{}, len(addrs))
	out := addrs[:0]
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// shuffle randomizes the order of addrs in place using a crypto/rand-seeded
// PRNG, so repeated runs don't always dial the same peers first.
func shuffle(addrs []netip.AddrPort) {
	r := seededRand()
	r.Shuffle(len(addrs), func(i, j int) {
		addrs[i], addrs[j] = addrs[j], addrs[i]
	})
}

// seededRand returns a math/rand/v2 source seeded from crypto/rand.
func seededRand() *rand.Rand {
	var seed [32]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		// crypto/rand failing indicates a broken system entropy
		// source; fall back to a time-derived seed rather than
		// panicking mid-broadcast.
		binary.LittleEndian.PutUint64(seed[:8], uint64(time.Now().UnixNano()))
	}
	return rand.New(rand.NewChaCha8(seed))
}
