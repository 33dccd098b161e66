// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peersource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btcpushtx/pushtx/chaincfg"
)

func TestResolverCustomStrategy(t *testing.T) {
	r, err := New(Custom, &chaincfg.MainNetParams, []string{
		"203.0.113.1:8333",
		"203.0.113.2",
	})
	require.NoError(t, err)

	addrs, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, addrs, 2)

	ports := make(map[uint16]bool)
	for _, a := range addrs {
		ports[a.Port()] = true
	}
	require.True(t, ports[8333])
}

func TestResolverCustomRejectsGarbage(t *testing.T) {
	_, err := New(Custom, &chaincfg.MainNetParams, []string{"203.0.113.1:notaport"})
	require.Error(t, err)
}

func TestDedup(t *testing.T) {
	r, err := New(Custom, &chaincfg.MainNetParams, []string{
		"203.0.113.1:8333",
		"203.0.113.1:8333",
		"203.0.113.2:8333",
	})
	require.NoError(t, err)

	addrs, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, addrs, 2)
}

func TestFixedSeedsParse(t *testing.T) {
	r := &Resolver{params: &chaincfg.MainNetParams}
	seeds := r.fixedSeeds()
	require.NotEmpty(t, seeds)
	for _, s := range seeds {
		require.Equal(t, uint16(8333), s.Port())
	}
}
