// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pushtx_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/btcpushtx/pushtx"
)

func TestParseComputesTxid(t *testing.T) {
	raw := "0100000001abcdef"
	tx, err := pushtx.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, raw, tx.Hex())
	require.NotEqual(t, chainhash.Hash{}, tx.Txid())
}

func TestParseAcceptsMixedCaseAndWhitespace(t *testing.T) {
	tx, err := pushtx.Parse("  0100000001ABCdef\n")
	require.NoError(t, err)
	require.Equal(t, "0100000001abcdef", tx.Hex())
}

func TestParseRejectsOddLength(t *testing.T) {
	_, err := pushtx.Parse("abc")
	require.Error(t, err)
	require.True(t, errors.Is(err, pushtx.ErrOddLength))
}

func TestParseRejectsNonHex(t *testing.T) {
	_, err := pushtx.Parse("zzzz")
	var parseErr *pushtx.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := pushtx.Parse("")
	require.True(t, errors.Is(err, pushtx.ErrEmpty))
}

func TestParseRejectsOversized(t *testing.T) {
	_, err := pushtx.Parse(strings.Repeat("ab", 400*1024+1))
	require.True(t, errors.Is(err, pushtx.ErrTooLarge))
}

func TestFromBytesMatchesParse(t *testing.T) {
	viaParse, err := pushtx.Parse("deadbeef")
	require.NoError(t, err)

	viaBytes, err := pushtx.FromBytes([]byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)

	require.Equal(t, viaParse.Txid(), viaBytes.Txid())
	require.Equal(t, viaParse.Bytes(), viaBytes.Bytes())
}

func TestBroadcastRejectsEmptyTransactionList(t *testing.T) {
	_, err := pushtx.Broadcast(nil, nil, pushtx.DefaultOpts())
	require.Error(t, err)
}
