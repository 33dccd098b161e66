// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire_test

import (
	"bytes"
	"io"
	"net"
	"reflect"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"github.com/btcpushtx/pushtx/chaincfg"
	"github.com/btcpushtx/pushtx/wire"
)

// roundTrip encodes msg, decodes it back and returns the result, failing the
// test on any error along the way.
func roundTrip(t *testing.T, msg wire.Message) wire.Message {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, wire.WriteMessage(&buf, msg, wire.ProtocolVersion, chaincfg.MainNetMagic))

	got, _, err := wire.ReadMessage(&buf, wire.ProtocolVersion, chaincfg.MainNetMagic)
	require.NoError(t, err)
	return got
}

func TestMessageRoundTrip(t *testing.T) {
	hash := chainhash.HashH([]byte("test transaction"))

	tests := []wire.Message{
		wire.NewMsgVerAck(),
		wire.NewMsgPing(0xdeadbeefcafebabe),
		wire.NewMsgPong(0xdeadbeefcafebabe),
		wire.NewMsgInvForTx(&hash),
		func() wire.Message {
			m := wire.NewMsgGetData()
			m.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &hash))
			return m
		}(),
		wire.NewMsgTx([]byte{0x01, 0x02, 0x03, 0x04}),
		wire.NewMsgVersion(
			wire.NewNetAddressIPPort(net.IPv4(127, 0, 0, 1).To16(), 8333, 0),
			wire.NewNetAddressIPPort(net.IPv4(127, 0, 0, 2).To16(), 8333, 0),
			0x1122334455667788,
			800000,
		),
	}

	for _, want := range tests {
		t.Run(want.Command(), func(t *testing.T) {
			got := roundTrip(t, want)
			if !reflectEqual(want, got) {
				t.Fatalf("round trip mismatch for %s\nwant: %s\ngot:  %s",
					want.Command(), spew.Sdump(want), spew.Sdump(got))
			}
		})
	}
}

func TestReadMessageChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteMessage(&buf, wire.NewMsgPing(42), wire.ProtocolVersion, chaincfg.MainNetMagic))

	corrupted := buf.Bytes()
	// Flip a bit in the payload without touching the checksum field.
	corrupted[wire.MessageHeaderSize] ^= 0xff

	_, _, err := wire.ReadMessage(bytes.NewReader(corrupted), wire.ProtocolVersion, chaincfg.MainNetMagic)
	require.Error(t, err)
}

func TestReadMessageNetworkMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteMessage(&buf, wire.NewMsgVerAck(), wire.ProtocolVersion, chaincfg.TestNet3Magic))

	_, _, err := wire.ReadMessage(&buf, wire.ProtocolVersion, chaincfg.MainNetMagic)
	require.Error(t, err)
}

func TestReadMessageUnknownCommandIsSkippable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteMessage(&buf, unknownMessage{}, wire.ProtocolVersion, chaincfg.MainNetMagic))

	_, _, err := wire.ReadMessage(&buf, wire.ProtocolVersion, chaincfg.MainNetMagic)
	require.ErrorIs(t, err, wire.ErrUnknownMessage)
}

// unknownMessage simulates a message type this package doesn't understand,
// used to exercise the "skip frame, continue" behavior for unsupported
// commands described in the wire codec's decode contract.
type unknownMessage struct{}

func (unknownMessage) BtcDecode(r io.Reader, pver uint32) error { return nil }
func (unknownMessage) BtcEncode(w io.Writer, pver uint32) error { return nil }
func (unknownMessage) Command() string                         { return "bogus" }
func (unknownMessage) MaxPayloadLength(pver uint32) uint32      { return 0 }

func reflectEqual(a, b wire.Message) bool {
	return reflect.DeepEqual(a, b)
}
