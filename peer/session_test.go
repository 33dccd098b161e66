// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/btcpushtx/pushtx/chaincfg"
	"github.com/btcpushtx/pushtx/wire"
)

// fakePeer drives the remote side of a net.Pipe connection, performing
// just enough of the protocol to exercise a Session under test.
type fakePeer struct {
	conn   net.Conn
	params *chaincfg.Params
}

func (f *fakePeer) readMessage() (wire.Message, error) {
	msg, _, err := wire.ReadMessage(f.conn, wire.ProtocolVersion, f.params.Net)
	return msg, err
}

func (f *fakePeer) write(msg wire.Message) error {
	return wire.WriteMessage(f.conn, msg, wire.ProtocolVersion, f.params.Net)
}

func (f *fakePeer) completeHandshake(t *testing.T) {
	t.Helper()

	msg, err := f.readMessage()
	require.NoError(t, err)
	_, ok := msg.(*wire.MsgVersion)
	require.True(t, ok)

	me := wire.NewNetAddressIPPort(net.IPv4(127, 0, 0, 1).To16(), f.params.DefaultPort, 0)
	you := wire.NewNetAddressIPPort(net.IPv4(127, 0, 0, 2).To16(), f.params.DefaultPort, 0)
	require.NoError(t, f.write(wire.NewMsgVersion(me, you, 0xabc123, 0)))

	// net.Pipe is unbuffered: the session writes its verack as soon as it
	// reads our version, so read that verack before sending ours.
	msg, err = f.readMessage()
	require.NoError(t, err)
	_, ok = msg.(*wire.MsgVerAck)
	require.True(t, ok)

	require.NoError(t, f.write(&wire.MsgVerAck{}))
}

func newTestSession(t *testing.T) (*Session, *fakePeer) {
	t.Helper()

	a, b := net.Pipe()
	params := &chaincfg.MainNetParams
	cfg := DefaultConfig(params)
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.PingInterval = time.Hour
	cfg.PongTimeout = time.Hour

	hash := chainhash.HashH([]byte("session test tx"))
	tx := Tx{Hash: hash, Raw: []byte{0xde, 0xad, 0xbe, 0xef}}

	addr := netip.MustParseAddrPort("127.0.0.1:8333")
	sess, err := New(a, addr, cfg, []Tx{tx})
	require.NoError(t, err)

	return sess, &fakePeer{conn: b, params: params}
}

func TestSessionHandshakeAndAnnounce(t *testing.T) {
	sess, fp := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()

	fp.completeHandshake(t)

	msg, err := fp.readMessage()
	require.NoError(t, err)
	inv, ok := msg.(*wire.MsgInv)
	require.True(t, ok)
	require.Len(t, inv.InvList, 1)
	require.Equal(t, wire.InvTypeTx, inv.InvList[0].Type)

	var gotConnected, gotHandshakeDone bool
	for ev := range sess.Events() {
		switch ev.Kind {
		case EventConnected:
			gotConnected = true
		case EventHandshakeDone:
			gotHandshakeDone = true
		}
		if gotConnected && gotHandshakeDone {
			cancel()
		}
	}
	require.True(t, gotConnected)
	require.True(t, gotHandshakeDone)

	<-done
}

func TestSessionServesRequestedTx(t *testing.T) {
	sess, fp := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sess.Run(ctx)

	fp.completeHandshake(t)

	msg, err := fp.readMessage()
	require.NoError(t, err)
	inv := msg.(*wire.MsgInv)
	hash := inv.InvList[0].Hash

	getdata := wire.NewMsgGetData()
	getdata.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &hash))
	require.NoError(t, fp.write(getdata))

	msg, err = fp.readMessage()
	require.NoError(t, err)
	txMsg, ok := msg.(*wire.MsgTx)
	require.True(t, ok)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, txMsg.Raw)

	var sawSent bool
	for ev := range sess.Events() {
		if ev.Kind == EventSent {
			sawSent = true
			cancel()
		}
	}
	require.True(t, sawSent)
}

// TestSessionDryRunSendsNoFrames covers spec scenario 5 at the session
// level: under DryRun, the handshake completes but no inv is announced,
// and even a peer that somehow already knows the txid and asks for it
// unsolicited is never sent a tx frame in reply.
func TestSessionDryRunSendsNoFrames(t *testing.T) {
	a, b := net.Pipe()
	params := &chaincfg.MainNetParams
	cfg := DefaultConfig(params)
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.PingInterval = time.Hour
	cfg.PongTimeout = time.Hour
	cfg.DryRun = true

	hash := chainhash.HashH([]byte("dry run tx"))
	tx := Tx{Hash: hash, Raw: []byte{0xde, 0xad, 0xbe, 0xef}}

	addr := netip.MustParseAddrPort("127.0.0.1:8333")
	sess, err := New(a, addr, cfg, []Tx{tx})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	fp := &fakePeer{conn: b, params: params}
	fp.completeHandshake(t)

	// No inv follows the handshake under DryRun; a short deadline turns
	// "nothing arrives" into an observable timeout instead of a hang.
	b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = fp.readMessage()
	requireTimeout(t, err)

	// Ask for the tx anyway, the strongest form of the invariant: even
	// an unsolicited getdata must never elicit a tx frame in reply.
	b.SetReadDeadline(time.Time{})
	getdata := wire.NewMsgGetData()
	getdata.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &hash))
	require.NoError(t, fp.write(getdata))

	b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = fp.readMessage()
	requireTimeout(t, err)

	cancel()
	for range sess.Events() {
	}
}

// requireTimeout asserts err is a network timeout, the signal this test
// suite uses to mean "nothing arrived on the wire."
func requireTimeout(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())
}

func TestSessionDetectsSelfConnect(t *testing.T) {
	a, b := net.Pipe()
	params := &chaincfg.MainNetParams
	cfg := DefaultConfig(params)
	cfg.HandshakeTimeout = 2 * time.Second

	addr := netip.MustParseAddrPort("127.0.0.1:8333")
	sess, err := New(a, addr, cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	fp := &fakePeer{conn: b, params: params}
	msg, err := fp.readMessage()
	require.NoError(t, err)
	ver := msg.(*wire.MsgVersion)

	// Echo our own nonce back to simulate connecting to ourselves.
	me := wire.NewNetAddressIPPort(net.IPv4(127, 0, 0, 1).To16(), params.DefaultPort, 0)
	you := wire.NewNetAddressIPPort(net.IPv4(127, 0, 0, 2).To16(), params.DefaultPort, 0)
	require.NoError(t, fp.write(wire.NewMsgVersion(me, you, ver.Nonce, 0)))

	var gotFailed bool
	for ev := range sess.Events() {
		if ev.Kind == EventFailed {
			gotFailed = true
		}
	}
	require.True(t, gotFailed)
	require.Equal(t, Failed, sess.State())
}
