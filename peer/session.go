// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peer drives a single outbound connection to a Bitcoin node
// through the handshake and then the transaction broadcast exchange: inv
// announcement, getdata service, and relay/reject observation.
package peer

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/btcpushtx/pushtx/chaincfg"
	"github.com/btcpushtx/pushtx/wire"
)

// State identifies the high level state of a session.
type State uint8

const (
	Connecting State = iota
	Handshaking
	Active
	Closing
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureReason identifies why a session ended in Failed.
type FailureReason uint8

const (
	// SelfConnect means the remote peer's nonce matched ours.
	SelfConnect FailureReason = iota

	// HandshakeTimeout means version/verack did not complete in time.
	HandshakeTimeout

	// InactivityTimeout means no frame (including a pong) arrived
	// within the liveness window.
	InactivityTimeout

	// ProtocolError means a frame failed to decode or violated the
	// expected handshake ordering.
	ProtocolError

	// IOError means the underlying connection failed.
	IOError

	// LowProtocolVersion means the peer's advertised version was below
	// the minimum this engine accepts.
	LowProtocolVersion
)

func (r FailureReason) String() string {
	switch r {
	case SelfConnect:
		return "self-connect"
	case HandshakeTimeout:
		return "handshake-timeout"
	case InactivityTimeout:
		return "inactivity-timeout"
	case ProtocolError:
		return "protocol-error"
	case IOError:
		return "io-error"
	case LowProtocolVersion:
		return "low-protocol-version"
	default:
		return "unknown"
	}
}

// TxState tracks one transaction's progress within a single session.
type TxState uint8

const (
	Announced TxState = iota
	Requested
	Sent
	Seen
	Rejected
)

// Tx is a transaction this session should offer to its peer.
type Tx struct {
	Hash chainhash.Hash
	Raw  []byte
}

// Config bundles the tunables a session needs, derived once by the
// supervisor from broadcast.Opts.
type Config struct {
	Params           *chaincfg.Params
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
	LingerTimeout    time.Duration
	MaxFrameSize     uint32
	SendUnsolicited  bool
	DryRun           bool
}

// DefaultConfig returns the timing defaults described for the peer session
// state machine: a 10s handshake window, a 2 minute ping cadence, a 90s
// pong grace period, and a 20s linger-on-close window.
func DefaultConfig(params *chaincfg.Params) Config {
	return Config{
		Params:           params,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     2 * time.Minute,
		PongTimeout:      90 * time.Second,
		LingerTimeout:    20 * time.Second,
		MaxFrameSize:     wire.MaxMessagePayload,
		SendUnsolicited:  false,
		DryRun:           false,
	}
}

// EventKind identifies what happened during a session, reported to the
// supervisor over the session's event channel.
type EventKind uint8

const (
	EventConnected EventKind = iota
	EventHandshakeDone
	EventAnnounced
	EventSent
	EventSeen
	EventRejected
	EventClosed
	EventFailed
)

// Event describes one notable occurrence in a session's lifetime.
type Event struct {
	Peer   netip.AddrPort
	Kind   EventKind
	Txid   chainhash.Hash
	Reason error
}

// Session drives a single connection from Connecting through to Closing or
// Failed. It is not safe for concurrent use by multiple goroutines besides
// the one running Run.
type Session struct {
	addr     netip.AddrPort
	conn     net.Conn
	cfg      Config
	ourNonce uint64

	mu    sync.Mutex
	state State
	txs   map[chainhash.Hash]*txEntry

	events chan Event
}

type txEntry struct {
	tx     Tx
	state  TxState
	sentTo bool
}

// New returns a Session for an already-established connection to addr,
// ready to announce the given transactions once the handshake completes.
func New(conn net.Conn, addr netip.AddrPort, cfg Config, txs []Tx) (*Session, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("peer: generating nonce: %w", err)
	}

	entries := make(map[chainhash.Hash]*txEntry, len(txs))
	for _, tx := range txs {
		entries[tx.Hash] = &txEntry{tx: tx, state: Announced}
	}

	return &Session{
		addr:     addr,
		conn:     conn,
		cfg:      cfg,
		ourNonce: nonce,
		state:    Connecting,
		txs:      entries,
		events:   make(chan Event, 32),
	}, nil
}

// randomNonce returns a cryptographically random 64-bit value, used both
// as the version nonce (for self-connect detection) and as the nonce of
// each ping this session sends.
func randomNonce() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// Events returns the channel Session reports its lifecycle on. It is
// closed once Run returns.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) emit(kind EventKind, txid chainhash.Hash, reason error) {
	select {
	case s.events <- Event{Peer: s.addr, Kind: kind, Txid: txid, Reason: reason}:
	default:
		log.Warnf("%s: event channel full, dropping %v event", s.addr, kind)
	}
}

// Run drives the session to completion: handshake, then the broadcast
// exchange, until ctx is cancelled or a failure occurs. It always closes
// the underlying connection and the events channel before returning.
func (s *Session) Run(ctx context.Context) {
	defer close(s.events)
	defer s.conn.Close()

	s.emit(EventConnected, chainhash.Hash{}, nil)

	if err := s.handshake(ctx); err != nil {
		s.fail(handshakeFailureReason(err), err)
		return
	}

	s.setState(Active)
	s.emit(EventHandshakeDone, chainhash.Hash{}, nil)

	var offerErr error
	switch {
	case s.cfg.DryRun:
		// A dry run completes the handshake and nothing else: no inv
		// is announced and no tx is ever offered, so there is nothing
		// for a peer to request.
	case s.cfg.SendUnsolicited:
		offerErr = s.sendAllUnsolicited()
	default:
		offerErr = s.announcePending()
	}
	if offerErr != nil {
		s.fail(IOError, offerErr)
		return
	}

	s.loop(ctx)
}

// fail transitions the session to Failed and reports it, choosing a more
// specific reason when err already carries one.
func (s *Session) fail(reason FailureReason, err error) {
	s.setState(Failed)
	if err == nil {
		err = errors.New(reason.String())
	}
	log.Debugf("%s: session failed: %v", s.addr, err)
	s.emit(EventFailed, chainhash.Hash{}, fmt.Errorf("%s: %w", reason, err))
}

// handshake sends our version message and waits for the peer's version and
// verack, enforcing the handshake timeout and detecting self-connections.
func (s *Session) handshake(ctx context.Context) error {
	s.setState(Handshaking)

	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	if deadline, ok := hctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
	}

	me := wire.NewNetAddressIPPort(nil, s.cfg.Params.DefaultPort, 0)
	you := wire.NewNetAddressIPPort(s.addr.Addr().AsSlice(), s.addr.Port(), 0)
	ver := wire.NewMsgVersion(me, you, s.ourNonce, 0)
	ver.Timestamp = time.Now().Unix()

	if err := wire.WriteMessage(s.conn, ver, wire.ProtocolVersion, s.cfg.Params.Net); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}

	var gotVersion, gotVerack bool
	for !gotVersion || !gotVerack {
		if deadline, ok := hctx.Deadline(); ok {
			s.conn.SetReadDeadline(deadline)
		}

		msg, _, err := wire.ReadMessage(s.conn, wire.ProtocolVersion, s.cfg.Params.Net)
		if err != nil {
			if hctx.Err() != nil {
				return fmt.Errorf("%w: %v", errHandshakeTimeout, err)
			}
			if errors.Is(err, wire.ErrUnknownMessage) {
				continue
			}
			return err
		}

		switch m := msg.(type) {
		case *wire.MsgVersion:
			if gotVersion {
				return errors.New("duplicate version message")
			}
			if m.Nonce == s.ourNonce {
				return errSelfConnect
			}
			if uint32(m.ProtocolVersion) < wire.MinAcceptableProtocolVersion {
				return errLowProtocolVersion
			}
			gotVersion = true

			if err := wire.WriteMessage(s.conn, &wire.MsgVerAck{}, wire.ProtocolVersion, s.cfg.Params.Net); err != nil {
				return fmt.Errorf("writing verack: %w", err)
			}

		case *wire.MsgVerAck:
			gotVerack = true

		default:
			// Anything else before verack is a protocol violation;
			// no application frames are accepted this early.
			return fmt.Errorf("unexpected message %q before handshake completed", msg.Command())
		}
	}

	return nil
}

var (
	errHandshakeTimeout   = errors.New("handshake timed out")
	errSelfConnect        = errors.New("connected to ourselves")
	errLowProtocolVersion = errors.New("peer protocol version too low")
)

// handshakeFailureReason maps an error returned by handshake to the
// specific FailureReason it represents.
func handshakeFailureReason(err error) FailureReason {
	switch {
	case errors.Is(err, errSelfConnect):
		return SelfConnect
	case errors.Is(err, errHandshakeTimeout):
		return HandshakeTimeout
	case errors.Is(err, errLowProtocolVersion):
		return LowProtocolVersion
	default:
		return ProtocolError
	}
}

// announcePending sends an inv advertising every transaction still in the
// Announced state.
func (s *Session) announcePending() error {
	s.mu.Lock()
	inv := wire.NewMsgInv()
	announced := make([]chainhash.Hash, 0, len(s.txs))
	for hash, e := range s.txs {
		if e.state == Announced {
			inv.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &hash))
			announced = append(announced, hash)
		}
	}
	s.mu.Unlock()

	if len(inv.InvList) == 0 {
		return nil
	}

	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := wire.WriteMessage(s.conn, inv, wire.ProtocolVersion, s.cfg.Params.Net); err != nil {
		return err
	}

	for _, hash := range announced {
		s.emit(EventAnnounced, hash, nil)
	}
	return nil
}

// sendAllUnsolicited sends every pending transaction directly, without an
// inv/getdata round trip, used when Config.SendUnsolicited is set.
func (s *Session) sendAllUnsolicited() error {
	s.mu.Lock()
	pending := make([]txEntry, 0, len(s.txs))
	for _, e := range s.txs {
		if e.state == Announced {
			pending = append(pending, *e)
		}
	}
	s.mu.Unlock()

	for _, e := range pending {
		if !s.cfg.DryRun {
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := wire.WriteMessage(s.conn, wire.NewMsgTx(e.tx.Raw), wire.ProtocolVersion, s.cfg.Params.Net); err != nil {
				return err
			}
		}

		s.mu.Lock()
		entry := s.txs[e.tx.Hash]
		entry.state = Sent
		entry.sentTo = true
		s.mu.Unlock()

		s.emit(EventSent, e.tx.Hash, nil)
	}
	return nil
}

// loop runs the Active-state message exchange until ctx is cancelled, the
// per-session linger timeout elapses with nothing left to do, or the
// connection fails.
func (s *Session) loop(ctx context.Context) {
	msgCh := make(chan wire.Message)
	errCh := make(chan error, 1)
	closeReader := make(chan struct{})
	readerDone := make(chan struct{})

	readerStopped := false
	stopReader := func() {
		if !readerStopped {
			readerStopped = true
			close(closeReader)
		}
	}
	defer stopReader()

	go func() {
		defer close(readerDone)
		s.readLoop(msgCh, errCh, closeReader)
	}()

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	pongTimer := time.NewTimer(s.cfg.PongTimeout)
	defer pongTimer.Stop()
	if !pongTimer.Stop() {
		<-pongTimer.C
	}
	awaitingPong := false

	// lingerTimer starts only once every pending transaction has reached
	// a terminal per-session state; until then this session still has
	// work a getdata could trigger, so it waits indefinitely for the
	// supervisor instead of closing on its own initiative.
	lingerTimer := time.NewTimer(s.cfg.LingerTimeout)
	defer lingerTimer.Stop()
	if !lingerTimer.Stop() {
		<-lingerTimer.C
	}
	lingerArmed := false
	if s.allTxsResolved() {
		lingerArmed = true
		lingerTimer.Reset(s.cfg.LingerTimeout)
	}

	for {
		select {
		case <-ctx.Done():
			s.closeGracefully(stopReader, readerDone)
			return

		case <-lingerTimer.C:
			s.closeGracefully(stopReader, readerDone)
			return

		case err := <-errCh:
			s.fail(IOError, err)
			return

		case msg := <-msgCh:
			if err := s.handleActive(msg); err != nil {
				s.fail(ProtocolError, err)
				return
			}
			if _, ok := msg.(*wire.MsgPong); ok {
				awaitingPong = false
				pongTimer.Stop()
			}
			if !lingerArmed && s.allTxsResolved() {
				lingerArmed = true
				lingerTimer.Reset(s.cfg.LingerTimeout)
			}

		case <-pingTicker.C:
			nonce, err := randomNonce()
			if err != nil {
				s.fail(IOError, err)
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := wire.WriteMessage(s.conn, wire.NewMsgPing(nonce), wire.ProtocolVersion, s.cfg.Params.Net); err != nil {
				s.fail(IOError, err)
				return
			}
			awaitingPong = true
			pongTimer.Reset(s.cfg.PongTimeout)

		case <-pongTimer.C:
			if awaitingPong {
				s.fail(InactivityTimeout, nil)
				return
			}
		}
	}
}

// drainTimeout bounds how long closeGracefully's half-close step waits for
// the peer to finish sending before the hard close proceeds regardless.
const drainTimeout = 2 * time.Second

// closeGracefully transitions to Closing and performs the state table's
// "send nothing, half-close, drain briefly" exit action: the write side is
// shut down so the peer sees EOF, and whatever it still has in flight is
// read and discarded for a short grace period before Run's deferred
// conn.Close does the hard close.
//
// stopReader and readerDone hand off the connection from readLoop first:
// an immediate read deadline unblocks any read readLoop is parked in, and
// closeGracefully waits for it to actually exit before reading the conn
// itself, so the two never contend for the same bytes.
func (s *Session) closeGracefully(stopReader func(), readerDone <-chan struct{}) {
	s.setState(Closing)

	s.conn.SetReadDeadline(time.Now())
	stopReader()
	<-readerDone

	if hc, ok := s.conn.(interface{ CloseWrite() error }); ok {
		hc.CloseWrite()
	}

	s.conn.SetReadDeadline(time.Now().Add(drainTimeout))
	io.Copy(io.Discard, s.conn)

	s.emit(EventClosed, chainhash.Hash{}, nil)
}

// allTxsResolved reports whether every transaction this session was asked
// to offer has reached a terminal per-session state (sent, independently
// seen, or rejected), meaning a getdata from this peer can no longer
// change anything and the session is free to linger-close.
func (s *Session) allTxsResolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.txs {
		if e.state != Sent && e.state != Seen && e.state != Rejected {
			return false
		}
	}
	return true
}

// readLoop continuously decodes frames off the connection and forwards
// them to msgCh, exiting (and reporting on errCh) at the first error or
// once closeReader is signalled.
func (s *Session) readLoop(msgCh chan<- wire.Message, errCh chan<- error, closeReader <-chan struct{}) {
	for {
		select {
		case <-closeReader:
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout + s.cfg.PingInterval))
		msg, _, err := wire.ReadMessage(s.conn, wire.ProtocolVersion, s.cfg.Params.Net)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownMessage) {
				continue
			}
			select {
			case errCh <- err:
			case <-closeReader:
			}
			return
		}

		select {
		case msgCh <- msg:
		case <-closeReader:
			return
		}
	}
}

// handleActive processes one frame received while Active.
func (s *Session) handleActive(msg wire.Message) error {
	switch m := msg.(type) {
	case *wire.MsgPing:
		s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return wire.WriteMessage(s.conn, wire.NewMsgPong(m.Nonce), wire.ProtocolVersion, s.cfg.Params.Net)

	case *wire.MsgPong:
		return nil

	case *wire.MsgGetData:
		for _, iv := range m.InvList {
			if iv.Type != wire.InvTypeTx {
				continue
			}
			if err := s.serveTx(iv.Hash); err != nil {
				return err
			}
		}
		return nil

	case *wire.MsgInv:
		for _, iv := range m.InvList {
			if iv.Type != wire.InvTypeTx {
				continue
			}
			s.markSeen(iv.Hash)
		}
		return nil

	case *wire.MsgReject:
		if m.Cmd == wire.CmdTx {
			s.markRejected(m.Hash, m.Reason)
		}
		return nil

	case *wire.MsgVersion, *wire.MsgVerAck:
		// Tolerate a redundant handshake message from a chatty peer.
		return nil

	default:
		log.Debugf("%s: ignoring unexpected %s message", s.addr, msg.Command())
		return nil
	}
}

// serveTx sends the transaction identified by hash if we have it pending
// and have not already sent it to this peer; a repeat getdata is ignored.
// Under DryRun every getdata is ignored.
func (s *Session) serveTx(hash chainhash.Hash) error {
	s.mu.Lock()
	e, ok := s.txs[hash]
	if !ok || e.sentTo || s.cfg.DryRun {
		s.mu.Unlock()
		return nil
	}
	e.state = Requested
	raw := e.tx.Raw
	s.mu.Unlock()

	if !s.cfg.DryRun {
		s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := wire.WriteMessage(s.conn, wire.NewMsgTx(raw), wire.ProtocolVersion, s.cfg.Params.Net); err != nil {
			return err
		}
	}

	s.mu.Lock()
	e.state = Sent
	e.sentTo = true
	s.mu.Unlock()

	s.emit(EventSent, hash, nil)
	return nil
}

// markSeen records that this peer independently advertised a transaction
// we're broadcasting, which the supervisor treats as propagation evidence.
func (s *Session) markSeen(hash chainhash.Hash) {
	s.mu.Lock()
	e, ok := s.txs[hash]
	if ok {
		e.state = Seen
	}
	s.mu.Unlock()

	if ok {
		s.emit(EventSeen, hash, nil)
	}
}

// markRejected records that this peer rejected a transaction we sent it.
func (s *Session) markRejected(hash chainhash.Hash, reason string) {
	s.mu.Lock()
	e, ok := s.txs[hash]
	if ok {
		e.state = Rejected
	}
	s.mu.Unlock()

	if ok {
		s.emit(EventRejected, hash, errors.New(reason))
	}
}
