// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/btcpushtx/pushtx/chaincfg"
	"github.com/btcpushtx/pushtx/peer"
	"github.com/btcpushtx/pushtx/peersource"
	"github.com/btcpushtx/pushtx/transport"
)

// dialTimeout bounds an individual outbound connect, including any SOCKS5
// negotiation.
const dialTimeout = 10 * time.Second

// propagationWindow is how long a transaction must have been observed back
// from another peer before the run considers it durably propagated.
const propagationWindow = 5 * time.Second

// eventBufferSize sizes the Info channel handed back to the caller.
const eventBufferSize = 256

// Run validates txs and opts, then spawns the supervisor in the background
// and returns a channel of progress events terminated by a single InfoDone
// event. The returned error covers argument validation only.
func Run(ctx context.Context, txs []peer.Tx, opts Opts) (<-chan Info, error) {
	if len(txs) == 0 {
		return nil, errors.New("broadcast: no transactions to broadcast")
	}
	if opts.TargetPeers == 0 {
		return nil, errors.New("broadcast: target peers must be at least 1")
	}
	if opts.FindPeerStrategy == Custom && len(opts.CustomPeers) == 0 {
		return nil, errors.New("broadcast: custom peer strategy requires at least one peer")
	}

	params, err := chaincfg.Lookup(opts.Network)
	if err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}

	out := make(chan Info, eventBufferSize)
	r := &runner{
		txs:    txs,
		opts:   opts,
		params: params,
		out:    out,
		cancel: make(map[netip.AddrPort]context.CancelFunc),
		tx:     make(map[chainhash.Hash]*txProgress, len(txs)),
	}
	for _, tx := range txs {
		r.tx[tx.Hash] = &txProgress{}
	}

	go r.run(ctx)

	return out, nil
}

type txProgress struct {
	sentTo      map[netip.AddrPort]bool
	seenOtherAt *time.Time
	rejects     int
	broadcasts  int
}

type runner struct {
	txs    []peer.Tx
	opts   Opts
	params *chaincfg.Params
	out    chan Info

	mode transport.Mode

	mu     sync.Mutex
	cancel map[netip.AddrPort]context.CancelFunc
	used   map[netip.AddrPort]bool
	tx     map[chainhash.Hash]*txProgress
}

func (r *runner) emit(info Info) {
	r.out <- info
}

func (r *runner) run(parentCtx context.Context) {
	defer close(r.out)

	ctx, cancelAll := context.WithTimeout(parentCtx, r.opts.MaxTime)
	defer cancelAll()

	mode, err := transport.ResolveMode(ctx, r.opts.UseTor)
	if err != nil {
		r.emit(Info{Kind: InfoDone, Err: ErrTorRequiredButUnavailable})
		return
	}
	r.mode = mode

	r.emit(Info{Kind: InfoResolvingPeers})

	resolver, err := peersource.New(toPeerSourceStrategy(r.opts.FindPeerStrategy), r.params, r.opts.CustomPeers)
	if err != nil {
		r.emit(Info{Kind: InfoDone, Err: fmt.Errorf("%w: %v", ErrNoPeersResolved, err)})
		return
	}

	pool, err := resolver.Resolve(ctx)
	if err != nil || len(pool) == 0 {
		r.emit(Info{Kind: InfoDone, Err: ErrNoPeersResolved})
		return
	}

	r.emit(Info{Kind: InfoResolvedPeers, ResolvedPeers: len(pool)})
	r.emit(Info{Kind: InfoConnecting, TransportMode: mode.String(), ProxyAddr: mode.Socks5Addr})

	r.used = make(map[netip.AddrPort]bool, r.opts.TargetPeers)

	aggCh := make(chan peer.Event, 64)

	live := 0
	for live < int(r.opts.TargetPeers) && len(pool) > 0 {
		addr := pool[0]
		pool = pool[1:]
		live++
		go r.launch(ctx, addr, aggCh)
	}

	propagationTicker := time.NewTicker(500 * time.Millisecond)
	defer propagationTicker.Stop()

	for {
		if r.allTxsPropagated() {
			r.finish(Report{Broadcasts: r.totalBroadcasts(), Rejects: r.totalRejects()}, nil)
			return
		}

		if live == 0 && len(pool) == 0 {
			deadline, _ := ctx.Deadline()
			switch {
			case ctx.Err() != nil || !time.Now().Before(deadline):
				// The last session ended because the run deadline cut it
				// off (its own read deadline can fire a moment before ctx
				// reports it), not because the pool ran dry first.
				r.finish(Report{Broadcasts: r.totalBroadcasts(), Rejects: r.totalRejects()}, ErrTimeout)
			case r.totalBroadcasts() == 0:
				// Every dialed session failed, or none that reached
				// Active ever managed to send a transaction.
				r.finish(Report{}, ErrAllPeersFailed)
			case !r.anyAcknowledged():
				// At least one tx went out, but no peer ever
				// independently relayed it back to us.
				r.finish(Report{Broadcasts: r.totalBroadcasts(), Rejects: r.totalRejects()}, ErrNoneBroadcast)
			default:
				// Best-effort completion: the peer pool ran dry before
				// every tx cleared its full propagation window, but at
				// least one peer corroborated at least one tx.
				r.finish(Report{Broadcasts: r.totalBroadcasts(), Rejects: r.totalRejects()}, nil)
			}
			return
		}

		select {
		case <-ctx.Done():
			// The loop only reaches select after failing the
			// allTxsPropagated check above, so the deadline always
			// fires with at least one transaction unpropagated.
			r.finish(Report{Broadcasts: r.totalBroadcasts(), Rejects: r.totalRejects()}, ErrTimeout)
			return

		case ev := <-aggCh:
			r.handleEvent(ev)

			// EventClosed/EventFailed are always the last event a
			// session reports before its Events channel closes, so
			// receiving one here (in aggCh's own delivery order,
			// unlike a separate completion channel would be) is the
			// one reliable signal that a peer slot has freed up.
			if ev.Kind == peer.EventClosed || ev.Kind == peer.EventFailed {
				live--
				r.mu.Lock()
				if cancel, ok := r.cancel[ev.Peer]; ok {
					cancel()
					delete(r.cancel, ev.Peer)
				}
				usedThisPeer := r.used[ev.Peer]
				r.mu.Unlock()

				if !usedThisPeer && len(pool) > 0 {
					next := pool[0]
					pool = pool[1:]
					live++
					go r.launch(ctx, next, aggCh)
				}
			}

		case <-propagationTicker.C:
			// Re-checked at the top of the loop; this tick just wakes the
			// select so a propagation window can close without new events.
		}
	}
}

// launch dials addr and runs a session against it, forwarding its events to
// aggCh until the session terminates. The final event a session reports is
// always EventClosed or EventFailed, which doubles as launch's completion
// signal to the supervisor.
func (r *runner) launch(ctx context.Context, addr netip.AddrPort, aggCh chan<- peer.Event) {
	sessionCtx, cancel := context.WithCancel(ctx)

	conn, err := transport.Dial(sessionCtx, r.mode, addr.String(), dialTimeout)
	if err != nil {
		aggCh <- peer.Event{Peer: addr, Kind: peer.EventFailed, Reason: fmt.Errorf("dial: %w", err)}
		cancel()
		return
	}

	cfg := peer.DefaultConfig(r.params)
	cfg.SendUnsolicited = r.opts.SendUnsolicited
	cfg.DryRun = r.opts.DryRun

	sess, err := peer.New(conn, addr, cfg, r.pendingTxs())
	if err != nil {
		conn.Close()
		aggCh <- peer.Event{Peer: addr, Kind: peer.EventFailed, Reason: err}
		cancel()
		return
	}

	r.mu.Lock()
	r.cancel[addr] = cancel
	r.mu.Unlock()

	go sess.Run(sessionCtx)

	for ev := range sess.Events() {
		select {
		case aggCh <- ev:
		case <-sessionCtx.Done():
			// The supervisor has already moved on (finish was called);
			// nothing will ever drain aggCh again, so give up instead
			// of leaking this goroutine on a blocked send.
			return
		}
	}
}

// pendingTxs returns the transaction set every new session should be
// offered.
func (r *runner) pendingTxs() []peer.Tx {
	out := make([]peer.Tx, len(r.txs))
	copy(out, r.txs)
	return out
}

// handleEvent updates per-transaction counters and translates a session
// event into the corresponding caller-facing Info event.
func (r *runner) handleEvent(ev peer.Event) {
	switch ev.Kind {
	case peer.EventSent:
		r.mu.Lock()
		if r.used == nil {
			r.used = make(map[netip.AddrPort]bool)
		}
		r.used[ev.Peer] = true
		if p, ok := r.tx[ev.Txid]; ok {
			if p.sentTo == nil {
				p.sentTo = make(map[netip.AddrPort]bool)
			}
			p.sentTo[ev.Peer] = true
			p.broadcasts++
		}
		r.mu.Unlock()

		r.emit(Info{Kind: InfoBroadcast, Peer: ev.Peer.String(), Txid: ev.Txid})

	case peer.EventSeen:
		r.mu.Lock()
		if p, ok := r.tx[ev.Txid]; ok {
			other := p.sentTo == nil || !p.sentTo[ev.Peer]
			if other && p.seenOtherAt == nil {
				now := time.Now()
				p.seenOtherAt = &now
			}
		}
		r.mu.Unlock()

	case peer.EventRejected:
		r.mu.Lock()
		if p, ok := r.tx[ev.Txid]; ok {
			p.rejects++
		}
		r.mu.Unlock()

		reason := ""
		if ev.Reason != nil {
			reason = ev.Reason.Error()
		}
		r.emit(Info{Kind: InfoRejected, Peer: ev.Peer.String(), Txid: ev.Txid, RejectReason: reason})

	case peer.EventFailed:
		r.emit(Info{
			Kind:        InfoPeerFailure,
			Peer:        ev.Peer.String(),
			FailureKind: failureKindFromSession(ev.Reason),
		})

	case peer.EventConnected, peer.EventHandshakeDone, peer.EventAnnounced, peer.EventClosed:
		// Not part of the external event contract; logged only.
		log.Debugf("%s: %v", ev.Peer, ev.Kind)
	}
}

// allTxsPropagated reports whether every transaction has cleared the
// propagation bar: seen from a distinct peer, with the observation window
// elapsed.
func (r *runner) allTxsPropagated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.tx {
		if p.seenOtherAt == nil || time.Since(*p.seenOtherAt) < propagationWindow {
			return false
		}
	}
	return true
}

// anyAcknowledged reports whether any transaction has been independently
// relayed back by at least one peer, regardless of whether its
// propagation window has fully elapsed.
func (r *runner) anyAcknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.tx {
		if p.seenOtherAt != nil {
			return true
		}
	}
	return false
}

func (r *runner) totalBroadcasts() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, p := range r.tx {
		total += p.broadcasts
	}
	return total
}

func (r *runner) totalRejects() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, p := range r.tx {
		total += p.rejects
	}
	return total
}

// finish cancels every live session and emits the final Done event.
func (r *runner) finish(report Report, err error) {
	r.mu.Lock()
	for addr, cancel := range r.cancel {
		cancel()
		delete(r.cancel, addr)
	}
	r.mu.Unlock()

	if err != nil {
		r.emit(Info{Kind: InfoDone, Err: err})
		return
	}
	rpt := report
	r.emit(Info{Kind: InfoDone, Report: &rpt})
}

func toPeerSourceStrategy(s FindPeerStrategy) peersource.Strategy {
	switch s {
	case DNSSeedOnly:
		return peersource.DNSSeedOnly
	case Custom:
		return peersource.Custom
	default:
		return peersource.DNSSeedWithFixedFallback
	}
}

// failureKindFromSession best-effort maps a session failure error back to
// the closed FailureKind enum this package exposes externally.
func failureKindFromSession(err error) FailureKind {
	if err == nil {
		return FailureConnectionReset
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "self-connect"):
		return FailureSelfConnect
	case strings.Contains(msg, "handshake-timeout"):
		return FailureHandshakeTimeout
	case strings.Contains(msg, "inactivity-timeout"):
		return FailureInactivityTimeout
	case strings.Contains(msg, "dial:"):
		return FailureDialTimeout
	case strings.Contains(msg, "protocol-error"):
		return FailureProtocolViolation
	default:
		return FailureConnectionReset
	}
}
