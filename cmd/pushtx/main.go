// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command pushtx connects directly to the Bitcoin P2P network, selects a
// number of random peers via DNS, and broadcasts one or more transactions.
// If Tor is running on the same system, it attempts to use it by default.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/btcpushtx/pushtx"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if cfg.LogFile != "" {
		if err := initLogRotator(cfg.LogFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	if err := setLogLevels(cfg.DebugLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	txs, err := readTransactions(cfg.File)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(txs) == 0 {
		fmt.Fprintln(os.Stderr, "no transactions given")
		return 1
	}

	if cfg.DryRun {
		fmt.Println("! ** DRY RUN MODE **")
	}

	fmt.Println("* The following transactions will be broadcast:")
	pending := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		txid := tx.Txid()
		fmt.Printf("  - %s\n", txid)
		pending[txid.String()] = struct{}{}
	}

	events, err := pushtx.Broadcast(context.Background(), txs, cfg.toOpts())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	return drain(events, pending, cfg.Network)
}

// drain consumes the event stream until Done, printing progress, and
// returns the process exit code.
func drain(events <-chan pushtx.Info, pending map[string]struct{}, network string) int {
	for ev := range events {
		switch ev.Kind {
		case pushtx.InfoResolvingPeers:
			fmt.Println("* Resolving peers from DNS...")

		case pushtx.InfoResolvedPeers:
			fmt.Printf("* Resolved %d peers\n", ev.ResolvedPeers)

		case pushtx.InfoConnecting:
			fmt.Printf("* Connecting to the P2P network (%s)...\n", network)
			if ev.ProxyAddr != "" {
				fmt.Printf("  - using Tor proxy found at %s\n", ev.ProxyAddr)
			} else {
				fmt.Println("  - not using Tor")
			}

		case pushtx.InfoBroadcast:
			fmt.Printf("* Broadcast to peer %s\n", ev.Peer)
			delete(pending, ev.Txid.String())

		case pushtx.InfoRejected:
			fmt.Printf("  - reject from %s: %s: %s\n", ev.Peer, ev.Txid, ev.RejectReason)

		case pushtx.InfoDone:
			return finish(ev, pending)
		}
	}
	return 2
}

func finish(ev pushtx.Info, pending map[string]struct{}) int {
	if ev.Err != nil {
		fmt.Fprintf(os.Stderr, "* Failed to broadcast: %v\n", ev.Err)

		// These mean the engine never got far enough to attempt a
		// broadcast at all; treat them like any other startup error.
		if errors.Is(ev.Err, pushtx.ErrNoPeersResolved) ||
			errors.Is(ev.Err, pushtx.ErrTorRequiredButUnavailable) {
			return 1
		}
		return 2
	}

	if len(pending) > 0 {
		fmt.Println("* Failed to broadcast one or more transactions")
		return 2
	}

	fmt.Println("* Done! Broadcast successful")
	return 0
}

// readTransactions reads whitespace-delimited hex transactions from path,
// or from standard input if path is "-" or empty.
func readTransactions(path string) ([]pushtx.Transaction, error) {
	var r io.Reader

	switch path {
	case "", "-":
		if fi, statErr := os.Stdin.Stat(); statErr == nil && (fi.Mode()&os.ModeCharDevice) != 0 {
			fmt.Fprintln(os.Stderr, "Enter hex-encoded transactions (one per line, Ctrl+D when done)...")
		}
		r = os.Stdin
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var txs []pushtx.Transaction
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tx, err := pushtx.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("parsing transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return txs, nil
}
