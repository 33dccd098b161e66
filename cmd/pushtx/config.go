// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/btcpushtx/pushtx"
)

const (
	defaultNetwork     = "mainnet"
	defaultTorMode     = "try"
	defaultTargetPeers = 10
	defaultDebugLevel  = "info"
)

// config defines the configuration options for pushtx.
//
// See loadConfig for details on the configuration load process.
type config struct {
	Network         string   `short:"n" long:"network" description:"Bitcoin network to use {mainnet, testnet, signet, regtest}"`
	TorMode         string   `short:"m" long:"tor" description:"Tor usage policy {off, try, required}"`
	Peers           uint16   `short:"p" long:"peers" description:"Target number of concurrent peer connections"`
	DryRun          bool     `long:"dry-run" description:"Complete handshakes but never announce or send any transaction"`
	SendUnsolicited bool     `long:"send-unsolicited" description:"Send transactions immediately instead of waiting for getdata"`
	File            string   `short:"f" long:"file" description:"Path to a file of whitespace-delimited hex transactions (use - for stdin)"`
	Peer            []string `long:"peer" description:"Use this peer instead of DNS discovery (repeatable); disables DNS/fixed-seed discovery"`
	DebugLevel      string   `short:"D" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical, off}"`
	LogFile         string   `long:"logfile" description:"Also write logs to this file, rotated as it grows"`
}

func validLogLevel(level string) bool {
	switch level {
	case "trace", "debug", "info", "warn", "error", "critical", "off":
		return true
	}
	return false
}

// loadConfig parses the command line into a config, applying defaults and
// validating flag combinations.
func loadConfig() (*config, error) {
	cfg := config{
		Network:    defaultNetwork,
		TorMode:    defaultTorMode,
		Peers:      defaultTargetPeers,
		DebugLevel: defaultDebugLevel,
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			return nil, err
		}
		os.Exit(0)
	}

	if !validLogLevel(cfg.DebugLevel) {
		return nil, fmt.Errorf("invalid debuglevel %q", cfg.DebugLevel)
	}

	if _, err := pushtx.ParseNetwork(cfg.Network); err != nil {
		return nil, err
	}

	switch cfg.TorMode {
	case "off", "try", "required":
	default:
		return nil, fmt.Errorf("invalid tor mode %q", cfg.TorMode)
	}

	if cfg.Peers == 0 {
		return nil, fmt.Errorf("peers must be at least 1")
	}

	return &cfg, nil
}

// toOpts translates the parsed config into broadcast.Opts.
func (c *config) toOpts() pushtx.Opts {
	opts := pushtx.DefaultOpts()

	network, _ := pushtx.ParseNetwork(c.Network)
	opts.Network = network

	switch c.TorMode {
	case "off":
		opts.UseTor = pushtx.TorOff
	case "required":
		opts.UseTor = pushtx.TorRequired
	default:
		opts.UseTor = pushtx.TorTry
	}

	if len(c.Peer) > 0 {
		opts.FindPeerStrategy = pushtx.Custom
		opts.CustomPeers = c.Peer
	}

	opts.TargetPeers = c.Peers
	opts.DryRun = c.DryRun
	opts.SendUnsolicited = c.SendUnsolicited

	return opts
}
