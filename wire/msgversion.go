// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MaxUserAgentLen is the maximum allowed length for the user agent field in
// a version message.
const MaxUserAgentLen = 256

// MsgVersion implements the Message interface and represents the version
// message both sides of a connection exchange as the first step of the
// handshake.
type MsgVersion struct {
	// ProtocolVersion is the version the node advertises it can speak.
	ProtocolVersion int32

	// Services are the service flags the node supports.
	Services ServiceFlag

	// Timestamp is when the message was generated.
	Timestamp int64

	// AddrYou is the address of the node receiving this message, as seen
	// by the node sending it.
	AddrYou NetAddress

	// AddrMe is the address of the node sending this message.
	AddrMe NetAddress

	// Nonce is a random value used to detect self-connections.
	Nonce uint64

	// UserAgent identifies the software originating this message.
	UserAgent string

	// LastBlock is the last block height the sender is aware of.
	LastBlock int32

	// DisableRelayTx indicates the receiver should not announce
	// transactions via inv until a filter is set.
	DisableRelayTx bool
}

// BtcDecode decodes r into the receiver. Part of the Message interface.
func (msg *MsgVersion) BtcDecode(r io.Reader, pver uint32) error {
	var pv int32
	if err := readElement(r, &pv); err != nil {
		return err
	}
	msg.ProtocolVersion = pv

	if err := readElements(r, &msg.Services, &msg.Timestamp); err != nil {
		return err
	}

	if err := readNetAddress(r, &msg.AddrYou); err != nil {
		return err
	}

	// Protocol versions >= 106 added the sender address, nonce, user
	// agent and last block fields. Every peer this engine talks to is
	// expected to be well beyond that, so the fields are read
	// unconditionally; a version message lacking them fails to decode.
	if err := readNetAddress(r, &msg.AddrMe); err != nil {
		return err
	}

	if err := readElement(r, &msg.Nonce); err != nil {
		return err
	}

	ua, err := ReadVarString(r, MaxUserAgentLen)
	if err != nil {
		return err
	}
	msg.UserAgent = ua

	if err := readElement(r, &msg.LastBlock); err != nil {
		return err
	}

	// The relay flag was added in protocol version 70001 and is optional
	// on the wire; its absence means relay is assumed true.
	var relay bool
	if err := readElement(r, &relay); err != nil {
		msg.DisableRelayTx = false
		return nil
	}
	msg.DisableRelayTx = !relay

	return nil
}

// BtcEncode encodes the receiver to w. Part of the Message interface.
func (msg *MsgVersion) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeElements(w, msg.ProtocolVersion, msg.Services, msg.Timestamp); err != nil {
		return err
	}

	if err := writeNetAddress(w, &msg.AddrYou); err != nil {
		return err
	}

	if err := writeNetAddress(w, &msg.AddrMe); err != nil {
		return err
	}

	if err := writeElement(w, msg.Nonce); err != nil {
		return err
	}

	if err := WriteVarString(w, msg.UserAgent); err != nil {
		return err
	}

	if err := writeElement(w, msg.LastBlock); err != nil {
		return err
	}

	return writeElement(w, !msg.DisableRelayTx)
}

// Command returns the protocol command string for the message.
func (msg *MsgVersion) Command() string {
	return CmdVersion
}

// MaxPayloadLength returns the maximum length the payload can be for this
// message type.
func (msg *MsgVersion) MaxPayloadLength(pver uint32) uint32 {
	// 4 (version) + 8 (services) + 8 (timestamp) + 26*2 (addresses,
	// no timestamp) + 8 (nonce) + VarInt+MaxUserAgentLen (user agent) +
	// 4 (last block) + 1 (relay).
	return 33 + 26 + 26 + uint32(VarIntSerializeSize(MaxUserAgentLen)) + MaxUserAgentLen
}

// NewMsgVersion returns a new version message populated with the given
// values and sensible defaults for the rest.
func NewMsgVersion(me, you *NetAddress, nonce uint64, lastBlock int32) *MsgVersion {
	return &MsgVersion{
		ProtocolVersion: int32(ProtocolVersion),
		Services:        0,
		Timestamp:       0,
		AddrYou:         *you,
		AddrMe:          *me,
		Nonce:           nonce,
		UserAgent:       DefaultUserAgent,
		LastBlock:       lastBlock,
		DisableRelayTx:  false,
	}
}

// DefaultUserAgent is the user agent string NewMsgVersion puts in every
// version message; it is not configurable through Opts.
const DefaultUserAgent = "/pushtx:0.1.0/"
