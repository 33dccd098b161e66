// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgPing implements the Message interface and represents a ping message
// used to confirm a connection is still valid and measure round-trip time.
// The payload is a nonce that the peer is expected to echo back in a pong.
type MsgPing struct {
	Nonce uint64
}

// BtcDecode decodes r into the receiver. Part of the Message interface.
func (msg *MsgPing) BtcDecode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.Nonce)
}

// BtcEncode encodes the receiver to w. Part of the Message interface.
func (msg *MsgPing) BtcEncode(w io.Writer, pver uint32) error {
	return writeElement(w, msg.Nonce)
}

// Command returns the protocol command string for the message.
func (msg *MsgPing) Command() string {
	return CmdPing
}

// MaxPayloadLength returns the maximum length the payload can be for this
// message type.
func (msg *MsgPing) MaxPayloadLength(pver uint32) uint32 {
	return 8
}

// NewMsgPing returns a new ping message with the given nonce.
func NewMsgPing(nonce uint64) *MsgPing {
	return &MsgPing{Nonce: nonce}
}
