// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgPong implements the Message interface and represents a pong message
// sent in response to a ping, echoing back its nonce.
type MsgPong struct {
	Nonce uint64
}

// BtcDecode decodes r into the receiver. Part of the Message interface.
func (msg *MsgPong) BtcDecode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.Nonce)
}

// BtcEncode encodes the receiver to w. Part of the Message interface.
func (msg *MsgPong) BtcEncode(w io.Writer, pver uint32) error {
	return writeElement(w, msg.Nonce)
}

// Command returns the protocol command string for the message.
func (msg *MsgPong) Command() string {
	return CmdPong
}

// MaxPayloadLength returns the maximum length the payload can be for this
// message type.
func (msg *MsgPong) MaxPayloadLength(pver uint32) uint32 {
	return 8
}

// NewMsgPong returns a new pong message echoing the given nonce.
func NewMsgPong(nonce uint64) *MsgPong {
	return &MsgPong{Nonce: nonce}
}
