// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgVerAck implements the Message interface and represents the verack
// message, which has no payload and acknowledges a previously received
// version message.
type MsgVerAck struct{}

// BtcDecode decodes r into the receiver. Part of the Message interface.
func (msg *MsgVerAck) BtcDecode(r io.Reader, pver uint32) error {
	return nil
}

// BtcEncode encodes the receiver to w. Part of the Message interface.
func (msg *MsgVerAck) BtcEncode(w io.Writer, pver uint32) error {
	return nil
}

// Command returns the protocol command string for the message.
func (msg *MsgVerAck) Command() string {
	return CmdVerAck
}

// MaxPayloadLength returns the maximum length the payload can be for this
// message type.
func (msg *MsgVerAck) MaxPayloadLength(pver uint32) uint32 {
	return 0
}

// NewMsgVerAck returns a new verack message.
func NewMsgVerAck() *MsgVerAck {
	return &MsgVerAck{}
}
