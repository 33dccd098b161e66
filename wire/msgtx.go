// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MaxTxSize is a sanity cap on the size of a tx message payload this engine
// will accept or send. It is deliberately generous (well above any standard
// transaction) since the engine never validates transaction semantics, only
// passes the bytes through.
const MaxTxSize = 400 * 1024

// MsgTx implements the Message interface and represents a tx message. The
// engine treats the transaction body as an opaque byte string: it is never
// parsed, only forwarded verbatim between the already-validated input and
// the wire.
type MsgTx struct {
	Raw []byte
}

// BtcDecode decodes r into the receiver. Part of the Message interface.
func (msg *MsgTx) BtcDecode(r io.Reader, pver uint32) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	msg.Raw = raw
	return nil
}

// BtcEncode encodes the receiver to w. Part of the Message interface.
func (msg *MsgTx) BtcEncode(w io.Writer, pver uint32) error {
	_, err := w.Write(msg.Raw)
	return err
}

// Command returns the protocol command string for the message.
func (msg *MsgTx) Command() string {
	return CmdTx
}

// MaxPayloadLength returns the maximum length the payload can be for this
// message type.
func (msg *MsgTx) MaxPayloadLength(pver uint32) uint32 {
	return MaxTxSize
}

// NewMsgTx returns a new tx message wrapping the given raw transaction
// bytes.
func NewMsgTx(raw []byte) *MsgTx {
	return &MsgTx{Raw: raw}
}
