// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Reject codes as defined by the now-removed BIP61. This engine only needs
// to recognize them well enough to log a reason; it does not act
// differently based on the specific code.
const (
	RejectMalformed       = 0x01
	RejectInvalid         = 0x10
	RejectObsolete        = 0x11
	RejectDuplicate       = 0x12
	RejectNonstandard     = 0x40
	RejectDust            = 0x41
	RejectInsufficientFee = 0x42
	RejectCheckpoint      = 0x43
)

// maxRejectReasonLen bounds the reason string length this engine accepts.
const maxRejectReasonLen = 250

// MsgReject implements the Message interface and represents a pre-BIP61-
// removal reject message. Peers on current networks rarely send these, so
// decoding is best-effort: absence of a reject message is not an error
// condition anywhere else in the engine.
type MsgReject struct {
	// Cmd is the command (e.g. "tx") that triggered the rejection.
	Cmd string

	// Code is the numeric reject code.
	Code uint8

	// Reason is a human readable explanation.
	Reason string

	// Hash identifies the rejected object. It is encoded and decoded
	// only when Cmd is "tx"; for any other command it stays zero.
	Hash chainhash.Hash
}

// BtcDecode decodes r into the receiver. Part of the Message interface.
func (msg *MsgReject) BtcDecode(r io.Reader, pver uint32) error {
	cmd, err := ReadVarString(r, CommandSize*4)
	if err != nil {
		return err
	}
	msg.Cmd = cmd

	code, err := binarySerializer.Uint8(r)
	if err != nil {
		return err
	}
	msg.Code = code

	reason, err := ReadVarString(r, maxRejectReasonLen)
	if err != nil {
		return err
	}
	msg.Reason = reason

	if msg.Cmd == CmdTx {
		if err := readElement(r, &msg.Hash); err != nil {
			return err
		}
	}

	return nil
}

// BtcEncode encodes the receiver to w. Part of the Message interface.
func (msg *MsgReject) BtcEncode(w io.Writer, pver uint32) error {
	if err := WriteVarString(w, msg.Cmd); err != nil {
		return err
	}
	if err := binarySerializer.PutUint8(w, msg.Code); err != nil {
		return err
	}
	if err := WriteVarString(w, msg.Reason); err != nil {
		return err
	}
	if msg.Cmd == CmdTx {
		return writeElement(w, &msg.Hash)
	}
	return nil
}

// Command returns the protocol command string for the message.
func (msg *MsgReject) Command() string {
	return CmdReject
}

// MaxPayloadLength returns the maximum length the payload can be for this
// message type.
func (msg *MsgReject) MaxPayloadLength(pver uint32) uint32 {
	return uint32(VarIntSerializeSize(CommandSize*4)) + CommandSize*4 + 1 +
		uint32(VarIntSerializeSize(maxRejectReasonLen)) + maxRejectReasonLen +
		chainhash.HashSize
}
