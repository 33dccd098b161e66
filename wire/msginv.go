// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MsgInv implements the Message interface and represents an inv message,
// advertising objects (here, always transactions) the sender has.
type MsgInv struct {
	InvList []*InvVect
}

// AddInvVect adds an inventory vector to the message.
func (msg *MsgInv) AddInvVect(iv *InvVect) {
	msg.InvList = append(msg.InvList, iv)
}

// BtcDecode decodes r into the receiver. Part of the Message interface.
func (msg *MsgInv) BtcDecode(r io.Reader, pver uint32) error {
	list, err := readInvList(r)
	if err != nil {
		return err
	}
	msg.InvList = list
	return nil
}

// BtcEncode encodes the receiver to w. Part of the Message interface.
func (msg *MsgInv) BtcEncode(w io.Writer, pver uint32) error {
	return writeInvList(w, msg.InvList)
}

// Command returns the protocol command string for the message.
func (msg *MsgInv) Command() string {
	return CmdInv
}

// MaxPayloadLength returns the maximum length the payload can be for this
// message type.
func (msg *MsgInv) MaxPayloadLength(pver uint32) uint32 {
	return maxInvListPayload()
}

// NewMsgInv returns a new, empty inv message.
func NewMsgInv() *MsgInv {
	return &MsgInv{InvList: make([]*InvVect, 0, 1)}
}

// NewMsgInvForTx returns an inv message advertising a single transaction.
func NewMsgInvForTx(hash *chainhash.Hash) *MsgInv {
	msg := NewMsgInv()
	msg.AddInvVect(NewInvVect(InvTypeTx, hash))
	return msg
}
