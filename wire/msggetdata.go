// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgGetData implements the Message interface and represents a getdata
// message, requesting the bodies of previously advertised objects. It has
// the exact same wire shape as MsgInv.
type MsgGetData struct {
	InvList []*InvVect
}

// AddInvVect adds an inventory vector to the message.
func (msg *MsgGetData) AddInvVect(iv *InvVect) {
	msg.InvList = append(msg.InvList, iv)
}

// BtcDecode decodes r into the receiver. Part of the Message interface.
func (msg *MsgGetData) BtcDecode(r io.Reader, pver uint32) error {
	list, err := readInvList(r)
	if err != nil {
		return err
	}
	msg.InvList = list
	return nil
}

// BtcEncode encodes the receiver to w. Part of the Message interface.
func (msg *MsgGetData) BtcEncode(w io.Writer, pver uint32) error {
	return writeInvList(w, msg.InvList)
}

// Command returns the protocol command string for the message.
func (msg *MsgGetData) Command() string {
	return CmdGetData
}

// MaxPayloadLength returns the maximum length the payload can be for this
// message type.
func (msg *MsgGetData) MaxPayloadLength(pver uint32) uint32 {
	return maxInvListPayload()
}

// NewMsgGetData returns a new, empty getdata message.
func NewMsgGetData() *MsgGetData {
	return &MsgGetData{InvList: make([]*InvVect, 0, 1)}
}
