// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MaxInvPerMsg is the maximum number of inventory vectors allowed in a
// single inv or getdata message.
const MaxInvPerMsg = 50000

// maxInvVectPayload is the maximum payload size for a single inventory
// vector: 4-byte type + 32-byte hash.
const maxInvVectPayload = 4 + chainhash.HashSize

// InvType represents the type of object an inventory vector describes.
type InvType uint32

// InvTypeTx is the only inventory type this engine produces or consumes:
// transactions. It is used unconditionally, per the design's requirement
// that announcements always use MSG_TX.
const InvTypeTx InvType = 1

var invTypeStrings = map[InvType]string{
	InvTypeTx: "MSG_TX",
}

// String returns the InvType in human-readable form.
func (t InvType) String() string {
	if s, ok := invTypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("unknown inv type (%d)", uint32(t))
}

// InvVect describes a single piece of inventory: its type and hash.
type InvVect struct {
	Type InvType
	Hash chainhash.Hash
}

// NewInvVect returns a new InvVect for the given type and hash.
func NewInvVect(typ InvType, hash *chainhash.Hash) *InvVect {
	return &InvVect{Type: typ, Hash: *hash}
}

func readInvVect(r io.Reader, iv *InvVect) error {
	return readElements(r, &iv.Type, &iv.Hash)
}

func writeInvVect(w io.Writer, iv *InvVect) error {
	return writeElements(w, iv.Type, &iv.Hash)
}

// readInvList reads a var-int count of InvVects followed by that many
// entries, used by both MsgInv and MsgGetData since they share the exact
// same wire shape.
func readInvList(r io.Reader) ([]*InvVect, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > MaxInvPerMsg {
		return nil, messageError("readInvList",
			fmt.Sprintf("too many inventory vectors for message [%d]", count))
	}

	list := make([]*InvVect, 0, count)
	for i := uint64(0); i < count; i++ {
		iv := &InvVect{}
		if err := readInvVect(r, iv); err != nil {
			return nil, err
		}
		list = append(list, iv)
	}
	return list, nil
}

// writeInvList writes a var-int count followed by each InvVect in list.
func writeInvList(w io.Writer, list []*InvVect) error {
	if len(list) > MaxInvPerMsg {
		return messageError("writeInvList",
			fmt.Sprintf("too many inventory vectors for message [%d]", len(list)))
	}

	if err := WriteVarInt(w, uint64(len(list))); err != nil {
		return err
	}
	for _, iv := range list {
		if err := writeInvVect(w, iv); err != nil {
			return err
		}
	}
	return nil
}

func maxInvListPayload() uint32 {
	return uint32(VarIntSerializeSize(MaxInvPerMsg)) + MaxInvPerMsg*maxInvVectPayload
}
