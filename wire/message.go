// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/btcpushtx/pushtx/chaincfg"
)

// MessageHeaderSize is the number of bytes in a Bitcoin message header:
// network magic (4) + command (12) + payload length (4) + checksum (4).
const MessageHeaderSize = 24

// CommandSize is the fixed size of the command field in a message header.
// Shorter commands are zero padded.
const CommandSize = 12

// MaxMessagePayload is the maximum bytes a message can be regardless of any
// individual limit imposed by a particular message type.
const MaxMessagePayload = 32 * 1024 * 1024

// Commands used in Bitcoin message headers that this package understands.
const (
	CmdVersion = "version"
	CmdVerAck  = "verack"
	CmdPing    = "ping"
	CmdPong    = "pong"
	CmdInv     = "inv"
	CmdGetData = "getdata"
	CmdTx      = "tx"
	CmdReject  = "reject"
)

// ErrUnknownMessage is returned by decode when the command in a message
// header does not match any message type this package understands. Per the
// node-tolerance convention, this is not a fatal condition for the caller;
// the frame should simply be skipped.
var ErrUnknownMessage = fmt.Errorf("unknown wire command")

// Message is implemented by every decodable/encodable wire payload.
type Message interface {
	BtcDecode(r io.Reader, pver uint32) error
	BtcEncode(w io.Writer, pver uint32) error
	Command() string
	MaxPayloadLength(pver uint32) uint32
}

// makeEmptyMessage returns a zero-valued Message for the given command, or
// ErrUnknownMessage if the command isn't one this package decodes.
func makeEmptyMessage(command string) (Message, error) {
	switch command {
	case CmdVersion:
		return &MsgVersion{}, nil
	case CmdVerAck:
		return &MsgVerAck{}, nil
	case CmdPing:
		return &MsgPing{}, nil
	case CmdPong:
		return &MsgPong{}, nil
	case CmdInv:
		return &MsgInv{}, nil
	case CmdGetData:
		return &MsgGetData{}, nil
	case CmdTx:
		return &MsgTx{}, nil
	case CmdReject:
		return &MsgReject{}, nil
	default:
		return nil, ErrUnknownMessage
	}
}

// messageHeader is the decoded form of a wire frame's fixed-size header.
type messageHeader struct {
	magic    chaincfg.BitcoinNet
	command  string
	length   uint32
	checksum [4]byte
}

// readMessageHeader reads a message header from r.
func readMessageHeader(r io.Reader) (int, *messageHeader, error) {
	var headerBytes [MessageHeaderSize]byte
	n, err := io.ReadFull(r, headerBytes[:])
	if err != nil {
		return n, nil, err
	}
	hr := bytes.NewReader(headerBytes[:])

	var magic uint32
	var command [CommandSize]byte
	var length uint32
	var checksum [4]byte
	if err := readElements(hr, &magic, &command, &length, &checksum); err != nil {
		return n, nil, err
	}

	hdr := &messageHeader{
		magic:    chaincfg.BitcoinNet(magic),
		command:  string(bytes.TrimRight(command[:], "\x00")),
		length:   length,
		checksum: checksum,
	}
	return n, hdr, nil
}

// discardInput reads and discards n bytes from r in bounded chunks, used to
// skip the remainder of a frame that has been rejected partway through.
func discardInput(r io.Reader, n uint32) {
	const chunkSize = 10 * 1024
	buf := make([]byte, chunkSize)
	for n > 0 {
		toRead := n
		if toRead > chunkSize {
			toRead = chunkSize
		}
		if _, err := io.ReadFull(r, buf[:toRead]); err != nil {
			return
		}
		n -= toRead
	}
}

// WriteMessage writes msg to w as a complete, checksummed wire frame on the
// given network.
func WriteMessage(w io.Writer, msg Message, pver uint32, net chaincfg.BitcoinNet) error {
	cmd := msg.Command()
	if len(cmd) > CommandSize {
		return messageError("WriteMessage",
			fmt.Sprintf("command %q is too long [max %d]", cmd, CommandSize))
	}
	var command [CommandSize]byte
	copy(command[:], cmd)

	var payload bytes.Buffer
	if err := msg.BtcEncode(&payload, pver); err != nil {
		return err
	}

	lenp := payload.Len()
	if lenp > MaxMessagePayload {
		return messageError("WriteMessage",
			fmt.Sprintf("payload of %d bytes exceeds max of %d", lenp, MaxMessagePayload))
	}
	if mpl := msg.MaxPayloadLength(pver); uint32(lenp) > mpl {
		return messageError("WriteMessage",
			fmt.Sprintf("payload of %d bytes exceeds max of %d for command %q", lenp, mpl, cmd))
	}

	checksum := chainhash.DoubleHashB(payload.Bytes())

	var header bytes.Buffer
	header.Grow(MessageHeaderSize)
	if err := writeElements(&header, uint32(net), command, uint32(lenp), [4]byte(checksum[:4])); err != nil {
		return err
	}

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	if payload.Len() > 0 {
		if _, err := w.Write(payload.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// ReadMessage reads, validates and parses the next message from r for the
// given protocol version and network. It returns the parsed message, the
// raw payload bytes, and any error. A network mismatch, bad checksum,
// oversized length or malformed command is a fatal decode error that should
// abort the connection; an unsupported but well-formed command yields
// ErrUnknownMessage, which callers should treat as "skip and continue".
func ReadMessage(r io.Reader, pver uint32, net chaincfg.BitcoinNet) (Message, []byte, error) {
	_, hdr, err := readMessageHeader(r)
	if err != nil {
		return nil, nil, err
	}

	if hdr.length > MaxMessagePayload {
		return nil, nil, messageError("ReadMessage",
			fmt.Sprintf("declared length %d exceeds max payload %d", hdr.length, MaxMessagePayload))
	}

	if hdr.magic != net {
		discardInput(r, hdr.length)
		return nil, nil, messageError("ReadMessage",
			fmt.Sprintf("message from foreign network %08x", uint32(hdr.magic)))
	}

	if !utf8.ValidString(hdr.command) {
		discardInput(r, hdr.length)
		return nil, nil, messageError("ReadMessage", "invalid command string")
	}

	msg, err := makeEmptyMessage(hdr.command)
	if err != nil {
		discardInput(r, hdr.length)
		return nil, nil, err
	}

	if mpl := msg.MaxPayloadLength(pver); hdr.length > mpl {
		discardInput(r, hdr.length)
		return nil, nil, messageError("ReadMessage",
			fmt.Sprintf("payload of %d bytes exceeds max %d for command %q", hdr.length, mpl, hdr.command))
	}

	payload := make([]byte, hdr.length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, nil, err
	}

	checksum := chainhash.DoubleHashB(payload)
	if !bytes.Equal(checksum[:4], hdr.checksum[:]) {
		return nil, nil, messageError("ReadMessage",
			fmt.Sprintf("checksum mismatch for command %q", hdr.command))
	}

	if err := msg.BtcDecode(bytes.NewReader(payload), pver); err != nil {
		return nil, nil, err
	}

	return msg, payload, nil
}
