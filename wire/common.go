// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// binaryFreeList is a pool of reusable byte slices used to avoid allocating
// scratch buffers for every element read/written on the wire.
type binaryFreeList chan []byte

var binarySerializer binaryFreeList = make(chan []byte, 8)

// Borrow returns a byte slice from the free list with a minimum capacity of
// size bytes, allocating a new one if the free list is empty.
func (l binaryFreeList) Borrow(size uint8) []byte {
	var buf []byte
	select {
	case buf = <-l:
	default:
		buf = make([]byte, 8)
	}
	return buf[:size]
}

// Return places a byte slice back onto the free list.
func (l binaryFreeList) Return(buf []byte) {
	select {
	case l <- buf:
	default:
	}
}

func (l binaryFreeList) Uint8(r io.Reader) (uint8, error) {
	buf := l.Borrow(1)
	defer l.Return(buf)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (l binaryFreeList) Uint16(r io.Reader, order binary.ByteOrder) (uint16, error) {
	buf := l.Borrow(2)
	defer l.Return(buf)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return order.Uint16(buf), nil
}

func (l binaryFreeList) Uint32(r io.Reader, order binary.ByteOrder) (uint32, error) {
	buf := l.Borrow(4)
	defer l.Return(buf)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return order.Uint32(buf), nil
}

func (l binaryFreeList) Uint64(r io.Reader, order binary.ByteOrder) (uint64, error) {
	buf := l.Borrow(8)
	defer l.Return(buf)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return order.Uint64(buf), nil
}

func (l binaryFreeList) PutUint8(w io.Writer, val uint8) error {
	buf := l.Borrow(1)
	defer l.Return(buf)
	buf[0] = val
	_, err := w.Write(buf)
	return err
}

func (l binaryFreeList) PutUint16(w io.Writer, order binary.ByteOrder, val uint16) error {
	buf := l.Borrow(2)
	defer l.Return(buf)
	order.PutUint16(buf, val)
	_, err := w.Write(buf)
	return err
}

func (l binaryFreeList) PutUint32(w io.Writer, order binary.ByteOrder, val uint32) error {
	buf := l.Borrow(4)
	defer l.Return(buf)
	order.PutUint32(buf, val)
	_, err := w.Write(buf)
	return err
}

func (l binaryFreeList) PutUint64(w io.Writer, order binary.ByteOrder, val uint64) error {
	buf := l.Borrow(8)
	defer l.Return(buf)
	order.PutUint64(buf, val)
	_, err := w.Write(buf)
	return err
}

var littleEndian = binary.LittleEndian
var bigEndian = binary.BigEndian

// uint32Time represents a unix timestamp encoded with a uint32 on the wire.
type uint32Time time.Time

// readElement reads the next element from r using little endian encoding,
// with the handful of special cases the wire protocol requires.
func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *int32:
		rv, err := binarySerializer.Uint32(r, littleEndian)
		if err != nil {
			return err
		}
		*e = int32(rv)
		return nil

	case *uint32:
		rv, err := binarySerializer.Uint32(r, littleEndian)
		if err != nil {
			return err
		}
		*e = rv
		return nil

	case *int64:
		rv, err := binarySerializer.Uint64(r, littleEndian)
		if err != nil {
			return err
		}
		*e = int64(rv)
		return nil

	case *uint64:
		rv, err := binarySerializer.Uint64(r, littleEndian)
		if err != nil {
			return err
		}
		*e = rv
		return nil

	case *bool:
		rv, err := binarySerializer.Uint8(r)
		if err != nil {
			return err
		}
		*e = rv != 0
		return nil

	case *uint32Time:
		rv, err := binarySerializer.Uint32(r, littleEndian)
		if err != nil {
			return err
		}
		*e = uint32Time(time.Unix(int64(rv), 0))
		return nil

	case *ServiceFlag:
		rv, err := binarySerializer.Uint64(r, littleEndian)
		if err != nil {
			return err
		}
		*e = ServiceFlag(rv)
		return nil

	case *InvType:
		rv, err := binarySerializer.Uint32(r, littleEndian)
		if err != nil {
			return err
		}
		*e = InvType(rv)
		return nil

	case *[4]byte:
		_, err := io.ReadFull(r, e[:])
		return err

	case *[CommandSize]byte:
		_, err := io.ReadFull(r, e[:])
		return err

	case *[32]byte:
		_, err := io.ReadFull(r, e[:])
		return err
	}

	return binary.Read(r, littleEndian, element)
}

// readElements reads multiple elements in order from r.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		if err := readElement(r, element); err != nil {
			return err
		}
	}
	return nil
}

// writeElement writes the next element to w using little endian encoding,
// with the handful of special cases the wire protocol requires.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case int32:
		return binarySerializer.PutUint32(w, littleEndian, uint32(e))

	case uint32:
		return binarySerializer.PutUint32(w, littleEndian, e)

	case int64:
		return binarySerializer.PutUint64(w, littleEndian, uint64(e))

	case uint64:
		return binarySerializer.PutUint64(w, littleEndian, e)

	case bool:
		var v uint8
		if e {
			v = 1
		}
		return binarySerializer.PutUint8(w, v)

	case ServiceFlag:
		return binarySerializer.PutUint64(w, littleEndian, uint64(e))

	case InvType:
		return binarySerializer.PutUint32(w, littleEndian, uint32(e))

	case [4]byte:
		_, err := w.Write(e[:])
		return err

	case [CommandSize]byte:
		_, err := w.Write(e[:])
		return err

	case [32]byte:
		_, err := w.Write(e[:])
		return err
	}

	return binary.Write(w, littleEndian, element)
}

// writeElements writes multiple elements in order to w.
func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		if err := writeElement(w, element); err != nil {
			return err
		}
	}
	return nil
}

// ReadVarInt reads a variable length integer from r and returns it as a
// uint64, following the Bitcoin var-int encoding.
func ReadVarInt(r io.Reader) (uint64, error) {
	discriminant, err := binarySerializer.Uint8(r)
	if err != nil {
		return 0, err
	}

	switch discriminant {
	case 0xff:
		rv, err := binarySerializer.Uint64(r, littleEndian)
		if err != nil {
			return 0, err
		}
		if rv < 0x100000000 {
			return 0, messageError("ReadVarInt", "non-canonical varint")
		}
		return rv, nil

	case 0xfe:
		rv, err := binarySerializer.Uint32(r, littleEndian)
		if err != nil {
			return 0, err
		}
		if rv < 0x10000 {
			return 0, messageError("ReadVarInt", "non-canonical varint")
		}
		return uint64(rv), nil

	case 0xfd:
		rv, err := binarySerializer.Uint16(r, littleEndian)
		if err != nil {
			return 0, err
		}
		if rv < 0xfd {
			return 0, messageError("ReadVarInt", "non-canonical varint")
		}
		return uint64(rv), nil

	default:
		return uint64(discriminant), nil
	}
}

// WriteVarInt writes val to w using the Bitcoin var-int encoding, choosing
// the most compact representation.
func WriteVarInt(w io.Writer, val uint64) error {
	if val < 0xfd {
		return binarySerializer.PutUint8(w, uint8(val))
	}

	if val <= 0xffff {
		if err := binarySerializer.PutUint8(w, 0xfd); err != nil {
			return err
		}
		return binarySerializer.PutUint16(w, littleEndian, uint16(val))
	}

	if val <= 0xffffffff {
		if err := binarySerializer.PutUint8(w, 0xfe); err != nil {
			return err
		}
		return binarySerializer.PutUint32(w, littleEndian, uint32(val))
	}

	if err := binarySerializer.PutUint8(w, 0xff); err != nil {
		return err
	}
	return binarySerializer.PutUint64(w, littleEndian, val)
}

// VarIntSerializeSize returns the number of bytes it would take to serialize
// val as a variable length integer.
func VarIntSerializeSize(val uint64) int {
	if val < 0xfd {
		return 1
	}
	if val <= 0xffff {
		return 3
	}
	if val <= 0xffffffff {
		return 5
	}
	return 9
}

// ReadVarString reads a variable length string from r, consisting of a
// var-int length prefix followed by that many bytes.
func ReadVarString(r io.Reader, maxLen uint64) (string, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	if n > maxLen {
		return "", messageError("ReadVarString",
			fmt.Sprintf("variable length string is too long [%d, max %d]", n, maxLen))
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteVarString writes s to w as a var-int length prefix followed by the
// string's bytes.
func WriteVarString(w io.Writer, s string) error {
	if err := WriteVarInt(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// messageError creates a MessageError given a caller location and a
// description of the error.
func messageError(caller, desc string) *MessageError {
	return &MessageError{Func: caller, Description: desc}
}

// MessageError describes an issue encountered while decoding or encoding a
// wire message. It satisfies the error interface.
type MessageError struct {
	Func        string
	Description string
}

func (e *MessageError) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("%s: %s", e.Func, e.Description)
	}
	return e.Description
}
