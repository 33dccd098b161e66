// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pushtx

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/btcpushtx/pushtx/peer"
)

// maxTransactionSize is a sanity cap on the size of a single serialized
// transaction this package will accept, well above anything seen on
// mainnet but small enough to reject garbage input outright.
const maxTransactionSize = 400 * 1024

// ErrOddLength means the hex string had an odd number of characters.
var ErrOddLength = errors.New("odd-length hex string")

// ErrTooLarge means the decoded transaction exceeded maxTransactionSize.
var ErrTooLarge = errors.New("transaction exceeds maximum size")

// ErrEmpty means the decoded transaction had zero bytes.
var ErrEmpty = errors.New("transaction is empty")

// ParseError wraps the underlying cause of a rejected transaction.
type ParseError struct {
	cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse transaction: %v", e.cause)
}

func (e *ParseError) Unwrap() error {
	return e.cause
}

// Transaction is an opaque, already-"validated" (in the sense of §3: only
// structurally plausible, never consensus-checked) serialized transaction
// plus its txid, computed once at parse time.
type Transaction struct {
	raw  []byte
	txid chainhash.Hash
}

// Parse decodes a hex-encoded transaction. It accepts mixed-case hex,
// trims surrounding whitespace (including a trailing newline), and rejects
// odd-length input, non-hex bytes, an empty result, or a result exceeding
// the size cap.
func Parse(hexString string) (Transaction, error) {
	trimmed := strings.TrimSpace(hexString)
	if len(trimmed)%2 != 0 {
		return Transaction{}, &ParseError{ErrOddLength}
	}

	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return Transaction{}, &ParseError{err}
	}

	return FromBytes(raw)
}

// FromBytes wraps raw transaction bytes as a Transaction, applying the same
// sanity checks as Parse minus the hex decoding step.
func FromBytes(raw []byte) (Transaction, error) {
	if len(raw) == 0 {
		return Transaction{}, &ParseError{ErrEmpty}
	}
	if len(raw) > maxTransactionSize {
		return Transaction{}, &ParseError{ErrTooLarge}
	}

	buf := make([]byte, len(raw))
	copy(buf, raw)

	return Transaction{
		raw:  buf,
		txid: chainhash.DoubleHashH(buf),
	}, nil
}

// Txid returns the transaction's 32-byte double-SHA256 identifier.
func (t Transaction) Txid() chainhash.Hash {
	return t.txid
}

// Bytes returns the raw serialized transaction. The returned slice must
// not be modified.
func (t Transaction) Bytes() []byte {
	return t.raw
}

// Hex returns the lowercase hex encoding of the raw transaction bytes.
func (t Transaction) Hex() string {
	return hex.EncodeToString(t.raw)
}

// toPeerTx converts a Transaction into the shape the peer package's
// sessions consume.
func (t Transaction) toPeerTx() peer.Tx {
	return peer.Tx{Hash: t.txid, Raw: t.raw}
}
