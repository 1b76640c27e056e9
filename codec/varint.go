// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package codec implements the low-level encodings shared by the
// transaction serializer, the fee estimator, and the mining engines:
// Bitcoin varints, minimal script pushdata prefixes, the RFC 8949 CBOR
// subset used by ZELD distribution payloads, and the minimal big-endian
// nonce encoding.
package codec

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ErrDataTooLarge is returned when a script data push would require a
// length prefix wider than 32 bits.
var ErrDataTooLarge = errors.New("data too large to encode")

// AppendVarInt appends the Bitcoin variable-length integer encoding of n
// to dst and returns the extended slice.
func AppendVarInt(dst []byte, n uint64) []byte {
	var buf bytes.Buffer
	// Writing to a bytes.Buffer cannot fail.
	_ = wire.WriteVarInt(&buf, 0, n)
	return append(dst, buf.Bytes()...)
}

// VarIntLen returns the serialized length of the varint encoding of n.
func VarIntLen(n uint64) int {
	return wire.VarIntSerializeSize(n)
}

// PushDataPrefix returns the minimal push opcode prefix for script data of
// the given length. The data bytes themselves are not included.
func PushDataPrefix(length int) ([]byte, error) {
	switch {
	case length <= 0x4b:
		return []byte{byte(length)}, nil
	case length <= 0xff:
		return []byte{txscript.OP_PUSHDATA1, byte(length)}, nil
	case length <= 0xffff:
		return []byte{txscript.OP_PUSHDATA2, byte(length), byte(length >> 8)}, nil
	case length <= 0xffffffff:
		return []byte{
			txscript.OP_PUSHDATA4,
			byte(length), byte(length >> 8), byte(length >> 16), byte(length >> 24),
		}, nil
	default:
		return nil, ErrDataTooLarge
	}
}

// PushDataPrefixLen returns the length of the minimal push opcode prefix
// for data of the given length. Lengths beyond 16 bits are reported as the
// 5-byte OP_PUSHDATA4 form; callers that need overflow detection use
// PushDataPrefix.
func PushDataPrefixLen(length int) int {
	switch {
	case length <= 0x4b:
		return 1
	case length <= 0xff:
		return 2
	case length <= 0xffff:
		return 3
	default:
		return 5
	}
}
