// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"
	"math/bits"
)

// NonceLen returns the number of bytes needed to encode nonce in minimal
// big-endian form. Zero encodes as a single zero byte.
func NonceLen(nonce uint64) int {
	if nonce == 0 {
		return 1
	}
	return (bits.Len64(nonce) + 7) / 8
}

// EncodeNonce returns the minimal big-endian encoding of nonce. The
// result never carries a leading zero byte except for nonce 0 itself.
func EncodeNonce(nonce uint64) []byte {
	width := NonceLen(nonce)
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		out[i] = byte(nonce >> uint((width-1-i)*8))
	}
	return out
}

// PutNonce encodes nonce into dst using the minimal big-endian form and
// returns the number of bytes written. It fails when the minimal width of
// nonce differs from width: mining templates reserve a fixed slot per
// segment and a mismatched encoding would shift every byte after it.
func PutNonce(dst []byte, nonce uint64, width int) (int, error) {
	if n := NonceLen(nonce); n != width {
		return 0, fmt.Errorf("nonce width mismatch: value %d needs %d bytes, slot is %d", nonce, n, width)
	}
	for i := 0; i < width; i++ {
		dst[i] = byte(nonce >> uint((width-1-i)*8))
	}
	return width, nil
}
