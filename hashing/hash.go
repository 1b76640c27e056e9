// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package hashing provides double SHA-256 and the leading-zero target
// predicate used by the nonce search. Txids are the byte-reversed hash, so
// leading zeros are counted from the last hash byte toward the first.
package hashing

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// DoubleSHA256 computes SHA-256(SHA-256(data)) in internal byte order.
func DoubleSHA256(data []byte) [32]byte {
	return chainhash.DoubleHashH(data)
}

// CountLeadingZeros returns the number of leading zero hex digits of the
// txid view of hash. A zero byte contributes two digits; scanning stops at
// the first byte whose high nibble is non-zero. The maximum is 64 for an
// all-zero hash.
func CountLeadingZeros(hash *[32]byte) uint8 {
	var zeros uint8
	for i := len(hash) - 1; i >= 0; i-- {
		b := hash[i]
		if b == 0 {
			zeros += 2
			continue
		}
		if b>>4 == 0 {
			zeros++
		}
		break
	}
	return zeros
}

// MeetsTarget reports whether hash has at least targetZeros leading zero
// hex digits in txid order. Target 0 accepts every hash; targets beyond 64
// are unsatisfiable. The predicate is bit-exact with CountLeadingZeros.
func MeetsTarget(hash *[32]byte, targetZeros uint8) bool {
	if targetZeros == 0 {
		return true
	}
	if targetZeros > 64 {
		return false
	}

	fullBytes := int(targetZeros / 2)
	for i := 0; i < fullBytes; i++ {
		if hash[len(hash)-1-i] != 0 {
			return false
		}
	}
	if targetZeros%2 == 1 {
		return hash[len(hash)-1-fullBytes]>>4 == 0
	}
	return true
}

// TxidHex renders an internal-order hash as the display-order (reversed)
// hex string used by block explorers and RPC interfaces.
func TxidHex(hash [32]byte) string {
	h := chainhash.Hash(hash)
	return h.String()
}

// TxidFromHex parses a display-order txid string into internal byte order.
func TxidFromHex(s string) ([32]byte, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return [32]byte{}, err
	}
	return [32]byte(*h), nil
}
