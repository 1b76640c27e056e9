// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hashing

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDoubleSHA256GenesisHeader(t *testing.T) {
	// First 80 bytes of the Bitcoin genesis block header, little-endian
	// fields as mined.
	header, err := hex.DecodeString(
		"0100000000000000000000000000000000000000000000000000000000000000" +
			"000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa" +
			"4b1e5e4a29ab5f49ffff001d1dac2b7c")
	require.NoError(t, err)
	require.Len(t, header, 80)

	hash := DoubleSHA256(header)
	assert.Equal(t,
		"6fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a089c68d6190000000000",
		hex.EncodeToString(hash[:]))

	// Reversed into display order this is the well-known genesis hash.
	assert.Equal(t,
		"000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f",
		TxidHex(hash))
}

func TestCountLeadingZeros(t *testing.T) {
	var hash [32]byte
	for i := range hash {
		hash[i] = 0xff
	}
	assert.Equal(t, uint8(0), CountLeadingZeros(&hash))

	hash[31] = 0x0f
	assert.Equal(t, uint8(1), CountLeadingZeros(&hash))

	hash[31], hash[30], hash[29], hash[28] = 0, 0, 0, 0
	hash[27] = 0x1f
	assert.Equal(t, uint8(8), CountLeadingZeros(&hash))

	hash = [32]byte{}
	assert.Equal(t, uint8(64), CountLeadingZeros(&hash))
}

func TestMeetsTarget(t *testing.T) {
	var hash [32]byte
	assert.True(t, MeetsTarget(&hash, 64))
	assert.False(t, MeetsTarget(&hash, 65))

	for i := range hash {
		hash[i] = 0xff
	}
	assert.True(t, MeetsTarget(&hash, 0))
	assert.False(t, MeetsTarget(&hash, 1))

	hash[31] = 0x0f
	assert.True(t, MeetsTarget(&hash, 1))
	assert.False(t, MeetsTarget(&hash, 2))

	hash[31], hash[30], hash[29] = 0, 0, 0
	hash[28] = 0x12
	assert.True(t, MeetsTarget(&hash, 6))
	assert.False(t, MeetsTarget(&hash, 7))
}

// MeetsTarget and CountLeadingZeros must agree for every hash and target.
func TestTargetEquivalence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var hash [32]byte
		copy(hash[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "hash"))
		// Zero out a tail run to exercise interesting counts.
		run := rapid.IntRange(0, 32).Draw(t, "run")
		for i := 0; i < run; i++ {
			hash[31-i] = 0
		}

		zeros := CountLeadingZeros(&hash)
		for k := uint8(0); k <= 64; k++ {
			require.Equal(t, zeros >= k, MeetsTarget(&hash, k),
				"target %d vs %d counted zeros", k, zeros)
		}
	})
}

func TestTxidFromHexRoundTrip(t *testing.T) {
	const txid = "31ec8643f0fd9ccd34dca9af5575a54c9ef77bf2cb6ddf776881dbb6e936cf51"
	internal, err := TxidFromHex(txid)
	require.NoError(t, err)
	assert.Equal(t, txid, TxidHex(internal))

	_, err = TxidFromHex("zz")
	assert.Error(t, err)
}
