// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ouziel-slama/zeldhash-miner/codec"
)

func TestNonceLenForRange(t *testing.T) {
	width, err := NonceLenForRange(0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), width)

	width, err = NonceLenForRange(0x100, 0xff00)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), width)

	_, err = NonceLenForRange(0xff, 2)
	assert.ErrorIs(t, err, ErrRangeCrossesWidth)

	_, err = NonceLenForRange(0, 0)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = NonceLenForRange(math.MaxUint64, 2)
	assert.ErrorIs(t, err, ErrNonceRangeOverflow)
}

func TestCBORNonceLenForRange(t *testing.T) {
	width, err := CBORNonceLenForRange(0, 24)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), width)

	width, err = CBORNonceLenForRange(24, 232)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), width)

	_, err = CBORNonceLenForRange(23, 2)
	assert.ErrorIs(t, err, ErrRangeCrossesWidth)
}

func TestSegmentRangeRawBoundaries(t *testing.T) {
	segments, err := SegmentRange(0xf0, 0x20)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, NonceSegment{Start: 0xf0, Size: 16, NonceLen: 1}, segments[0])
	assert.Equal(t, NonceSegment{Start: 0x100, Size: 16, NonceLen: 2}, segments[1])
}

func TestSegmentRangeCBORBoundaries(t *testing.T) {
	segments, err := SegmentRangeCBOR(0, 300)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, NonceSegment{Start: 0, Size: 24, NonceLen: 1}, segments[0])
	assert.Equal(t, NonceSegment{Start: 24, Size: 232, NonceLen: 2}, segments[1])
	assert.Equal(t, NonceSegment{Start: 256, Size: 44, NonceLen: 3}, segments[2])
}

func TestSegmentRangeAtTopOfRange(t *testing.T) {
	segments, err := SegmentRange(math.MaxUint64-9, 10)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, NonceSegment{Start: math.MaxUint64 - 9, Size: 10, NonceLen: 8}, segments[0])

	_, err = SegmentRange(math.MaxUint64-8, 10)
	assert.ErrorIs(t, err, ErrNonceRangeOverflow)
}

// Segments must tile the requested range: disjoint, ordered,
// width-homogeneous, and covering every nonce exactly once.
func TestSegmentCoverageProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.Uint64Range(0, 1<<40).Draw(t, "start")
		size := rapid.Uint32Range(1, 1<<20).Draw(t, "size")
		useCBOR := rapid.Bool().Draw(t, "useCBOR")

		var segments []NonceSegment
		var err error
		if useCBOR {
			segments, err = SegmentRangeCBOR(start, size)
		} else {
			segments, err = SegmentRange(start, size)
		}
		require.NoError(t, err)
		require.NotEmpty(t, segments)

		next := start
		var total uint64
		for _, seg := range segments {
			require.Equal(t, next, seg.Start, "segments must be contiguous and ordered")
			require.NotZero(t, seg.Size)

			widthOf := codec.NonceLen
			if useCBOR {
				widthOf = codec.CBORUintLen
			}
			require.Equal(t, int(seg.NonceLen), widthOf(seg.Start))
			require.Equal(t, int(seg.NonceLen), widthOf(seg.Start+uint64(seg.Size)-1),
				"segment must be width-homogeneous")

			next = seg.Start + uint64(seg.Size)
			total += uint64(seg.Size)
		}
		require.Equal(t, uint64(size), total)
	})
}

func TestSplitForWorkers(t *testing.T) {
	segment := NonceSegment{Start: 100, Size: 10, NonceLen: 1}

	subs, err := SplitForWorkers(segment, 3)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, NonceSegment{Start: 100, Size: 4, NonceLen: 1}, subs[0])
	assert.Equal(t, NonceSegment{Start: 104, Size: 3, NonceLen: 1}, subs[1])
	assert.Equal(t, NonceSegment{Start: 107, Size: 3, NonceLen: 1}, subs[2])

	// More workers than nonces collapses to one worker per nonce.
	subs, err = SplitForWorkers(NonceSegment{Start: 0, Size: 2, NonceLen: 1}, 8)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}
