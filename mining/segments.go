// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mining partitions nonce ranges into width-homogeneous segments
// and runs the CPU nonce search over mining templates, with cooperative
// stop/pause control and optional worker parallelism.
package mining

import (
	"errors"
	"fmt"
	"math"

	"github.com/ouziel-slama/zeldhash-miner/codec"
)

var (
	// ErrEmptyBatch is returned when a batch size of zero is requested.
	ErrEmptyBatch = errors.New("batch size must be positive")

	// ErrNonceRangeOverflow is returned when a range extends past the
	// maximum nonce.
	ErrNonceRangeOverflow = errors.New("nonce range overflow")

	// ErrRangeCrossesWidth is returned by the single-segment entry points
	// when a range spans an encoded-width boundary and must be split.
	ErrRangeCrossesWidth = errors.New("nonce range crosses width boundary; split batch")

	// ErrSegmentTooLarge is returned when a single width-homogeneous
	// segment would not fit a 32-bit size.
	ErrSegmentTooLarge = errors.New("segment size exceeds 32 bits")
)

// NonceSegment is a contiguous nonce range whose encoded width (raw or
// CBOR, depending on how it was produced) is constant.
type NonceSegment struct {
	Start    uint64
	Size     uint32
	NonceLen uint8
}

// maxNonceForLen returns the largest nonce encoding to width bytes in
// minimal big-endian form.
func maxNonceForLen(width uint8) uint64 {
	if width >= 8 {
		return math.MaxUint64
	}
	return 1<<(uint(width)*8) - 1
}

// maxNonceForCBORLen returns the largest nonce whose CBOR encoding is
// width bytes.
func maxNonceForCBORLen(width uint8) uint64 {
	switch width {
	case 1:
		return 23
	case 2:
		return 0xff
	case 3:
		return 0xffff
	case 5:
		return 0xffffffff
	default:
		return math.MaxUint64
	}
}

func rangeEnd(start uint64, batchSize uint32) (uint64, error) {
	if batchSize == 0 {
		return 0, ErrEmptyBatch
	}
	if start > math.MaxUint64-uint64(batchSize-1) {
		return 0, ErrNonceRangeOverflow
	}
	return start + uint64(batchSize) - 1, nil
}

// NonceLenForRange returns the raw encoded width shared by every nonce in
// [start, start+batchSize) or fails when the range crosses a width
// boundary.
func NonceLenForRange(start uint64, batchSize uint32) (uint8, error) {
	end, err := rangeEnd(start, batchSize)
	if err != nil {
		return 0, err
	}
	startLen := codec.NonceLen(start)
	if codec.NonceLen(end) != startLen {
		return 0, ErrRangeCrossesWidth
	}
	return uint8(startLen), nil
}

// CBORNonceLenForRange is NonceLenForRange for CBOR-encoded nonces.
func CBORNonceLenForRange(start uint64, batchSize uint32) (uint8, error) {
	end, err := rangeEnd(start, batchSize)
	if err != nil {
		return 0, err
	}
	startLen := codec.CBORUintLen(start)
	if codec.CBORUintLen(end) != startLen {
		return 0, ErrRangeCrossesWidth
	}
	return uint8(startLen), nil
}

func segmentRange(start uint64, batchSize uint32,
	widthOf func(uint64) int, maxFor func(uint8) uint64) ([]NonceSegment, error) {

	end, err := rangeEnd(start, batchSize)
	if err != nil {
		return nil, err
	}

	var segments []NonceSegment
	current := start
	for {
		width := uint8(widthOf(current))
		segEnd := min(end, maxFor(width))
		size := segEnd - current + 1
		if size > math.MaxUint32 {
			return nil, ErrSegmentTooLarge
		}
		segments = append(segments, NonceSegment{
			Start:    current,
			Size:     uint32(size),
			NonceLen: width,
		})
		if segEnd == end || segEnd == math.MaxUint64 {
			return segments, nil
		}
		current = segEnd + 1
	}
}

// SegmentRange covers [start, start+batchSize) with ordered, disjoint
// segments split at raw-encoding width boundaries (0xFF, 0xFFFF, ...).
func SegmentRange(start uint64, batchSize uint32) ([]NonceSegment, error) {
	return segmentRange(start, batchSize, codec.NonceLen, maxNonceForLen)
}

// SegmentRangeCBOR covers [start, start+batchSize) with segments split at
// CBOR width boundaries (23, 255, 65535, 0xFFFFFFFF).
func SegmentRangeCBOR(start uint64, batchSize uint32) ([]NonceSegment, error) {
	return segmentRange(start, batchSize, codec.CBORUintLen, maxNonceForCBORLen)
}

// SplitForWorkers divides a segment into up to workers balanced
// sub-segments sharing the segment's width.
func SplitForWorkers(segment NonceSegment, workers int) ([]NonceSegment, error) {
	if workers < 1 {
		workers = 1
	}
	if uint64(workers) > uint64(segment.Size) {
		workers = int(segment.Size)
	}

	base := segment.Size / uint32(workers)
	remainder := segment.Size % uint32(workers)

	subs := make([]NonceSegment, 0, workers)
	start := segment.Start
	for i := 0; i < workers; i++ {
		size := base
		if uint32(i) < remainder {
			size++
		}
		if size == 0 {
			continue
		}
		subs = append(subs, NonceSegment{Start: start, Size: size, NonceLen: segment.NonceLen})
		if start > math.MaxUint64-uint64(size) {
			return nil, fmt.Errorf("worker split: %w", ErrNonceRangeOverflow)
		}
		start += uint64(size)
	}
	return subs, nil
}
