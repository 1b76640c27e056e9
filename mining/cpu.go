// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ouziel-slama/zeldhash-miner/codec"
	"github.com/ouziel-slama/zeldhash-miner/hashing"
)

// Hit is a nonce whose transaction hash met the target.
type Hit struct {
	Nonce uint64
	Txid  [32]byte // internal byte order
}

// SegmentResult reports one segment search: the number of attempts
// performed and the hit, if any.
type SegmentResult struct {
	Attempts uint64
	Hit      *Hit
}

func encodeNonceForSlot(dst []byte, nonce uint64, width int, useCBOR bool) (int, error) {
	if useCBOR {
		return codec.PutCBORUint(dst, nonce, width)
	}
	return codec.PutNonce(dst, nonce, width)
}

// MineBatch searches [start, start+batchSize) over a template whose nonce
// slot width must match the whole range, returning the first hit or nil
// when the range is exhausted. Ranges that cross a width boundary are
// rejected; use SegmentRange first.
func MineBatch(prefix, suffix []byte, start uint64, batchSize uint32, targetZeros uint8, useCBOR bool) (*Hit, error) {
	var width uint8
	var err error
	if useCBOR {
		width, err = CBORNonceLenForRange(start, batchSize)
	} else {
		width, err = NonceLenForRange(start, batchSize)
	}
	if err != nil {
		return nil, err
	}

	segment := NonceSegment{Start: start, Size: batchSize, NonceLen: width}
	result, err := MineSegment(prefix, suffix, segment, targetZeros, useCBOR, nil, nil)
	if err != nil {
		return nil, err
	}
	return result.Hit, nil
}

// MineRange searches an arbitrary range by segmenting it at width
// boundaries and mining each segment in increasing start order.
func MineRange(prefix, suffix []byte, start uint64, batchSize uint32, targetZeros uint8, useCBOR bool) (*Hit, error) {
	var segments []NonceSegment
	var err error
	if useCBOR {
		segments, err = SegmentRangeCBOR(start, batchSize)
	} else {
		segments, err = SegmentRange(start, batchSize)
	}
	if err != nil {
		return nil, err
	}

	for _, segment := range segments {
		result, err := MineSegment(prefix, suffix, segment, targetZeros, useCBOR, nil, nil)
		if err != nil {
			return nil, err
		}
		if result.Hit != nil {
			return result.Hit, nil
		}
	}
	return nil, nil
}

// MineSegment is the single-worker segment loop. Between nonce attempts
// it observes ctl (stop returns ErrMiningAborted, pause parks the worker)
// and the shared found flag, returning early with no hit once a peer has
// published one. Within one segment the returned hit is the lowest
// satisfying nonce. Attempts are counted even when the search aborts.
func MineSegment(prefix, suffix []byte, segment NonceSegment, targetZeros uint8,
	useCBOR bool, ctl *Control, found *atomic.Bool) (SegmentResult, error) {

	width := int(segment.NonceLen)
	buffer := make([]byte, 0, len(prefix)+width+len(suffix))
	var slot [9]byte

	for offset := uint32(0); offset < segment.Size; offset++ {
		if ctl != nil {
			if err := ctl.Wait(); err != nil {
				return SegmentResult{Attempts: uint64(offset)}, err
			}
		}
		if found != nil && found.Load() {
			return SegmentResult{Attempts: uint64(offset)}, nil
		}

		nonce := segment.Start + uint64(offset)
		written, err := encodeNonceForSlot(slot[:], nonce, width, useCBOR)
		if err != nil {
			return SegmentResult{Attempts: uint64(offset)}, err
		}

		buffer = buffer[:0]
		buffer = append(buffer, prefix...)
		buffer = append(buffer, slot[:written]...)
		buffer = append(buffer, suffix...)

		hash := hashing.DoubleSHA256(buffer)
		if hashing.MeetsTarget(&hash, targetZeros) {
			return SegmentResult{
				Attempts: uint64(offset) + 1,
				Hit:      &Hit{Nonce: nonce, Txid: hash},
			}, nil
		}
	}

	return SegmentResult{Attempts: uint64(segment.Size)}, nil
}

// MineSegmentParallel fans a segment out over up to workers goroutines.
// All workers share one found flag; the first to publish wins and the
// others abort fast. Attempts are summed across workers, and the first
// worker error aborts the whole segment.
//
// Which of several satisfying nonces is returned is not deterministic
// across runs; callers needing the lowest nonce within a segment use a
// single worker or post-select.
func MineSegmentParallel(prefix, suffix []byte, segment NonceSegment, targetZeros uint8,
	useCBOR bool, ctl *Control, workers int) (SegmentResult, error) {

	if workers <= 1 || segment.Size <= 1 {
		return MineSegment(prefix, suffix, segment, targetZeros, useCBOR, ctl, nil)
	}

	subs, err := SplitForWorkers(segment, workers)
	if err != nil {
		return SegmentResult{}, err
	}
	if len(subs) == 1 {
		return MineSegment(prefix, suffix, segment, targetZeros, useCBOR, ctl, nil)
	}

	log.Tracef("Mining segment start=%d size=%d with %d workers",
		segment.Start, segment.Size, len(subs))

	var (
		found    atomic.Bool
		attempts atomic.Uint64
		winner   atomic.Pointer[Hit]
	)

	var g errgroup.Group
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			result, err := MineSegment(prefix, suffix, sub, targetZeros, useCBOR, ctl, &found)
			attempts.Add(result.Attempts)
			if err != nil {
				return err
			}
			// First worker to flip the flag publishes its hit.
			if result.Hit != nil && found.CompareAndSwap(false, true) {
				winner.Store(result.Hit)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return SegmentResult{Attempts: attempts.Load()}, err
	}

	return SegmentResult{
		Attempts: attempts.Load(),
		Hit:      winner.Load(),
	}, nil
}
