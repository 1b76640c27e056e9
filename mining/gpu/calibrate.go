// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gpu

import (
	"time"
)

// calibrationCandidates are the probed batch sizes, spanning small and
// large dispatches to fit a wide range of adapters.
var calibrationCandidates = []uint32{1_000, 10_000, 100_000, 1_000_000}

// FallbackBatchSize returns an adapter-class default used when
// calibration cannot produce a measurement.
func FallbackBatchSize(class AdapterClass) uint32 {
	switch class {
	case AdapterDiscrete:
		return 1_000_000
	case AdapterVirtual:
		return 200_000
	case AdapterIntegrated:
		return 100_000
	case AdapterCPU:
		return 25_000
	default:
		return 150_000
	}
}

// Calibrate probes the candidate batch sizes with an unsatisfiable target
// and picks the one with the highest observed hash rate. The result is
// cached on the context; when every probe fails the adapter-class default
// is used instead.
func (c *Context) Calibrate() (uint32, error) {
	c.mu.Lock()
	if c.calibrated != 0 {
		cached := c.calibrated
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	var best uint32
	var bestRate float64

	dummy := []byte{0x00}
	for _, size := range calibrationCandidates {
		// target 64 keeps the kernel busy without producing results;
		// threads whose nonce does not fit the 1-byte slot early-return
		// in the shader, so no width check is needed here.
		params := MiningParams{
			BatchSize:   size,
			TargetZeros: 64,
			PrefixLen:   uint32(len(dummy)),
			SuffixLen:   uint32(len(dummy)),
			NonceLen:    1,
		}

		start := time.Now()
		if _, err := c.dispatch(params, dummy, dummy); err != nil {
			log.Debugf("Calibration dispatch of %d failed: %v", size, err)
			continue
		}
		elapsed := time.Since(start).Seconds()
		if elapsed <= 0 {
			continue
		}

		rate := float64(size) / elapsed
		if rate > bestRate {
			bestRate = rate
			best = size
		}
	}

	if bestRate == 0 {
		best = FallbackBatchSize(c.dev.AdapterInfo().Class)
		log.Debugf("Calibration produced no measurement, using %s-class default %d",
			c.dev.AdapterInfo().Class, best)
	} else {
		log.Debugf("Calibrated batch size %d (%.0f hashes/s)", best, bestRate)
	}

	c.mu.Lock()
	c.calibrated = best
	c.mu.Unlock()
	return best, nil
}
