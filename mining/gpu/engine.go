// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gpu

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/ouziel-slama/zeldhash-miner/mining"
)

// Batch is one GPU search request over a width-homogeneous nonce range.
type Batch struct {
	Prefix      []byte
	Suffix      []byte
	StartNonce  uint64
	BatchSize   uint32
	TargetZeros uint8
	UseCBOR     bool
}

// Context owns a device plus the per-context caches: the compiled
// pipeline, the fixed result buffer, the pooled I/O buffers, and the
// calibrated batch size. A context serializes its dispatches; the result
// buffer is never shared across concurrent dispatches.
type Context struct {
	dev Device

	mu       sync.Mutex
	pipeline Pipeline

	resultBuf Buffer

	prefixBuf Buffer
	prefixCap int
	suffixBuf Buffer
	suffixCap int
	paramsBuf Buffer

	calibrated uint32 // 0 until Calibrate runs
}

// NewContext wraps an injected device.
func NewContext(dev Device) *Context {
	return &Context{dev: dev}
}

// AdapterInfo reports the backing adapter.
func (c *Context) AdapterInfo() AdapterInfo {
	return c.dev.AdapterInfo()
}

// minCapacity rounds a buffer size up to the next power of two with a
// 16-byte floor, so pooled buffers are reused across template sizes.
func minCapacity(size int) int {
	if size < 16 {
		return 16
	}
	if size&(size-1) == 0 {
		return size
	}
	return 1 << bits.Len(uint(size))
}

func (c *Context) getPipeline() (Pipeline, error) {
	if c.pipeline != nil {
		return c.pipeline, nil
	}
	p, err := c.dev.CreatePipeline()
	if err != nil {
		return nil, fmt.Errorf("%w: create pipeline: %v", ErrInternal, err)
	}
	c.pipeline = p
	return p, nil
}

func (c *Context) getResultBuffer() (Buffer, error) {
	if c.resultBuf != nil {
		return c.resultBuf, nil
	}
	buf, err := c.dev.CreateBuffer("zeldhash-results", ResultBufferSize, UsageStorageReadWrite)
	if err != nil {
		return nil, fmt.Errorf("%w: create result buffer: %v", ErrInternal, err)
	}
	c.resultBuf = buf
	return buf, nil
}

// ensureIOBuffers grows the pooled prefix/suffix/params buffers to fit
// the packed payload sizes, bounded by the device limits.
func (c *Context) ensureIOBuffers(prefixSize, suffixSize int) error {
	limits := c.dev.Limits()
	if uint64(prefixSize) > limits.MaxStorageBinding {
		return fmt.Errorf("%w: prefix buffer exceeds max storage binding size (%d > %d)",
			ErrInternal, prefixSize, limits.MaxStorageBinding)
	}
	if uint64(suffixSize) > limits.MaxStorageBinding {
		return fmt.Errorf("%w: suffix buffer exceeds max storage binding size (%d > %d)",
			ErrInternal, suffixSize, limits.MaxStorageBinding)
	}
	if uint64(ParamsSize) > limits.MaxUniformBinding {
		return fmt.Errorf("%w: params exceed max uniform binding size", ErrInternal)
	}

	if need := minCapacity(prefixSize); c.prefixBuf == nil || need > c.prefixCap {
		buf, err := c.dev.CreateBuffer("zeldhash-prefix-pooled", need, UsageStorageRead)
		if err != nil {
			return fmt.Errorf("%w: create prefix buffer: %v", ErrInternal, err)
		}
		c.prefixBuf, c.prefixCap = buf, need
	}
	if need := minCapacity(suffixSize); c.suffixBuf == nil || need > c.suffixCap {
		buf, err := c.dev.CreateBuffer("zeldhash-suffix-pooled", need, UsageStorageRead)
		if err != nil {
			return fmt.Errorf("%w: create suffix buffer: %v", ErrInternal, err)
		}
		c.suffixBuf, c.suffixCap = buf, need
	}
	if c.paramsBuf == nil {
		buf, err := c.dev.CreateBuffer("zeldhash-params-pooled", ParamsSize, UsageUniform)
		if err != nil {
			return fmt.Errorf("%w: create params buffer: %v", ErrInternal, err)
		}
		c.paramsBuf = buf
	}
	return nil
}

// DispatchBatch submits one batch and returns every reported hit, at most
// MaxResults entries. The batch range must not cross an encoded-width
// boundary; the scheduler guarantees this for segment-derived batches.
func (c *Context) DispatchBatch(batch *Batch) ([]Result, error) {
	if batch.BatchSize == 0 {
		return nil, nil
	}

	var nonceLen uint8
	var err error
	if batch.UseCBOR {
		nonceLen, err = mining.CBORNonceLenForRange(batch.StartNonce, batch.BatchSize)
	} else {
		nonceLen, err = mining.NonceLenForRange(batch.StartNonce, batch.BatchSize)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	params := MiningParams{
		StartNonce:  batch.StartNonce,
		BatchSize:   batch.BatchSize,
		TargetZeros: batch.TargetZeros,
		PrefixLen:   uint32(len(batch.Prefix)),
		SuffixLen:   uint32(len(batch.Suffix)),
		NonceLen:    nonceLen,
		UseCBOR:     batch.UseCBOR,
	}
	return c.dispatch(params, batch.Prefix, batch.Suffix)
}

// dispatch submits a fully specified parameter block. Calibration uses it
// directly to probe ranges whose width the shader filters per thread.
func (c *Context) dispatch(params MiningParams, prefix, suffix []byte) ([]Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pipeline, err := c.getPipeline()
	if err != nil {
		return nil, err
	}
	resultBuf, err := c.getResultBuffer()
	if err != nil {
		return nil, err
	}

	prefixWords := PackWords(prefix)
	suffixWords := PackWords(suffix)
	if err := c.ensureIOBuffers(len(prefixWords), len(suffixWords)); err != nil {
		return nil, err
	}

	// Clear the shared result buffer before the dispatch.
	if err := c.dev.WriteBuffer(resultBuf, make([]byte, ResultBufferSize)); err != nil {
		return nil, fmt.Errorf("%w: clear results: %v", ErrInternal, err)
	}
	if len(prefixWords) > 0 {
		if err := c.dev.WriteBuffer(c.prefixBuf, prefixWords); err != nil {
			return nil, fmt.Errorf("%w: write prefix: %v", ErrInternal, err)
		}
	}
	if len(suffixWords) > 0 {
		if err := c.dev.WriteBuffer(c.suffixBuf, suffixWords); err != nil {
			return nil, fmt.Errorf("%w: write suffix: %v", ErrInternal, err)
		}
	}
	if err := c.dev.WriteBuffer(c.paramsBuf, params.Marshal()); err != nil {
		return nil, fmt.Errorf("%w: write params: %v", ErrInternal, err)
	}

	groups := (params.BatchSize + WorkgroupSize - 1) / WorkgroupSize
	bindings := Bindings{
		Prefix:  c.prefixBuf,
		Suffix:  c.suffixBuf,
		Params:  c.paramsBuf,
		Results: resultBuf,
	}
	if err := c.dev.Dispatch(pipeline, bindings, groups); err != nil {
		return nil, fmt.Errorf("%w: dispatch: %v", ErrInternal, err)
	}

	raw, err := c.dev.ReadResults(resultBuf)
	if err != nil {
		return nil, fmt.Errorf("%w: read results: %v", ErrInternal, err)
	}

	results, found := ParseResults(raw)
	if found > MaxResults {
		log.Debugf("Result buffer overflow: %d hits found, %d stored", found, MaxResults)
	}
	return results, nil
}
