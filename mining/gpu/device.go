// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package gpu drives a compute backend that evaluates the full double
// SHA-256 over prefix || nonce || suffix for every nonce of a batch. The
// device itself (WebGPU, Vulkan, a test double) is injected behind the
// Device interface; this package owns the host side of the contract:
// buffer word packing, the parameter uniform layout, result-buffer
// parsing, buffer pooling, and batch-size calibration.
package gpu

import (
	"errors"
)

var (
	// ErrUnavailable is returned when no usable compute backend exists.
	ErrUnavailable = errors.New("compute backend not available")

	// ErrInternal is returned for backend failures and host-side limit
	// violations. The orchestrator treats it as fatal for the current
	// segment only and falls back to the CPU.
	ErrInternal = errors.New("gpu internal error")
)

// AdapterClass buckets adapters for calibration fallbacks.
type AdapterClass int

// Adapter classes, mirroring the device-type report of WebGPU backends.
const (
	AdapterOther AdapterClass = iota
	AdapterDiscrete
	AdapterIntegrated
	AdapterVirtual
	AdapterCPU
)

// String returns a short name for the adapter class.
func (c AdapterClass) String() string {
	switch c {
	case AdapterDiscrete:
		return "discrete"
	case AdapterIntegrated:
		return "integrated"
	case AdapterVirtual:
		return "virtual"
	case AdapterCPU:
		return "cpu"
	default:
		return "other"
	}
}

// AdapterInfo describes the active adapter.
type AdapterInfo struct {
	Name    string
	Backend string
	Class   AdapterClass
}

// Limits carries the binding-size ceilings of the device. Dispatches
// whose buffers exceed them fail with ErrInternal before submission.
type Limits struct {
	MaxStorageBinding uint64
	MaxUniformBinding uint64
}

// BufferUsage selects how a device buffer is bound.
type BufferUsage int

// Buffer usages for the four fixed bindings of the mining pipeline.
const (
	// UsageStorageRead is a read-only storage buffer (bindings 0 and 1).
	UsageStorageRead BufferUsage = iota
	// UsageUniform is the parameter uniform (binding 2).
	UsageUniform
	// UsageStorageReadWrite is the result buffer (binding 3).
	UsageStorageReadWrite
)

// Buffer is an opaque device buffer handle.
type Buffer interface{}

// Pipeline is an opaque handle to the compiled mining compute pipeline.
type Pipeline interface{}

// Bindings names the four fixed binding slots of a dispatch.
type Bindings struct {
	Prefix  Buffer // binding 0: packed prefix words
	Suffix  Buffer // binding 1: packed suffix words
	Params  Buffer // binding 2: MiningParams uniform
	Results Buffer // binding 3: ResultBuffer
}

// Device is the injected compute backend. Implementations mirror the CPU
// double-SHA256 bit-exactly; ReadResults may return a slice with any
// alignment, so callers parse it byte-wise.
type Device interface {
	AdapterInfo() AdapterInfo
	Limits() Limits

	CreatePipeline() (Pipeline, error)
	CreateBuffer(label string, size int, usage BufferUsage) (Buffer, error)
	WriteBuffer(buf Buffer, data []byte) error
	Dispatch(p Pipeline, b Bindings, workgroups uint32) error
	ReadResults(buf Buffer) ([]byte, error)
}
