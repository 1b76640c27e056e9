// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gpu

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/ouziel-slama/zeldhash-miner/codec"
	"github.com/ouziel-slama/zeldhash-miner/hashing"
)

// SoftwareDevice is a pure-Go compute backend that executes the mining
// pipeline exactly as the shader does: one logical invocation per nonce,
// width filtering in the kernel, and first-MaxResults result storage. It
// serves as the reference implementation for Device conformance and as a
// usable fallback backend where no GPU runtime is wired in.
type SoftwareDevice struct {
	limits Limits
}

// NewSoftwareDevice returns a software backend with effectively unbounded
// binding limits.
func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{
		limits: Limits{
			MaxStorageBinding: math.MaxUint32,
			MaxUniformBinding: math.MaxUint32,
		},
	}
}

type softBuffer struct {
	label string
	data  []byte
}

type softPipeline struct{}

// AdapterInfo reports the software adapter.
func (d *SoftwareDevice) AdapterInfo() AdapterInfo {
	return AdapterInfo{Name: "software", Backend: "cpu", Class: AdapterCPU}
}

// Limits returns the backend's binding ceilings.
func (d *SoftwareDevice) Limits() Limits {
	return d.limits
}

// CreatePipeline compiles nothing; the pipeline is the built-in kernel.
func (d *SoftwareDevice) CreatePipeline() (Pipeline, error) {
	return softPipeline{}, nil
}

// CreateBuffer allocates a host buffer.
func (d *SoftwareDevice) CreateBuffer(label string, size int, _ BufferUsage) (Buffer, error) {
	if size <= 0 {
		return nil, errors.New("buffer size must be positive")
	}
	return &softBuffer{label: label, data: make([]byte, size)}, nil
}

// WriteBuffer copies data into a buffer.
func (d *SoftwareDevice) WriteBuffer(buf Buffer, data []byte) error {
	sb, ok := buf.(*softBuffer)
	if !ok {
		return errors.New("foreign buffer handle")
	}
	if len(data) > len(sb.data) {
		return errors.New("write exceeds buffer capacity")
	}
	copy(sb.data, data)
	return nil
}

// ReadResults returns the live result bytes.
func (d *SoftwareDevice) ReadResults(buf Buffer) ([]byte, error) {
	sb, ok := buf.(*softBuffer)
	if !ok {
		return nil, errors.New("foreign buffer handle")
	}
	out := make([]byte, len(sb.data))
	copy(out, sb.data)
	return out, nil
}

// Dispatch runs the kernel sequentially over every invocation of the
// grid, mirroring the shader's per-thread behavior.
func (d *SoftwareDevice) Dispatch(_ Pipeline, b Bindings, workgroups uint32) error {
	prefixBuf, ok := b.Prefix.(*softBuffer)
	if !ok {
		return errors.New("foreign prefix buffer")
	}
	suffixBuf, ok := b.Suffix.(*softBuffer)
	if !ok {
		return errors.New("foreign suffix buffer")
	}
	paramsBuf, ok := b.Params.(*softBuffer)
	if !ok {
		return errors.New("foreign params buffer")
	}
	resultBuf, ok := b.Results.(*softBuffer)
	if !ok {
		return errors.New("foreign result buffer")
	}

	params, ok := UnmarshalMiningParams(paramsBuf.data)
	if !ok {
		return errors.New("short params buffer")
	}
	if len(resultBuf.data) < ResultBufferSize {
		return errors.New("short result buffer")
	}
	if int(params.PrefixLen) > len(prefixBuf.data) || int(params.SuffixLen) > len(suffixBuf.data) {
		return errors.New("declared lengths exceed bound buffers")
	}

	prefix := prefixBuf.data[:params.PrefixLen]
	suffix := suffixBuf.data[:params.SuffixLen]

	invocations := uint64(workgroups) * WorkgroupSize
	message := make([]byte, 0, len(prefix)+9+len(suffix))
	var slot [9]byte

	foundCount := binary.LittleEndian.Uint32(resultBuf.data[0:])
	for idx := uint64(0); idx < invocations; idx++ {
		if idx >= uint64(params.BatchSize) {
			break
		}
		nonce := params.StartNonce + idx // wraps like the shader's widening add

		width := int(params.NonceLen)
		var written int
		var err error
		if params.UseCBOR {
			written, err = codec.PutCBORUint(slot[:], nonce, width)
		} else {
			if width == 0 || width > 8 {
				continue
			}
			written, err = codec.PutNonce(slot[:], nonce, width)
		}
		if err != nil {
			// Width mismatch: the thread rejects and moves on, matching
			// the shader's early return.
			continue
		}

		message = message[:0]
		message = append(message, prefix...)
		message = append(message, slot[:written]...)
		message = append(message, suffix...)

		hash := hashing.DoubleSHA256(message)
		if params.TargetZeros > 64 {
			continue
		}
		if !hashing.MeetsTarget(&hash, params.TargetZeros) {
			continue
		}

		slotIdx := foundCount
		foundCount++
		binary.LittleEndian.PutUint32(resultBuf.data[0:], foundCount)
		if slotIdx >= MaxResults {
			continue
		}

		entry := resultBuf.data[resultHeaderSize+int(slotIdx)*resultEntrySize:]
		binary.LittleEndian.PutUint32(entry[0:], uint32(nonce))
		binary.LittleEndian.PutUint32(entry[4:], uint32(nonce>>32))
		for w := 0; w < 8; w++ {
			word := binary.BigEndian.Uint32(hash[w*4:])
			binary.LittleEndian.PutUint32(entry[8+w*4:], word)
		}
	}

	return nil
}
