// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gpu

import (
	"encoding/binary"
)

// Dispatch geometry and buffer layout shared with the shader. These
// constants must stay in sync with the kernel's structs.
const (
	// WorkgroupSize is the shader's workgroup width; dispatches use
	// ceil(batch/WorkgroupSize) groups.
	WorkgroupSize = 256

	// MaxResults caps the entries a single dispatch can report. Entries
	// beyond it are counted in the buffer's found_count header word (the
	// count ParseResults returns) but silently discarded; callers
	// that need completeness size batches so expected hits stay below it.
	MaxResults = 8

	// ParamsSize is the byte size of the MiningParams uniform: twelve
	// 32-bit words, the last four reserved padding.
	ParamsSize = 48

	resultHeaderSize = 16 // found_count + 12 bytes padding
	resultEntrySize  = 48 // nonce lo/hi + 8 hash words + 8 bytes padding
	resultTailSize   = 16

	// ResultBufferSize is the full result buffer footprint.
	ResultBufferSize = resultHeaderSize + MaxResults*resultEntrySize + resultTailSize
)

// MiningParams is the uniform consumed by the shader at binding 2.
type MiningParams struct {
	StartNonce  uint64
	BatchSize   uint32
	TargetZeros uint8
	PrefixLen   uint32
	SuffixLen   uint32
	NonceLen    uint8
	UseCBOR     bool
}

// Marshal lays the params out as the shader expects: little-endian words
// start_nonce_lo, start_nonce_hi, batch_size, target_zeros, prefix_len,
// suffix_len, nonce_len, use_cbor, then four words of padding.
func (p *MiningParams) Marshal() []byte {
	out := make([]byte, ParamsSize)
	binary.LittleEndian.PutUint32(out[0:], uint32(p.StartNonce))
	binary.LittleEndian.PutUint32(out[4:], uint32(p.StartNonce>>32))
	binary.LittleEndian.PutUint32(out[8:], p.BatchSize)
	binary.LittleEndian.PutUint32(out[12:], uint32(p.TargetZeros))
	binary.LittleEndian.PutUint32(out[16:], p.PrefixLen)
	binary.LittleEndian.PutUint32(out[20:], p.SuffixLen)
	binary.LittleEndian.PutUint32(out[24:], uint32(p.NonceLen))
	if p.UseCBOR {
		binary.LittleEndian.PutUint32(out[28:], 1)
	}
	return out
}

// UnmarshalMiningParams decodes a params uniform; the software device and
// tests use it to read back what the engine wrote.
func UnmarshalMiningParams(raw []byte) (MiningParams, bool) {
	if len(raw) < ParamsSize {
		return MiningParams{}, false
	}
	lo := binary.LittleEndian.Uint32(raw[0:])
	hi := binary.LittleEndian.Uint32(raw[4:])
	return MiningParams{
		StartNonce:  uint64(hi)<<32 | uint64(lo),
		BatchSize:   binary.LittleEndian.Uint32(raw[8:]),
		TargetZeros: uint8(binary.LittleEndian.Uint32(raw[12:])),
		PrefixLen:   binary.LittleEndian.Uint32(raw[16:]),
		SuffixLen:   binary.LittleEndian.Uint32(raw[20:]),
		NonceLen:    uint8(binary.LittleEndian.Uint32(raw[24:])),
		UseCBOR:     binary.LittleEndian.Uint32(raw[28:]) != 0,
	}, true
}

// PackWords zero-pads bytes to a whole number of 32-bit words. The shader
// reads bytes out of little-endian words, so the byte layout is the input
// itself plus padding.
func PackWords(data []byte) []byte {
	padded := len(data)
	if rem := padded % 4; rem != 0 {
		padded += 4 - rem
	}
	out := make([]byte, padded)
	copy(out, data)
	return out
}

// Result is one reported hit from a dispatch.
type Result struct {
	Nonce uint64
	Txid  [32]byte // internal byte order
}

// ParseResults decodes a raw result buffer. The read is byte-wise: mapped
// WebGPU buffers are not guaranteed to be 16-byte aligned on the host, so
// no aligned reinterpretation is allowed here. It returns the stored
// entries and the device-side found count, which may exceed MaxResults
// when hits were discarded.
func ParseResults(raw []byte) ([]Result, uint32) {
	if len(raw) < ResultBufferSize {
		return nil, 0
	}

	found := binary.LittleEndian.Uint32(raw[0:])
	take := int(found)
	if take > MaxResults {
		take = MaxResults
	}

	results := make([]Result, 0, take)
	for i := 0; i < take; i++ {
		entry := raw[resultHeaderSize+i*resultEntrySize:]
		lo := binary.LittleEndian.Uint32(entry[0:])
		hi := binary.LittleEndian.Uint32(entry[4:])

		var txid [32]byte
		for w := 0; w < 8; w++ {
			word := binary.LittleEndian.Uint32(entry[8+w*4:])
			binary.BigEndian.PutUint32(txid[w*4:], word)
		}

		results = append(results, Result{
			Nonce: uint64(hi)<<32 | uint64(lo),
			Txid:  txid,
		})
	}
	return results, found
}
