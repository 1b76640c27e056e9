// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package miner is the public facade of the transaction miner. It drives
// the full pipeline: plan the transaction, split a mining template per
// nonce segment, search on GPU or CPU, and on a hit re-plan with the
// winning nonce and emit the PSBT.
package miner

import (
	"encoding/hex"
	"errors"
	"runtime"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ouziel-slama/zeldhash-miner/addresses"
	"github.com/ouziel-slama/zeldhash-miner/codec"
	"github.com/ouziel-slama/zeldhash-miner/mining"
	"github.com/ouziel-slama/zeldhash-miner/mining/gpu"
	"github.com/ouziel-slama/zeldhash-miner/plan"
	"github.com/ouziel-slama/zeldhash-miner/tx"
)

const (
	// MaxTargetZeros bounds the accepted difficulty. Target 0 means
	// "accept the first hash", mirroring the host-binding semantics.
	MaxTargetZeros = 32

	// gpuMaxBatchSize caps a single GPU dispatch; larger segments are
	// chunked so stop and pause stay responsive between dispatches.
	gpuMaxBatchSize = 100_000
)

// Options configures a Miner instance.
type Options struct {
	// Network validates every output address.
	Network addresses.Network

	// BatchSize is the default nonce range searched per request when the
	// request does not carry its own.
	BatchSize uint32

	// UseGPU dispatches segments on Device before falling back to the
	// CPU. When Device is nil, New logs a warning and the miner runs on
	// the CPU only.
	UseGPU bool

	// Device is the injected compute backend for the GPU path.
	Device gpu.Device

	// WorkerThreads is the CPU parallelism per segment. Zero means one
	// worker per logical CPU.
	WorkerThreads int

	// SatsPerVByte is the fee rate for planned transactions.
	SatsPerVByte uint64
}

// InputDesc is the host-facing input descriptor. Txid is display-order
// hex; ScriptPubKey is hex; a nil Sequence defaults to the RBF-enabled
// sequence.
type InputDesc struct {
	Txid         string  `json:"txid"`
	Vout         uint32  `json:"vout"`
	ScriptPubKey string  `json:"script_pubkey"`
	Amount       uint64  `json:"amount"`
	Sequence     *uint32 `json:"sequence,omitempty"`
}

// OutputDesc is the host-facing output descriptor. Amount is ignored for
// the change output.
type OutputDesc struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount,omitempty"`
	Change  bool   `json:"change,omitempty"`
}

// Params describes one mining request.
type Params struct {
	Inputs       []InputDesc  `json:"inputs"`
	Outputs      []OutputDesc `json:"outputs"`
	TargetZeros  uint8        `json:"target_zeros"`
	StartNonce   uint64       `json:"start_nonce,omitempty"`
	BatchSize    uint32       `json:"batch_size,omitempty"`
	Distribution []uint64     `json:"distribution,omitempty"`
}

// Result is a completed mine: the PSBT ready for signing, the txid, and
// the run statistics.
type Result struct {
	PSBT     string  `json:"psbt"`
	Txid     string  `json:"txid"`
	Nonce    uint64  `json:"nonce"`
	Attempts uint64  `json:"attempts"`
	Duration int64   `json:"duration_ms"`
	HashRate float64 `json:"hash_rate"`
}

// ProgressStats is delivered to the progress callback after every
// segment.
type ProgressStats struct {
	HashesProcessed uint64
	HashRate        float64
	Elapsed         time.Duration
	LastNonce       uint64
}

// Miner coordinates exactly one active run; create separate instances for
// truly concurrent searches so stop/pause signals do not cross-talk.
type Miner struct {
	opts    Options
	control *mining.Control
	gpuCtx  *gpu.Context
}

// New validates the options and builds a miner.
func New(opts Options) (*Miner, error) {
	if opts.BatchSize == 0 {
		return nil, newError(CodeInvalidInput, "batch size must be greater than zero")
	}
	if opts.SatsPerVByte == 0 {
		return nil, newError(CodeInvalidInput, "sats per vbyte must be greater than zero")
	}
	if opts.WorkerThreads <= 0 {
		opts.WorkerThreads = runtime.NumCPU()
	}

	m := &Miner{
		opts:    opts,
		control: mining.NewControl(),
	}
	if opts.UseGPU {
		if opts.Device != nil {
			m.gpuCtx = gpu.NewContext(opts.Device)
			log.Infof("GPU mining enabled on %s adapter %q",
				opts.Device.AdapterInfo().Class, opts.Device.AdapterInfo().Name)
		} else {
			// Keep mining usable when no backend is wired in.
			log.Warnf("GPU requested but no compute device injected, using CPU")
		}
	}
	return m, nil
}

// Stop requests a cooperative abort of the active run.
func (m *Miner) Stop() { m.control.Stop() }

// Pause parks the active run at its next checkpoint.
func (m *Miner) Pause() { m.control.Pause() }

// Resume releases a paused run.
func (m *Miner) Resume() { m.control.Resume() }

func parseInputs(descs []InputDesc) ([]tx.TxInput, *Error) {
	inputs := make([]tx.TxInput, 0, len(descs))
	for i, desc := range descs {
		prev, err := chainhash.NewHashFromStr(desc.Txid)
		if err != nil {
			return nil, errorf(CodeInvalidInput, "inputs[%d]: invalid txid hex: %v", i, err)
		}
		spk, err := hex.DecodeString(desc.ScriptPubKey)
		if err != nil {
			return nil, errorf(CodeInvalidInput, "inputs[%d]: script_pubkey must be valid hex", i)
		}
		sequence := tx.DefaultSequence
		if desc.Sequence != nil {
			sequence = *desc.Sequence
		}
		inputs = append(inputs, tx.TxInput{
			PrevTxid:     *prev,
			Vout:         desc.Vout,
			ScriptPubKey: spk,
			Amount:       desc.Amount,
			Sequence:     sequence,
		})
	}
	return inputs, nil
}

func outputRequests(descs []OutputDesc) []plan.OutputRequest {
	reqs := make([]plan.OutputRequest, 0, len(descs))
	for _, desc := range descs {
		reqs = append(reqs, plan.OutputRequest{
			Address: desc.Address,
			Amount:  desc.Amount,
			Change:  desc.Change,
		})
	}
	return reqs
}

// planWithDustPolicy plans the transaction, absorbing a dusty change into
// the fee by re-planning without the change output. The core keeps its
// strict DustOutput rejection; the absorption happens only here.
func (m *Miner) planWithDustPolicy(inputs []tx.TxInput, outputs []plan.OutputRequest,
	payload []byte, distribution []uint64) (*plan.TransactionPlan, *Error) {

	p, err := plan.PlanTransaction(inputs, outputs, m.opts.Network, m.opts.SatsPerVByte,
		payload, distribution)
	if err == nil {
		return p, nil
	}
	if mapPlanError(err).Code != CodeDustOutput {
		return nil, mapPlanError(err)
	}

	log.Debugf("Change below dust limit, re-planning without change output")
	p, err = plan.PlanTransactionNoChange(inputs, outputs, m.opts.Network, m.opts.SatsPerVByte,
		payload, distribution)
	if err != nil {
		return nil, mapPlanError(err)
	}
	return p, nil
}

func hashRate(attempts uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(attempts) / elapsed.Seconds()
}

// mineSegmentGPU chunks a segment into bounded dispatches, observing stop
// and pause between chunks. The lowest reported nonce of a dispatch wins.
func (m *Miner) mineSegmentGPU(template *plan.MiningTemplate, segment mining.NonceSegment,
	targetZeros uint8, useCBOR bool) (mining.SegmentResult, error) {

	var attempts uint64
	remaining := segment.Size
	current := segment.Start

	for remaining > 0 {
		if err := m.control.Wait(); err != nil {
			return mining.SegmentResult{Attempts: attempts}, err
		}

		chunk := remaining
		if chunk > gpuMaxBatchSize {
			chunk = gpuMaxBatchSize
		}

		results, err := m.gpuCtx.DispatchBatch(&gpu.Batch{
			Prefix:      template.Prefix,
			Suffix:      template.Suffix,
			StartNonce:  current,
			BatchSize:   chunk,
			TargetZeros: targetZeros,
			UseCBOR:     useCBOR,
		})
		if err != nil {
			return mining.SegmentResult{Attempts: attempts}, err
		}

		if best := lowestResult(results); best != nil {
			attempts += best.Nonce - current + 1
			return mining.SegmentResult{
				Attempts: attempts,
				Hit:      &mining.Hit{Nonce: best.Nonce, Txid: best.Txid},
			}, nil
		}

		attempts += uint64(chunk)
		current += uint64(chunk)
		remaining -= chunk
	}

	return mining.SegmentResult{Attempts: attempts}, nil
}

func lowestResult(results []gpu.Result) *gpu.Result {
	var best *gpu.Result
	for i := range results {
		if best == nil || results[i].Nonce < best.Nonce {
			best = &results[i]
		}
	}
	return best
}

// MineTransaction runs the full search. Segments are tried in increasing
// start-nonce order; the first segment to yield a hit wins. onProgress
// fires after every segment and on the final hit; onFound fires once with
// the completed result.
func (m *Miner) MineTransaction(params Params, onProgress func(ProgressStats),
	onFound func(*Result)) (*Result, error) {

	if params.TargetZeros > MaxTargetZeros {
		return nil, errorf(CodeInvalidInput, "target_zeros must be between 0 and %d", MaxTargetZeros)
	}
	batchSize := params.BatchSize
	if batchSize == 0 {
		batchSize = m.opts.BatchSize
	}

	inputs, ferr := parseInputs(params.Inputs)
	if ferr != nil {
		return nil, ferr
	}
	outputs := outputRequests(params.Outputs)
	useCBOR := params.Distribution != nil

	var segments []mining.NonceSegment
	var err error
	if useCBOR {
		segments, err = mining.SegmentRangeCBOR(params.StartNonce, batchSize)
	} else {
		segments, err = mining.SegmentRange(params.StartNonce, batchSize)
	}
	if err != nil {
		return nil, newError(CodeInvalidInput, err.Error())
	}

	m.control.Reset()
	startedAt := time.Now()
	var attempts uint64

	abort := func(err error, attemptsSoFar uint64) error {
		facadeErr := mapPlanError(err)
		facadeErr.Attempts = attemptsSoFar
		return facadeErr
	}

	for _, segment := range segments {
		if err := m.control.Wait(); err != nil {
			return nil, abort(err, attempts)
		}

		// Re-plan per segment: the payload width, and therefore the
		// template bytes, depend on the segment's encoded nonce width.
		placeholder := make([]byte, segment.NonceLen)
		if useCBOR {
			// A placeholder of the right CBOR width keeps the payload
			// size stable across the segment.
			placeholder = cborPlaceholder(segment)
		}

		p, ferr := m.planWithDustPolicy(inputs, outputs, placeholder, params.Distribution)
		if ferr != nil {
			ferr.Attempts = attempts
			return nil, ferr
		}

		template, err := plan.BuildMiningTemplate(p, int(segment.NonceLen))
		if err != nil {
			return nil, abort(err, attempts)
		}

		result, err := m.mineSegment(template, segment, params.TargetZeros, useCBOR)
		attempts += result.Attempts
		if err != nil {
			return nil, abort(err, attempts)
		}

		if result.Hit == nil {
			if err := m.control.Wait(); err != nil {
				return nil, abort(err, attempts)
			}
			if onProgress != nil {
				elapsed := time.Since(startedAt)
				onProgress(ProgressStats{
					HashesProcessed: attempts,
					HashRate:        hashRate(attempts, elapsed),
					Elapsed:         elapsed,
					LastNonce:       segment.Start + uint64(segment.Size) - 1,
				})
			}
			continue
		}

		return m.finishHit(result.Hit, inputs, outputs, params.Distribution, useCBOR,
			attempts, startedAt, onProgress, onFound)
	}

	return nil, &Error{
		Code:     CodeNoMatchingNonce,
		Message:  "no matching nonce found in provided range",
		Attempts: attempts,
	}
}

// mineSegment dispatches one segment: GPU first when available, CPU
// otherwise. A GPU failure demotes the segment to the CPU without marking
// the device unusable.
func (m *Miner) mineSegment(template *plan.MiningTemplate, segment mining.NonceSegment,
	targetZeros uint8, useCBOR bool) (mining.SegmentResult, error) {

	if m.gpuCtx != nil {
		result, err := m.mineSegmentGPU(template, segment, targetZeros, useCBOR)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, mining.ErrMiningAborted) || m.control.Stopped() {
			return result, mining.ErrMiningAborted
		}
		log.Warnf("GPU segment failed, falling back to CPU: %v", err)
	}

	return mining.MineSegmentParallel(template.Prefix, template.Suffix, segment,
		targetZeros, useCBOR, m.control, m.opts.WorkerThreads)
}

// cborPlaceholder returns a CBOR uint of the segment's width, encoding
// the segment start so the width always matches.
func cborPlaceholder(segment mining.NonceSegment) []byte {
	return codec.EncodeCBORUint(segment.Start)
}

func (m *Miner) finishHit(hit *mining.Hit, inputs []tx.TxInput, outputs []plan.OutputRequest,
	distribution []uint64, useCBOR bool, attempts uint64, startedAt time.Time,
	onProgress func(ProgressStats), onFound func(*Result)) (*Result, error) {

	var nonceBytes []byte
	if useCBOR {
		nonceBytes = codec.EncodeCBORUint(hit.Nonce)
	} else {
		nonceBytes = codec.EncodeNonce(hit.Nonce)
	}

	// The payload size is stable within a segment, so re-planning with
	// the actual nonce reproduces the mined bytes.
	p, ferr := m.planWithDustPolicy(inputs, outputs, nonceBytes, distribution)
	if ferr != nil {
		ferr.Attempts = attempts
		return nil, ferr
	}

	psbtB64, txid, err := plan.BuildPSBT(p)
	if err != nil {
		facadeErr := newError(CodeWorkerError, err.Error())
		facadeErr.Attempts = attempts
		return nil, facadeErr
	}

	elapsed := time.Since(startedAt)
	result := &Result{
		PSBT:     psbtB64,
		Txid:     txidHex(txid),
		Nonce:    hit.Nonce,
		Attempts: attempts,
		Duration: elapsed.Milliseconds(),
		HashRate: hashRate(attempts, elapsed),
	}

	log.Infof("Found nonce %d after %d attempts (txid %s)", hit.Nonce, attempts, result.Txid)

	if onProgress != nil {
		onProgress(ProgressStats{
			HashesProcessed: attempts,
			HashRate:        result.HashRate,
			Elapsed:         elapsed,
			LastNonce:       hit.Nonce,
		})
	}
	if onFound != nil {
		onFound(result)
	}
	return result, nil
}

func txidHex(txid [32]byte) string {
	h := chainhash.Hash(txid)
	return h.String()
}
