// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package plan turns output requests into a fully sized, fee-balanced
// transaction plan and derives the mining templates the nonce search
// iterates over.
package plan

import (
	"errors"
	"fmt"

	"github.com/ouziel-slama/zeldhash-miner/addresses"
	"github.com/ouziel-slama/zeldhash-miner/codec"
	"github.com/ouziel-slama/zeldhash-miner/fees"
	"github.com/ouziel-slama/zeldhash-miner/hashing"
	"github.com/ouziel-slama/zeldhash-miner/psbt"
	"github.com/ouziel-slama/zeldhash-miner/tx"
)

var (
	// ErrNoChangeOutput is returned when no output request is flagged as
	// change.
	ErrNoChangeOutput = errors.New("missing change output")

	// ErrMultipleChangeOutputs is returned when more than one output
	// request is flagged as change.
	ErrMultipleChangeOutputs = errors.New("multiple change outputs are not allowed")

	// ErrZeroFeeRate is returned when the fee rate is zero.
	ErrZeroFeeRate = errors.New("sats per vbyte must be greater than zero")
)

// OutputRequest describes one requested output. Exactly one request per
// plan must have Change set; non-change requests must carry an Amount of
// at least the dust limit of their address type.
type OutputRequest struct {
	Address string
	Amount  uint64
	Change  bool
}

// TransactionPlan is the fully sized transaction the miner searches over.
// ChangeOutput is nil when the change was deliberately absorbed into the
// fee (see PlanTransactionNoChange).
type TransactionPlan struct {
	Inputs       []tx.TxInput
	UserOutputs  []tx.TxOutput
	ChangeOutput *tx.TxOutput
	OpReturn     []byte
	OpReturnSize int
	Distribution []uint64
}

// MiningTemplate is a (prefix, suffix) pair around a nonce slot of
// exactly NonceLen bytes: prefix || nonce || suffix is the canonical
// serialization for any nonce encoding to that width.
type MiningTemplate struct {
	Prefix   []byte
	Suffix   []byte
	NonceLen uint8
}

type collectedOutputs struct {
	userOutputs []tx.TxOutput
	changeSPK   []byte
	changeDust  uint64
}

func collectOutputs(outputs []OutputRequest, network addresses.Network) (*collectedOutputs, error) {
	if len(outputs) == 0 {
		return nil, errors.New("at least one output is required")
	}

	changeCount := 0
	for i := range outputs {
		if outputs[i].Change {
			changeCount++
		}
	}
	if changeCount == 0 {
		return nil, ErrNoChangeOutput
	}
	if changeCount > 1 {
		return nil, ErrMultipleChangeOutputs
	}

	collected := &collectedOutputs{}
	for i := range outputs {
		req := &outputs[i]
		parsed, err := addresses.ParseForNetwork(req.Address, network)
		if err != nil {
			return nil, fmt.Errorf("outputs[%d] address: %w", i, err)
		}
		spk := parsed.ScriptPubKey()
		dust := parsed.Type.DustLimit()

		if req.Change {
			collected.changeSPK = spk
			collected.changeDust = dust
			continue
		}

		if req.Amount == 0 {
			return nil, fmt.Errorf("outputs[%d]: amount is required for non-change outputs", i)
		}
		if req.Amount < dust {
			return nil, fmt.Errorf("outputs[%d]: amount must be at least %d sats", i, dust)
		}
		collected.userOutputs = append(collected.userOutputs, tx.TxOutput{
			ScriptPubKey: spk,
			Amount:       req.Amount,
		})
	}

	return collected, nil
}

func buildOpReturn(opReturnPayload []byte, distribution []uint64) ([]byte, int, error) {
	if distribution == nil {
		script, err := tx.CreateOpReturnScript(opReturnPayload)
		if err != nil {
			return nil, 0, err
		}
		return script, len(opReturnPayload), nil
	}

	// For distribution mining the payload argument carries the
	// CBOR-encoded nonce (or a placeholder of the segment's width).
	width := len(opReturnPayload)
	switch width {
	case 1, 2, 3, 5, 9:
	default:
		return nil, 0, tx.ErrInvalidCBORNonceLen
	}

	payloadLen := tx.ZeldPayloadLenWithNonce(distribution, width)
	payload := make([]byte, 0, payloadLen)
	payload = append(payload, tx.ZeldPrefix...)
	payload = codec.AppendCBORArrayHeader(payload, len(distribution)+1)
	for _, v := range distribution {
		payload = codec.AppendCBORUint(payload, v)
	}
	payload = append(payload, opReturnPayload...)

	script, err := tx.CreateOpReturnScript(payload)
	if err != nil {
		return nil, 0, err
	}
	return script, payloadLen, nil
}

func validateDistribution(distribution []uint64, userOutputs int) error {
	if distribution == nil {
		return nil
	}
	// One weight per user output plus one for change.
	if len(distribution) != userOutputs+1 {
		return fmt.Errorf("distribution length (%d) must match outputs (%d)",
			len(distribution), userOutputs+1)
	}
	return nil
}

// PlanTransaction validates the request, sizes the transaction with a
// zero-amount change placeholder so the fee is exact, and computes the
// change. It fails with fees.ErrDustOutput when the change would be dust;
// higher layers may retry with PlanTransactionNoChange to absorb the dust
// into the fee.
func PlanTransaction(inputs []tx.TxInput, outputs []OutputRequest, network addresses.Network,
	satsPerVByte uint64, opReturnPayload []byte, distribution []uint64) (*TransactionPlan, error) {

	if satsPerVByte == 0 {
		return nil, ErrZeroFeeRate
	}

	collected, err := collectOutputs(outputs, network)
	if err != nil {
		return nil, err
	}
	if err := validateDistribution(distribution, len(collected.userOutputs)); err != nil {
		return nil, err
	}

	opReturn, opReturnSize, err := buildOpReturn(opReturnPayload, distribution)
	if err != nil {
		return nil, err
	}

	var totalInput, outputsSum uint64
	for i := range inputs {
		totalInput += inputs[i].Amount
	}
	for i := range collected.userOutputs {
		outputsSum += collected.userOutputs[i].Amount
	}

	// Include the change output with a placeholder amount so its size is
	// part of the estimate.
	outputsForFee := append(append([]tx.TxOutput{}, collected.userOutputs...),
		tx.TxOutput{ScriptPubKey: collected.changeSPK})

	vsize := fees.CalculateVSize(inputs, outputsForFee, opReturnSize)
	fee := fees.CalculateFee(vsize, satsPerVByte)
	change, err := fees.CalculateChange(totalInput, outputsSum, fee, collected.changeDust)
	if err != nil {
		return nil, err
	}

	return &TransactionPlan{
		Inputs:      inputs,
		UserOutputs: collected.userOutputs,
		ChangeOutput: &tx.TxOutput{
			ScriptPubKey: collected.changeSPK,
			Amount:       change,
		},
		OpReturn:     opReturn,
		OpReturnSize: opReturnSize,
		Distribution: distribution,
	}, nil
}

// PlanTransactionNoChange plans without a change output: whatever the
// inputs leave beyond the user outputs goes to fee. Used by facades to
// absorb a dusty change after PlanTransaction failed with
// fees.ErrDustOutput. The request must still name exactly one change
// output so the distribution length rule stays uniform.
func PlanTransactionNoChange(inputs []tx.TxInput, outputs []OutputRequest, network addresses.Network,
	satsPerVByte uint64, opReturnPayload []byte, distribution []uint64) (*TransactionPlan, error) {

	if satsPerVByte == 0 {
		return nil, ErrZeroFeeRate
	}

	collected, err := collectOutputs(outputs, network)
	if err != nil {
		return nil, err
	}
	if err := validateDistribution(distribution, len(collected.userOutputs)); err != nil {
		return nil, err
	}

	opReturn, opReturnSize, err := buildOpReturn(opReturnPayload, distribution)
	if err != nil {
		return nil, err
	}

	var totalInput, outputsSum uint64
	for i := range inputs {
		totalInput += inputs[i].Amount
	}
	for i := range collected.userOutputs {
		outputsSum += collected.userOutputs[i].Amount
	}

	vsize := fees.CalculateVSize(inputs, collected.userOutputs, opReturnSize)
	fee := fees.CalculateFee(vsize, satsPerVByte)
	if totalInput < outputsSum+fee {
		return nil, fees.ErrInsufficientFunds
	}

	return &TransactionPlan{
		Inputs:       inputs,
		UserOutputs:  collected.userOutputs,
		OpReturn:     opReturn,
		OpReturnSize: opReturnSize,
		Distribution: distribution,
	}, nil
}

// outputsAround returns the outputs before and after the OP_RETURN slot.
// User outputs come first, then OP_RETURN, then change when present.
func (p *TransactionPlan) outputsAround() (before, after []tx.TxOutput) {
	before = p.UserOutputs
	if p.ChangeOutput != nil {
		after = []tx.TxOutput{*p.ChangeOutput}
	}
	return before, after
}

// AllOutputs returns the plan's full ordered output set including the
// OP_RETURN.
func (p *TransactionPlan) AllOutputs() []tx.TxOutput {
	outputs := append([]tx.TxOutput{}, p.UserOutputs...)
	outputs = append(outputs, tx.TxOutput{ScriptPubKey: p.OpReturn})
	if p.ChangeOutput != nil {
		outputs = append(outputs, *p.ChangeOutput)
	}
	return outputs
}

// BuildMiningTemplate splits the plan's transaction around a nonce slot of
// nonceLen bytes. For distribution plans nonceLen must be a valid CBOR
// uint width.
func BuildMiningTemplate(p *TransactionPlan, nonceLen int) (*MiningTemplate, error) {
	before, after := p.outputsAround()

	var prefix, suffix []byte
	var err error
	if p.Distribution != nil {
		prefix, suffix, err = tx.SplitForDistributionMining(p.Inputs, before, after, p.Distribution, nonceLen)
	} else {
		prefix, suffix, err = tx.SplitForMining(p.Inputs, before, after, nonceLen)
	}
	if err != nil {
		return nil, err
	}

	return &MiningTemplate{
		Prefix:   prefix,
		Suffix:   suffix,
		NonceLen: uint8(nonceLen),
	}, nil
}

// BuildPSBT emits the plan as a base64 PSBT along with the internal-order
// txid of the embedded unsigned transaction.
func BuildPSBT(p *TransactionPlan) (string, [32]byte, error) {
	outputs := p.AllOutputs()

	raw, err := psbt.Create(p.Inputs, outputs)
	if err != nil {
		return "", [32]byte{}, err
	}

	unsigned := tx.SerializeUnsigned(p.Inputs, outputs)
	txid := hashing.DoubleSHA256(unsigned)
	return psbt.ToBase64(raw), txid, nil
}
