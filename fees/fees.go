// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package fees estimates virtual sizes and computes fees and change for
// the planned transactions. Witness sizes use typical, not worst-case,
// figures: interactive mining wants tight fees, and the guarantee of a
// consensus-safe upper bound is out of scope.
package fees

import (
	"errors"

	"github.com/ouziel-slama/zeldhash-miner/codec"
	"github.com/ouziel-slama/zeldhash-miner/tx"
)

// Typical witness sizes per input type.
const (
	// P2WPKHWitnessTypical is 1 item count + 1+72 signature + 1+33 pubkey.
	P2WPKHWitnessTypical = 108

	// P2TRWitnessTypical is 1 item count + 1+64 key-path signature.
	P2TRWitnessTypical = 66
)

var (
	// ErrInsufficientFunds is returned when inputs cannot cover outputs
	// plus fee.
	ErrInsufficientFunds = errors.New("insufficient funds for outputs and fee")

	// ErrDustOutput is returned when the computed change would fall below
	// the dust limit.
	ErrDustOutput = errors.New("change would be dust")
)

// CalculateVSize estimates the virtual size in vbytes of a transaction
// with the given inputs, the given non-OP_RETURN outputs, and one
// OP_RETURN output carrying opReturnSize payload bytes.
func CalculateVSize(inputs []tx.TxInput, outputs []tx.TxOutput, opReturnSize int) int {
	base := baseSize(inputs, outputs, opReturnSize)
	witness := witnessSize(inputs)
	weight := base*4 + witness
	return (weight + 3) / 4
}

// CalculateFee returns the fee in satoshis for a vsize at the given rate.
func CalculateFee(vsize int, satsPerVByte uint64) uint64 {
	return uint64(vsize) * satsPerVByte
}

// CalculateChange computes the change amount, enforcing sufficient funds
// and the dust limit of the change address.
func CalculateChange(totalInput, outputsSum, fee, dustLimit uint64) (uint64, error) {
	if totalInput < outputsSum+fee {
		return 0, ErrInsufficientFunds
	}
	change := totalInput - outputsSum - fee
	if change < dustLimit {
		return 0, ErrDustOutput
	}
	return change, nil
}

func baseSize(inputs []tx.TxInput, outputs []tx.TxOutput, opReturnSize int) int {
	size := 4 // version

	size += codec.VarIntLen(uint64(len(inputs)))
	size += len(inputs) * (32 + 4 + 1 + 4) // prev txid + vout + empty scriptSig + sequence

	totalOutputs := len(outputs) + 1 // plus OP_RETURN
	size += codec.VarIntLen(uint64(totalOutputs))

	for i := range outputs {
		size += outputSize(&outputs[i])
	}

	scriptLen := 1 + codec.PushDataPrefixLen(opReturnSize) + opReturnSize
	size += 8 // amount
	size += codec.VarIntLen(uint64(scriptLen))
	size += scriptLen

	return size + 4 // locktime
}

func outputSize(out *tx.TxOutput) int {
	return 8 + codec.VarIntLen(uint64(len(out.ScriptPubKey))) + len(out.ScriptPubKey)
}

func witnessSize(inputs []tx.TxInput) int {
	total := 0
	anySegwit := false

	for i := range inputs {
		spk := inputs[i].ScriptPubKey
		switch {
		case len(spk) == 22 && spk[0] == 0x00 && spk[1] == 0x14:
			total += P2WPKHWitnessTypical
			anySegwit = true
		case len(spk) == 34 && spk[0] == 0x51 && spk[1] == 0x20:
			total += P2TRWitnessTypical
			anySegwit = true
		}
	}

	if anySegwit {
		total += 2 // marker + flag, weight 1 each
	}
	return total
}
