// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package psbt assembles the BIP-174 Partially Signed Bitcoin Transaction
// handed to the signing wallet. Only two record types are emitted: the
// global unsigned transaction and one witness UTXO per input; output maps
// are empty.
package psbt

import (
	"encoding/base64"
	"errors"

	"github.com/ouziel-slama/zeldhash-miner/codec"
	"github.com/ouziel-slama/zeldhash-miner/tx"
)

// BIP-174 key types used by the emitter.
const (
	globalUnsignedTx = 0x00 // PSBT_GLOBAL_UNSIGNED_TX
	inWitnessUTXO    = 0x01 // PSBT_IN_WITNESS_UTXO
)

// magic is the PSBT preamble: "psbt" followed by 0xff.
var magic = []byte{0x70, 0x73, 0x62, 0x74, 0xff}

// ErrNoInputs is returned when a PSBT is requested for a transaction
// without inputs; such a PSBT could never be signed into a valid spend.
var ErrNoInputs = errors.New("psbt requires at least one input")

// Create serializes a PSBT embedding the unsigned transaction and a
// witness UTXO record for every input.
func Create(inputs []tx.TxInput, outputs []tx.TxOutput) ([]byte, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}

	unsigned := tx.SerializeUnsigned(inputs, outputs)

	out := make([]byte, 0, len(magic)+len(unsigned)+len(inputs)*48+len(outputs)+16)
	out = append(out, magic...)

	// Global map: the unsigned transaction in legacy (non-witness) form.
	out = codec.AppendVarInt(out, 1) // key length: type byte only
	out = append(out, globalUnsignedTx)
	out = codec.AppendVarInt(out, uint64(len(unsigned)))
	out = append(out, unsigned...)
	out = append(out, 0x00) // end of global map

	// Input maps: amount || varint(len(spk)) || spk per witness UTXO.
	for i := range inputs {
		in := &inputs[i]
		utxo := make([]byte, 0, 8+1+len(in.ScriptPubKey))
		utxo = appendUint64LE(utxo, in.Amount)
		utxo = codec.AppendVarInt(utxo, uint64(len(in.ScriptPubKey)))
		utxo = append(utxo, in.ScriptPubKey...)

		out = codec.AppendVarInt(out, 1)
		out = append(out, inWitnessUTXO)
		out = codec.AppendVarInt(out, uint64(len(utxo)))
		out = append(out, utxo...)
		out = append(out, 0x00)
	}

	// Output maps are empty: one separator each.
	for range outputs {
		out = append(out, 0x00)
	}

	return out, nil
}

// ToBase64 renders PSBT bytes with the standard base64 alphabet and
// padding, the interchange form wallets expect.
func ToBase64(psbt []byte) string {
	return base64.StdEncoding.EncodeToString(psbt)
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}
