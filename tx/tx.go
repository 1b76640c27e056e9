// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package tx implements the canonical non-witness ("txid view")
// serialization of the mined transactions, OP_RETURN construction for raw
// nonces and ZELD distribution payloads, and the prefix/suffix template
// split the nonce search iterates over.
package tx

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/ouziel-slama/zeldhash-miner/codec"
	"github.com/ouziel-slama/zeldhash-miner/hashing"
)

const (
	// Version is the transaction version emitted by the serializer.
	Version uint32 = 2

	// DefaultSequence enables RBF without a relative locktime.
	DefaultSequence uint32 = 0xfffffffd
)

// ZeldPrefix is the ASCII marker that opens a ZELD distribution payload.
var ZeldPrefix = []byte("ZELD")

// ErrInvalidCBORNonceLen is returned when a distribution template is built
// with a nonce slot width that is not a valid CBOR uint width.
var ErrInvalidCBORNonceLen = errors.New("invalid CBOR nonce length; must be 1, 2, 3, 5, or 9 bytes")

// TxInput describes a previous output being spent. ScriptPubKey and Amount
// are carried for fee sizing and the PSBT witness UTXO record; they are
// never serialized into the unsigned transaction body.
type TxInput struct {
	PrevTxid     chainhash.Hash // internal byte order
	Vout         uint32
	ScriptPubKey []byte
	Amount       uint64
	Sequence     uint32
}

// TxOutput is a serialized output. Amount 0 is reserved for OP_RETURN.
type TxOutput struct {
	ScriptPubKey []byte
	Amount       uint64
}

func appendInput(buf []byte, in *TxInput) []byte {
	buf = append(buf, in.PrevTxid[:]...)
	buf = appendUint32LE(buf, in.Vout)
	buf = append(buf, 0x00) // empty scriptSig
	return appendUint32LE(buf, in.Sequence)
}

func appendOutput(buf []byte, out *TxOutput) []byte {
	buf = appendUint64LE(buf, out.Amount)
	buf = codec.AppendVarInt(buf, uint64(len(out.ScriptPubKey)))
	return append(buf, out.ScriptPubKey...)
}

func appendUint32LE(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// SerializeForTxid serializes the transaction without the SegWit
// marker/flag or witnesses. The double SHA-256 of these bytes is the txid.
func SerializeForTxid(inputs []TxInput, outputs []TxOutput) []byte {
	buf := make([]byte, 0, 64+len(inputs)*41+len(outputs)*40)
	buf = appendUint32LE(buf, Version)

	buf = codec.AppendVarInt(buf, uint64(len(inputs)))
	for i := range inputs {
		buf = appendInput(buf, &inputs[i])
	}

	buf = codec.AppendVarInt(buf, uint64(len(outputs)))
	for i := range outputs {
		buf = appendOutput(buf, &outputs[i])
	}

	return appendUint32LE(buf, 0) // locktime
}

// SerializeUnsigned serializes the unsigned transaction for PSBT
// embedding. BIP-174 requires the legacy form, which is identical to the
// txid view.
func SerializeUnsigned(inputs []TxInput, outputs []TxOutput) []byte {
	return SerializeForTxid(inputs, outputs)
}

// ComputeTxid returns the display-order hex txid of raw canonical
// transaction bytes.
func ComputeTxid(raw []byte) string {
	return hashing.TxidHex(hashing.DoubleSHA256(raw))
}

// CreateOpReturnScript builds OP_RETURN with a minimal push of data.
func CreateOpReturnScript(data []byte) ([]byte, error) {
	prefix, err := codec.PushDataPrefix(len(data))
	if err != nil {
		return nil, err
	}
	script := make([]byte, 0, 1+len(prefix)+len(data))
	script = append(script, txscript.OP_RETURN)
	script = append(script, prefix...)
	return append(script, data...), nil
}

// ZeldPayload builds the distribution payload "ZELD" || CBOR(dist ++
// [nonce]).
func ZeldPayload(distribution []uint64, nonce uint64) []byte {
	payload := make([]byte, 0, ZeldPayloadLenWithNonce(distribution, codec.CBORUintLen(nonce)))
	payload = append(payload, ZeldPrefix...)
	payload = codec.AppendCBORArrayHeader(payload, len(distribution)+1)
	for _, v := range distribution {
		payload = codec.AppendCBORUint(payload, v)
	}
	return codec.AppendCBORUint(payload, nonce)
}

// CreateZeldDistributionOpReturn wraps the distribution payload in an
// OP_RETURN. The nonce rides as the last element of the CBOR array; the
// protocol trims array elements beyond the output count, so it is stripped
// when the distribution is parsed on chain.
func CreateZeldDistributionOpReturn(distribution []uint64, nonce uint64) ([]byte, error) {
	return CreateOpReturnScript(ZeldPayload(distribution, nonce))
}

// ZeldPayloadLen returns the distribution payload length assuming the
// worst-case 9-byte CBOR nonce, for fee estimates that must hold for any
// nonce value.
func ZeldPayloadLen(distribution []uint64) int {
	return ZeldPayloadLenWithNonce(distribution, 9)
}

// ZeldPayloadLenWithNonce returns the distribution payload length for an
// exact CBOR nonce width, used while mining a width-homogeneous segment.
func ZeldPayloadLenWithNonce(distribution []uint64, cborNonceLen int) int {
	total := len(ZeldPrefix) + codec.CBORArrayHeaderLen(len(distribution)+1)
	for _, v := range distribution {
		total += codec.CBORUintLen(v)
	}
	return total + cborNonceLen
}

func validCBORNonceLen(n int) bool {
	switch n {
	case 1, 2, 3, 5, 9:
		return true
	}
	return false
}

// splitPrefixCommon serializes everything up to and including the
// OP_RETURN script header for a script of scriptLen bytes starting with
// OP_RETURN and the given push prefix.
func splitPrefixCommon(inputs []TxInput, outputsBefore, outputsAfter []TxOutput, pushPrefix []byte, payloadLen int) []byte {
	prefix := make([]byte, 0, 64+len(inputs)*41+len(outputsBefore)*40)
	prefix = appendUint32LE(prefix, Version)

	prefix = codec.AppendVarInt(prefix, uint64(len(inputs)))
	for i := range inputs {
		prefix = appendInput(prefix, &inputs[i])
	}

	totalOutputs := len(outputsBefore) + 1 + len(outputsAfter)
	prefix = codec.AppendVarInt(prefix, uint64(totalOutputs))
	for i := range outputsBefore {
		prefix = appendOutput(prefix, &outputsBefore[i])
	}

	scriptLen := 1 + len(pushPrefix) + payloadLen
	prefix = appendUint64LE(prefix, 0) // OP_RETURN amount
	prefix = codec.AppendVarInt(prefix, uint64(scriptLen))
	prefix = append(prefix, txscript.OP_RETURN)
	return append(prefix, pushPrefix...)
}

func splitSuffix(outputsAfter []TxOutput) []byte {
	suffix := make([]byte, 0, len(outputsAfter)*40+4)
	for i := range outputsAfter {
		suffix = appendOutput(suffix, &outputsAfter[i])
	}
	return appendUint32LE(suffix, 0) // locktime
}

// SplitForMining produces (prefix, suffix) such that prefix || nonce ||
// suffix is the canonical serialization of the full transaction for any
// nonce encoding exactly nonceLen bytes. The OP_RETURN data is the bare
// nonce.
func SplitForMining(inputs []TxInput, outputsBefore, outputsAfter []TxOutput, nonceLen int) ([]byte, []byte, error) {
	pushPrefix, err := codec.PushDataPrefix(nonceLen)
	if err != nil {
		return nil, nil, err
	}
	prefix := splitPrefixCommon(inputs, outputsBefore, outputsAfter, pushPrefix, nonceLen)
	return prefix, splitSuffix(outputsAfter), nil
}

// SplitForDistributionMining splits inside the CBOR array of a ZELD
// payload: the prefix carries "ZELD", the array header, and the encoded
// distribution values, leaving a slot of exactly cborNonceLen bytes for
// the CBOR-encoded nonce.
func SplitForDistributionMining(inputs []TxInput, outputsBefore, outputsAfter []TxOutput, distribution []uint64, cborNonceLen int) ([]byte, []byte, error) {
	if !validCBORNonceLen(cborNonceLen) {
		return nil, nil, ErrInvalidCBORNonceLen
	}

	payloadLen := ZeldPayloadLenWithNonce(distribution, cborNonceLen)
	pushPrefix, err := codec.PushDataPrefix(payloadLen)
	if err != nil {
		return nil, nil, err
	}

	prefix := splitPrefixCommon(inputs, outputsBefore, outputsAfter, pushPrefix, payloadLen)
	prefix = append(prefix, ZeldPrefix...)
	prefix = codec.AppendCBORArrayHeader(prefix, len(distribution)+1)
	for _, v := range distribution {
		prefix = codec.AppendCBORUint(prefix, v)
	}

	return prefix, splitSuffix(outputsAfter), nil
}
