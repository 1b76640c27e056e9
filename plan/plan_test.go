// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package plan

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ouziel-slama/zeldhash-miner/addresses"
	"github.com/ouziel-slama/zeldhash-miner/codec"
	"github.com/ouziel-slama/zeldhash-miner/fees"
	"github.com/ouziel-slama/zeldhash-miner/tx"
)

func testAddress(t *testing.T, fill byte) string {
	t.Helper()
	addr, err := addresses.Encode(addresses.Mainnet, addresses.P2WPKH, bytes.Repeat([]byte{fill}, 20))
	require.NoError(t, err)
	return addr
}

func addressSPK(t *testing.T, addr string) []byte {
	t.Helper()
	parsed, err := addresses.ParseForNetwork(addr, addresses.Mainnet)
	require.NoError(t, err)
	return parsed.ScriptPubKey()
}

func sampleInput(t *testing.T, amount uint64, addr string) tx.TxInput {
	t.Helper()
	var prev chainhash.Hash
	for i := range prev {
		prev[i] = 0x11
	}
	return tx.TxInput{
		PrevTxid:     prev,
		Vout:         0,
		ScriptPubKey: addressSPK(t, addr),
		Amount:       amount,
		Sequence:     tx.DefaultSequence,
	}
}

func twoOutputs(userAmount uint64, userAddr, changeAddr string) []OutputRequest {
	return []OutputRequest{
		{Address: userAddr, Amount: userAmount},
		{Address: changeAddr, Change: true},
	}
}

func TestPlanTransaction(t *testing.T) {
	userAddr := testAddress(t, 0x11)
	changeAddr := testAddress(t, 0x22)
	inputs := []tx.TxInput{sampleInput(t, 120_000, changeAddr)}
	outputs := twoOutputs(60_000, userAddr, changeAddr)
	opReturn := []byte{0xaa, 0xbb, 0xcc}

	p, err := PlanTransaction(inputs, outputs, addresses.Mainnet, 2, opReturn, nil)
	require.NoError(t, err)

	// The plan must balance: inputs = outputs + change + fee.
	outputsForFee := append([]tx.TxOutput{}, p.UserOutputs...)
	outputsForFee = append(outputsForFee, tx.TxOutput{ScriptPubKey: p.ChangeOutput.ScriptPubKey})
	vsize := fees.CalculateVSize(inputs, outputsForFee, len(opReturn))
	fee := fees.CalculateFee(vsize, 2)

	require.Len(t, p.UserOutputs, 1)
	assert.Equal(t, addressSPK(t, userAddr), p.UserOutputs[0].ScriptPubKey)
	assert.Equal(t, addressSPK(t, changeAddr), p.ChangeOutput.ScriptPubKey)
	assert.Equal(t, 120_000-60_000-fee, p.ChangeOutput.Amount)
	assert.GreaterOrEqual(t, p.ChangeOutput.Amount, uint64(310))
	assert.Equal(t, len(opReturn), p.OpReturnSize)

	expectedScript, err := tx.CreateOpReturnScript(opReturn)
	require.NoError(t, err)
	assert.Equal(t, expectedScript, p.OpReturn)
}

func TestPlanValidation(t *testing.T) {
	userAddr := testAddress(t, 0x11)
	changeAddr := testAddress(t, 0x22)
	inputs := []tx.TxInput{sampleInput(t, 120_000, changeAddr)}

	t.Run("ZeroRate", func(t *testing.T) {
		_, err := PlanTransaction(inputs, twoOutputs(60_000, userAddr, changeAddr),
			addresses.Mainnet, 0, []byte{0x00}, nil)
		assert.ErrorIs(t, err, ErrZeroFeeRate)
	})

	t.Run("NoChange", func(t *testing.T) {
		_, err := PlanTransaction(inputs, []OutputRequest{{Address: userAddr, Amount: 60_000}},
			addresses.Mainnet, 2, []byte{0x00}, nil)
		assert.ErrorIs(t, err, ErrNoChangeOutput)
	})

	t.Run("MultipleChange", func(t *testing.T) {
		outputs := []OutputRequest{
			{Address: userAddr, Change: true},
			{Address: changeAddr, Change: true},
		}
		_, err := PlanTransaction(inputs, outputs, addresses.Mainnet, 2, []byte{0x00}, nil)
		assert.ErrorIs(t, err, ErrMultipleChangeOutputs)
	})

	t.Run("MissingAmount", func(t *testing.T) {
		outputs := []OutputRequest{
			{Address: userAddr},
			{Address: changeAddr, Change: true},
		}
		_, err := PlanTransaction(inputs, outputs, addresses.Mainnet, 2, []byte{0x00}, nil)
		assert.ErrorContains(t, err, "amount is required")
	})

	t.Run("BelowDust", func(t *testing.T) {
		_, err := PlanTransaction(inputs, twoOutputs(309, userAddr, changeAddr),
			addresses.Mainnet, 2, []byte{0x00}, nil)
		assert.ErrorContains(t, err, "at least 310")
	})

	t.Run("WrongNetwork", func(t *testing.T) {
		testnetAddr, err := addresses.Encode(addresses.Testnet, addresses.P2WPKH, bytes.Repeat([]byte{0x55}, 20))
		require.NoError(t, err)
		_, err = PlanTransaction(inputs, twoOutputs(60_000, testnetAddr, changeAddr),
			addresses.Mainnet, 2, []byte{0x00}, nil)
		assert.ErrorIs(t, err, addresses.ErrNetworkMismatch)
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		_, err := PlanTransaction(inputs, twoOutputs(130_000, userAddr, changeAddr),
			addresses.Mainnet, 2, []byte{0x00}, nil)
		assert.ErrorIs(t, err, fees.ErrInsufficientFunds)
	})
}

func TestPlanRejectsDustyChange(t *testing.T) {
	userAddr := testAddress(t, 0x11)
	changeAddr := testAddress(t, 0x22)
	// 10_000 in, 9_500 out: at 2 sats/vB the fee (306 sats) leaves
	// 194 sats of change, below the 310 sat P2WPKH dust limit.
	inputs := []tx.TxInput{sampleInput(t, 10_000, changeAddr)}

	_, err := PlanTransaction(inputs, twoOutputs(9_500, userAddr, changeAddr),
		addresses.Mainnet, 2, []byte{0x00}, nil)
	assert.ErrorIs(t, err, fees.ErrDustOutput)

	// The no-change variant absorbs the remainder into fee.
	p, err := PlanTransactionNoChange(inputs, twoOutputs(9_500, userAddr, changeAddr),
		addresses.Mainnet, 2, []byte{0x00}, nil)
	require.NoError(t, err)
	assert.Nil(t, p.ChangeOutput)
	assert.Len(t, p.AllOutputs(), 2) // user output + OP_RETURN
}

func TestPlanWithDistribution(t *testing.T) {
	userAddr := testAddress(t, 0x11)
	addrB := testAddress(t, 0x33)
	addrC := testAddress(t, 0x44)
	changeAddr := testAddress(t, 0x22)
	inputs := []tx.TxInput{sampleInput(t, 200_000, changeAddr)}
	outputs := []OutputRequest{
		{Address: userAddr, Amount: 50_000},
		{Address: addrB, Amount: 40_000},
		{Address: addrC, Amount: 30_000},
		{Address: changeAddr, Change: true},
	}
	distribution := []uint64{600, 300, 100, 0}
	cborNonce := codec.EncodeCBORUint(42)

	p, err := PlanTransaction(inputs, outputs, addresses.Mainnet, 2, cborNonce, distribution)
	require.NoError(t, err)

	assert.True(t, bytes.Contains(p.OpReturn, tx.ZeldPrefix))
	assert.Equal(t, distribution, p.Distribution)
	assert.Equal(t, tx.ZeldPayloadLenWithNonce(distribution, len(cborNonce)), p.OpReturnSize)
	assert.Equal(t, len(distribution), len(p.UserOutputs)+1)
}

func TestPlanDistributionValidation(t *testing.T) {
	userAddr := testAddress(t, 0x11)
	changeAddr := testAddress(t, 0x22)
	inputs := []tx.TxInput{sampleInput(t, 200_000, changeAddr)}
	outputs := twoOutputs(50_000, userAddr, changeAddr)

	t.Run("LengthMismatch", func(t *testing.T) {
		_, err := PlanTransaction(inputs, outputs, addresses.Mainnet, 2,
			codec.EncodeCBORUint(0), []uint64{600, 300, 100})
		assert.ErrorContains(t, err, "distribution length")
	})

	t.Run("BadNonceWidth", func(t *testing.T) {
		_, err := PlanTransaction(inputs, outputs, addresses.Mainnet, 2,
			[]byte{0, 0, 0, 0}, []uint64{600, 0})
		assert.ErrorIs(t, err, tx.ErrInvalidCBORNonceLen)
	})
}

func TestBuildMiningTemplateRoundTrip(t *testing.T) {
	userAddr := testAddress(t, 0x11)
	addrB := testAddress(t, 0x33)
	changeAddr := testAddress(t, 0x22)
	inputs := []tx.TxInput{sampleInput(t, 200_000, changeAddr)}
	outputs := []OutputRequest{
		{Address: userAddr, Amount: 50_000},
		{Address: addrB, Amount: 40_000},
		{Address: changeAddr, Change: true},
	}
	distribution := []uint64{600, 300, 0}
	cborNonce := codec.EncodeCBORUint(42)

	p, err := PlanTransaction(inputs, outputs, addresses.Mainnet, 2, cborNonce, distribution)
	require.NoError(t, err)

	template, err := BuildMiningTemplate(p, len(cborNonce))
	require.NoError(t, err)
	assert.Equal(t, uint8(len(cborNonce)), template.NonceLen)

	rebuilt := append(append(append([]byte{}, template.Prefix...), cborNonce...), template.Suffix...)

	expectedOpReturn, err := tx.CreateZeldDistributionOpReturn(distribution, 42)
	require.NoError(t, err)
	full := append([]tx.TxOutput{}, p.UserOutputs...)
	full = append(full, tx.TxOutput{ScriptPubKey: expectedOpReturn})
	full = append(full, *p.ChangeOutput)
	assert.Equal(t, tx.SerializeForTxid(inputs, full), rebuilt)
}

func TestBuildPSBT(t *testing.T) {
	userAddr := testAddress(t, 0x11)
	changeAddr := testAddress(t, 0x22)
	inputs := []tx.TxInput{sampleInput(t, 120_000, changeAddr)}

	p, err := PlanTransaction(inputs, twoOutputs(60_000, userAddr, changeAddr),
		addresses.Mainnet, 2, []byte{0x07}, nil)
	require.NoError(t, err)

	b64, txid, err := BuildPSBT(p)
	require.NoError(t, err)
	assert.NotEmpty(t, b64)

	expected := tx.SerializeUnsigned(p.Inputs, p.AllOutputs())
	assert.Equal(t, tx.ComputeTxid(expected), chainhashString(txid))
}

func chainhashString(h [32]byte) string {
	ch := chainhash.Hash(h)
	return ch.String()
}
