// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package addresses implements parsing and validation of the SegWit
// addresses the miner can pay to: v0 P2WPKH (bc1q...) and v1 P2TR
// (bc1p...). Legacy base58 addresses and other witness versions are
// rejected.
package addresses

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

var (
	// ErrInvalidAddress is returned when an address fails bech32/bech32m
	// decoding, including checksum failures.
	ErrInvalidAddress = errors.New("invalid bech32/bech32m address")

	// ErrUnsupportedWitnessVersion is returned for witness versions other
	// than 0 and 1.
	ErrUnsupportedWitnessVersion = errors.New("unsupported witness version")

	// ErrInvalidProgramLength is returned when the witness program length
	// does not match the witness version (20 bytes for v0, 32 for v1).
	ErrInvalidProgramLength = errors.New("invalid witness program length")

	// ErrUnsupportedAddressType is returned for addresses that decode but
	// are not P2WPKH or P2TR.
	ErrUnsupportedAddressType = errors.New("unsupported address type")

	// ErrNetworkMismatch is returned when the HRP is unknown or belongs to
	// a different network than the caller expects.
	ErrNetworkMismatch = errors.New("address network mismatch")
)

// Network identifies the Bitcoin network an address belongs to.
type Network int

// Supported networks. Signet shares the testnet HRP and is treated as
// Testnet throughout.
const (
	Mainnet Network = iota
	Testnet
	Regtest
)

// Params returns the chain parameters backing the network's bech32 HRP.
func (n Network) Params() *chaincfg.Params {
	switch n {
	case Testnet:
		return &chaincfg.TestNet3Params
	case Regtest:
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// String returns the host-binding token for the network.
func (n Network) String() string {
	switch n {
	case Testnet:
		return "testnet"
	case Regtest:
		return "regtest"
	default:
		return "mainnet"
	}
}

// ParseNetwork maps a host-binding token to a Network. "signet" is
// accepted as an alias for testnet since both use the tb HRP.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(s) {
	case "mainnet":
		return Mainnet, nil
	case "testnet", "signet":
		return Testnet, nil
	case "regtest":
		return Regtest, nil
	default:
		return 0, fmt.Errorf("unknown network %q", s)
	}
}

func networkForHRP(hrp string) (Network, error) {
	switch hrp {
	case chaincfg.MainNetParams.Bech32HRPSegwit:
		return Mainnet, nil
	case chaincfg.TestNet3Params.Bech32HRPSegwit:
		return Testnet, nil
	case chaincfg.RegressionNetParams.Bech32HRPSegwit:
		return Regtest, nil
	default:
		return 0, ErrNetworkMismatch
	}
}

// AddressType distinguishes the two supported script templates.
type AddressType int

// Supported address types.
const (
	P2WPKH AddressType = iota // witness v0, 20-byte program
	P2TR                      // witness v1, 32-byte program
)

// String returns a short name for the address type.
func (t AddressType) String() string {
	if t == P2TR {
		return "p2tr"
	}
	return "p2wpkh"
}

// DustLimit returns the minimum economic output amount in satoshis for
// the address type.
func (t AddressType) DustLimit() uint64 {
	if t == P2TR {
		return 330
	}
	return 310
}

// ParsedAddress is an immutable decoded SegWit address.
type ParsedAddress struct {
	Network        Network
	Type           AddressType
	WitnessProgram []byte
}

// Parse decodes a bech32/bech32m SegWit address without constraining the
// network.
func Parse(addr string) (*ParsedAddress, error) {
	hrp, data, version, err := bech32.DecodeGeneric(addr)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	if len(data) < 1 {
		return nil, ErrInvalidAddress
	}

	network, err := networkForHRP(hrp)
	if err != nil {
		return nil, err
	}

	witnessVersion := data[0]
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return nil, ErrInvalidAddress
	}

	var addrType AddressType
	switch witnessVersion {
	case 0:
		// BIP-173: version 0 must use the bech32 checksum.
		if version != bech32.Version0 {
			return nil, ErrInvalidAddress
		}
		if len(program) != 20 {
			return nil, ErrInvalidProgramLength
		}
		addrType = P2WPKH
	case 1:
		// BIP-350: version 1 must use the bech32m checksum.
		if version != bech32.VersionM {
			return nil, ErrInvalidAddress
		}
		if len(program) != 32 {
			return nil, ErrInvalidProgramLength
		}
		addrType = P2TR
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedWitnessVersion, witnessVersion)
	}

	return &ParsedAddress{
		Network:        network,
		Type:           addrType,
		WitnessProgram: program,
	}, nil
}

// ParseForNetwork decodes addr and rejects it when it does not belong to
// the expected network.
func ParseForNetwork(addr string, expected Network) (*ParsedAddress, error) {
	parsed, err := Parse(addr)
	if err != nil {
		return nil, err
	}
	if parsed.Network != expected {
		return nil, ErrNetworkMismatch
	}
	return parsed, nil
}

// ValidateForNetwork reports whether addr is a supported SegWit address on
// the given network.
func ValidateForNetwork(addr string, network Network) error {
	_, err := ParseForNetwork(addr, network)
	return err
}

// ScriptPubKey materializes the output script for the address:
// OP_0 <20-byte program> for P2WPKH, OP_1 <32-byte program> for P2TR.
func (a *ParsedAddress) ScriptPubKey() []byte {
	builder := txscript.NewScriptBuilder()
	if a.Type == P2TR {
		builder.AddOp(txscript.OP_1)
	} else {
		builder.AddOp(txscript.OP_0)
	}
	builder.AddData(a.WitnessProgram)

	script, err := builder.Script()
	if err != nil {
		// Witness programs are 20 or 32 bytes, far below the script
		// builder's push limits.
		panic(fmt.Sprintf("script build failed for witness program: %v", err))
	}
	return script
}

// Encode renders a witness program back into an address string. Used by
// tests and tooling; the miner itself only consumes addresses.
func Encode(network Network, addrType AddressType, program []byte) (string, error) {
	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	hrp := network.Params().Bech32HRPSegwit
	if addrType == P2TR {
		return bech32.EncodeM(hrp, append([]byte{1}, converted...))
	}
	return bech32.Encode(hrp, append([]byte{0}, converted...))
}
