// Copyright (c) 2025 The zeldhash-miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miner

import (
	"errors"
	"fmt"

	"github.com/ouziel-slama/zeldhash-miner/addresses"
	"github.com/ouziel-slama/zeldhash-miner/fees"
	"github.com/ouziel-slama/zeldhash-miner/mining"
	"github.com/ouziel-slama/zeldhash-miner/plan"
)

// ErrorCode is the stable error taxonomy shared with the host bindings.
type ErrorCode string

// Error codes.
const (
	CodeInvalidAddress         ErrorCode = "invalid_address"
	CodeUnsupportedAddressType ErrorCode = "unsupported_address_type"
	CodeNetworkMismatch        ErrorCode = "network_mismatch"
	CodeInsufficientFunds      ErrorCode = "insufficient_funds"
	CodeDustOutput             ErrorCode = "dust_output"
	CodeNoChangeOutput         ErrorCode = "no_change_output"
	CodeMultipleChangeOutputs  ErrorCode = "multiple_change_outputs"
	CodeInvalidInput           ErrorCode = "invalid_input"
	CodeWorkerError            ErrorCode = "worker_error"
	CodeMiningAborted          ErrorCode = "mining_aborted"
	CodeNoMatchingNonce        ErrorCode = "no_matching_nonce"
)

// Error is the facade error type: a stable code plus a human-readable
// message. Attempts carries the hashes performed before an abort so
// progress telemetry survives the error boundary.
type Error struct {
	Code     ErrorCode
	Message  string
	Attempts uint64
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// mapPlanError translates core package errors into the facade taxonomy.
func mapPlanError(err error) *Error {
	var facadeErr *Error
	switch {
	case errors.As(err, &facadeErr):
		return facadeErr
	case errors.Is(err, addresses.ErrUnsupportedAddressType),
		errors.Is(err, addresses.ErrUnsupportedWitnessVersion):
		return newError(CodeUnsupportedAddressType, err.Error())
	case errors.Is(err, addresses.ErrNetworkMismatch):
		return newError(CodeNetworkMismatch, err.Error())
	case errors.Is(err, addresses.ErrInvalidAddress),
		errors.Is(err, addresses.ErrInvalidProgramLength):
		return newError(CodeInvalidAddress, err.Error())
	case errors.Is(err, fees.ErrInsufficientFunds):
		return newError(CodeInsufficientFunds, err.Error())
	case errors.Is(err, fees.ErrDustOutput):
		return newError(CodeDustOutput, err.Error())
	case errors.Is(err, plan.ErrNoChangeOutput):
		return newError(CodeNoChangeOutput, err.Error())
	case errors.Is(err, plan.ErrMultipleChangeOutputs):
		return newError(CodeMultipleChangeOutputs, err.Error())
	case errors.Is(err, mining.ErrMiningAborted):
		return newError(CodeMiningAborted, err.Error())
	default:
		return newError(CodeInvalidInput, err.Error())
	}
}
