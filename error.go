// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feebump

import (
	"errors"
	"fmt"
)

// ErrorKind identifies a kind of error.  It is used to classify failures
// raised while building, signing, submitting and observing transactions so
// the orchestrators can decide whether to retry, skip or abort.
type ErrorKind int

// These constants are used to identify a specific ErrorKind.
const (
	// Unknown indicates a failure that could not be classified.
	Unknown ErrorKind = iota

	// InsufficientFunds indicates the selected or available outputs
	// cannot cover the requested outputs plus the required fee.
	InsufficientFunds

	// InvalidScript indicates an output or previous output script does
	// not match any recognized template (P2WPKH, P2TR or anchor).
	InvalidScript

	// MissingKey indicates no private key is available for an input that
	// must be signed.
	MissingKey

	// FeeTooLow indicates a transaction does not pay the fee required by
	// relay or replacement policy.
	FeeTooLow

	// ConflictingTransaction indicates a transaction spends an output that
	// is already spent by another transaction which it may not replace.
	ConflictingTransaction

	// NonStandard indicates a transaction violates standardness policy,
	// such as a disallowed sequence number or TRUC topology.
	NonStandard

	// ObservationTimeout indicates an expected mempool or chain condition
	// was not observed before the deadline.
	ObservationTimeout

	// RpcUnavailable indicates the node could not be reached at all.
	RpcUnavailable

	// Duplicate indicates the node already knows the submitted
	// transaction.  It is never surfaced as a failure.
	Duplicate

	// numErrorKinds is the maximum error kind number used in tests.
	numErrorKinds
)

// Map of ErrorKind values back to their constant names for pretty printing.
var errorKindStrings = map[ErrorKind]string{
	Unknown:                "Unknown",
	InsufficientFunds:      "InsufficientFunds",
	InvalidScript:          "InvalidScript",
	MissingKey:             "MissingKey",
	FeeTooLow:              "FeeTooLow",
	ConflictingTransaction: "ConflictingTransaction",
	NonStandard:            "NonStandard",
	ObservationTimeout:     "ObservationTimeout",
	RpcUnavailable:         "RpcUnavailable",
	Duplicate:              "Duplicate",
}

// String returns the ErrorKind as a human-readable name.
func (k ErrorKind) String() string {
	if s := errorKindStrings[k]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorKind (%d)", int(k))
}

// Error identifies a classified failure.  The caller can use errors.As to
// access the Kind field, or errors.Is against one of the Err* values below
// which compare by kind only.
type Error struct {
	Kind        ErrorKind // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error, may be nil
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err == nil {
		return e.Description
	}
	if e.Description == "" {
		return e.Err.Error()
	}
	return e.Description + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an Error of the same kind.
func (e Error) Is(target error) bool {
	var t Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Kind-only values usable with errors.Is.
var (
	ErrInsufficientFunds      = Error{Kind: InsufficientFunds}
	ErrInvalidScript          = Error{Kind: InvalidScript}
	ErrMissingKey             = Error{Kind: MissingKey}
	ErrFeeTooLow              = Error{Kind: FeeTooLow}
	ErrConflictingTransaction = Error{Kind: ConflictingTransaction}
	ErrNonStandard            = Error{Kind: NonStandard}
	ErrObservationTimeout     = Error{Kind: ObservationTimeout}
	ErrRpcUnavailable         = Error{Kind: RpcUnavailable}
	ErrDuplicate              = Error{Kind: Duplicate}
)

// NewError creates an Error given a kind and a description.
func NewError(k ErrorKind, desc string) Error {
	return Error{Kind: k, Description: desc}
}

// Errorf creates an Error given a kind and a format specifier.
func Errorf(k ErrorKind, format string, args ...interface{}) Error {
	return Error{Kind: k, Description: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and description.  A nil err yields nil.
func Wrap(k ErrorKind, desc string, err error) error {
	if err == nil {
		return nil
	}
	return Error{Kind: k, Description: desc, Err: err}
}

// KindOf returns the kind of the first Error found in err's chain, or
// Unknown when there is none.
func KindOf(err error) ErrorKind {
	var e Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsFatal reports whether err must stop a whole multi-strategy run rather
// than only the strategy that produced it.
func IsFatal(err error) bool {
	return KindOf(err) == RpcUnavailable
}
