// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feebump

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestErrorKindStringer tests the stringized output for the ErrorKind type.
func TestErrorKindStringer(t *testing.T) {
	tests := []struct {
		in   ErrorKind
		want string
	}{
		{Unknown, "Unknown"},
		{InsufficientFunds, "InsufficientFunds"},
		{InvalidScript, "InvalidScript"},
		{MissingKey, "MissingKey"},
		{FeeTooLow, "FeeTooLow"},
		{ConflictingTransaction, "ConflictingTransaction"},
		{NonStandard, "NonStandard"},
		{ObservationTimeout, "ObservationTimeout"},
		{RpcUnavailable, "RpcUnavailable"},
		{Duplicate, "Duplicate"},
		{0xffff, "Unknown ErrorKind (65535)"},
	}

	// Detect additional error kinds that don't have the stringer added.
	if len(tests)-1 != int(numErrorKinds) {
		t.Errorf("It appears an error kind was added without adding an " +
			"associated stringer test")
	}

	for i, test := range tests {
		require.Equalf(t, test.want, test.in.String(), "test #%d", i)
	}
}

// TestErrorMatching ensures kinds survive wrapping and compare by kind only.
func TestErrorMatching(t *testing.T) {
	base := Errorf(FeeTooLow, "fee %d below %d", 1000, 1200)
	wrapped := fmt.Errorf("build replacement: %w", base)

	require.True(t, errors.Is(wrapped, ErrFeeTooLow))
	require.False(t, errors.Is(wrapped, ErrNonStandard))
	require.Equal(t, FeeTooLow, KindOf(wrapped))
	require.Equal(t, Unknown, KindOf(errors.New("plain")))
	require.Equal(t, "fee 1000 below 1200", base.Error())

	cause := errors.New("connection refused")
	err := Wrap(RpcUnavailable, "sendrawtransaction", cause)
	require.ErrorIs(t, err, cause)
	require.True(t, IsFatal(err))
	require.Equal(t, "sendrawtransaction: connection refused", err.Error())
	require.NoError(t, Wrap(Unknown, "nothing", nil))
}
