// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package strategy

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/broadcast"
	"github.com/btcsuite/feebump/fees"
	"github.com/btcsuite/feebump/node/nodetest"
	"github.com/btcsuite/feebump/signer"
	"github.com/btcsuite/feebump/txbuilder"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// mockFunder is a Funder recording its calls.
type mockFunder struct {
	mock.Mock
}

func (m *mockFunder) Fund(ctx context.Context, addr btcutil.Address) error {
	args := m.Called(ctx, addr)
	return args.Error(0)
}

// newEnv returns an environment on a fake node watching a fresh key.
func newEnv(t require.TestingT, target fees.SatPerKVByte,
	opts ...nodetest.Option) (*Env, *nodetest.FakeNode) {

	ctx := context.Background()
	params := &chaincfg.RegressionNetParams
	n := nodetest.New(params, opts...)

	ring := signer.NewKeyRing(params)
	key, err := ring.Generate(signer.KeyP2WPKH)
	require.NoError(t, err)
	require.NoError(t, n.ImportAddress(ctx, key.Address))

	policy, err := fees.PolicyFromNode(ctx, n, target)
	require.NoError(t, err)

	return &Env{
		Node:           n,
		Keys:           ring,
		Key:            key,
		Calculator:     fees.NewCalculator(policy),
		Broadcaster:    broadcast.NewBroadcaster(n),
		Monitor:        broadcast.NewMonitor(n, 5*time.Millisecond, 0),
		ObserveTimeout: 2 * time.Second,
	}, n
}

// TestRunStrategies ensures every strategy runs to completion and confirms
// its accelerant at no less than the target rate.
func TestRunStrategies(t *testing.T) {
	t.Parallel()

	for _, s := range All() {
		s := s
		t.Run(s.Kind().String(), func(t *testing.T) {
			t.Parallel()

			target := fees.SatPerVByte(20)
			env, n := newEnv(t, target)
			for i := 0; i < s.InputCount(); i++ {
				n.AddUTXO(env.Key.PkScript, btcutil.SatoshiPerBitcoin)
			}

			report := NewRunner(env, nil).Run(context.Background(), s)
			require.NoError(t, report.Err)
			require.True(t, report.Succeeded())
			require.False(t, report.Funded)
			require.Equal(t, s.Kind(), report.Strategy)
			require.Equal(t, StateReport, report.State)
			require.GreaterOrEqual(t, report.AccelerantFeeRate, target)
			require.Less(t, report.OriginalFeeRate, target)
			require.Empty(t, n.Mempool())

			switch s.Kind() {
			case txbuilder.RBF:
				require.Len(t, report.Observations, 2)
				require.Equal(t, report.OriginalTxID,
					report.Observations[0].TxID)
				require.Nil(t, report.Observations[0].BlockHash)
				require.Equal(t, report.AccelerantTxID,
					report.Observations[1].TxID)
				require.NotNil(t, report.Observations[1].BlockHash)

			case txbuilder.P2A:
				require.Zero(t, report.OriginalFee)
				require.Equal(t, 1, n.Calls("submitpackage"))
				fallthrough

			case txbuilder.CPFP:
				require.Len(t, report.Observations, 2)
				require.Equal(t, report.OriginalTxID,
					report.Observations[0].TxID)
				require.Equal(t, report.AccelerantTxID,
					report.Observations[1].TxID)
				require.Equal(t, report.Observations[0].BlockHash,
					report.Observations[1].BlockHash)
			}

			require.Contains(t, report.String(), "ok")
		})
	}
}

// TestRunFractionalRelayFees ensures every strategy succeeds when the node
// relays at rates that do not divide evenly into whole satoshis per vbyte
// and originals pay exactly the minimum.
func TestRunFractionalRelayFees(t *testing.T) {
	t.Parallel()

	for _, relay := range []btcutil.Amount{100, 1234} {
		for _, s := range All() {
			relay, s := relay, s
			name := fmt.Sprintf("%v at %d", s.Kind(), relay)
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				env, n := newEnv(t, fees.DefaultTargetFeeRate,
					nodetest.WithRelayFees(relay, relay))
				env.StuckFeeRate = fees.SatPerKVByte(relay)
				for i := 0; i < s.InputCount(); i++ {
					n.AddUTXO(env.Key.PkScript,
						btcutil.SatoshiPerBitcoin)
				}

				report := NewRunner(env, nil).Run(
					context.Background(), s,
				)
				require.NoError(t, report.Err)
				require.True(t, report.Succeeded())
				require.Empty(t, n.Mempool())
			})
		}
	}
}

// TestRunSelectsKeyClass ensures only outputs of the signing key's script
// class are selected, even when a larger output of another class is
// watched.
func TestRunSelectsKeyClass(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env, n := newEnv(t, fees.DefaultTargetFeeRate)

	other := signer.NewKeyRing(&chaincfg.RegressionNetParams)
	taproot, err := other.Generate(signer.KeyP2TR)
	require.NoError(t, err)
	require.NoError(t, n.ImportAddress(ctx, taproot.Address))
	n.AddUTXO(taproot.PkScript, 2*btcutil.SatoshiPerBitcoin)
	n.AddUTXO(env.Key.PkScript, btcutil.SatoshiPerBitcoin)

	report := NewRunner(env, nil).Run(ctx, &RBF{})
	require.NoError(t, report.Err)
	require.True(t, report.Succeeded())

	unspent, err := n.ListUnspent(ctx, 1)
	require.NoError(t, err)
	var taprootLeft bool
	for _, u := range unspent {
		if bytes.Equal(u.PkScript, taproot.PkScript) {
			require.Equal(t, btcutil.Amount(2*btcutil.SatoshiPerBitcoin),
				u.Amount)
			taprootLeft = true
		}
	}
	require.True(t, taprootLeft)
}

// TestRBFRequiresSignaling ensures a replacement is only built for an
// original signaling replaceability.
func TestRBFRequiresSignaling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sequence uint32
		wantErr  error
	}{{
		name:     "replaceable",
		sequence: txbuilder.SequenceReplaceable,
	}, {
		name:     "locktime",
		sequence: txbuilder.SequenceLockTime,
	}, {
		name:     "final",
		sequence: txbuilder.SequenceFinal,
		wantErr:  feebump.ErrNonStandard,
	}}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			env, n := newEnv(t, fees.DefaultTargetFeeRate)
			n.AddUTXO(env.Key.PkScript, btcutil.SatoshiPerBitcoin)

			inputs, err := NewRunner(env, nil).selectInputs(ctx, 1)
			require.NoError(t, err)
			env.Inputs = inputs

			s := &RBF{}
			original, err := s.BuildOriginal(ctx, env)
			require.NoError(t, err)
			original.Tx.TxIn[0].Sequence = test.sequence

			accelerant, err := s.BuildAccelerant(ctx, env, original)
			if test.wantErr != nil {
				require.ErrorIs(t, err, test.wantErr)
				require.Nil(t, accelerant)
				return
			}
			require.NoError(t, err)
			require.Greater(t, accelerant.Fee, original.Fee)
		})
	}
}

// TestRunFunds ensures a wallet without funds is funded once and the run
// then proceeds.
func TestRunFunds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env, n := newEnv(t, fees.DefaultTargetFeeRate)

	funder := &mockFunder{}
	funder.On("Fund", mock.Anything, env.Key.Address).Return(nil).
		Run(func(mock.Arguments) {
			miner := &MiningFunder{Node: n}
			require.NoError(t, miner.Fund(ctx, env.Key.Address))
		}).Once()

	report := NewRunner(env, funder).Run(ctx, &RBF{})
	require.NoError(t, report.Err)
	require.True(t, report.Funded)
	funder.AssertExpectations(t)
}

// TestRunFundsOnce ensures selection is retried only once after funding.
func TestRunFundsOnce(t *testing.T) {
	t.Parallel()

	env, n := newEnv(t, fees.DefaultTargetFeeRate)

	funder := &mockFunder{}
	funder.On("Fund", mock.Anything, env.Key.Address).Return(nil)

	report := NewRunner(env, funder).Run(context.Background(), &P2A{})
	require.ErrorIs(t, report.Err, feebump.ErrInsufficientFunds)
	require.Equal(t, StateSelectInputs, report.State)
	require.True(t, report.Funded)
	funder.AssertNumberOfCalls(t, "Fund", 1)
	require.Equal(t, 2, n.Calls("listunspent"))

	// Without a funder the shortage is reported as is.
	report = NewRunner(env, nil).Run(context.Background(), &P2A{})
	require.ErrorIs(t, report.Err, feebump.ErrInsufficientFunds)
	require.False(t, report.Funded)
}

// TestRunStuckBelowRelay ensures an original below the minimum relay fee is
// refused before it reaches the node.
func TestRunStuckBelowRelay(t *testing.T) {
	t.Parallel()

	env, n := newEnv(t, fees.DefaultTargetFeeRate)
	env.StuckFeeRate = 500
	n.AddUTXO(env.Key.PkScript, btcutil.SatoshiPerBitcoin)

	for _, s := range []Strategy{&RBF{}, &CPFP{}} {
		report := NewRunner(env, nil).Run(context.Background(), s)
		require.ErrorIs(t, report.Err, feebump.ErrFeeTooLow)
		require.ErrorIs(t, report.Err, fees.ErrBelowMinRelayFee)
		require.Equal(t, StateBuildOriginal, report.State)
		require.Contains(t, report.String(), "failed in BuildOriginal")
	}
	require.Zero(t, n.Calls("sendrawtransaction"))
}

// TestRunAllStopsWhenFatal ensures an unreachable node ends the sequence.
func TestRunAllStopsWhenFatal(t *testing.T) {
	t.Parallel()

	env, n := newEnv(t, fees.DefaultTargetFeeRate)
	n.FailNext("listunspent", feebump.NewError(feebump.RpcUnavailable,
		"connection refused"))

	reports := NewRunner(env, nil).RunAll(context.Background(), All()...)
	require.Len(t, reports, 1)
	require.True(t, feebump.IsFatal(reports[0].Err))

	// Other failures do not stop the sequence.
	reports = NewRunner(env, nil).RunAll(context.Background(), All()...)
	require.Len(t, reports, 3)
	for _, report := range reports {
		require.ErrorIs(t, report.Err, feebump.ErrInsufficientFunds)
	}
}

// TestRunMineFailure ensures a failure to mine fails the observation step
// and leaves the package in the mempool.
func TestRunMineFailure(t *testing.T) {
	t.Parallel()

	env, n := newEnv(t, fees.DefaultTargetFeeRate)
	n.AddUTXO(env.Key.PkScript, btcutil.SatoshiPerBitcoin)
	n.FailNext("generatetoaddress", feebump.NewError(feebump.Unknown,
		"mining disabled"))

	report := NewRunner(env, nil).Run(context.Background(), &CPFP{})
	require.Error(t, report.Err)
	require.Equal(t, StateObserve, report.State)
	require.Len(t, n.Mempool(), 2)
}

// TestNew ensures every strategy kind maps to its implementation.
func TestNew(t *testing.T) {
	t.Parallel()

	for _, kind := range []txbuilder.Strategy{
		txbuilder.RBF, txbuilder.CPFP, txbuilder.P2A,
	} {
		s, err := New(kind)
		require.NoError(t, err)
		require.Equal(t, kind, s.Kind())
	}

	_, err := New(txbuilder.Strategy(42))
	require.Error(t, err)
}

// TestBootstrap ensures the wallet is only funded while its balance is low.
func TestBootstrap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env, n := newEnv(t, fees.DefaultTargetFeeRate)
	miner := &MiningFunder{Node: n}

	funder := &mockFunder{}
	funder.On("Fund", mock.Anything, env.Key.Address).Return(nil).
		Run(func(mock.Arguments) {
			require.NoError(t, miner.Fund(ctx, env.Key.Address))
		}).Once()

	err := Bootstrap(ctx, n, funder, env.Key.Address, DefaultMinBalance)
	require.NoError(t, err)
	funder.AssertExpectations(t)

	trusted, _, immature, err := n.Balance(ctx)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(50*btcutil.SatoshiPerBitcoin), trusted)
	require.Equal(t, btcutil.Amount(100*50*btcutil.SatoshiPerBitcoin),
		immature)

	// Above the threshold nothing is mined.
	err = Bootstrap(ctx, n, funder, env.Key.Address, trusted)
	require.NoError(t, err)
	funder.AssertNumberOfCalls(t, "Fund", 1)
	require.Equal(t, 2, n.Calls("loadwallet"))
}

// TestAccelerantMeetsTarget checks over random target rates that package
// accelerants lift their package to at least the target.
func TestAccelerantMeetsTarget(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		target := fees.SatPerVByte(rapid.Int64Range(1, 500).Draw(rt,
			"target"))
		kind := rapid.SampledFrom([]txbuilder.Strategy{
			txbuilder.CPFP, txbuilder.P2A,
		}).Draw(rt, "strategy")

		env, n := newEnv(rt, target)
		s, err := New(kind)
		require.NoError(rt, err)
		for i := 0; i < s.InputCount(); i++ {
			n.AddUTXO(env.Key.PkScript, btcutil.SatoshiPerBitcoin)
		}

		report := NewRunner(env, nil).Run(context.Background(), s)
		require.NoError(rt, report.Err)
		require.GreaterOrEqual(rt, report.AccelerantFeeRate, target)
	})
}
