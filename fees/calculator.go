// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fees

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/txbuilder"
)

// Fee policy violation errors.
var (
	// ErrBelowMinRelayFee indicates a transaction pays less than the
	// minimum relay fee for its size.
	ErrBelowMinRelayFee = errors.New("min relay fee not met")

	// ErrInsufficientFeeRate indicates a replacement does not pay a higher
	// fee rate than the transaction it replaces.
	ErrInsufficientFeeRate = errors.New("insufficient fee rate for replacement")

	// ErrInsufficientAbsoluteFee indicates a replacement does not pay the
	// replaced fee plus the incremental relay fee.
	ErrInsufficientAbsoluteFee = errors.New("insufficient absolute fee for replacement")

	// ErrPackageFeeRate indicates a child does not bring the package fee
	// rate up to the target.
	ErrPackageFeeRate = errors.New("package fee rate below target")
)

const (
	// DefaultMinRelayFee is the default minimum relay fee of bitcoind.
	DefaultMinRelayFee SatPerKVByte = 1000

	// DefaultIncrementalRelayFee is the default incremental relay fee of
	// bitcoind.
	DefaultIncrementalRelayFee SatPerKVByte = 1000

	// DefaultTargetFeeRate is the package fee rate accelerants aim for.
	DefaultTargetFeeRate SatPerKVByte = 20_000
)

// SatPerKVByte is a fee rate in satoshis per 1000 virtual bytes.
type SatPerKVByte btcutil.Amount

// SatPerVByte returns the rate for a whole number of satoshis per vbyte.
func SatPerVByte(rate int64) SatPerKVByte {
	return SatPerKVByte(rate * 1000)
}

// FromBTCPerKVByte converts a rate as reported by bitcoind RPCs.
func FromBTCPerKVByte(rate float64) (SatPerKVByte, error) {
	amt, err := btcutil.NewAmount(rate)
	if err != nil {
		return 0, err
	}
	return SatPerKVByte(amt), nil
}

// RateOf returns the fee rate of a fee paid for vsize virtual bytes.
func RateOf(fee btcutil.Amount, vsize int64) SatPerKVByte {
	if vsize <= 0 {
		return 0
	}
	return SatPerKVByte(int64(fee) * 1000 / vsize)
}

// FeeForVSize returns the fee due at this rate for vsize, rounded up.
func (r SatPerKVByte) FeeForVSize(vsize int64) btcutil.Amount {
	return btcutil.Amount(ceilDiv(int64(r)*vsize, 1000))
}

// String returns the rate in sat/vB.
func (r SatPerKVByte) String() string {
	return fmt.Sprintf("%.3f sat/vB", float64(r)/1000)
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// calcMinRequiredTxRelayFee returns the minimum fee a transaction of the
// passed virtual size must pay to be relayed at rate.  Like the node, the
// scaled fee is rounded up to the next satoshi.
func calcMinRequiredTxRelayFee(vsize int64, rate SatPerKVByte) btcutil.Amount {
	minFee := ceilDiv(vsize*int64(rate), 1000)

	// Set the minimum fee to the maximum possible value if the calculated
	// fee is not in the valid range for monetary amounts.
	if minFee < 0 || minFee > btcutil.MaxSatoshi {
		minFee = btcutil.MaxSatoshi
	}

	return btcutil.Amount(minFee)
}

// VirtualSize returns the virtual size of tx including witness data.
func VirtualSize(tx *wire.MsgTx) int64 {
	return mempool.GetTxVirtualSize(btcutil.NewTx(tx))
}

// Policy holds the relay policy constants fees are computed against.
type Policy struct {
	// MinRelayFee is the node's minimum relay fee.
	MinRelayFee SatPerKVByte

	// IncrementalRelayFee is the rate a replacement adds on top of the
	// fees it replaces.
	IncrementalRelayFee SatPerKVByte

	// TargetFeeRate is the package rate accelerants aim for.
	TargetFeeRate SatPerKVByte
}

// DefaultPolicy returns the policy of a default configured bitcoind.
func DefaultPolicy() Policy {
	return Policy{
		MinRelayFee:         DefaultMinRelayFee,
		IncrementalRelayFee: DefaultIncrementalRelayFee,
		TargetFeeRate:       DefaultTargetFeeRate,
	}
}

// RelayFeeSource reports the relay fee policy of a node.
type RelayFeeSource interface {
	// RelayFees returns the minimum and incremental relay fees in
	// satoshis per kilo-vbyte.
	RelayFees(ctx context.Context) (btcutil.Amount, btcutil.Amount, error)
}

// PolicyFromNode returns a policy using the node's relay fees and the given
// target rate.  The node's values replace the defaults so the fees computed
// match what the node enforces.
func PolicyFromNode(ctx context.Context, src RelayFeeSource,
	target SatPerKVByte) (Policy, error) {

	minRelay, incremental, err := src.RelayFees(ctx)
	if err != nil {
		return Policy{}, err
	}

	policy := Policy{
		MinRelayFee:         SatPerKVByte(minRelay),
		IncrementalRelayFee: SatPerKVByte(incremental),
		TargetFeeRate:       target,
	}
	if policy.IncrementalRelayFee == 0 {
		policy.IncrementalRelayFee = DefaultIncrementalRelayFee
	}
	if policy.TargetFeeRate < policy.MinRelayFee {
		policy.TargetFeeRate = policy.MinRelayFee
	}

	log.Infof("Using relay policy: min relay %v, incremental %v, "+
		"target %v", policy.MinRelayFee, policy.IncrementalRelayFee,
		policy.TargetFeeRate)

	return policy, nil
}

// Prior describes the transaction an accelerant builds on: the replaced
// transaction for RBF, the unconfirmed parent for CPFP and P2A.
type Prior struct {
	Fee   btcutil.Amount
	VSize int64
}

// FeeRequirement is the minimum a transaction must pay.  MinFeeRate is the
// rate the transaction, or for child accelerants its package, must reach.
type FeeRequirement struct {
	MinFee     btcutil.Amount
	MinFeeRate SatPerKVByte
}

// Calculator computes fee requirements against a relay policy.
type Calculator struct {
	policy Policy
}

// NewCalculator returns a calculator for the given policy.
func NewCalculator(policy Policy) *Calculator {
	return &Calculator{policy: policy}
}

// Policy returns the policy of the calculator.
func (c *Calculator) Policy() Policy {
	return c.policy
}

// Required returns the fee requirement of a transaction of vsize virtual
// bytes built for the given strategy and role.
func (c *Calculator) Required(vsize int64, s txbuilder.Strategy,
	r txbuilder.Role, prior Prior) FeeRequirement {

	minRelay := calcMinRequiredTxRelayFee(vsize, c.policy.MinRelayFee)

	switch {
	// The anchor parent is ephemeral dust and must not pay anything.
	case s == txbuilder.P2A && r == txbuilder.Original:
		return FeeRequirement{}

	case r == txbuilder.Original:
		return FeeRequirement{
			MinFee:     minRelay,
			MinFeeRate: c.policy.MinRelayFee,
		}

	case s == txbuilder.RBF:
		// Rule 3: strictly higher fee rate than the replaced tx.
		priorRate := RateOf(prior.Fee, prior.VSize)
		minRate := priorRate + 1
		if minRate < c.policy.MinRelayFee {
			minRate = c.policy.MinRelayFee
		}
		minFee := minRate.FeeForVSize(vsize)

		// Rule 4: pay for the replaced tx plus its own bandwidth.
		incremental := calcMinRequiredTxRelayFee(
			vsize, c.policy.IncrementalRelayFee,
		)
		if abs := prior.Fee + incremental; abs > minFee {
			minFee = abs
		}
		if minRelay > minFee {
			minFee = minRelay
		}
		return FeeRequirement{MinFee: minFee, MinFeeRate: minRate}

	default:
		packageFee := c.policy.TargetFeeRate.FeeForVSize(
			prior.VSize + vsize,
		)
		minFee := packageFee - prior.Fee
		if minRelay > minFee {
			minFee = minRelay
		}
		return FeeRequirement{
			MinFee:     minFee,
			MinFeeRate: c.policy.TargetFeeRate,
		}
	}
}

// Check verifies that tx paying fee meets the requirement for the given
// strategy and role.  Violations are FeeTooLow errors wrapping one of the
// policy errors above.
func (c *Calculator) Check(tx *wire.MsgTx, fee btcutil.Amount,
	s txbuilder.Strategy, r txbuilder.Role, prior Prior) error {

	vsize := VirtualSize(tx)
	req := c.Required(vsize, s, r, prior)
	txHash := tx.TxHash()

	log.Debugf("Fee check %v %v %v: fee %v (%v) at %d vbytes, "+
		"requires %v (%v)", s, r, txHash, fee, RateOf(fee, vsize),
		vsize, req.MinFee, req.MinFeeRate)

	if fee >= req.MinFee {
		return nil
	}

	var cause error
	switch {
	case r == txbuilder.Original:
		cause = ErrBelowMinRelayFee

	case s == txbuilder.RBF:
		txFeeRate := RateOf(fee, vsize)
		priorRate := RateOf(prior.Fee, prior.VSize)
		if txFeeRate <= priorRate {
			return feebump.Wrap(feebump.FeeTooLow, fmt.Sprintf(
				"replacement %v fee rate %v <= replaced fee rate %v",
				txHash, txFeeRate, priorRate),
				ErrInsufficientFeeRate)
		}
		if txFeeRate < c.policy.MinRelayFee {
			cause = ErrBelowMinRelayFee
			break
		}
		cause = ErrInsufficientAbsoluteFee

	default:
		cause = ErrPackageFeeRate
		if fee < calcMinRequiredTxRelayFee(vsize, c.policy.MinRelayFee) {
			cause = ErrBelowMinRelayFee
		}
	}

	return feebump.Wrap(feebump.FeeTooLow, fmt.Sprintf(
		"%v %v tx %v pays %v, requires %v", s, r, txHash, fee,
		req.MinFee), cause)
}
