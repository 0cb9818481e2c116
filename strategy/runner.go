// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/broadcast"
	"github.com/btcsuite/feebump/fees"
	"github.com/btcsuite/feebump/signer"
	"github.com/btcsuite/feebump/txbuilder"
	"github.com/btcsuite/feebump/utxo"
)

// State is a step of a strategy run.
type State uint8

const (
	StateSelectInputs State = iota
	StateBuildOriginal
	StateBroadcastOriginal
	StateConfirmStuck
	StateBuildAccelerant
	StateBroadcastAccelerant
	StateObserve
	StateReport
)

// Map of State values back to their constant names for pretty printing.
var stateStrings = map[State]string{
	StateSelectInputs:        "SelectInputs",
	StateBuildOriginal:       "BuildOriginal",
	StateBroadcastOriginal:   "BroadcastOriginal",
	StateConfirmStuck:        "ConfirmStuck",
	StateBuildAccelerant:     "BuildAccelerant",
	StateBroadcastAccelerant: "BroadcastAccelerant",
	StateObserve:             "Observe",
	StateReport:              "Report",
}

// String returns the State in human-readable form.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown State (%d)", uint8(s))
}

// Report is the outcome of one strategy run.  State is the last state
// reached; a run that completed ends in StateReport with a nil Err.
type Report struct {
	Strategy txbuilder.Strategy
	State    State
	Err      error

	// Funded is set when the wallet had to be funded before inputs could
	// be selected.
	Funded bool

	OriginalTxID    chainhash.Hash
	OriginalFee     btcutil.Amount
	OriginalFeeRate fees.SatPerKVByte

	AccelerantTxID    chainhash.Hash
	AccelerantFee     btcutil.Amount
	AccelerantFeeRate fees.SatPerKVByte

	// Observations are the final observations of the run.
	Observations []broadcast.Observation
}

// Succeeded reports whether the run completed.
func (r *Report) Succeeded() bool {
	return r.State == StateReport && r.Err == nil
}

// String returns a one line summary of the report.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: ", r.Strategy)
	if r.Succeeded() {
		b.WriteString("ok")
	} else {
		fmt.Fprintf(&b, "failed in %v: %v", r.State, r.Err)
	}
	if r.OriginalFee != 0 || r.OriginalTxID != (chainhash.Hash{}) {
		fmt.Fprintf(&b, ", original %v (%v, %v)", r.OriginalTxID,
			r.OriginalFee, r.OriginalFeeRate)
	}
	if r.AccelerantTxID != (chainhash.Hash{}) {
		fmt.Fprintf(&b, ", accelerant %v (%v, %v)", r.AccelerantTxID,
			r.AccelerantFee, r.AccelerantFeeRate)
	}
	for _, obs := range r.Observations {
		if obs.BlockHash != nil {
			fmt.Fprintf(&b, ", %v confirmed in %v", obs.TxID,
				obs.BlockHash)
		}
	}
	return b.String()
}

// Funder adds spendable outputs to the wallet paying addr.
type Funder interface {
	Fund(ctx context.Context, addr btcutil.Address) error
}

// Runner drives strategies through their states.
type Runner struct {
	env    Env
	funder Funder
}

// NewRunner returns a runner for env.  A nil funder disables funding: runs
// short of inputs fail with InsufficientFunds.
func NewRunner(env *Env, funder Funder) *Runner {
	return &Runner{env: *env, funder: funder}
}

// selectInputs picks n distinct wallet outputs of at least the minimum
// amount, largest first.
func (r *Runner) selectInputs(ctx context.Context, n int) ([]utxo.UnspentOutput,
	error) {

	c := r.env.Constraint
	if c.MinConf == 0 {
		c.MinConf = 1
	}
	if len(c.Classes) == 0 {
		c.Classes = []txscript.ScriptClass{
			txscript.GetScriptClass(r.env.Key.PkScript),
		}
	}
	candidates, err := r.env.Node.ListUnspent(ctx, c.MinConf)
	if err != nil {
		return nil, err
	}

	minAmount := r.env.MinInputAmount
	if minAmount <= 0 {
		minAmount = DefaultMinInputAmount
	}

	exclude := make(map[wire.OutPoint]struct{}, len(c.Exclude)+n)
	for op := range c.Exclude {
		exclude[op] = struct{}{}
	}
	c.Exclude = exclude
	c.MaxInputs = 1

	selected := make([]utxo.UnspentOutput, 0, n)
	for len(selected) < n {
		picked, _, err := utxo.Select(candidates, minAmount, c)
		if err != nil {
			return nil, feebump.Wrap(feebump.InsufficientFunds,
				fmt.Sprintf("need %d outputs of %v, found %d", n,
					minAmount, len(selected)), err)
		}
		selected = append(selected, picked[0])
		c.Exclude[picked[0].OutPoint()] = struct{}{}
	}
	return selected, nil
}

// Run takes s through every state and reports how far it got.  When input
// selection finds too few funds and a funder is set, the wallet is funded
// and selection retried once.
func (r *Runner) Run(ctx context.Context, s Strategy) *Report {
	report := &Report{Strategy: s.Kind()}
	env := r.env

	enter := func(state State) {
		report.State = state
		log.Infof("%v: entering %v", s.Kind(), state)
	}
	fail := func(err error) *Report {
		report.Err = err
		log.Errorf("%v: failed in %v: %v", s.Kind(), report.State, err)
		return report
	}

	enter(StateSelectInputs)
	inputs, err := r.selectInputs(ctx, s.InputCount())
	if feebump.KindOf(err) == feebump.InsufficientFunds && r.funder != nil {
		log.Infof("%v: %v, funding %v", s.Kind(), err, env.Key.Address)
		report.Funded = true
		if err := r.funder.Fund(ctx, env.Key.Address); err != nil {
			return fail(err)
		}
		inputs, err = r.selectInputs(ctx, s.InputCount())
	}
	if err != nil {
		return fail(err)
	}
	env.Inputs = inputs

	enter(StateBuildOriginal)
	original, err := s.BuildOriginal(ctx, &env)
	if err != nil {
		return fail(err)
	}
	report.OriginalTxID = original.TxID
	report.OriginalFee = original.Fee
	report.OriginalFeeRate = fees.RateOf(original.Fee, original.VSize)

	enter(StateBroadcastOriginal)
	if err := s.SubmitOriginal(ctx, &env, original); err != nil {
		return fail(err)
	}

	enter(StateConfirmStuck)
	if err := s.ConfirmStuck(ctx, &env, original); err != nil {
		return fail(err)
	}

	enter(StateBuildAccelerant)
	accelerant, err := s.BuildAccelerant(ctx, &env, original)
	if err != nil {
		return fail(err)
	}
	report.AccelerantTxID = accelerant.TxID
	report.AccelerantFee = accelerant.Fee
	report.AccelerantFeeRate = packageRate(s.Kind(), original, accelerant)

	enter(StateBroadcastAccelerant)
	if err := s.SubmitAccelerant(ctx, &env, original, accelerant); err != nil {
		return fail(err)
	}

	enter(StateObserve)
	observations, err := s.Expect(ctx, &env, original, accelerant)
	report.Observations = observations
	if err != nil {
		return fail(err)
	}

	enter(StateReport)
	log.Infof("%v", report)
	return report
}

// packageRate returns the rate the accelerant achieves: its own for a
// replacement, that of parent and child together otherwise.
func packageRate(kind txbuilder.Strategy, original,
	accelerant *signer.SignedTx) fees.SatPerKVByte {

	if kind == txbuilder.RBF {
		return fees.RateOf(accelerant.Fee, accelerant.VSize)
	}
	return fees.RateOf(original.Fee+accelerant.Fee,
		original.VSize+accelerant.VSize)
}

// RunAll runs the strategies in order.  It stops early when the node
// becomes unreachable since no later run could succeed.
func (r *Runner) RunAll(ctx context.Context, strategies ...Strategy) []*Report {
	reports := make([]*Report, 0, len(strategies))
	for _, s := range strategies {
		report := r.Run(ctx, s)
		reports = append(reports, report)

		if feebump.IsFatal(report.Err) {
			log.Errorf("Node unavailable, skipping %d remaining "+
				"strategies", len(strategies)-len(reports))
			break
		}
	}
	return reports
}
