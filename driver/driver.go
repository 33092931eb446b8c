// Package driver implements C3: it owns locked/valid value bookkeeping,
// checks proposals against proposer(h, r), combines a Proposal with its
// matching application ProposedValue confirmation, and serializes the
// result into statemachine.Events fed to the pure round state machine one
// at a time (spec.md §4.3). It is the only layer that understands "what a
// proposal means" — the machine only ever sees abstract events.
package driver

import (
	"errors"

	"github.com/bft-core/engine/message"
	"github.com/bft-core/engine/statemachine"
	"github.com/bft-core/engine/types"
	"github.com/bft-core/engine/votekeeper"
)

// maxProposalsPerRound bounds how many distinct proposals from the
// designated proposer a Driver retains for one (h, r), per spec.md §4.3
// "Multiple proposals ... accepted and retained (up to a small
// implementation-defined cap)". Decided per DESIGN.md's O3 entry.
const maxProposalsPerRound = 4

// ErrNotFromProposer mirrors the teacher's errNotFromProposer sentinel
// (consensus/tendermint/core/handler.go): a proposal whose sender isn't
// proposer(h, r) is dropped rather than silently ignored, so the caller can
// log/count it distinctly from a malformed message.
var ErrNotFromProposer = errors.New("driver: proposal not from designated proposer")

// ErrInvalidValidRound is B2 (spec.md §8): a proposal's vr must be < its own
// round, and no lower than NoRound. A proposer advertising vr >= round or
// vr < -1 is malformed and rejected outright, never buffered as PolkaPrevious.
var ErrInvalidValidRound = errors.New("driver: proposal valid round out of bounds")

// candidateProposal is one retained proposal for a round, paired with the
// application's validity confirmation once it arrives.
type candidateProposal struct {
	proposal *message.Proposal
	// validated is true once ProposedValue has confirmed (or rejected) it.
	validated bool
	valid     bool
}

// roundState holds per-round driver bookkeeping that does not belong in the
// pure statemachine.State: retained proposals and the machine state itself.
type roundState struct {
	machine    statemachine.State
	candidates []candidateProposal
	// polkaPrevious buffers a proposal with vr >= 0 until its polka at vr
	// arrives or the round changes (§4.3 "retaining the proposal until the
	// polka arrives").
	polkaPrevious *candidateProposal
}

// Driver is constructed once per height and discarded at the next
// StartHeight; locked/valid value persist across round changes within that
// height (§4.3), unlike Step, which the machine resets every round.
type Driver struct {
	height types.Height
	set    *types.ValidatorSet
	self   types.Address
	vk     *votekeeper.Keeper

	round types.Round
	round2state map[types.Round]*roundState

	lockedValue types.ValueID
	lockedRound types.Round
	validValue  types.ValueID
	validRound  types.Round

	decided bool

	equivocations []EquivocatingProposer
}

// EquivocatingProposer records a second, distinct proposal observed from
// proposer(h, r), whether or not the per-round retention cap is already
// reached (spec.md §4.3 "An equivocating proposer is recorded").
type EquivocatingProposer struct {
	Height   types.Height
	Round    types.Round
	Proposer types.Address
	First    types.ValueID
	Second   types.ValueID
}

// New begins a fresh height with no locked or valid value.
func New(height types.Height, set *types.ValidatorSet, self types.Address, vk *votekeeper.Keeper) *Driver {
	return &Driver{
		height:      height,
		set:         set,
		self:        self,
		vk:          vk,
		round2state: map[types.Round]*roundState{},
		lockedRound: types.NoRound,
		validRound:  types.NoRound,
	}
}

func (d *Driver) roundStateFor(r types.Round) *roundState {
	rs, ok := d.round2state[r]
	if !ok {
		rs = &roundState{machine: statemachine.State{Round: r, Step: types.StepUnstarted}}
		d.round2state[r] = rs
	}
	return rs
}

// apply runs one event through the machine for round r and records the
// resulting state.
func (d *Driver) apply(r types.Round, ev statemachine.Event) []statemachine.Action {
	rs := d.roundStateFor(r)
	ns, actions := statemachine.Apply(rs.machine, ev)
	if ns.Round != r {
		// SkipRound / the precommit timeout advanced the machine into a new
		// round; that round gets its own fresh roundState rather than
		// inheriting r's candidates/polkaPrevious buffer.
		d.roundStateFor(ns.Round).machine = ns
	} else {
		rs.machine = ns
	}
	d.round = ns.Round
	return actions
}

// StartRound begins round r. If self is proposer(h, r), it either requests
// a fresh value (valid_value == ⊥) or signals the caller to re-propose
// (valid_value, valid_round) — spec.md §4.3's proposer value-selection rule.
// The caller (core kernel) is responsible for turning ActionRequestValue
// into the right GetValue/RestreamProposal effect by calling Driver.ValueToPropose.
func (d *Driver) StartRound(r types.Round) []statemachine.Action {
	prop, ok := types.Proposer(d.set, d.height, r)
	isSelf := ok && prop.Address == d.self
	return d.apply(r, statemachine.Event{Kind: statemachine.EvNewRound, Round: r, Proposer: prop.Address, IsSelf: isSelf})
}

// ValueToPropose reports what self should propose in the current round, per §4.3: if
// valid_value != ⊥, re-propose it at valid_round; otherwise the caller must
// request a fresh value from the application.
func (d *Driver) ValueToPropose() (value types.ValueID, validRound types.Round, reuse bool) {
	if d.validValue != types.NilValue {
		return d.validValue, d.validRound, true
	}
	return types.NilValue, types.NoRound, false
}

// ReceiveProposal handles a signed Proposal from the network. It enforces
// the proposer check (ErrNotFromProposer), records equivocation if a
// second, distinct value arrives from the same proposer (whether or not the
// cap is reached), retains the proposal as a candidate while fewer than
// maxProposalsPerRound are held, and — if the application has already
// confirmed its validity via ReceiveProposedValue, or it can be combined
// immediately — drives the machine. For vr >= 0 it consults the vote keeper
// for a polka at (h, vr, id(v)); absent that, the proposal is buffered and
// EvPolkaPrevious is delivered by a later PollPolkaPrevious call once the
// polka shows up.
func (d *Driver) ReceiveProposal(p *message.Proposal) ([]statemachine.Action, error) {
	prop, ok := types.Proposer(d.set, p.Height, p.Round)
	if !ok || prop.Address != p.Proposer {
		return nil, ErrNotFromProposer
	}
	if p.ValidRound >= p.Round || p.ValidRound < types.NoRound {
		return nil, ErrInvalidValidRound
	}

	rs := d.roundStateFor(p.Round)
	for i := range rs.candidates {
		if rs.candidates[i].proposal.Proposer == p.Proposer && rs.candidates[i].proposal.Value != p.Value {
			d.equivocations = append(d.equivocations, EquivocatingProposer{
				Height: p.Height, Round: p.Round, Proposer: p.Proposer,
				First: rs.candidates[i].proposal.Value, Second: p.Value,
			})
		}
	}
	if len(rs.candidates) >= maxProposalsPerRound {
		return nil, nil
	}
	rs.candidates = append(rs.candidates, candidateProposal{proposal: p})

	if p.ValidRound == types.NoRound {
		return nil, nil // awaits ReceiveProposedValue to confirm validity (§4.3 "buffering single inputs")
	}

	// vr >= 0: this proposal re-proposes a value locked at an earlier
	// round. Check whether a polka at (h, vr, id(v)) already exists.
	if d.vk.ThresholdFor(p.Height, p.ValidRound, votekeeper.Prevote, &p.Value) {
		return d.apply(p.Round, statemachine.Event{
			Kind: statemachine.EvPolkaPrevious, Round: p.Round,
			Value: p.Value, ValidRound: p.ValidRound,
			Valid: d.previousProposalAllowed(p.Value, p.ValidRound, d.candidateValid(rs, p)),
		}), nil
	}
	rs.polkaPrevious = &candidateProposal{proposal: p}
	return nil, nil
}

// candidateValid reports whether p has already been confirmed valid by the
// application; it is false until ReceiveProposedValue records a valid
// verdict for p.
func (d *Driver) candidateValid(rs *roundState, p *message.Proposal) bool {
	for i := range rs.candidates {
		if rs.candidates[i].proposal == p {
			return rs.candidates[i].validated && rs.candidates[i].valid
		}
	}
	return false
}

// freshProposalAllowed is SP5/I2's prevote guard for a freshly built value
// (vr == -1, §4.2's "Proposal(v, -1, valid)" row): the prevote may be for v
// only if the application confirmed it valid AND the process either holds
// no lock or is locked on this same value.
func (d *Driver) freshProposalAllowed(value types.ValueID, valid bool) bool {
	return valid && (d.lockedRound == types.NoRound || d.lockedValue == value)
}

// previousProposalAllowed is SP5/I2's prevote guard for a re-proposed value
// with an earlier POL round vr (§4.2's PolkaPrevious row): the prevote may
// be for v only if the application confirmed it valid AND the process's
// lock (if any) was taken no later than vr, or is already on this value.
func (d *Driver) previousProposalAllowed(value types.ValueID, vr types.Round, valid bool) bool {
	return valid && (d.lockedRound <= vr || d.lockedValue == value)
}

// ReceiveProposedValue delivers the application's validity verdict for a
// previously-seen proposal value (spec.md §4.3 "combining ... to yield a
// full, validated proposal"). It drives the Propose->Prevote transition for
// a vr == -1 proposal; for a vr >= 0 proposal it only records the verdict,
// and ReceiveProposal/PollPolkaPrevious complete that proposal.
func (d *Driver) ReceiveProposedValue(height types.Height, round types.Round, value types.ValueID, valid bool) []statemachine.Action {
	rs := d.roundStateFor(round)
	var matched *candidateProposal
	for i := range rs.candidates {
		if rs.candidates[i].proposal.Value == value {
			rs.candidates[i].validated = true
			rs.candidates[i].valid = valid
			matched = &rs.candidates[i]
			break
		}
	}
	if matched == nil {
		return nil
	}
	if matched.proposal.ValidRound != types.NoRound {
		return nil // vr >= 0 path completes via ReceiveProposal/PollPolkaPrevious, not here
	}
	return d.apply(round, statemachine.Event{
		Kind: statemachine.EvProposal, Round: round,
		Value: value, ValidRound: types.NoRound,
		Valid: d.freshProposalAllowed(value, valid),
	})
}

// PollPolkaPrevious re-checks a buffered vr >= 0 proposal against the vote
// keeper; the caller (core kernel) invokes this after any vote that could
// have completed the polka the proposal is waiting on.
func (d *Driver) PollPolkaPrevious(round types.Round) []statemachine.Action {
	rs := d.roundStateFor(round)
	if rs.polkaPrevious == nil {
		return nil
	}
	p := rs.polkaPrevious.proposal
	if !d.vk.ThresholdFor(p.Height, p.ValidRound, votekeeper.Prevote, &p.Value) {
		return nil
	}
	rs.polkaPrevious = nil
	return d.apply(round, statemachine.Event{
		Kind: statemachine.EvPolkaPrevious, Round: round,
		Value: p.Value, ValidRound: p.ValidRound,
		Valid: d.previousProposalAllowed(p.Value, p.ValidRound, d.candidateValid(rs, p)),
	})
}

// ReceiveThresholdEvent translates one votekeeper.ThresholdEvent into the
// corresponding statemachine.Event(s), updating locked/valid value
// bookkeeping for PolkaCurrent per §4.3.
func (d *Driver) ReceiveThresholdEvent(ev votekeeper.ThresholdEvent) []statemachine.Action {
	switch ev.Kind {
	case votekeeper.PolkaAny:
		return d.apply(ev.Round, statemachine.Event{Kind: statemachine.EvPolkaAny, Round: ev.Round})
	case votekeeper.PolkaNil:
		return d.apply(ev.Round, statemachine.Event{Kind: statemachine.EvPolkaNil, Round: ev.Round})
	case votekeeper.PolkaValue:
		rs := d.roundStateFor(ev.Round)
		valid := false
		for i := range rs.candidates {
			if rs.candidates[i].proposal.Value == ev.Value {
				valid = rs.candidates[i].validated && rs.candidates[i].valid
			}
		}
		if !valid {
			return nil // no matching validated proposal yet; wait for ReceiveProposedValue
		}
		// Locking only happens on the step_p == prevote -> precommit
		// transition (line 36); a PolkaCurrent arriving once the round has
		// already moved past prevote (e.g. via PolkaNil or a timeout) only
		// refreshes valid_value/valid_round, never locked_value/locked_round
		// (spec.md §4.2's "Precommit | PolkaCurrent(v)" row).
		wasPrevote := rs.machine.Step == types.StepPrevote
		d.validValue = ev.Value
		d.validRound = ev.Round
		actions := d.apply(ev.Round, statemachine.Event{Kind: statemachine.EvPolkaCurrent, Round: ev.Round, Value: ev.Value})
		if wasPrevote {
			d.lockedValue = ev.Value
			d.lockedRound = ev.Round
		}
		return actions
	case votekeeper.PrecommitAny:
		return d.apply(ev.Round, statemachine.Event{Kind: statemachine.EvPrecommitAny, Round: ev.Round})
	case votekeeper.PrecommitValue:
		if d.decided {
			return nil // I6
		}
		d.decided = true
		return d.apply(ev.Round, statemachine.Event{Kind: statemachine.EvProposalAndPrecommitValue, Round: ev.Round, Value: ev.Value})
	case votekeeper.SkipRound:
		return d.apply(ev.Round, statemachine.Event{Kind: statemachine.EvSkipRound, Round: ev.Round})
	default:
		return nil
	}
}

// TimeoutElapsed feeds a fired timer into the machine for the round it was
// scheduled for; stale timers are filtered by the machine's own (round,
// step) guard.
func (d *Driver) TimeoutElapsed(kind statemachine.EventKind, scheduledRound types.Round) []statemachine.Action {
	return d.apply(d.round, statemachine.Event{Kind: kind, TimeoutRound: scheduledRound})
}

// LockedValue, LockedRound, ValidValue, ValidRound expose the driver's
// persistent per-height state (§4.3), e.g. for WAL snapshotting.
func (d *Driver) LockedValue() (types.ValueID, types.Round) { return d.lockedValue, d.lockedRound }
func (d *Driver) ValidValue() (types.ValueID, types.Round)  { return d.validValue, d.validRound }

// Equivocations returns the equivocating-proposer evidence accumulated so
// far this height.
func (d *Driver) Equivocations() []EquivocatingProposer { return d.equivocations }

// CurrentRound reports the round the driver's machine currently occupies.
func (d *Driver) CurrentRound() types.Round { return d.round }
