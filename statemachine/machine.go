package statemachine

import "github.com/bft-core/engine/types"

// ActionKind tags one action the machine asks its caller to perform. These
// map onto a subset of core's Effect variants (§4.4); the machine itself
// never touches the effect/resume plumbing so it stays trivially testable.
type ActionKind uint8

const (
	ActionBroadcastPrevote ActionKind = iota
	ActionBroadcastPrecommit
	ActionScheduleTimeoutPropose
	ActionScheduleTimeoutPrevote
	ActionScheduleTimeoutPrecommit
	ActionRequestValue   // self is proposer(h, r): ask the application to build or re-propose a value
	ActionStartRound     // a new round begins: the kernel runs it (driver.StartRound) and yields EffectStartRound
	ActionDecide         // terminal: decide Value at Round
)

type Action struct {
	Kind  ActionKind
	Value types.ValueID // BroadcastPrevote/Precommit/Decide: the value (NilValue for a nil vote)
	Round types.Round   // StartRound/Decide: which round
}

// State is the per-round state carried by the machine between events: step
// plus the round it currently occupies. Locked/valid value tracking lives
// one layer up in the Driver (spec.md §4.3), since those persist across
// round changes within a height while Step resets every round (§3).
type State struct {
	Round types.Round
	Step  types.Step

	// line34Executed/line36Executed/line47Executed guard the "(first)"
	// qualifiers in spec.md §4.2's transition table so that PolkaAny,
	// PolkaCurrent and PrecommitAny each act only on their first
	// occurrence in a round, matching the teacher's
	// line34Executed/line36Executed/line47Executed guards in
	// consensus/tendermint/core/handler.go's checkUponConditions.
	line34Executed bool
	line36Executed bool
	line47Executed bool
}

// NewState begins a height in StepUnstarted, the initial state (§4.2).
func NewState() State {
	return State{Round: 0, Step: types.StepUnstarted}
}

// Apply advances State by exactly one Event, returning the new State and any
// Actions to yield. It never blocks and never consults anything outside its
// two arguments.
func Apply(s State, ev Event) (State, []Action) {
	switch ev.Kind {
	case EvNewRound:
		return applyNewRound(s, ev)
	case EvProposal:
		return applyProposal(s, ev)
	case EvPolkaPrevious:
		return applyPolkaPrevious(s, ev)
	case EvTimeoutPropose:
		return applyTimeoutPropose(s, ev)
	case EvPolkaAny:
		return applyPolkaAny(s, ev)
	case EvPolkaCurrent:
		return applyPolkaCurrent(s, ev)
	case EvPolkaNil:
		return applyPolkaNil(s, ev)
	case EvTimeoutPrevote:
		return applyTimeoutPrevote(s, ev)
	case EvPrecommitAny:
		return applyPrecommitAny(s, ev)
	case EvTimeoutPrecommit:
		return applyTimeoutPrecommit(s, ev)
	case EvSkipRound:
		return applySkipRound(s, ev)
	case EvProposalAndPrecommitValue:
		return applyDecide(s, ev)
	default:
		return s, nil
	}
}

func applyNewRound(s State, ev Event) (State, []Action) {
	ns := State{Round: ev.Round, Step: types.StepPropose}
	actions := []Action{{Kind: ActionScheduleTimeoutPropose, Round: ev.Round}}
	if ev.IsSelf {
		actions = append([]Action{{Kind: ActionRequestValue, Round: ev.Round}}, actions...)
	}
	return ns, actions
}

// applyProposal handles the Propose -> Prevote transition for a freshly
// built value (vr = -1): spec.md §4.2's "Proposal(v, -1, valid)" row, Tendermint
// pseudocode line 22. ev.Valid already folds in the locked-value guard
// (SP5/I2) — the Driver computes it, not this function.
func applyProposal(s State, ev Event) (State, []Action) {
	if s.Step != types.StepPropose || ev.Round != s.Round {
		return s, nil
	}
	ns := State{Round: s.Round, Step: types.StepPrevote}
	if ev.Valid {
		return ns, []Action{{Kind: ActionBroadcastPrevote, Value: ev.Value}}
	}
	return ns, []Action{{Kind: ActionBroadcastPrevote, Value: types.NilValue}}
}

// applyPolkaPrevious handles a proposal re-proposing a value with an
// earlier POL round (§4.2's PolkaPrevious row, pseudocode line 28). Like
// applyProposal, ev.Valid already folds in the Driver's locked-value guard.
func applyPolkaPrevious(s State, ev Event) (State, []Action) {
	if s.Step != types.StepPropose || ev.Round != s.Round {
		return s, nil
	}
	ns := State{Round: s.Round, Step: types.StepPrevote}
	if ev.Valid {
		return ns, []Action{{Kind: ActionBroadcastPrevote, Value: ev.Value}}
	}
	return ns, []Action{{Kind: ActionBroadcastPrevote, Value: types.NilValue}}
}

func applyTimeoutPropose(s State, ev Event) (State, []Action) {
	if s.Step != types.StepPropose || ev.TimeoutRound != s.Round {
		return s, nil // stale firing, guarded by (height, round, step) per §5
	}
	ns := State{Round: s.Round, Step: types.StepPrevote}
	return ns, []Action{{Kind: ActionBroadcastPrevote, Value: types.NilValue}}
}

// applyPolkaAny handles the first PolkaAny while still prevoting: it only
// schedules the prevote timeout (line 34), it never changes step.
func applyPolkaAny(s State, ev Event) (State, []Action) {
	if s.Step != types.StepPrevote || ev.Round != s.Round || s.line34Executed {
		return s, nil
	}
	ns := s
	ns.line34Executed = true
	return ns, []Action{{Kind: ActionScheduleTimeoutPrevote, Round: s.Round}}
}

// applyPolkaCurrent handles the first polka for a value matched with its
// proposal (line 36): locks the value while in Prevote, or simply updates
// valid-value bookkeeping (handled by the Driver) while already in
// Precommit.
func applyPolkaCurrent(s State, ev Event) (State, []Action) {
	if ev.Round != s.Round || s.Step < types.StepPrevote || s.line36Executed {
		return s, nil
	}
	ns := s
	ns.line36Executed = true
	if s.Step == types.StepPrevote {
		ns.Step = types.StepPrecommit
		return ns, []Action{{Kind: ActionBroadcastPrecommit, Value: ev.Value}}
	}
	return ns, nil
}

// applyPolkaNil handles a polka for nil while prevoting (line 44).
func applyPolkaNil(s State, ev Event) (State, []Action) {
	if s.Step != types.StepPrevote || ev.Round != s.Round {
		return s, nil
	}
	ns := State{Round: s.Round, Step: types.StepPrecommit, line47Executed: s.line47Executed}
	return ns, []Action{{Kind: ActionBroadcastPrecommit, Value: types.NilValue}}
}

func applyTimeoutPrevote(s State, ev Event) (State, []Action) {
	if s.Step != types.StepPrevote || ev.TimeoutRound != s.Round {
		return s, nil
	}
	ns := State{Round: s.Round, Step: types.StepPrecommit}
	return ns, []Action{{Kind: ActionBroadcastPrecommit, Value: types.NilValue}}
}

// applyPrecommitAny handles the first PrecommitAny in the round (line 47):
// it only schedules the precommit timeout, regardless of step, as long as
// the round hasn't already decided or moved on.
func applyPrecommitAny(s State, ev Event) (State, []Action) {
	if ev.Round != s.Round || s.Step == types.StepCommit || s.line47Executed {
		return s, nil
	}
	ns := s
	ns.line47Executed = true
	return ns, []Action{{Kind: ActionScheduleTimeoutPrecommit, Round: s.Round}}
}

func applyTimeoutPrecommit(s State, ev Event) (State, []Action) {
	if ev.TimeoutRound != s.Round || s.Step == types.StepCommit {
		return s, nil
	}
	next := s.Round + 1
	ns := State{Round: next, Step: types.StepUnstarted}
	return ns, []Action{{Kind: ActionStartRound, Round: next}}
}

func applySkipRound(s State, ev Event) (State, []Action) {
	if ev.Round <= s.Round || s.Step == types.StepCommit {
		return s, nil // I5: only ever move forward, and never out of a decided height
	}
	ns := State{Round: ev.Round, Step: types.StepUnstarted}
	return ns, []Action{{Kind: ActionStartRound, Round: ev.Round}}
}

func applyDecide(s State, ev Event) (State, []Action) {
	if s.Step == types.StepCommit {
		return s, nil // I6: decision is frozen
	}
	ns := State{Round: ev.Round, Step: types.StepCommit}
	return ns, []Action{{Kind: ActionDecide, Value: ev.Value, Round: ev.Round}}
}
