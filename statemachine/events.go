// Package statemachine implements C2: the per-round Tendermint state
// machine (spec.md §4.2). It is pure — every transition is a function of
// the current state and one complex Event, returning a new state plus zero
// or more Actions to be yielded as effects by the caller (driver/core own
// the effect plumbing; this package stays free of I/O entirely, matching
// spec.md §9 "Global state: there is none in the core").
package statemachine

import "github.com/bft-core/engine/types"

// EventKind tags one of the complex events the driver assembles from raw
// inputs (spec.md §4.2 "Events (complex)").
type EventKind uint8

const (
	EvNewRound EventKind = iota
	EvProposal
	EvPolkaPrevious
	EvPolkaCurrent
	EvPolkaNil
	EvPolkaAny
	EvPrecommitValue
	EvPrecommitAny
	EvTimeoutPropose
	EvTimeoutPrevote
	EvTimeoutPrecommit
	EvSkipRound
	EvProposalAndPrecommitValue
)

// Event is the complex-event sum type the Driver hands the machine one at a
// time (spec.md §4.2 "The state machine itself applies events one at a
// time; the Driver serializes them").
type Event struct {
	Kind EventKind

	Round    types.Round // NewRound/SkipRound/ProposalAndPrecommitValue: target round
	Proposer types.Address
	IsSelf   bool // NewRound: whether self is proposer(h, r)

	Value      types.ValueID
	ValidRound types.Round // Proposal/PolkaPrevious: the proposal's vr
	Valid      bool        // Proposal: application validity AND matching POL availability

	TimeoutRound types.Round // Timeout*: the round the fired timer was scheduled for
}
