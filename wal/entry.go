// Package wal implements C6: a per-height write-ahead log giving a
// recovering process crash-consistent replay (spec.md §4.6). Framing
// follows the teacher's length-prefixed/checksummed message envelope
// idiom (consensus/tendermint/messages/messages.go's wire structs), here
// additionally snappy-compressed per entry, with each height's first offset
// recorded in a github.com/syndtr/goleveldb index (Replay does not consult
// it and always reads from the header), matching SPEC_FULL.md's E2
// domain-stack wiring for those two libraries.
package wal

import (
	"github.com/bft-core/engine/message"
	"github.com/bft-core/engine/types"
)

// EntryKind tags which of the five loggable input shapes an Entry
// carries (spec.md §4.6 "What gets logged"). Sync-delivered commit/round
// certificates are deliberately absent — see DESIGN.md's O1 decision.
type EntryKind uint8

const (
	EntryProposal EntryKind = iota
	EntryVote
	EntryProposedOwnValue  // the application's reply to GetValue
	EntryProposedValue     // the application's ProposedValue notification (incl. validity)
	EntryTimeoutElapsed
)

// Entry is one WAL record. Only the fields relevant to Kind are populated.
type Entry struct {
	Kind   EntryKind
	Height types.Height
	Round  types.Round

	Proposal *message.Proposal
	Vote     *message.Vote

	Value      types.ValueID
	Valid      bool
	ValidRound types.Round

	TimeoutKind  uint8
	TimeoutRound types.Round
}
