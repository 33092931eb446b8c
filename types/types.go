// Package types defines the data model shared by every layer of the
// consensus kernel: heights, rounds, steps, addresses and values. None of
// these types carry behavior beyond what the Tendermint algorithm needs to
// compare and order them.
package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Height identifies an independent consensus instance. Heights are executed
// in ascending order; the kernel never runs two heights concurrently.
type Height uint64

// Round identifies a round within a height. Rounds start at 0 and only
// increase (I5); they may skip ahead via the vote keeper's SkipRound
// threshold.
type Round int64

// NoRound is used where a round field is optional, e.g. a fresh proposal's
// ValidRound.
const NoRound Round = -1

// Step is a position within the per-round Tendermint state machine (C2).
type Step uint8

const (
	StepUnstarted Step = iota
	StepPropose
	StepPrevote
	StepPrecommit
	StepCommit
)

func (s Step) String() string {
	switch s {
	case StepUnstarted:
		return "unstarted"
	case StepPropose:
		return "propose"
	case StepPrevote:
		return "prevote"
	case StepPrecommit:
		return "precommit"
	case StepCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// Address identifies a validator. It is a thin alias over go-ethereum's
// 20-byte address so that the kernel's wire format lines up with the
// teacher's existing signature/address conventions.
type Address = common.Address

// ValueID identifies a Value. It MUST be collision resistant and much
// smaller than the value itself (§3); values may be reassembled from parts
// outside the core, so the kernel never carries a full Value, only its ID,
// except transiently while handing a freshly built or received value to the
// application.
type ValueID = common.Hash

// NilValue is the zero ValueID, used as the wire/tally representation of
// "no value" (⊥).
var NilValue = ValueID{}

// Value is opaque to the core (§3). Implementations provide ID() and may
// carry arbitrary application payload alongside it.
type Value interface {
	ID() ValueID
}

// HeightFromBig converts a big.Int height as used by callers that source
// heights from a block-oriented store.
func HeightFromBig(b *big.Int) Height {
	return Height(b.Uint64())
}

func (h Height) Big() *big.Int {
	return new(big.Int).SetUint64(uint64(h))
}
