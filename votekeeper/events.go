package votekeeper

import "github.com/bft-core/engine/types"

// ThresholdEventKind tags which of the six threshold shapes in spec.md §4.1
// fired.
type ThresholdEventKind uint8

const (
	PolkaAny ThresholdEventKind = iota
	PolkaNil
	PolkaValue
	PrecommitAny
	PrecommitValue
	SkipRound
)

func (k ThresholdEventKind) String() string {
	switch k {
	case PolkaAny:
		return "PolkaAny"
	case PolkaNil:
		return "PolkaNil"
	case PolkaValue:
		return "PolkaValue"
	case PrecommitAny:
		return "PrecommitAny"
	case PrecommitValue:
		return "PrecommitValue"
	case SkipRound:
		return "SkipRound"
	default:
		return "unknown"
	}
}

// ThresholdEvent is emitted the first time voting power for (h, r[, id])
// crosses its threshold (B1). Re-delivery of the vote that caused the
// crossing is a no-op (RT3).
type ThresholdEvent struct {
	Kind   ThresholdEventKind
	Height types.Height
	Round  types.Round
	Value  types.ValueID // meaningful for PolkaValue/PrecommitValue; NilValue otherwise
}

// EquivocationEvidence records a signer emitting two conflicting signed
// votes for the same (h, r, kind) — I1's "at most one" is the property
// being violated. The vote keeper never rejects the second vote outright
// (it still cannot raise power twice); it surfaces this so the host can
// build an accountability proof (see accountability note in DESIGN.md).
type EquivocationEvidence struct {
	Height types.Height
	Round  types.Round
	Kind   VoteKind
	Signer types.Address
	First  types.ValueID
	Second types.ValueID
}
