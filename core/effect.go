// Package core implements C4 (the effect/resume coroutine contract) and C5
// (the consensus kernel): the single-threaded, cooperative process loop
// that drives driver/statemachine with real I/O pushed out to a host,
// mirroring the teacher's core.Tendermint / mainEventLoop shape
// (consensus/tendermint/core/handler.go) generalized off blocks onto
// opaque types.Value.
package core

import (
	"github.com/bft-core/engine/message"
	"github.com/bft-core/engine/statemachine"
	"github.com/bft-core/engine/types"
	"github.com/bft-core/engine/wal"
)

// EffectKind tags one of the side effects the kernel yields to its host
// (spec.md §4.4's effect table). The kernel is single-threaded and
// cooperative: it runs synchronously between effects and never issues a
// second effect before the host resumes the first.
type EffectKind uint8

const (
	EffectResetTimeouts EffectKind = iota
	EffectCancelAllTimeouts
	EffectCancelTimeout
	EffectScheduleTimeout
	EffectStartRound
	EffectPublish
	EffectRepublish
	EffectGetValue
	EffectRestreamProposal
	EffectGetValidatorSet
	EffectSignVote
	EffectSignProposal
	EffectVerifySignature
	EffectVerifyCommitCertificate
	EffectVerifyPolkaCertificate
	EffectExtendVote
	EffectVerifyVoteExtension
	EffectDecide
	EffectWalAppend
	EffectWalFlush
	EffectSyncRequestRange
	EffectSendVoteSetResponse
)

// TimeoutKind distinguishes which of the three per-round timers an effect
// or resume concerns.
type TimeoutKind uint8

const (
	TimeoutPropose TimeoutKind = iota
	TimeoutPrevote
	TimeoutPrecommit
)

// Effect is the sum type the kernel yields; only the fields relevant to
// Kind are populated. The host's Run loop switches on Kind and calls back
// into Resume with the matching ResumeKind (spec.md §4.4's effect/resume
// table, field for field).
type Effect struct {
	Kind EffectKind

	Height types.Height
	Round  types.Round

	Timeout        TimeoutKind
	TimeoutRound   types.Round // ScheduleTimeout/CancelTimeout: the round the timer belongs to
	TimeoutAtRound types.Round // ScheduleTimeout's fire-time round correlator; the kernel leaves it unset and Resume has no such field

	Proposer types.Address

	SignedMsg message.Msg // Publish/Republish: the message to broadcast

	// RestreamProposal
	ValidRound types.Round
	Value      types.ValueID

	// GetValue
	GetValueTimeoutMillis uint64

	// SignVote/SignProposal: unsigned payload to sign
	VoteToSign     *message.Vote
	ProposalToSign *message.Proposal

	// VerifySignature
	MsgToVerify message.Msg
	PublicKey   []byte

	// VerifyCommitCertificate/VerifyPolkaCertificate
	Certificate *message.Certificate

	// ExtendVote/VerifyVoteExtension
	Extension []byte

	// Decide
	CommitCertificate *message.Certificate
	VoteExtensions    [][]byte

	// WalAppend
	WalEntry *wal.Entry

	// SyncRequestRange
	FromHeight types.Height
	ToHeight   types.Height
	Peer       string

	// SendVoteSetResponse
	RequestID string
	Votes     []*message.Vote
}

// ResumeKind tags the shape of a resumed value; the kernel asserts the
// concrete type it expects for the Effect it issued.
type ResumeKind uint8

const (
	ResumeUnit ResumeKind = iota
	ResumeValidatorSet
	ResumeSignedMessage
	ResumeBool
	ResumeResult
	ResumeOptionalExtension
)

// Resume carries the host's answer to a previously-yielded Effect back
// into the kernel.
type Resume struct {
	Kind ResumeKind

	ValidatorSet *types.ValidatorSet // GetValidatorSet: nil means "unknown"

	SignedProposal *message.Proposal // SignProposal
	SignedVote     *message.Vote     // SignVote

	Bool bool // VerifySignature

	Err error // VerifyCommitCertificate/VerifyPolkaCertificate/VerifyVoteExtension

	Extension []byte // ExtendVote; nil means "no extension"
}

// StepResult describes one kernel step in explicit-state-machine form:
// either it is still running and wants an Effect performed, or it reached a
// quiescent point and the host may dequeue its next Input. The Kernel does
// not return it; it yields Effects over its Effects channel instead.
type StepResult struct {
	Effect *Effect // nil iff Done
	Done   bool
}

// actionsToEffects lowers the statemachine's abstract Actions into
// concrete Effects, attaching height/round context the pure machine
// doesn't carry. This is the seam between C3's algebra and C4's I/O.
func (k *Kernel) actionsToEffects(actions []statemachine.Action) []Effect {
	effects := make([]Effect, 0, len(actions))
	for _, a := range actions {
		switch a.Kind {
		case statemachine.ActionBroadcastPrevote:
			effects = append(effects, Effect{Kind: EffectSignVote, VoteToSign: &message.Vote{
				Kind: message.KindPrevote, Height: k.height, Round: k.driver.CurrentRound(), Value: a.Value, Voter: k.self,
			}})
		case statemachine.ActionBroadcastPrecommit:
			effects = append(effects, Effect{Kind: EffectSignVote, VoteToSign: &message.Vote{
				Kind: message.KindPrecommit, Height: k.height, Round: k.driver.CurrentRound(), Value: a.Value, Voter: k.self,
			}})
		case statemachine.ActionScheduleTimeoutPropose:
			effects = append(effects, Effect{Kind: EffectScheduleTimeout, Timeout: TimeoutPropose, TimeoutRound: a.Round})
		case statemachine.ActionScheduleTimeoutPrevote:
			effects = append(effects, Effect{Kind: EffectScheduleTimeout, Timeout: TimeoutPrevote, TimeoutRound: a.Round})
		case statemachine.ActionScheduleTimeoutPrecommit:
			effects = append(effects, Effect{Kind: EffectScheduleTimeout, Timeout: TimeoutPrecommit, TimeoutRound: a.Round})
		case statemachine.ActionRequestValue:
			value, validRound, reuse := k.driver.ValueToPropose()
			if reuse {
				effects = append(effects, Effect{Kind: EffectRestreamProposal, Height: k.height, Round: a.Round, ValidRound: validRound, Proposer: k.self, Value: value})
			} else {
				effects = append(effects, Effect{Kind: EffectGetValue, Height: k.height, Round: a.Round, GetValueTimeoutMillis: k.cfg.GetValueTimeoutMillis(a.Round)})
			}
		case statemachine.ActionStartRound:
			// Handled directly by Kernel.emitActions, which must drive
			// driver.StartRound/beginRound for the new round rather than
			// merely notify the host, so it never reaches this lowering.
		case statemachine.ActionDecide:
			// The Decide effect itself is issued by the kernel's decision
			// path (kernel.go), not directly here, since it must be
			// preceded by a WalFlush (§4.4 "Rule of externalization").
		}
	}
	return effects
}
