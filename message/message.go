// Package message defines the consensus wire types (proposals, votes,
// certificates) and their RLP framing. Encoding is delegated to a
// host-provided codec in spec.md's terms (§6); this package supplies the
// concrete RLP codec the teacher's own messages package used
// (consensus/tendermint/messages/messages.go), generalized off
// *types.Block onto the opaque types.ValueID the rest of the kernel works
// with.
package message

import (
	"fmt"

	"github.com/bft-core/engine/types"
)

// Kind distinguishes the two vote kinds (§3). Wire-compatible with the
// teacher's msgPrevote/msgPrecommit codes.
type Kind uint8

const (
	KindPrevote Kind = iota
	KindPrecommit
)

func (k Kind) String() string {
	if k == KindPrevote {
		return "prevote"
	}
	return "precommit"
}

// Proposal is ⟨h, r, v, vr, proposer_addr⟩ signed by proposer(h, r) (§3).
// ValidRound is NoRound (-1) for a freshly built value.
type Proposal struct {
	Height     types.Height
	Round      types.Round
	Value      types.ValueID
	ValidRound types.Round
	Proposer   types.Address
	Signature  []byte
}

func (p *Proposal) String() string {
	return fmt.Sprintf("Proposal{h=%d r=%d v=%s vr=%d proposer=%s}",
		p.Height, p.Round, p.Value.Hex(), p.ValidRound, p.Proposer.Hex())
}

// Vote is ⟨kind, h, r, id(v)|⊥, voter_addr⟩, signed (§3). Value is
// types.NilValue for a nil vote.
type Vote struct {
	Kind      Kind
	Height    types.Height
	Round     types.Round
	Value     types.ValueID
	Voter     types.Address
	Extension []byte // optional signed vote extension (§6)
	Signature []byte
}

func (v *Vote) IsNil() bool { return v.Value == types.NilValue }

func (v *Vote) String() string {
	return fmt.Sprintf("Vote{%s h=%d r=%d v=%s voter=%s}",
		v.Kind, v.Height, v.Round, v.Value.Hex(), v.Voter.Hex())
}

// Msg is the common interface satisfied by every signed consensus message,
// used by core/msg_store.go to store proposals and votes uniformly —
// mirrors the teacher's message.Msg interface introduced alongside
// msg_store.go in later autonity revisions.
type Msg interface {
	H() types.Height
	R() types.Round
	Sender() types.Address
	Code() MsgCode
}

// MsgCode tags the wire type, analogous to the teacher's msgProposal /
// msgPrevote / msgPrecommit byte codes.
type MsgCode uint8

const (
	ProposalCode MsgCode = iota
	PrevoteCode
	PrecommitCode
)

func (p *Proposal) H() types.Height      { return p.Height }
func (p *Proposal) R() types.Round       { return p.Round }
func (p *Proposal) Sender() types.Address { return p.Proposer }
func (p *Proposal) Code() MsgCode        { return ProposalCode }

func (v *Vote) H() types.Height      { return v.Height }
func (v *Vote) R() types.Round       { return v.Round }
func (v *Vote) Sender() types.Address { return v.Voter }
func (v *Vote) Code() MsgCode {
	if v.Kind == KindPrevote {
		return PrevoteCode
	}
	return PrecommitCode
}
