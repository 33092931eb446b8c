package message

import (
	"errors"
	"io"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/bft-core/engine/types"
)

// MaxRound bounds the round field on the wire, rejecting proposals/votes
// with absurd rounds before they reach the driver (B2 in spec.md §8 is
// enforced at the driver level for vr, this is the wire-level sanity bound).
const MaxRound = 1 << 32

var (
	errInvalidRound        = errors.New("message: round out of bounds")
	errBadValidRoundEncode = errors.New("message: bad proposal validRound encoding")
)

// rlpProposal is the wire shape of Proposal. RLP has no signed-integer
// primitive, so ValidRound = -1 ("freshly built") is represented with an
// explicit IsValidRoundNil flag rather than a sentinel value — the exact
// trick used by the teacher's Proposal.EncodeRLP/DecodeRLP
// (consensus/tendermint/messages/messages.go).
type rlpProposal struct {
	Height          uint64
	Round           uint64
	Value           types.ValueID
	ValidRound      uint64
	IsValidRoundNil bool
	Proposer        types.Address
	Signature       []byte
}

func (p *Proposal) EncodeRLP(w io.Writer) error {
	isNil := p.ValidRound == types.NoRound
	var vr uint64
	if !isNil {
		vr = uint64(p.ValidRound)
	}
	return rlp.Encode(w, &rlpProposal{
		Height:          uint64(p.Height),
		Round:           uint64(p.Round),
		Value:           p.Value,
		ValidRound:      vr,
		IsValidRoundNil: isNil,
		Proposer:        p.Proposer,
		Signature:       p.Signature,
	})
}

func (p *Proposal) DecodeRLP(s *rlp.Stream) error {
	var w rlpProposal
	if err := s.Decode(&w); err != nil {
		return err
	}
	var vr types.Round
	if w.IsValidRoundNil {
		if w.ValidRound != 0 {
			return errBadValidRoundEncode
		}
		vr = types.NoRound
	} else {
		vr = types.Round(w.ValidRound)
	}
	if w.Round >= MaxRound || (!w.IsValidRoundNil && w.ValidRound >= MaxRound) {
		return errInvalidRound
	}
	p.Height = types.Height(w.Height)
	p.Round = types.Round(w.Round)
	p.Value = w.Value
	p.ValidRound = vr
	p.Proposer = w.Proposer
	p.Signature = w.Signature
	return nil
}

type rlpVote struct {
	Kind      uint8
	Height    uint64
	Round     uint64
	Value     types.ValueID
	Voter     types.Address
	Extension []byte
	Signature []byte
}

func (v *Vote) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &rlpVote{
		Kind:      uint8(v.Kind),
		Height:    uint64(v.Height),
		Round:     uint64(v.Round),
		Value:     v.Value,
		Voter:     v.Voter,
		Extension: v.Extension,
		Signature: v.Signature,
	})
}

func (v *Vote) DecodeRLP(s *rlp.Stream) error {
	var w rlpVote
	if err := s.Decode(&w); err != nil {
		return err
	}
	if w.Round >= MaxRound {
		return errInvalidRound
	}
	v.Kind = Kind(w.Kind)
	v.Height = types.Height(w.Height)
	v.Round = types.Round(w.Round)
	v.Value = w.Value
	v.Voter = w.Voter
	v.Extension = w.Extension
	v.Signature = w.Signature
	return nil
}

// StreamMessage frames value-part dissemination (§6). The core is
// codec-agnostic for the part content itself but MUST preserve sequence
// order for reassembly, so StreamMessage carries an explicit Sequence.
type StreamMessage struct {
	StreamID []byte
	Sequence uint64
	Data     []byte // nil when Fin is true
	Fin      bool
}

type rlpStreamMessage struct {
	StreamID []byte
	Sequence uint64
	Data     []byte
	Fin      bool
}

func (m *StreamMessage) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &rlpStreamMessage{
		StreamID: m.StreamID,
		Sequence: m.Sequence,
		Data:     m.Data,
		Fin:      m.Fin,
	})
}

func (m *StreamMessage) DecodeRLP(s *rlp.Stream) error {
	var w rlpStreamMessage
	if err := s.Decode(&w); err != nil {
		return err
	}
	m.StreamID = w.StreamID
	m.Sequence = w.Sequence
	m.Data = w.Data
	m.Fin = w.Fin
	return nil
}
