package wal

import (
	"io"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/bft-core/engine/message"
	"github.com/bft-core/engine/types"
)

// rlpEntry is the flat wire shape for Entry: all fields present, unused
// ones zero, same "always-present fields, interpret by Kind" convention
// the teacher's messages.go wire structs use for Proposal/Vote.
type rlpEntry struct {
	Kind   uint8
	Height uint64
	Round  int64

	HasProposal bool
	Proposal    *message.Proposal `rlp:"nil"`
	HasVote     bool
	Vote        *message.Vote `rlp:"nil"`

	Value      types.ValueID
	Valid      bool
	ValidRound int64

	TimeoutKind  uint8
	TimeoutRound int64
}

func (e *Entry) EncodeRLP(w io.Writer) error {
	wire := rlpEntry{
		Kind:         uint8(e.Kind),
		Height:       uint64(e.Height),
		Round:        int64(e.Round),
		HasProposal:  e.Proposal != nil,
		Proposal:     e.Proposal,
		HasVote:      e.Vote != nil,
		Vote:         e.Vote,
		Value:        e.Value,
		Valid:        e.Valid,
		ValidRound:   int64(e.ValidRound),
		TimeoutKind:  e.TimeoutKind,
		TimeoutRound: int64(e.TimeoutRound),
	}
	return rlp.Encode(w, &wire)
}

func (e *Entry) DecodeRLP(s *rlp.Stream) error {
	var wire rlpEntry
	if err := s.Decode(&wire); err != nil {
		return err
	}
	e.Kind = EntryKind(wire.Kind)
	e.Height = types.Height(wire.Height)
	e.Round = types.Round(wire.Round)
	if wire.HasProposal {
		e.Proposal = wire.Proposal
	}
	if wire.HasVote {
		e.Vote = wire.Vote
	}
	e.Value = wire.Value
	e.Valid = wire.Valid
	e.ValidRound = types.Round(wire.ValidRound)
	e.TimeoutKind = wire.TimeoutKind
	e.TimeoutRound = types.Round(wire.TimeoutRound)
	return nil
}
