package message

import (
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/bft-core/engine/types"
)

// Signers is a bitset over a ValidatorSet's fixed index order, used to
// address "which validators signed" without repeating addresses on the
// wire. Grounded on the teacher's AggregateSignature.Signers /
// NewSigners(n) / (*Signers).increment(i) (core/types/bft_test.go).
type Signers struct {
	bits *big.Int
	n    int
}

func NewSigners(n int) *Signers {
	return &Signers{bits: new(big.Int), n: n}
}

func (s *Signers) Set(i int) {
	s.bits.SetBit(s.bits, i, 1)
}

func (s *Signers) IsSet(i int) bool {
	return s.bits.Bit(i) == 1
}

func (s *Signers) Count() int {
	c := 0
	for i := 0; i < s.n; i++ {
		if s.IsSet(i) {
			c++
		}
	}
	return c
}

// Indices returns the set bit positions in ascending order.
func (s *Signers) Indices() []int {
	out := make([]int, 0, s.Count())
	for i := 0; i < s.n; i++ {
		if s.IsSet(i) {
			out = append(out, i)
		}
	}
	return out
}

func (s *Signers) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, []interface{}{uint64(s.n), s.bits.Bytes()})
}

func (s *Signers) DecodeRLP(st *rlp.Stream) error {
	var wire struct {
		N    uint64
		Bits []byte
	}
	if err := st.Decode(&wire); err != nil {
		return err
	}
	s.n = int(wire.N)
	s.bits = new(big.Int).SetBytes(wire.Bits)
	return nil
}

// AggregateSignature is one BLS signature standing in for Signers.Count()
// individual signatures, all over the same (h, r, kind, value) message —
// the shape exercised by core/types/bft_test.go.
type AggregateSignature struct {
	Signature []byte // compressed BLS signature bytes (signing.Signature.Bytes())
	Signers   *Signers
}

// Certificate is the common shape of Polka/Commit/Round certificates (§3,
// §6): a quorum of same-kind votes for (h, r[, value]) compressed into one
// aggregate signature plus the Signers bitset addressing which validators
// in the height's ValidatorSet contributed.
type Certificate struct {
	Height  types.Height
	Round   types.Round
	Value   types.ValueID // types.NilValue for a Round certificate
	Kind    Kind          // which vote kind(s) this certificate aggregates; see RoundCertificate note
	Agg     AggregateSignature
}

// PolkaCertificate witnesses Q(h) prevotes for (h, r, value), value != nil.
func PolkaCertificate(h types.Height, r types.Round, value types.ValueID, agg AggregateSignature) Certificate {
	return Certificate{Height: h, Round: r, Value: value, Kind: KindPrevote, Agg: agg}
}

// CommitCertificate witnesses Q(h) precommits for (h, r, value), value !=
// nil; it is the sole thing that can externalize a Decide (§4.5).
func CommitCertificate(h types.Height, r types.Round, value types.ValueID, agg AggregateSignature) Certificate {
	return Certificate{Height: h, Round: r, Value: value, Kind: KindPrecommit, Agg: agg}
}

// RoundCertificate is any Q(h) set of vote signatures for (h, r), used only
// as liveness evidence (§3); Value is always NilValue since it may mix
// distinct voted values.
func RoundCertificate(h types.Height, r types.Round, kind Kind, agg AggregateSignature) Certificate {
	return Certificate{Height: h, Round: r, Value: types.NilValue, Kind: kind, Agg: agg}
}

type rlpCertificate struct {
	Height    uint64
	Round     uint64
	Value     types.ValueID
	Kind      uint8
	Signature []byte
	Signers   *Signers
}

func (c *Certificate) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &rlpCertificate{
		Height:    uint64(c.Height),
		Round:     uint64(c.Round),
		Value:     c.Value,
		Kind:      uint8(c.Kind),
		Signature: c.Agg.Signature,
		Signers:   c.Agg.Signers,
	})
}

func (c *Certificate) DecodeRLP(s *rlp.Stream) error {
	var w rlpCertificate
	if err := s.Decode(&w); err != nil {
		return err
	}
	c.Height = types.Height(w.Height)
	c.Round = types.Round(w.Round)
	c.Value = w.Value
	c.Kind = Kind(w.Kind)
	c.Agg = AggregateSignature{Signature: w.Signature, Signers: w.Signers}
	return nil
}
