// Package signing provides the SigningScheme abstraction spec.md §9
// describes as a "dynamic dispatch over Context" associated type, together
// with a BLST-backed implementation. The kernel never hardcodes a signature
// scheme (§1 Non-goals: "does not... fix a signature scheme"); it calls
// Verify, Decode and Aggregate through this interface directly and never
// calls Sign, which stays with the host behind the SignVote/SignProposal
// effects (§4.4).
package signing

import "github.com/bft-core/engine/types"

// Signature is an opaque, serializable signature. Implementations may be
// aggregatable (BLS) or not (ed25519); Scheme.Aggregate returns
// ErrNotAggregatable for the latter.
type Signature interface {
	Bytes() []byte
}

// Scheme is the pluggable signing/verification/aggregation surface the
// kernel depends on. It is intentionally narrow: key custody and key
// generation are host concerns (§1 Non-goals: "signing-key storage").
type Scheme interface {
	// Sign produces a signature over msg using the secret identified by
	// keyID (an opaque handle the host resolves; the kernel never sees raw
	// key material, only PublicKey bytes carried on types.Validator).
	Sign(keyID []byte, msg []byte) (Signature, error)

	// Verify checks sig over msg against a validator's public key bytes.
	Verify(pubKey []byte, msg []byte, sig Signature) bool

	// Aggregate combines per-signer signatures over (possibly distinct)
	// messages into one aggregate signature, used to compress a certificate
	// (§6 "list<{voter_addr, signature}>") into one aggregated payload plus
	// a Signers bitset (message.Signers).
	Aggregate(sigs []Signature) (Signature, error)

	// VerifyAggregate checks an aggregate signature against the public keys
	// and per-signer messages that produced it (BLS aggregate verification
	// requires the same ordered message set used at Aggregate time).
	VerifyAggregate(pubKeys [][]byte, msgs [][]byte, agg Signature) bool

	// Decode parses a wire-format signature.
	Decode(raw []byte) (Signature, error)
}

// VoteSignBytes is the canonical byte string signed for a vote: it excludes
// the signature field itself and binds kind, height, round and value so
// that a signature cannot be replayed across a different (h, r, kind, v).
func VoteSignBytes(kind uint8, h types.Height, r types.Round, v types.ValueID) []byte {
	buf := make([]byte, 0, 1+8+8+32)
	buf = append(buf, kind)
	buf = appendUint64(buf, uint64(h))
	buf = appendUint64(buf, uint64(r))
	buf = append(buf, v.Bytes()...)
	return buf
}

// ProposalSignBytes is the canonical byte string signed for a proposal.
func ProposalSignBytes(h types.Height, r types.Round, v types.ValueID, vr types.Round) []byte {
	buf := make([]byte, 0, 8+8+32+8)
	buf = appendUint64(buf, uint64(h))
	buf = appendUint64(buf, uint64(r))
	buf = append(buf, v.Bytes()...)
	buf = appendUint64(buf, uint64(vr))
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 7; i >= 0; i-- {
		tmp[i] = byte(v)
		v >>= 8
	}
	return append(buf, tmp[:]...)
}
