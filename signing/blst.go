package signing

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

// dst is the BLS domain separation tag for consensus signatures, following
// the min-pubkey-size ciphersuite convention (public keys in G1, signatures
// in G2) the teacher's own crypto/blst wrapper uses (exercised in
// core/types/bft_test.go via blst.SecretKeyFromHex/.Sign).
var dst = []byte("BFT-CORE-CONSENSUS-BLS-SIG-V1")

// BLSScheme implements Scheme over supranational/blst, the BLS library in
// the teacher's go.mod, directly continuing the AggregateSignature/Signers
// pattern exercised by core/types/bft_test.go.
type BLSScheme struct {
	keyResolver func(keyID []byte) *blst.SecretKey
}

// NewBLSScheme builds a scheme that resolves signing key handles through
// resolver. The kernel never holds raw secret key material itself (§1
// Non-goals); resolver is the host's key-storage boundary.
func NewBLSScheme(resolver func(keyID []byte) *blst.SecretKey) *BLSScheme {
	return &BLSScheme{keyResolver: resolver}
}

type blsSignature struct {
	sig *blst.P2Affine
}

func (s *blsSignature) Bytes() []byte { return s.sig.Compress() }

var (
	ErrUnknownKey         = errors.New("signing: unknown key id")
	ErrNotAggregatable    = errors.New("signing: signature set is empty")
	ErrBadSignatureLength = errors.New("signing: malformed signature bytes")
)

func (b *BLSScheme) Sign(keyID []byte, msg []byte) (Signature, error) {
	sk := b.keyResolver(keyID)
	if sk == nil {
		return nil, ErrUnknownKey
	}
	sig := new(blst.P2Affine).Sign(sk, msg, dst)
	return &blsSignature{sig: sig}, nil
}

func (b *BLSScheme) Verify(pubKey []byte, msg []byte, sig Signature) bool {
	s, ok := sig.(*blsSignature)
	if !ok {
		return false
	}
	pub := new(blst.P1Affine).Uncompress(pubKey)
	if pub == nil {
		return false
	}
	return s.sig.Verify(true, pub, true, msg, dst)
}

func (b *BLSScheme) Aggregate(sigs []Signature) (Signature, error) {
	if len(sigs) == 0 {
		return nil, ErrNotAggregatable
	}
	points := make([]*blst.P2Affine, 0, len(sigs))
	for _, s := range sigs {
		bs, ok := s.(*blsSignature)
		if !ok {
			return nil, ErrBadSignatureLength
		}
		points = append(points, bs.sig)
	}
	var agg blst.P2Aggregate
	agg.Aggregate(points, true)
	return &blsSignature{sig: agg.ToAffine()}, nil
}

func (b *BLSScheme) VerifyAggregate(pubKeys [][]byte, msgs [][]byte, aggSig Signature) bool {
	s, ok := aggSig.(*blsSignature)
	if !ok || len(pubKeys) != len(msgs) || len(pubKeys) == 0 {
		return false
	}
	pubs := make([]*blst.P1Affine, 0, len(pubKeys))
	for _, pk := range pubKeys {
		p := new(blst.P1Affine).Uncompress(pk)
		if p == nil {
			return false
		}
		pubs = append(pubs, p)
	}
	return s.sig.AggregateVerify(true, pubs, true, msgs, dst)
}

func (b *BLSScheme) Decode(raw []byte) (Signature, error) {
	p := new(blst.P2Affine).Uncompress(raw)
	if p == nil {
		return nil, ErrBadSignatureLength
	}
	return &blsSignature{sig: p}, nil
}
