package message

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/bft-core/engine/types"
)

func TestProposalRLPRoundTripFreshValidRound(t *testing.T) {
	p := &Proposal{
		Height:     7,
		Round:      2,
		Value:      common.HexToHash("0xAB"),
		ValidRound: types.NoRound,
		Proposer:   common.HexToAddress("0x1"),
		Signature:  []byte("sig"),
	}

	var buf bytes.Buffer
	require.NoError(t, rlp.Encode(&buf, p))

	var got Proposal
	require.NoError(t, rlp.Decode(&buf, &got))
	require.Equal(t, *p, got)
}

func TestProposalRLPRoundTripReusedValidRound(t *testing.T) {
	p := &Proposal{
		Height:     7,
		Round:      3,
		Value:      common.HexToHash("0xAB"),
		ValidRound: 1,
		Proposer:   common.HexToAddress("0x1"),
		Signature:  []byte("sig"),
	}

	var buf bytes.Buffer
	require.NoError(t, rlp.Encode(&buf, p))

	var got Proposal
	require.NoError(t, rlp.Decode(&buf, &got))
	require.Equal(t, *p, got)
}

func TestProposalDecodeRejectsOutOfBoundsRound(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, rlp.Encode(&buf, &rlpProposal{
		Height: 1, Round: MaxRound, Value: types.NilValue, IsValidRoundNil: true,
	}))
	var got Proposal
	require.ErrorIs(t, rlp.Decode(&buf, &got), errInvalidRound)
}

func TestVoteRLPRoundTrip(t *testing.T) {
	v := &Vote{
		Kind:      KindPrecommit,
		Height:    9,
		Round:     0,
		Value:     common.HexToHash("0xCD"),
		Voter:     common.HexToAddress("0x2"),
		Extension: []byte("ext"),
		Signature: []byte("sig"),
	}

	var buf bytes.Buffer
	require.NoError(t, rlp.Encode(&buf, v))

	var got Vote
	require.NoError(t, rlp.Decode(&buf, &got))
	require.Equal(t, *v, got)
}

func TestCertificateRLPRoundTrip(t *testing.T) {
	signers := NewSigners(4)
	signers.Set(0)
	signers.Set(2)
	cert := CommitCertificate(5, 1, common.HexToHash("0xEF"), AggregateSignature{
		Signature: []byte("agg-sig"),
		Signers:   signers,
	})

	var buf bytes.Buffer
	require.NoError(t, rlp.Encode(&buf, &cert))

	var got Certificate
	require.NoError(t, rlp.Decode(&buf, &got))

	require.Equal(t, cert.Height, got.Height)
	require.Equal(t, cert.Round, got.Round)
	require.Equal(t, cert.Value, got.Value)
	require.Equal(t, cert.Kind, got.Kind)
	require.Equal(t, cert.Agg.Signature, got.Agg.Signature)
	require.Equal(t, []int{0, 2}, got.Agg.Signers.Indices())
}
