package core

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/bft-core/engine/signing"
	"github.com/bft-core/engine/types"
)

// fakeScheme is a trivial signing.Scheme for kernel tests that don't
// exercise real cryptography, only the kernel's own sequencing.
type fakeScheme struct{}

func (fakeScheme) Sign(keyID, msg []byte) (signing.Signature, error) { return fakeSignature("sig"), nil }
func (fakeScheme) Verify(pubKey, msg []byte, sig signing.Signature) bool { return true }
func (fakeScheme) Aggregate(sigs []signing.Signature) (signing.Signature, error) {
	return fakeSignature("agg"), nil
}
func (fakeScheme) VerifyAggregate(pubKeys, msgs [][]byte, agg signing.Signature) bool { return true }
func (fakeScheme) Decode(raw []byte) (signing.Signature, error)                      { return fakeSignature(raw), nil }

func TestKernelSoleValidatorDecidesOwnValue(t *testing.T) {
	self := common.HexToAddress("0xA")
	set, err := types.NewValidatorSet([]types.Validator{
		{Address: self, PublicKey: []byte("pub"), VotingPower: uint256.NewInt(1)},
	})
	require.NoError(t, err)

	cfg := Defaults
	k := NewKernel(self, &cfg, fakeScheme{}, log.Root())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	k.Run(ctx)

	value := common.HexToHash("0xCAFE")
	decided := make(chan *Effect, 1)

	go func() {
		for eff := range k.Effects() {
			switch eff.Kind {
			case EffectGetValue:
				k.Resume(Resume{Kind: ResumeUnit})
				go k.Submit(Input{Kind: InputPropose, Height: eff.Height, Round: eff.Round, Value: value})
			case EffectSignProposal:
				p := *eff.ProposalToSign
				p.Signature = []byte("sig-proposal")
				k.Resume(Resume{Kind: ResumeSignedMessage, SignedProposal: &p})
			case EffectSignVote:
				v := *eff.VoteToSign
				v.Signature = []byte("sig-vote")
				k.Resume(Resume{Kind: ResumeSignedMessage, SignedVote: &v})
			case EffectDecide:
				e := eff
				decided <- &e
				k.Resume(Resume{Kind: ResumeUnit})
			default:
				k.Resume(Resume{Kind: ResumeUnit})
			}
		}
	}()

	k.Submit(Input{Kind: InputStartHeight, Height: 1, ValidatorSet: set})

	select {
	case eff := <-decided:
		require.Equal(t, value, eff.CommitCertificate.Value)
		require.Equal(t, types.Round(0), eff.CommitCertificate.Round)
		require.Equal(t, 1, eff.CommitCertificate.Agg.Signers.Count())
	case <-time.After(2 * time.Second):
		t.Fatal("kernel did not reach a decision")
	}
}
