package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func fourEqualValidators(t *testing.T) *ValidatorSet {
	t.Helper()
	var vals []Validator
	for i := 1; i <= 4; i++ {
		vals = append(vals, Validator{
			Address:     common.BytesToAddress([]byte{byte(i)}),
			PublicKey:   []byte{byte(i)},
			VotingPower: uint256.NewInt(1),
		})
	}
	set, err := NewValidatorSet(vals)
	require.NoError(t, err)
	return set
}

func TestNewValidatorSetRejectsZeroVotingPower(t *testing.T) {
	_, err := NewValidatorSet([]Validator{{Address: common.HexToAddress("0x1"), VotingPower: uint256.NewInt(0)}})
	require.ErrorIs(t, err, ErrZeroVotingPower)
}

func TestQuorumAndSkipThresholdForFourEqualValidators(t *testing.T) {
	set := fourEqualValidators(t)
	// T = 4: Quorum = floor(8/3)+1 = 3, SkipThreshold = floor(4/3)+1 = 2.
	require.Equal(t, uint256.NewInt(3), set.Quorum())
	require.Equal(t, uint256.NewInt(2), set.SkipThreshold())
	require.True(t, set.HasQuorum(uint256.NewInt(3)))
	require.False(t, set.HasQuorum(uint256.NewInt(2)))
	require.True(t, set.HasSkipThreshold(uint256.NewInt(2)))
	require.False(t, set.HasSkipThreshold(uint256.NewInt(1)))
}

func TestProposerIsDeterministicAndStable(t *testing.T) {
	set := fourEqualValidators(t)

	p1, ok := Proposer(set, 100, 0)
	require.True(t, ok)
	p2, ok := Proposer(set, 100, 0)
	require.True(t, ok)
	require.Equal(t, p1.Address, p2.Address, "same (height, round) must always select the same proposer")
}

func TestProposerCoversEveryValidatorAcrossRounds(t *testing.T) {
	set := fourEqualValidators(t)

	seen := map[Address]bool{}
	for r := Round(0); r < 64; r++ {
		p, ok := Proposer(set, 1, r)
		require.True(t, ok)
		seen[p.Address] = true
	}
	require.Len(t, seen, 4, "every validator must recur within a bounded round window")
}

func TestProposerEmptySetReturnsFalse(t *testing.T) {
	set := &ValidatorSet{}
	_, ok := Proposer(set, 1, 0)
	require.False(t, ok)
}
