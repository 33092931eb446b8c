package signing

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/bft-core/engine/types"
)

func TestVoteSignBytesBindsKindHeightRoundValue(t *testing.T) {
	v := common.HexToHash("0xAB")
	base := VoteSignBytes(0, 10, 2, v)

	require.NotEqual(t, base, VoteSignBytes(1, 10, 2, v), "kind must be bound")
	require.NotEqual(t, base, VoteSignBytes(0, 11, 2, v), "height must be bound")
	require.NotEqual(t, base, VoteSignBytes(0, 10, 3, v), "round must be bound")
	require.NotEqual(t, base, VoteSignBytes(0, 10, 2, common.HexToHash("0xCD")), "value must be bound")
	require.Equal(t, base, VoteSignBytes(0, 10, 2, v), "deterministic for identical inputs")
}

func TestProposalSignBytesBindsValidRound(t *testing.T) {
	v := common.HexToHash("0xAB")
	fresh := ProposalSignBytes(5, 1, v, types.NoRound)
	reused := ProposalSignBytes(5, 1, v, 0)

	require.NotEqual(t, fresh, reused, "a proposal reusing round 0's valid value must sign differently than a fresh one")
}
