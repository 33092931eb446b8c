package driver

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/bft-core/engine/message"
	"github.com/bft-core/engine/statemachine"
	"github.com/bft-core/engine/types"
	"github.com/bft-core/engine/votekeeper"
)

func fourValidators(t *testing.T) (*types.ValidatorSet, []types.Address) {
	t.Helper()
	addrs := []types.Address{
		common.HexToAddress("0xA"),
		common.HexToAddress("0xB"),
		common.HexToAddress("0xC"),
		common.HexToAddress("0xD"),
	}
	vals := make([]types.Validator, len(addrs))
	for i, a := range addrs {
		vals[i] = types.Validator{Address: a, VotingPower: uint256.NewInt(1)}
	}
	set, err := types.NewValidatorSet(vals)
	require.NoError(t, err)
	return set, addrs
}

func TestReceiveProposalRejectsNonProposer(t *testing.T) {
	set, addrs := fourValidators(t)
	vk := votekeeper.New(5)
	vk.SetValidatorSet(1, set)
	vk.SetHeight(1, 0)
	d := New(1, set, addrs[0], vk)

	proposer, ok := types.Proposer(set, 1, 0)
	require.True(t, ok)

	var impostor types.Address
	for _, a := range addrs {
		if a != proposer.Address {
			impostor = a
			break
		}
	}

	p := &message.Proposal{Height: 1, Round: 0, Value: common.HexToHash("0xCAFE"), ValidRound: types.NoRound, Proposer: impostor}
	_, err := d.ReceiveProposal(p)
	require.ErrorIs(t, err, ErrNotFromProposer)
}

func TestFreshProposalDrivesPrevote(t *testing.T) {
	set, _ := fourValidators(t)
	proposer, ok := types.Proposer(set, 1, 0)
	require.True(t, ok)

	vk := votekeeper.New(5)
	vk.SetValidatorSet(1, set)
	vk.SetHeight(1, 0)
	d := New(1, set, proposer.Address, vk)
	d.StartRound(0)

	v := common.HexToHash("0xCAFE")
	p := &message.Proposal{Height: 1, Round: 0, Value: v, ValidRound: types.NoRound, Proposer: proposer.Address}

	actions, err := d.ReceiveProposal(p)
	require.NoError(t, err)
	require.Empty(t, actions, "awaits ReceiveProposedValue before it can drive the machine")

	actions = d.ReceiveProposedValue(1, 0, v, true)
	require.Len(t, actions, 1)
	require.Equal(t, statemachine.ActionBroadcastPrevote, actions[0].Kind)
	require.Equal(t, v, actions[0].Value)
}

func TestPolkaValueLocksAndPrecommits(t *testing.T) {
	set, addrs := fourValidators(t)
	proposer, ok := types.Proposer(set, 1, 0)
	require.True(t, ok)

	vk := votekeeper.New(5)
	vk.SetValidatorSet(1, set)
	vk.SetHeight(1, 0)
	d := New(1, set, proposer.Address, vk)
	d.StartRound(0)

	v := common.HexToHash("0xCAFE")
	p := &message.Proposal{Height: 1, Round: 0, Value: v, ValidRound: types.NoRound, Proposer: proposer.Address}
	_, err := d.ReceiveProposal(p)
	require.NoError(t, err)
	d.ReceiveProposedValue(1, 0, v, true)

	var lastActions []statemachine.Action
	for i := 0; i < 3; i++ {
		events, _ := vk.AddVote(1, 0, votekeeper.Prevote, addrs[i], v)
		for _, ev := range events {
			lastActions = d.ReceiveThresholdEvent(ev)
		}
	}
	require.NotEmpty(t, lastActions)

	lockedValue, lockedRound := d.LockedValue()
	require.Equal(t, v, lockedValue)
	require.Equal(t, types.Round(0), lockedRound)

	validValue, validRound := d.ValidValue()
	require.Equal(t, v, validValue)
	require.Equal(t, types.Round(0), validRound)
}

func TestEquivocatingProposerRecorded(t *testing.T) {
	set, _ := fourValidators(t)
	proposer, ok := types.Proposer(set, 1, 0)
	require.True(t, ok)

	vk := votekeeper.New(5)
	vk.SetValidatorSet(1, set)
	vk.SetHeight(1, 0)
	d := New(1, set, proposer.Address, vk)

	v1 := common.HexToHash("0x01")
	v2 := common.HexToHash("0x02")
	_, err := d.ReceiveProposal(&message.Proposal{Height: 1, Round: 0, Value: v1, ValidRound: types.NoRound, Proposer: proposer.Address})
	require.NoError(t, err)
	_, err = d.ReceiveProposal(&message.Proposal{Height: 1, Round: 0, Value: v2, ValidRound: types.NoRound, Proposer: proposer.Address})
	require.NoError(t, err)

	evs := d.Equivocations()
	require.Len(t, evs, 1)
	require.Equal(t, proposer.Address, evs[0].Proposer)
	require.Equal(t, v1, evs[0].First)
	require.Equal(t, v2, evs[0].Second)
}

func TestLockedProcessPrevotesNilForDifferentFreshProposal(t *testing.T) {
	set, _ := fourValidators(t)
	vk := votekeeper.New(5)
	vk.SetValidatorSet(1, set)
	vk.SetHeight(1, 1)

	proposer1, ok := types.Proposer(set, 1, 1)
	require.True(t, ok)
	d := New(1, set, proposer1.Address, vk)

	// Lock on v1 at round 0 the way a real polka would.
	locked := common.HexToHash("0x01")
	d.lockedValue = locked
	d.lockedRound = 0
	d.StartRound(1)

	other := common.HexToHash("0x02")
	p := &message.Proposal{Height: 1, Round: 1, Value: other, ValidRound: types.NoRound, Proposer: proposer1.Address}
	_, err := d.ReceiveProposal(p)
	require.NoError(t, err)

	actions := d.ReceiveProposedValue(1, 1, other, true)
	require.Len(t, actions, 1)
	require.Equal(t, statemachine.ActionBroadcastPrevote, actions[0].Kind)
	require.Equal(t, types.NilValue, actions[0].Value, "a process locked on a different value must prevote nil (SP5/I2)")
}

func TestLockedProcessPrevotesValueItIsLockedOn(t *testing.T) {
	set, _ := fourValidators(t)
	vk := votekeeper.New(5)
	vk.SetValidatorSet(1, set)
	vk.SetHeight(1, 1)

	proposer1, ok := types.Proposer(set, 1, 1)
	require.True(t, ok)
	d := New(1, set, proposer1.Address, vk)

	locked := common.HexToHash("0x01")
	d.lockedValue = locked
	d.lockedRound = 0
	d.StartRound(1)

	p := &message.Proposal{Height: 1, Round: 1, Value: locked, ValidRound: types.NoRound, Proposer: proposer1.Address}
	_, err := d.ReceiveProposal(p)
	require.NoError(t, err)

	actions := d.ReceiveProposedValue(1, 1, locked, true)
	require.Len(t, actions, 1)
	require.Equal(t, locked, actions[0].Value, "reproposing the value the process is locked on must still be prevoted")
}

func TestReceiveProposalRejectsOutOfBoundsValidRound(t *testing.T) {
	set, _ := fourValidators(t)
	vk := votekeeper.New(5)
	vk.SetValidatorSet(1, set)
	vk.SetHeight(1, 2)

	proposer, ok := types.Proposer(set, 1, 2)
	require.True(t, ok)
	d := New(1, set, proposer.Address, vk)

	v := common.HexToHash("0xCAFE")

	_, err := d.ReceiveProposal(&message.Proposal{Height: 1, Round: 2, Value: v, ValidRound: 2, Proposer: proposer.Address})
	require.ErrorIs(t, err, ErrInvalidValidRound, "vr == round must be rejected (B2)")

	_, err = d.ReceiveProposal(&message.Proposal{Height: 1, Round: 2, Value: v, ValidRound: 3, Proposer: proposer.Address})
	require.ErrorIs(t, err, ErrInvalidValidRound, "vr > round must be rejected (B2)")

	_, err = d.ReceiveProposal(&message.Proposal{Height: 1, Round: 2, Value: v, ValidRound: -2, Proposer: proposer.Address})
	require.ErrorIs(t, err, ErrInvalidValidRound, "vr < NoRound must be rejected (B2)")
}

func TestPolkaValueAfterPrecommitOnlyUpdatesValidNotLocked(t *testing.T) {
	set, _ := fourValidators(t)
	proposer, ok := types.Proposer(set, 1, 0)
	require.True(t, ok)

	vk := votekeeper.New(5)
	vk.SetValidatorSet(1, set)
	vk.SetHeight(1, 0)
	d := New(1, set, proposer.Address, vk)
	d.StartRound(0)

	v := common.HexToHash("0xCAFE")
	p := &message.Proposal{Height: 1, Round: 0, Value: v, ValidRound: types.NoRound, Proposer: proposer.Address}
	_, err := d.ReceiveProposal(p)
	require.NoError(t, err)
	d.ReceiveProposedValue(1, 0, v, true)

	// Move the round straight to Precommit via PolkaNil, without ever
	// having locked (no PolkaValue observed yet).
	d.ReceiveThresholdEvent(votekeeper.ThresholdEvent{Kind: votekeeper.PolkaNil, Height: 1, Round: 0})

	beforeValue, beforeRound := d.LockedValue()
	require.Equal(t, types.NilValue, beforeValue)
	require.Equal(t, types.NoRound, beforeRound)

	// A late-arriving polka for v now lands while already in Precommit.
	d.ReceiveThresholdEvent(votekeeper.ThresholdEvent{Kind: votekeeper.PolkaValue, Height: 1, Round: 0, Value: v})

	lockedValue, lockedRound := d.LockedValue()
	require.Equal(t, types.NilValue, lockedValue, "a PolkaCurrent arriving after the round already moved to precommit must not retroactively lock")
	require.Equal(t, types.NoRound, lockedRound)

	validValue, validRound := d.ValidValue()
	require.Equal(t, v, validValue, "valid_value must still update regardless of step")
	require.Equal(t, types.Round(0), validRound)
}

func TestDecisionIsRecordedOnce(t *testing.T) {
	set, addrs := fourValidators(t)
	vk := votekeeper.New(5)
	vk.SetValidatorSet(1, set)
	vk.SetHeight(1, 0)
	d := New(1, set, addrs[0], vk)

	v := common.HexToHash("0xCAFE")
	var actions []statemachine.Action
	for i := 0; i < 3; i++ {
		events, _ := vk.AddVote(1, 0, votekeeper.Precommit, addrs[i], v)
		for _, ev := range events {
			actions = d.ReceiveThresholdEvent(ev)
		}
	}
	require.Len(t, actions, 1)
	require.Equal(t, statemachine.ActionDecide, actions[0].Kind)
	require.True(t, d.decided)

	// A repeat delivery of the same threshold event must not re-decide (I6).
	again := d.ReceiveThresholdEvent(votekeeper.ThresholdEvent{Kind: votekeeper.PrecommitValue, Height: 1, Round: 0, Value: v})
	require.Empty(t, again)
}
