package statemachine

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/bft-core/engine/types"
)

func TestLuckyPath(t *testing.T) {
	v := common.HexToHash("0xCAFE")
	s := NewState()

	s, actions := Apply(s, Event{Kind: EvNewRound, Round: 0, IsSelf: true})
	require.Equal(t, types.StepPropose, s.Step)
	require.Len(t, actions, 2)

	s, actions = Apply(s, Event{Kind: EvProposal, Round: 0, Value: v, ValidRound: types.NoRound, Valid: true})
	require.Equal(t, types.StepPrevote, s.Step)
	require.Equal(t, ActionBroadcastPrevote, actions[0].Kind)
	require.Equal(t, v, actions[0].Value)

	s, actions = Apply(s, Event{Kind: EvPolkaCurrent, Round: 0, Value: v})
	require.Equal(t, types.StepPrecommit, s.Step)
	require.Equal(t, ActionBroadcastPrecommit, actions[0].Kind)
	require.Equal(t, v, actions[0].Value)

	s, actions = Apply(s, Event{Kind: EvProposalAndPrecommitValue, Round: 0, Value: v})
	require.Equal(t, types.StepCommit, s.Step)
	require.Equal(t, ActionDecide, actions[0].Kind)
}

func TestTimeoutProposeMovesToNilPrevote(t *testing.T) {
	s := NewState()
	s, _ = Apply(s, Event{Kind: EvNewRound, Round: 0, IsSelf: false})
	s, actions := Apply(s, Event{Kind: EvTimeoutPropose, TimeoutRound: 0})
	require.Equal(t, types.StepPrevote, s.Step)
	require.Equal(t, types.NilValue, actions[0].Value)
}

func TestStaleTimeoutIsNoOp(t *testing.T) {
	s := NewState()
	s, _ = Apply(s, Event{Kind: EvNewRound, Round: 1, IsSelf: false})
	before := s
	s, actions := Apply(s, Event{Kind: EvTimeoutPropose, TimeoutRound: 0}) // stale: round 0 != current round 1
	require.Equal(t, before, s)
	require.Empty(t, actions)
}

func TestPrecommitTimeoutStartsNextRound(t *testing.T) {
	s := State{Round: 0, Step: types.StepPrecommit}
	s, actions := Apply(s, Event{Kind: EvTimeoutPrecommit, TimeoutRound: 0})
	require.Equal(t, types.Round(1), s.Round)
	require.Equal(t, types.StepUnstarted, s.Step)
	require.Equal(t, ActionStartRound, actions[0].Kind)
}

func TestSkipRoundJumpsForward(t *testing.T) {
	s := State{Round: 0, Step: types.StepPrevote}
	s, actions := Apply(s, Event{Kind: EvSkipRound, Round: 5})
	require.Equal(t, types.Round(5), s.Round)
	require.Equal(t, types.StepUnstarted, s.Step)
	require.Equal(t, types.Round(5), actions[0].Round)
}

func TestDecisionIsFrozen(t *testing.T) {
	v := common.HexToHash("0xCAFE")
	s := State{Round: 0, Step: types.StepCommit}
	before := s
	s, actions := Apply(s, Event{Kind: EvProposalAndPrecommitValue, Round: 1, Value: v})
	require.Equal(t, before, s)
	require.Empty(t, actions)
}

func TestPolkaCurrentFiresOnlyOnce(t *testing.T) {
	v := common.HexToHash("0xCAFE")
	s := State{Round: 0, Step: types.StepPrevote}
	s, actions := Apply(s, Event{Kind: EvPolkaCurrent, Round: 0, Value: v})
	require.Equal(t, types.StepPrecommit, s.Step)
	require.Len(t, actions, 1)

	s, actions = Apply(s, Event{Kind: EvPolkaCurrent, Round: 0, Value: v})
	require.Empty(t, actions, "line 36 guard prevents a second firing in the same round")
}
