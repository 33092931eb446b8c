// Package votekeeper implements C1: tallying votes by voting power across
// heights and rounds and emitting threshold events exactly once per
// threshold per (h, r[, id]) (spec.md §4.1). It never blocks and never
// rejects a vote outright — invalid signatures are filtered upstream by the
// driver/kernel (§4.1 "Failure semantics").
package votekeeper

import (
	mapset "github.com/deckarep/golang-set"
	"github.com/holiman/uint256"

	"github.com/bft-core/engine/message"
	"github.com/bft-core/engine/types"
)

// VoteKind mirrors message.Kind so this package stays independent of the
// wire codec (it only needs to distinguish prevote/precommit, not decode
// anything).
type VoteKind = message.Kind

const (
	Prevote   = message.KindPrevote
	Precommit = message.KindPrecommit
)

// roundTally holds, for one (h, r), every distinct vote seen and the
// summed voting power per (kind, value), plus which thresholds already
// fired — the emission-exactly-once bookkeeping B1 requires.
type roundTally struct {
	// votes[kind][signer] = the (single retained) value that signer voted
	// for, used to detect a second, differing vote from the same signer
	// (equivocation) without double counting power.
	votes map[VoteKind]map[types.Address]types.ValueID

	// power[kind][value] is the summed voting power of distinct signers
	// for that (kind, value).
	power map[VoteKind]map[types.ValueID]*uint256.Int

	// anyPower[kind] is the summed voting power of distinct signers for
	// that kind across any value (including nil) — needed for PolkaAny /
	// PrecommitAny, which count a prevote for v and a prevote for v' as
	// contributing to the same total.
	anyPower map[VoteKind]*uint256.Int
	anySet   map[VoteKind]mapset.Set // set of addresses counted in anyPower, for dedup

	// jointSigners is the union of prevote+precommit signers for this
	// round, used for SkipRound under the "joint signer set" reading of O2.
	jointSigners mapset.Set

	fired map[ThresholdEventKind]map[types.ValueID]bool
}

func newRoundTally() *roundTally {
	rt := &roundTally{
		votes:        map[VoteKind]map[types.Address]types.ValueID{Prevote: {}, Precommit: {}},
		power:        map[VoteKind]map[types.ValueID]*uint256.Int{Prevote: {}, Precommit: {}},
		anyPower:     map[VoteKind]*uint256.Int{Prevote: uint256.NewInt(0), Precommit: uint256.NewInt(0)},
		anySet:       map[VoteKind]mapset.Set{Prevote: mapset.NewSet(), Precommit: mapset.NewSet()},
		jointSigners: mapset.NewSet(),
		fired:        map[ThresholdEventKind]map[types.ValueID]bool{},
	}
	return rt
}

func (rt *roundTally) markFired(kind ThresholdEventKind, value types.ValueID) bool {
	if rt.fired[kind] == nil {
		rt.fired[kind] = map[types.ValueID]bool{}
	}
	if rt.fired[kind][value] {
		return false
	}
	rt.fired[kind][value] = true
	return true
}

// Keeper tallies votes for a bounded window of heights around the current
// one (§4.1 "Memory policy").
type Keeper struct {
	sets    map[types.Height]*types.ValidatorSet
	tallies map[types.Height]map[types.Round]*roundTally
	// currentHeight and currentRound gate SkipRound's "r' > round" clause.
	currentHeight types.Height
	currentRound  types.Round
	maxFutureH    types.Height
}

// New creates a Keeper; maxFutureHeights bounds how many heights ahead of
// current may be buffered (§4.1 "bounded window of future heights").
func New(maxFutureHeights types.Height) *Keeper {
	return &Keeper{
		sets:       map[types.Height]*types.ValidatorSet{},
		tallies:    map[types.Height]map[types.Round]*roundTally{},
		maxFutureH: maxFutureHeights,
	}
}

// SetValidatorSet registers the committee for h, required before any vote
// for h can be tallied (power lookups need it).
func (k *Keeper) SetValidatorSet(h types.Height, set *types.ValidatorSet) {
	k.sets[h] = set
}

// SetHeight advances the keeper's notion of "current height/round", gating
// SkipRound and the future-height window AddVote accepts.
func (k *Keeper) SetHeight(h types.Height, r types.Round) {
	k.currentHeight = h
	k.currentRound = r
}

func (k *Keeper) tallyFor(h types.Height, r types.Round) *roundTally {
	rounds, ok := k.tallies[h]
	if !ok {
		rounds = map[types.Round]*roundTally{}
		k.tallies[h] = rounds
	}
	rt, ok := rounds[r]
	if !ok {
		rt = newRoundTally()
		rounds[r] = rt
	}
	return rt
}

// AddVote tallies one vote and returns the set of threshold events that
// crossed for the first time as a result (possibly empty). Duplicates
// (same signer, kind, round, value) are no-ops (RT3); a second, differing
// vote from the same signer is retained as equivocation evidence via the
// returned EquivocationEvidence, but its power is not counted twice.
func (k *Keeper) AddVote(h types.Height, r types.Round, kind VoteKind, signer types.Address, value types.ValueID) ([]ThresholdEvent, *EquivocationEvidence) {
	if h > k.currentHeight+k.maxFutureH {
		return nil, nil // out of the buffering window; caller should have dropped this earlier
	}
	set, ok := k.sets[h]
	if !ok {
		return nil, nil // unknown validator set: cannot weigh the vote (GetValidatorSet effect returned None)
	}
	power, ok := votingPower(set, signer)
	if !ok {
		return nil, nil // B3: signer not in the validator set at h
	}

	rt := k.tallyFor(h, r)

	var equiv *EquivocationEvidence
	if prior, seen := rt.votes[kind][signer]; seen {
		if prior == value {
			return nil, nil // exact duplicate, RT3
		}
		equiv = &EquivocationEvidence{Height: h, Round: r, Kind: kind, Signer: signer, First: prior, Second: value}
		// Power was already counted for `prior`; do not count `value` too.
		rt.jointSigners.Add(signer)
		return k.checkThresholds(h, r, set), equiv
	}
	rt.votes[kind][signer] = value

	if rt.power[kind][value] == nil {
		rt.power[kind][value] = uint256.NewInt(0)
	}
	rt.power[kind][value].Add(rt.power[kind][value], power)

	if !rt.anySet[kind].Contains(signer) {
		rt.anySet[kind].Add(signer)
		rt.anyPower[kind].Add(rt.anyPower[kind], power)
	}
	rt.jointSigners.Add(signer)

	return k.checkThresholds(h, r, set), nil
}

func votingPower(set *types.ValidatorSet, addr types.Address) (*uint256.Int, bool) {
	v, ok := set.Get(addr)
	if !ok {
		return nil, false
	}
	return v.VotingPower, true
}

func (k *Keeper) checkThresholds(h types.Height, r types.Round, set *types.ValidatorSet) []ThresholdEvent {
	rt := k.tallyFor(h, r)
	var events []ThresholdEvent

	if set.HasQuorum(rt.anyPower[Prevote]) && rt.markFired(PolkaAny, types.NilValue) {
		events = append(events, ThresholdEvent{Kind: PolkaAny, Height: h, Round: r})
	}
	if nilPower, ok := rt.power[Prevote][types.NilValue]; ok && set.HasQuorum(nilPower) && rt.markFired(PolkaNil, types.NilValue) {
		events = append(events, ThresholdEvent{Kind: PolkaNil, Height: h, Round: r})
	}
	for value, p := range rt.power[Prevote] {
		if value == types.NilValue {
			continue
		}
		if set.HasQuorum(p) && rt.markFired(PolkaValue, value) {
			events = append(events, ThresholdEvent{Kind: PolkaValue, Height: h, Round: r, Value: value})
		}
	}

	if set.HasQuorum(rt.anyPower[Precommit]) && rt.markFired(PrecommitAny, types.NilValue) {
		events = append(events, ThresholdEvent{Kind: PrecommitAny, Height: h, Round: r})
	}
	for value, p := range rt.power[Precommit] {
		if value == types.NilValue {
			continue
		}
		if set.HasQuorum(p) && rt.markFired(PrecommitValue, value) {
			events = append(events, ThresholdEvent{Kind: PrecommitValue, Height: h, Round: r, Value: value})
		}
	}

	if r > k.currentRound && h == k.currentHeight {
		if joint := jointPower(set, rt.jointSigners); set.HasSkipThreshold(joint) && rt.markFired(SkipRound, types.NilValue) {
			events = append(events, ThresholdEvent{Kind: SkipRound, Height: h, Round: r})
		}
	}

	return events
}

// jointPower sums the voting power of every address in signers — O2's
// "together" reading of the skip-round threshold: prevote and precommit
// signers for the future round are counted as one joint set, not two
// separate tallies.
func jointPower(set *types.ValidatorSet, signers mapset.Set) *uint256.Int {
	total := uint256.NewInt(0)
	for _, addr := range signers.ToSlice() {
		if p, ok := votingPower(set, addr.(types.Address)); ok {
			total.Add(total, p)
		}
	}
	return total
}

// ThresholdFor answers a point query without mutating state: does (h, r,
// kind, value) currently hold a quorum? value == nil checks "any".
func (k *Keeper) ThresholdFor(h types.Height, r types.Round, kind VoteKind, value *types.ValueID) bool {
	rounds, ok := k.tallies[h]
	if !ok {
		return false
	}
	rt, ok := rounds[r]
	if !ok {
		return false
	}
	set, ok := k.sets[h]
	if !ok {
		return false
	}
	if value == nil {
		return set.HasQuorum(rt.anyPower[kind])
	}
	p, ok := rt.power[kind][*value]
	if !ok {
		return false
	}
	return set.HasQuorum(p)
}

// PruneBelow discards tallies for heights at or below h and the validator
// sets that back them — spec.md §4.1's "votes for past heights... may be
// pruned".
func (k *Keeper) PruneBelow(h types.Height) {
	for height := range k.tallies {
		if height <= h {
			delete(k.tallies, height)
			delete(k.sets, height)
		}
	}
}
