package types

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Proposer selects the proposer for (h, r): a deterministic, pure function
// of the validator set and the round (§4.3). It must be reproducible
// bit-for-bit across implementations that share this wire format, so the
// algorithm below is pinned, not merely "some weighted round robin":
//
//  1. Seed = Keccak256(height || round-independent set fingerprint). The set
//     fingerprint is the concatenation of each validator's address in
//     ValidatorSet order, matching the handler.go precedent of hashing
//     message payloads with Keccak256 to get a deterministic, collision
//     resistant index (grounded on consensus/tendermint/core/handler.go's
//     common.BytesToHash(autonitycrypto.Keccak256(payload)) pattern).
//  2. A running cursor walks the validator list in order, weighted by voting
//     power: for round r, the proposer is the validator at the position
//     (seed + prioritySum(r)) mod T_h maps into, where prioritySum(r)
//     advances by the seed-derived per-round stride. This keeps selection
//     frequency proportional to voting power over a long sequence of
//     heights and guarantees every validator recurs within a bounded
//     round window (eventual fairness), since the stride is forced odd,
//     reduced mod T_h and then stepped up until it is coprime with T_h.
func Proposer(set *ValidatorSet, height Height, round Round) (Validator, bool) {
	if set.Len() == 0 {
		return Validator{}, false
	}
	total := set.TotalVotingPower()
	if total.IsZero() {
		return Validator{}, false
	}

	seed := proposerSeed(set, height)
	stride := new(uint256.Int).Or(seed, uint256.NewInt(1)) // force odd
	stride.Mod(stride, total)
	for {
		// gcd(stride, total) by Euclid; step until it is 1.
		a, b := new(uint256.Int).Set(stride), new(uint256.Int).Set(total)
		for !b.IsZero() {
			a, b = b, new(uint256.Int).Mod(a, b)
		}
		if a.IsUint64() && a.Uint64() == 1 {
			break
		}
		stride.AddUint64(stride, 1)
	}

	cursor := new(uint256.Int).Mod(seed, total)
	if round > 0 {
		advance := new(uint256.Int).Mul(stride, uint256.NewInt(uint64(round)))
		advance.Mod(advance, total)
		cursor.Add(cursor, advance)
		cursor.Mod(cursor, total)
	}

	running := uint256.NewInt(0)
	for _, v := range set.Validators() {
		running.Add(running, v.VotingPower)
		if cursor.Lt(running) {
			return v, true
		}
	}
	// Unreachable unless voting powers are inconsistent with total.
	return set.validators[len(set.validators)-1], true
}

func proposerSeed(set *ValidatorSet, height Height) *uint256.Int {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(height))
	for _, v := range set.Validators() {
		buf = append(buf, v.Address.Bytes()...)
	}
	h := crypto.Keccak256(buf)
	return new(uint256.Int).SetBytes(h)
}
