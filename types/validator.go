package types

import (
	"errors"
	"sort"

	"github.com/holiman/uint256"
)

// Validator is a committee member at a given height: an address, a public
// key (opaque here — the SigningScheme interprets it) and a voting-power
// weight, which MUST be strictly positive (§3).
type Validator struct {
	Address     Address
	PublicKey   []byte
	VotingPower *uint256.Int
}

// ValidatorSet is the fixed committee for one height. Adjacent heights may
// use different sets (§3); the set itself never mutates once constructed.
type ValidatorSet struct {
	validators []Validator
	byAddress  map[Address]int
	total      *uint256.Int
}

var ErrZeroVotingPower = errors.New("types: validator with zero voting power")

// NewValidatorSet builds a set from an unordered validator slice, sorting by
// address so that every correct process derives the same committee order —
// the proposer function (see proposer.go) depends on a stable order.
func NewValidatorSet(vals []Validator) (*ValidatorSet, error) {
	cp := make([]Validator, len(vals))
	copy(cp, vals)
	sort.Slice(cp, func(i, j int) bool {
		return cp[i].Address.Hex() < cp[j].Address.Hex()
	})

	total := uint256.NewInt(0)
	byAddress := make(map[Address]int, len(cp))
	for i, v := range cp {
		if v.VotingPower == nil || v.VotingPower.IsZero() {
			return nil, ErrZeroVotingPower
		}
		byAddress[v.Address] = i
		total.Add(total, v.VotingPower)
	}
	return &ValidatorSet{validators: cp, byAddress: byAddress, total: total}, nil
}

func (vs *ValidatorSet) Len() int { return len(vs.validators) }

func (vs *ValidatorSet) Validators() []Validator {
	out := make([]Validator, len(vs.validators))
	copy(out, vs.validators)
	return out
}

func (vs *ValidatorSet) ByIndex(i int) (Validator, bool) {
	if i < 0 || i >= len(vs.validators) {
		return Validator{}, false
	}
	return vs.validators[i], true
}

func (vs *ValidatorSet) IndexOf(addr Address) (int, bool) {
	i, ok := vs.byAddress[addr]
	return i, ok
}

func (vs *ValidatorSet) Get(addr Address) (Validator, bool) {
	i, ok := vs.byAddress[addr]
	if !ok {
		return Validator{}, false
	}
	return vs.validators[i], true
}

// TotalVotingPower is T_h (§3).
func (vs *ValidatorSet) TotalVotingPower() *uint256.Int {
	return new(uint256.Int).Set(vs.total)
}

// Quorum is Q(h) = ⌊2·T_h/3⌋ + 1, the super-majority threshold.
func (vs *ValidatorSet) Quorum() *uint256.Int {
	return quorum(vs.total)
}

// SkipThreshold is q(h) = ⌊T_h/3⌋ + 1, the honest-witness / skip-round
// threshold.
func (vs *ValidatorSet) SkipThreshold() *uint256.Int {
	return skipThreshold(vs.total)
}

func quorum(total *uint256.Int) *uint256.Int {
	two := uint256.NewInt(2)
	three := uint256.NewInt(3)
	num := new(uint256.Int).Mul(total, two)
	q := new(uint256.Int).Div(num, three)
	return q.AddUint64(q, 1)
}

func skipThreshold(total *uint256.Int) *uint256.Int {
	three := uint256.NewInt(3)
	q := new(uint256.Int).Div(total, three)
	return q.AddUint64(q, 1)
}

// HasQuorum reports whether power meets or exceeds Q(h).
func (vs *ValidatorSet) HasQuorum(power *uint256.Int) bool {
	return power.Cmp(vs.Quorum()) >= 0
}

// HasSkipThreshold reports whether power meets or exceeds q(h).
func (vs *ValidatorSet) HasSkipThreshold(power *uint256.Int) bool {
	return power.Cmp(vs.SkipThreshold()) >= 0
}
