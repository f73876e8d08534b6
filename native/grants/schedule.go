package grants

import (
	"math/bits"

	"github.com/holiman/uint256"

	"grantchain/native/common"
)

// Unlocked returns how much of the rule is released at block height at.
// Nothing is released before Start. From Start on the cliff is released along
// with one period per elapsed Period, the first one at Start itself.
func (r Rule) Unlocked(at uint64) (*uint256.Int, error) {
	rule := r.normalized()
	if at < rule.Start || rule.Period == 0 {
		return new(uint256.Int), nil
	}
	periods := (at-rule.Start)/rule.Period + 1
	if periods > uint64(rule.PeriodCount) {
		periods = uint64(rule.PeriodCount)
	}
	periodic, err := common.CheckedMulUint64(rule.PerPeriod, periods)
	if err != nil {
		return nil, err
	}
	return common.CheckedAdd(rule.Cliff, periodic)
}

// Locked returns the part of the rule still locked at block height at.
func (r Rule) Locked(at uint64) (*uint256.Int, error) {
	rule := r.normalized()
	total, err := rule.Total()
	if err != nil {
		return nil, err
	}
	unlocked, err := rule.Unlocked(at)
	if err != nil {
		return nil, err
	}
	return common.SaturatingSub(total, unlocked), nil
}

// LockedAt sums the locked contribution of every rule at block height at. It
// is a pure function of its inputs.
func LockedAt(rules []Rule, at uint64) (*uint256.Int, error) {
	sum := new(uint256.Int)
	for _, rule := range rules {
		locked, err := rule.Locked(at)
		if err != nil {
			return nil, err
		}
		if sum, err = common.CheckedAdd(sum, locked); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

// FullyVestedAt returns the first height at which the rule has nothing left
// locked. ok is false when no such height fits in a uint64.
func (r Rule) FullyVestedAt() (height uint64, ok bool) {
	rule := r.normalized()
	if rule.PeriodCount == 0 || rule.PerPeriod.IsZero() {
		return rule.Start, true
	}
	if rule.Period == 0 {
		return 0, false
	}
	hi, offset := bits.Mul64(uint64(rule.PeriodCount-1), rule.Period)
	if hi != 0 {
		return 0, false
	}
	height, carry := bits.Add64(rule.Start, offset, 0)
	if carry != 0 {
		return 0, false
	}
	return height, true
}
