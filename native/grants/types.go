package grants

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"grantchain/native/common"
)

var (
	// ErrInvalidSchedule rejects rules that can never be evaluated.
	ErrInvalidSchedule = errors.New("grants: invalid schedule")
	// ErrTooManySchedules bounds the per-account rule list.
	ErrTooManySchedules = errors.New("grants: too many schedules for account")
	// ErrSelfVested rejects a vested transfer whose source is the grantee.
	ErrSelfVested = errors.New("grants: cannot vest to self")
	// ErrArithmeticOverflow is returned when a rule total does not fit.
	ErrArithmeticOverflow = common.ErrArithmeticOverflow
)

// DefaultMaxRulesPerAccount caps how many rules a single grantee can carry.
const DefaultMaxRulesPerAccount uint32 = 64

// Params holds the governance controlled limits of the vesting engine.
type Params struct {
	MaxRulesPerAccount uint32 `json:"maxRulesPerAccount"`
}

// DefaultParams returns the limits used when nothing was configured.
func DefaultParams() Params {
	return Params{MaxRulesPerAccount: DefaultMaxRulesPerAccount}
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	if p.MaxRulesPerAccount == 0 {
		return fmt.Errorf("grants: maxRulesPerAccount must be positive")
	}
	return nil
}

// Rule is one unlock rule of a grantee's schedule. Cliff unlocks once at
// Start; afterwards PerPeriod unlocks at Start, Start+Period, ... for
// PeriodCount periods in total.
type Rule struct {
	Start       uint64       `json:"start"`
	Cliff       *uint256.Int `json:"cliff"`
	Period      uint64       `json:"period"`
	PeriodCount uint32       `json:"periodCount"`
	PerPeriod   *uint256.Int `json:"perPeriod"`
}

// LegacyRule maps the four-field (start, period, count, perPeriod) tuple onto
// a Rule with no separate cliff.
func LegacyRule(start, period uint64, count uint32, perPeriod *uint256.Int) Rule {
	return Rule{
		Start:       start,
		Cliff:       new(uint256.Int),
		Period:      period,
		PeriodCount: count,
		PerPeriod:   common.Amount(perPeriod),
	}
}

func (r Rule) normalized() Rule {
	return Rule{
		Start:       r.Start,
		Cliff:       common.Amount(r.Cliff),
		Period:      r.Period,
		PeriodCount: r.PeriodCount,
		PerPeriod:   common.Amount(r.PerPeriod),
	}
}

// Total returns cliff + periodCount*perPeriod.
func (r Rule) Total() (*uint256.Int, error) {
	periodic, err := common.CheckedMulUint64(r.PerPeriod, uint64(r.PeriodCount))
	if err != nil {
		return nil, err
	}
	return common.CheckedAdd(r.Cliff, periodic)
}

// Validate rejects rules with a zero period, rules that grant nothing and
// rules whose total overflows.
func (r Rule) Validate() error {
	if r.Period == 0 {
		return fmt.Errorf("%w: period must be positive", ErrInvalidSchedule)
	}
	total, err := r.Total()
	if err != nil {
		return err
	}
	if total.IsZero() {
		return fmt.Errorf("%w: rule grants nothing", ErrInvalidSchedule)
	}
	return nil
}
