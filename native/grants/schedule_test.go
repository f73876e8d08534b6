package grants

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func amt(v uint64) *uint256.Int { return uint256.NewInt(v) }

func requireLocked(t *testing.T, rules []Rule, at uint64, want uint64) {
	t.Helper()
	got, err := LockedAt(rules, at)
	require.NoError(t, err)
	require.Equal(t, want, got.Uint64(), "locked at %d", at)
}

func TestCliffRuleUnlocksAtStart(t *testing.T) {
	cliff := []Rule{LegacyRule(1000, 1, 1, amt(1000))}
	requireLocked(t, cliff, 0, 1000)
	requireLocked(t, cliff, 999, 1000)
	requireLocked(t, cliff, 1000, 0)
	requireLocked(t, cliff, 5000, 0)
}

func TestExplicitCliffField(t *testing.T) {
	rule := Rule{Start: 1000, Cliff: amt(1000), Period: 1}
	require.NoError(t, rule.Validate())
	requireLocked(t, []Rule{rule}, 999, 1000)
	requireLocked(t, []Rule{rule}, 1000, 0)
}

func TestLinearRule(t *testing.T) {
	linear := LegacyRule(2000, 1000, 100, amt(100))
	unlocked := func(at uint64) uint64 {
		v, err := linear.Unlocked(at)
		require.NoError(t, err)
		return v.Uint64()
	}
	require.Equal(t, uint64(0), unlocked(1999))
	require.Equal(t, uint64(100), unlocked(2000))
	require.Equal(t, uint64(100), unlocked(2999))
	require.Equal(t, uint64(200), unlocked(3000))
	require.Equal(t, uint64(10_000), unlocked(102_000))
	require.Equal(t, uint64(10_000), unlocked(1_000_000))
	at, ok := linear.FullyVestedAt()
	require.True(t, ok)
	require.Equal(t, uint64(101_000), at)
}

func TestRulesAreSummed(t *testing.T) {
	rules := []Rule{
		LegacyRule(1000, 1, 1, amt(1000)),
		LegacyRule(2000, 1000, 100, amt(100)),
	}
	requireLocked(t, rules, 999, 11_000)
	requireLocked(t, rules, 1000, 10_000)
	requireLocked(t, rules, 2000, 9_900)
	requireLocked(t, rules, 3000, 9_800)
	requireLocked(t, rules, 102_000, 0)
}

func TestLockedNeverIncreases(t *testing.T) {
	rules := []Rule{
		{Start: 10, Cliff: amt(7), Period: 3, PeriodCount: 5, PerPeriod: amt(11)},
		LegacyRule(0, 1, 4, amt(2)),
		LegacyRule(25, 7, 2, amt(9)),
	}
	total := uint64(7 + 5*11 + 4*2 + 2*9)
	prev := total
	for at := uint64(0); at < 80; at++ {
		got, err := LockedAt(rules, at)
		require.NoError(t, err)
		require.LessOrEqual(t, got.Uint64(), prev, "height %d", at)
		require.LessOrEqual(t, got.Uint64(), total)
		prev = got.Uint64()
	}
	require.Zero(t, prev)
}

func TestRuleValidation(t *testing.T) {
	cases := []struct {
		name string
		rule Rule
		want error
	}{
		{"zero period", LegacyRule(1, 0, 1, amt(1)), ErrInvalidSchedule},
		{"grants nothing", LegacyRule(1, 1, 0, amt(5)), ErrInvalidSchedule},
		{"zero amounts", Rule{Start: 1, Period: 1, PeriodCount: 3}, ErrInvalidSchedule},
		{"overflow", LegacyRule(1, 1, 2, new(uint256.Int).SetAllOne()), ErrArithmeticOverflow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFullyVestedAtEdges(t *testing.T) {
	cliffOnly := Rule{Start: 210, Cliff: amt(5), Period: 7, PeriodCount: 4}
	at, ok := cliffOnly.FullyVestedAt()
	require.True(t, ok)
	require.Equal(t, uint64(210), at)
	requireLocked(t, []Rule{cliffOnly}, at, 0)

	huge := Rule{Start: 10, Period: 1 << 62, PeriodCount: 8, PerPeriod: amt(1)}
	_, ok = huge.FullyVestedAt()
	require.False(t, ok)

	edge := Rule{Start: ^uint64(0) - 5, Period: 3, PeriodCount: 3, PerPeriod: amt(1)}
	_, ok = edge.FullyVestedAt()
	require.False(t, ok)

	last := Rule{Start: ^uint64(0) - 6, Period: 3, PeriodCount: 3, PerPeriod: amt(1)}
	at, ok = last.FullyVestedAt()
	require.True(t, ok)
	require.Equal(t, ^uint64(0), at)
	requireLocked(t, []Rule{last}, at, 0)
	requireLocked(t, []Rule{last}, at-1, 1)
}

func TestCliffOnlyRuleNeedsPositivePeriod(t *testing.T) {
	cliff := Rule{Start: 1000, Cliff: amt(1000), Period: 1}
	require.NoError(t, cliff.Validate())
	requireLocked(t, []Rule{cliff}, 999, 1000)
	requireLocked(t, []Rule{cliff}, 1000, 0)

	cliff.Period = 0
	require.ErrorIs(t, cliff.Validate(), ErrInvalidSchedule)
	require.ErrorIs(t, Rule{Start: 1000, Period: 1, PerPeriod: amt(5)}.Validate(), ErrInvalidSchedule)
}
