package genesis

import (
	"time"

	"github.com/holiman/uint256"

	"grantchain/crypto"
	"grantchain/native/membership"
)

// Unit is one whole coin in base units.
const Unit uint64 = 1_000_000_000_000

// DevnetEndowment is the balance every devnet participant starts with.
var DevnetEndowment = new(uint256.Int).Mul(uint256.NewInt(100), uint256.NewInt(Unit))

// DevnetGrant is the launch grant given to the first oracle when no grants
// are supplied: a 1000 coin cliff at block 1000, then 100 coins every 1000
// blocks for 100 periods starting at block 2000.
func DevnetGrant() []RuleSpec {
	return []RuleSpec{
		{Start: 1_000, Cliff: units(1_000), Period: 1, PeriodCount: 0},
		{Start: 2_000, Period: 1_000, PeriodCount: 100, PerPeriod: units(100)},
	}
}

func units(n uint64) string {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(Unit)).Dec()
}

// DevnetSpec builds a local network genesis. Roots sit on the technical,
// financial and root committees; oracles form the oracle set. Every endowed,
// oracle and root account receives DevnetEndowment. When grants is nil the
// first oracle receives DevnetGrant.
func DevnetSpec(roots, oracles, endowed [][20]byte, grants map[[20]byte][]RuleSpec) *GenesisSpec {
	spec := &GenesisSpec{
		GenesisTime: time.Unix(0, 0).UTC().Format(time.RFC3339),
		Alloc:       make(map[string]string),
		Roles:       make(map[string][]string),
		Grants:      make(map[string][]RuleSpec),
		Allocations: &AllocationsSpec{MaxCoinsEverAllocated: units(1_000_000_000)},
	}
	endowment := DevnetEndowment.Dec()
	for _, group := range [][][20]byte{endowed, oracles, roots} {
		for _, account := range group {
			spec.Alloc[crypto.AccountString(account)] = endowment
		}
	}
	rootAddrs := accountStrings(roots)
	for _, role := range []membership.Role{membership.RoleTechnical, membership.RoleFinancial, membership.RoleRoot} {
		spec.Roles[role.String()] = rootAddrs
	}
	spec.Roles[membership.RoleOracle.String()] = accountStrings(oracles)

	if grants == nil && len(oracles) > 0 {
		grants = map[[20]byte][]RuleSpec{oracles[0]: DevnetGrant()}
	}
	for account, rules := range grants {
		spec.Grants[crypto.AccountString(account)] = rules
	}
	return spec
}

func accountStrings(accounts [][20]byte) []string {
	out := make([]string, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, crypto.AccountString(account))
	}
	return out
}
