package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"grantchain/core"
	"grantchain/crypto"
	"grantchain/native/allocations"
	"grantchain/native/common"
	"grantchain/native/grants"
	"grantchain/native/membership"
)

// GenesisSpec is the operator facing genesis document. Amounts are decimal
// strings in base units so they survive JSON and YAML without precision loss.
type GenesisSpec struct {
	GenesisTime string              `json:"genesisTime" yaml:"genesisTime"`
	Alloc       map[string]string   `json:"alloc,omitempty" yaml:"alloc,omitempty"`
	Roles       map[string][]string `json:"roles,omitempty" yaml:"roles,omitempty"`
	// Oracles is shorthand for roles.oracle; both lists are merged.
	Oracles []string              `json:"oracles,omitempty" yaml:"oracles,omitempty"`
	Grants  map[string][]RuleSpec `json:"grants,omitempty" yaml:"grants,omitempty"`
	// Vesting carries four-field (start, period, periodCount, perPeriod)
	// tuples with no separate cliff.
	Vesting     map[string][][4]string `json:"vesting,omitempty" yaml:"vesting,omitempty"`
	Allocations *AllocationsSpec       `json:"allocations,omitempty" yaml:"allocations,omitempty"`
	GrantParams *GrantParamsSpec       `json:"grantParams,omitempty" yaml:"grantParams,omitempty"`
	Pauses      *common.Pauses         `json:"pauses,omitempty" yaml:"pauses,omitempty"`

	genesisTimestamp time.Time
	resolved         core.Genesis
}

// RuleSpec is one vesting rule in genesis form.
type RuleSpec struct {
	Start       uint64 `json:"start" yaml:"start"`
	Cliff       string `json:"cliff,omitempty" yaml:"cliff,omitempty"`
	Period      uint64 `json:"period" yaml:"period"`
	PeriodCount uint32 `json:"periodCount" yaml:"periodCount"`
	PerPeriod   string `json:"perPeriod,omitempty" yaml:"perPeriod,omitempty"`
}

// AllocationsSpec configures the allocation ledger.
type AllocationsSpec struct {
	MaxCoinsEverAllocated string `json:"maxCoinsEverAllocated" yaml:"maxCoinsEverAllocated"`
	MaxProofBytes         uint32 `json:"maxProofBytes,omitempty" yaml:"maxProofBytes,omitempty"`
}

// GrantParamsSpec configures the vesting engine.
type GrantParamsSpec struct {
	MaxRulesPerAccount uint32 `json:"maxRulesPerAccount" yaml:"maxRulesPerAccount"`
}

// LoadGenesisSpec reads and validates a genesis document. Files ending in
// .yaml or .yml are decoded as YAML, everything else as JSON. Unknown fields
// are rejected in both formats.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		err = dec.Decode(&spec)
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&spec)
	}
	if err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// GenesisTimestamp returns the parsed genesis time. Only valid after Validate.
func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Resolved returns the state the spec describes. Only valid after Validate.
func (s *GenesisSpec) Resolved() core.Genesis { return s.resolved }

// Validate checks every field and resolves the document into typed state.
func (s *GenesisSpec) Validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	out := core.Genesis{
		Balances:  make(map[[20]byte]*uint256.Int, len(s.Alloc)),
		Roles:     make(map[membership.Role][][20]byte),
		Schedules: make(map[[20]byte][]grants.Rule),
	}

	for addr, amount := range s.Alloc {
		account, err := crypto.ParseAccount(addr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addr, err)
		}
		value, err := parseAmount(amount)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addr, err)
		}
		if _, dup := out.Balances[account]; dup {
			return fmt.Errorf("alloc %q: duplicate account", addr)
		}
		out.Balances[account] = value
	}

	for name, members := range s.Roles {
		role, err := membership.ParseRole(name)
		if err != nil {
			return fmt.Errorf("roles: %w", err)
		}
		accounts, err := parseAccounts(members)
		if err != nil {
			return fmt.Errorf("roles.%s: %w", role, err)
		}
		out.Roles[role] = append(out.Roles[role], accounts...)
	}
	if len(s.Oracles) > 0 {
		accounts, err := parseAccounts(s.Oracles)
		if err != nil {
			return fmt.Errorf("oracles: %w", err)
		}
		out.Roles[membership.RoleOracle] = append(out.Roles[membership.RoleOracle], accounts...)
	}

	for addr, rules := range s.Grants {
		account, err := crypto.ParseAccount(addr)
		if err != nil {
			return fmt.Errorf("grants %q: %w", addr, err)
		}
		for i, rs := range rules {
			rule, err := rs.Rule()
			if err != nil {
				return fmt.Errorf("grants %q rule %d: %w", addr, i, err)
			}
			out.Schedules[account] = append(out.Schedules[account], rule)
		}
	}
	for addr, tuples := range s.Vesting {
		account, err := crypto.ParseAccount(addr)
		if err != nil {
			return fmt.Errorf("vesting %q: %w", addr, err)
		}
		for i, tuple := range tuples {
			rule, err := legacyRule(tuple)
			if err != nil {
				return fmt.Errorf("vesting %q rule %d: %w", addr, i, err)
			}
			out.Schedules[account] = append(out.Schedules[account], rule)
		}
	}

	out.Allocations = allocations.DefaultParams()
	if s.Allocations != nil {
		maxCoins, err := parseAmount(s.Allocations.MaxCoinsEverAllocated)
		if err != nil {
			return fmt.Errorf("allocations.maxCoinsEverAllocated: %w", err)
		}
		out.Allocations.MaxCoinsEverAllocated = maxCoins
		if s.Allocations.MaxProofBytes != 0 {
			out.Allocations.MaxProofBytes = s.Allocations.MaxProofBytes
		}
	}
	if err := out.Allocations.Validate(); err != nil {
		return err
	}
	out.Grants = grants.DefaultParams()
	if s.GrantParams != nil {
		out.Grants.MaxRulesPerAccount = s.GrantParams.MaxRulesPerAccount
	}
	if err := out.Grants.Validate(); err != nil {
		return err
	}
	for account, rules := range out.Schedules {
		if uint64(len(rules)) > uint64(out.Grants.MaxRulesPerAccount) {
			return fmt.Errorf("grants %s: %w", crypto.AccountString(account), grants.ErrTooManySchedules)
		}
		if _, err := grants.LockedAt(rules, 0); err != nil {
			return fmt.Errorf("grants %s: %w", crypto.AccountString(account), err)
		}
	}
	if s.Pauses != nil {
		out.Pauses = *s.Pauses
	}

	s.genesisTimestamp = ts
	s.resolved = out
	return nil
}

// Rule converts the spec into a validated vesting rule.
func (r RuleSpec) Rule() (grants.Rule, error) {
	cliff, err := parseAmount(r.Cliff)
	if err != nil {
		return grants.Rule{}, fmt.Errorf("cliff: %w", err)
	}
	perPeriod, err := parseAmount(r.PerPeriod)
	if err != nil {
		return grants.Rule{}, fmt.Errorf("perPeriod: %w", err)
	}
	rule := grants.Rule{
		Start:       r.Start,
		Cliff:       cliff,
		Period:      r.Period,
		PeriodCount: r.PeriodCount,
		PerPeriod:   perPeriod,
	}
	return rule, rule.Validate()
}

func legacyRule(tuple [4]string) (grants.Rule, error) {
	start, err := strconv.ParseUint(strings.TrimSpace(tuple[0]), 10, 64)
	if err != nil {
		return grants.Rule{}, fmt.Errorf("start: %w", err)
	}
	period, err := strconv.ParseUint(strings.TrimSpace(tuple[1]), 10, 64)
	if err != nil {
		return grants.Rule{}, fmt.Errorf("period: %w", err)
	}
	count, err := strconv.ParseUint(strings.TrimSpace(tuple[2]), 10, 32)
	if err != nil {
		return grants.Rule{}, fmt.Errorf("periodCount: %w", err)
	}
	perPeriod, err := parseAmount(tuple[3])
	if err != nil {
		return grants.Rule{}, fmt.Errorf("perPeriod: %w", err)
	}
	rule := grants.LegacyRule(start, period, uint32(count), perPeriod)
	return rule, rule.Validate()
}

func parseAccounts(values []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(values))
	for _, value := range values {
		account, err := crypto.ParseAccount(value)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", value, err)
		}
		out = append(out, account)
	}
	return out, nil
}

func parseAmount(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
