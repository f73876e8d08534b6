package core

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"grantchain/native/allocations"
	nativecommon "grantchain/native/common"
	"grantchain/native/grants"
	"grantchain/native/membership"
)

// Genesis is the resolved initial state handed over by the bootstrap
// configuration. Map iteration order never leaks into state: every
// collection is written in bytewise account order.
type Genesis struct {
	Balances    map[[20]byte]*uint256.Int
	Roles       map[membership.Role][][20]byte
	Schedules   map[[20]byte][]grants.Rule
	Allocations allocations.Params
	Grants      grants.Params
	Pauses      nativecommon.Pauses
}

func sortedAccounts[V any](m map[[20]byte]V) [][20]byte {
	keys := make([][20]byte, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
	return keys
}

// ApplyGenesis writes the initial state, commits it at height zero and
// returns the genesis root. It refuses to run twice on the same database.
func (r *Runtime) ApplyGenesis(gen Genesis) (common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	applied, err := r.manager.GenesisApplied()
	if err != nil {
		return common.Hash{}, err
	}
	if applied {
		return common.Hash{}, ErrGenesisExists
	}
	for role := range gen.Roles {
		if _, err := membership.ParseRole(string(role)); err != nil {
			return common.Hash{}, fmt.Errorf("genesis: %w", err)
		}
	}
	err = r.transact(func() error {
		if err := r.params.SetAllocations(gen.Allocations); err != nil {
			return fmt.Errorf("genesis: allocation params: %w", err)
		}
		if err := r.params.SetGrants(gen.Grants); err != nil {
			return fmt.Errorf("genesis: grant params: %w", err)
		}
		if err := r.params.SetPauses(gen.Pauses); err != nil {
			return fmt.Errorf("genesis: pauses: %w", err)
		}
		if err := r.loadParams(); err != nil {
			return err
		}
		for _, role := range membership.Roles() {
			members, ok := gen.Roles[role]
			if !ok {
				continue
			}
			if err := r.registry.SetMembers(role, members); err != nil {
				return fmt.Errorf("genesis: %w", err)
			}
		}
		for _, account := range sortedAccounts(gen.Balances) {
			if err := r.ledger.Credit(account, gen.Balances[account]); err != nil {
				return fmt.Errorf("genesis: balance %x: %w", account, err)
			}
		}
		for _, account := range sortedAccounts(gen.Schedules) {
			if err := r.grants.AddSchedule(account, gen.Schedules[account]); err != nil {
				return fmt.Errorf("genesis: schedule %x: %w", account, err)
			}
		}
		return r.manager.MarkGenesisApplied()
	})
	if err != nil {
		return common.Hash{}, err
	}
	return r.commitLocked()
}
