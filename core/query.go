package core

import (
	"github.com/holiman/uint256"

	"grantchain/core/types"
	"grantchain/native/allocations"
	nativecommon "grantchain/native/common"
	"grantchain/native/grants"
	"grantchain/native/membership"
)

// AllocationStats summarises the allocation cap.
type AllocationStats struct {
	Consumed      *uint256.Int `json:"consumed"`
	Max           *uint256.Int `json:"max"`
	Remaining     *uint256.Int `json:"remaining"`
	MaxProofBytes uint32       `json:"maxProofBytes"`
	Count         uint64       `json:"count"`
}

// GrantView is a grantee's schedule evaluated at one height.
type GrantView struct {
	Rules  []grants.Rule `json:"rules"`
	Total  *uint256.Int  `json:"total"`
	Locked *uint256.Int  `json:"locked"`
	At     uint64        `json:"at"`
}

// Height returns the block height supplied by the host.
func (r *Runtime) Height() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manager.BlockHeight()
}

// Account returns the balance breakdown of addr at the current height.
func (r *Runtime) Account(addr [20]byte) (*types.AccountView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	balance, err := r.ledger.BalanceOf(addr)
	if err != nil {
		return nil, err
	}
	locked, err := r.ledger.Locked(addr)
	if err != nil {
		return nil, err
	}
	return &types.AccountView{
		Address:      addr,
		Balance:      balance,
		Locked:       locked,
		Transferable: nativecommon.SaturatingSub(balance, locked),
		Height:       r.ledger.CurrentBlock(),
	}, nil
}

// Members returns the sorted member list of role.
func (r *Runtime) Members(role membership.Role) ([][20]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.Members(role)
}

// AllocationStats reports consumed, cap and remaining amounts.
func (r *Runtime) AllocationStats() (*AllocationStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	consumed, err := r.allocations.CoinsConsumed()
	if err != nil {
		return nil, err
	}
	remaining, err := r.allocations.Remaining()
	if err != nil {
		return nil, err
	}
	count, err := r.allocations.Count()
	if err != nil {
		return nil, err
	}
	p := r.allocations.Params()
	return &AllocationStats{
		Consumed:      consumed,
		Max:           p.MaxCoinsEverAllocated,
		Remaining:     remaining,
		MaxProofBytes: p.MaxProofBytes,
		Count:         count,
	}, nil
}

// Allocation loads one allocation record by sequence number.
func (r *Runtime) Allocation(seq uint64) (*allocations.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocations.Record(seq)
}

// Grant evaluates addr's schedule at height at, or at the current height
// when at is nil.
func (r *Runtime) Grant(addr [20]byte, at *uint64) (*GrantView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	height := r.ledger.CurrentBlock()
	if at != nil {
		height = *at
	}
	rules, err := r.grants.Schedules(addr)
	if err != nil {
		return nil, err
	}
	total := new(uint256.Int)
	for _, rule := range rules {
		ruleTotal, err := rule.Total()
		if err != nil {
			return nil, err
		}
		if total, err = nativecommon.CheckedAdd(total, ruleTotal); err != nil {
			return nil, err
		}
	}
	locked, err := grants.LockedAt(rules, height)
	if err != nil {
		return nil, err
	}
	return &GrantView{Rules: rules, Total: total, Locked: locked, At: height}, nil
}

// Grantees lists every account that carries a vesting schedule.
func (r *Runtime) Grantees() ([][20]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grants.Grantees()
}
