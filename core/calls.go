package core

import (
	"github.com/holiman/uint256"

	"grantchain/native/allocations"
	"grantchain/native/common"
	"grantchain/native/grants"
	"grantchain/native/membership"
)

// Call is one state transition request handed to Runtime.Apply.
type Call interface {
	Kind() string
}

// AllocateCall mints Amount to Grantee on behalf of an oracle.
type AllocateCall struct {
	Oracle  [20]byte
	Grantee [20]byte
	Amount  *uint256.Int
	Proof   []byte
}

func (AllocateCall) Kind() string { return "allocate" }

// SetMembersCall replaces a role's member set. Caller must be on the root
// committee.
type SetMembersCall struct {
	Caller  [20]byte
	Role    membership.Role
	Members [][20]byte
}

func (SetMembersCall) Kind() string { return "set_members" }

// AddScheduleCall appends vesting rules to Grantee. Caller must be on the root
// committee.
type AddScheduleCall struct {
	Caller  [20]byte
	Grantee [20]byte
	Rules   []grants.Rule
}

func (AddScheduleCall) Kind() string { return "add_schedule" }

// VestedTransferCall moves funds from From to To behind the given rules.
type VestedTransferCall struct {
	From  [20]byte
	To    [20]byte
	Rules []grants.Rule
}

func (VestedTransferCall) Kind() string { return "vested_transfer" }

// TransferCall is a plain native transfer, subject to vesting locks.
type TransferCall struct {
	From   [20]byte
	To     [20]byte
	Amount *uint256.Int
}

func (TransferCall) Kind() string { return "transfer" }

// SetBlockCall advances the block height. Only the root committee may
// call it; heights never go backwards.
type SetBlockCall struct {
	Caller [20]byte
	Height uint64
}

func (SetBlockCall) Kind() string { return "set_block" }

// SetPausesCall toggles module pauses. Caller must be on the root committee.
type SetPausesCall struct {
	Caller [20]byte
	Pauses common.Pauses
}

func (SetPausesCall) Kind() string { return "set_pauses" }

// SetAllocationParamsCall replaces the allocation ledger limits. The new cap
// may not be below what was already allocated.
type SetAllocationParamsCall struct {
	Caller [20]byte
	Params allocations.Params
}

func (SetAllocationParamsCall) Kind() string { return "set_allocation_params" }

// SetGrantParamsCall replaces the vesting engine limits.
type SetGrantParamsCall struct {
	Caller [20]byte
	Params grants.Params
}

func (SetGrantParamsCall) Kind() string { return "set_grant_params" }
