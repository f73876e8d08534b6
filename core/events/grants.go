package events

import (
	"github.com/holiman/uint256"

	"grantchain/core/types"
)

const (
	// TypeScheduleAdded is emitted when vesting rules are appended to a grantee.
	TypeScheduleAdded = "grants.schedule_added"
	// TypeVestedTransfer is emitted when funds move into a new vesting rule.
	TypeVestedTransfer = "grants.vested_transfer"
)

type ScheduleAdded struct {
	Grantee [20]byte
	Rules   int
	Total   *uint256.Int
}

func (ScheduleAdded) EventType() string { return TypeScheduleAdded }

func (e ScheduleAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeScheduleAdded,
		Attributes: map[string]string{
			"grantee": formatAccount(e.Grantee),
			"rules":   formatUint(uint64(e.Rules)),
			"total":   formatAmount(e.Total),
		},
	}
}

type VestedTransfer struct {
	From   [20]byte
	To     [20]byte
	Amount *uint256.Int
	Start  uint64
}

func (VestedTransfer) EventType() string { return TypeVestedTransfer }

func (e VestedTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeVestedTransfer,
		Attributes: map[string]string{
			"from":   formatAccount(e.From),
			"to":     formatAccount(e.To),
			"amount": formatAmount(e.Amount),
			"start":  formatUint(e.Start),
		},
	}
}
