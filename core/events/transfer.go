package events

import (
	"github.com/holiman/uint256"

	"grantchain/core/types"
)

const (
	// TypeTransfer is emitted for native balance movements between accounts.
	TypeTransfer = "transfer.native"
)

type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *uint256.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTransfer,
		Attributes: map[string]string{
			"from":   formatAccount(e.From),
			"to":     formatAccount(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}
