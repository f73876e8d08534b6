package events

import (
	"encoding/hex"

	"github.com/holiman/uint256"

	"grantchain/core/types"
)

const (
	// TypeAllocated is emitted whenever an oracle allocation is credited.
	TypeAllocated = "allocations.allocated"
)

// Allocated records a successful oracle allocation. The proof itself is kept
// in state; the event only carries its digest and size.
type Allocated struct {
	Seq       uint64
	Oracle    [20]byte
	Grantee   [20]byte
	Amount    *uint256.Int
	Consumed  *uint256.Int
	ProofHash [32]byte
	ProofSize int
}

func (Allocated) EventType() string { return TypeAllocated }

func (e Allocated) Event() *types.Event {
	return &types.Event{
		Type: TypeAllocated,
		Attributes: map[string]string{
			"seq":       formatUint(e.Seq),
			"oracle":    formatAccount(e.Oracle),
			"grantee":   formatAccount(e.Grantee),
			"amount":    formatAmount(e.Amount),
			"consumed":  formatAmount(e.Consumed),
			"proofHash": "0x" + hex.EncodeToString(e.ProofHash[:]),
			"proofSize": formatUint(uint64(e.ProofSize)),
		},
	}
}
