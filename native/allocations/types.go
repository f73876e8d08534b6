package allocations

import (
	"fmt"

	"github.com/holiman/uint256"
)

// DefaultMaxProofBytes bounds the opaque evidence attached to an allocation.
const DefaultMaxProofBytes uint32 = 1_024

// Params holds the governance controlled limits of the allocation ledger.
type Params struct {
	MaxCoinsEverAllocated *uint256.Int `json:"maxCoinsEverAllocated"`
	MaxProofBytes         uint32       `json:"maxProofBytes"`
}

// DefaultParams returns an uncapped-by-zero placeholder; operators must set a
// real cap at genesis.
func DefaultParams() Params {
	return Params{
		MaxCoinsEverAllocated: new(uint256.Int),
		MaxProofBytes:         DefaultMaxProofBytes,
	}
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	if p.MaxCoinsEverAllocated == nil {
		return fmt.Errorf("allocations: maxCoinsEverAllocated must be set")
	}
	if p.MaxProofBytes == 0 {
		return fmt.Errorf("allocations: maxProofBytes must be positive")
	}
	return nil
}

// Record is the auditable trace of one successful allocation. Proof is the
// oracle supplied evidence, stored verbatim and never interpreted.
type Record struct {
	Seq     uint64
	Oracle  [20]byte
	Grantee [20]byte
	Amount  *uint256.Int
	Proof   []byte
	Height  uint64
}
