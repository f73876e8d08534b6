package genesis

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"grantchain/core"
	"grantchain/storage"
)

// ErrGenesisExists is returned when db already carries a genesis state.
var ErrGenesisExists = core.ErrGenesisExists

// BuildGenesisFromSpec writes the genesis state described by spec into db and
// returns the committed root. Writes happen in sorted order so every node
// derives the same root from the same document.
func BuildGenesisFromSpec(spec *GenesisSpec, db storage.Database, opts ...core.Option) (common.Hash, error) {
	if spec == nil {
		return common.Hash{}, fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return common.Hash{}, fmt.Errorf("database must not be nil")
	}
	if spec.GenesisTimestamp().IsZero() {
		if err := spec.Validate(); err != nil {
			return common.Hash{}, err
		}
	}
	runtime, err := core.NewRuntime(db, opts...)
	if err != nil {
		return common.Hash{}, err
	}
	return runtime.ApplyGenesis(spec.Resolved())
}
