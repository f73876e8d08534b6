package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"grantchain/storage/trie"
)

// ErrHeightRegression rejects a block height below the recorded one.
var ErrHeightRegression = errors.New("state: block height cannot go backwards")

// Manager is the single owner of the state trie. Every native module reads
// and writes through it so that a transition can be checkpointed and rolled
// back as one unit.
//
// Manager is not safe for concurrent use; the host applies transitions one at
// a time.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Hash returns the state root including uncommitted writes.
func (m *Manager) Hash() common.Hash {
	return m.trie.Hash()
}

// Commit flushes all pending writes and returns the new state root.
func (m *Manager) Commit(height uint64) (common.Hash, error) {
	return m.trie.Commit(m.trie.Root(), height)
}

// Atomic runs fn against the current state and rolls every write back when fn
// returns an error, so callers never observe a partially applied transition.
func (m *Manager) Atomic(fn func() error) error {
	if fn == nil {
		return nil
	}
	snapshot := m.trie.Snapshot()
	if err := fn(); err != nil {
		m.trie.Restore(snapshot)
		return err
	}
	return nil
}

// Balance retrieves the native balance of the provided account.
func (m *Manager) Balance(addr [20]byte) (*uint256.Int, error) {
	amount := new(uint256.Int)
	ok, err := m.KVGet(BalanceKey(addr), amount)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return amount, nil
}

// SetBalance stores the native balance of the provided account.
func (m *Manager) SetBalance(addr [20]byte, amount *uint256.Int) error {
	if amount == nil {
		amount = new(uint256.Int)
	}
	return m.KVPut(BalanceKey(addr), amount)
}

// SetRoleMembers replaces the member list of a role. Duplicates collapse and
// the stored list is sorted bytewise for determinism.
func (m *Manager) SetRoleMembers(role string, members [][20]byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	unique := make(map[[20]byte]struct{}, len(members))
	sorted := make([][20]byte, 0, len(members))
	for _, member := range members {
		if _, dup := unique[member]; dup {
			continue
		}
		unique[member] = struct{}{}
		sorted = append(sorted, member)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})
	return m.KVPut(RoleKey(trimmed), sorted)
}

// RoleMembers returns all accounts assigned to the provided role.
func (m *Manager) RoleMembers(role string) ([][20]byte, error) {
	var members [][20]byte
	if err := m.KVGetList(RoleKey(strings.TrimSpace(role)), &members); err != nil {
		return nil, err
	}
	return members, nil
}

// IsRoleMember reports whether the account belongs to the role. The member
// list is sorted so the lookup is a binary search.
func (m *Manager) IsRoleMember(role string, addr [20]byte) (bool, error) {
	members, err := m.RoleMembers(role)
	if err != nil {
		return false, err
	}
	idx := sort.Search(len(members), func(i int) bool {
		return bytes.Compare(members[i][:], addr[:]) >= 0
	})
	return idx < len(members) && members[idx] == addr, nil
}

// BlockHeight returns the last block height supplied by the host.
func (m *Manager) BlockHeight() (uint64, error) {
	var height uint64
	if _, err := m.KVGet(BlockHeightKey(), &height); err != nil {
		return 0, err
	}
	return height, nil
}

// SetBlockHeight records the block height supplied by the host. Heights only
// move forward.
func (m *Manager) SetBlockHeight(height uint64) error {
	current, err := m.BlockHeight()
	if err != nil {
		return err
	}
	if height < current {
		return fmt.Errorf("%w: %d precedes %d", ErrHeightRegression, height, current)
	}
	return m.KVPut(BlockHeightKey(), height)
}

// GenesisApplied reports whether genesis has already been written.
func (m *Manager) GenesisApplied() (bool, error) {
	return m.KVGet(GenesisMarkerKey(), nil)
}

// MarkGenesisApplied records that genesis ran for this state.
func (m *Manager) MarkGenesisApplied() error {
	return m.KVPut(GenesisMarkerKey(), true)
}

// ParamStoreSet stores a raw governance parameter value.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("param name must not be empty")
	}
	return m.KVPut(ParamStoreKey(trimmed), value)
}

// ParamStoreGet loads a raw governance parameter value.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	var value []byte
	ok, err := m.KVGet(ParamStoreKey(strings.TrimSpace(name)), &value)
	if err != nil {
		return nil, false, err
	}
	return value, ok, nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 to match the requirements of the
// underlying trie implementation.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
