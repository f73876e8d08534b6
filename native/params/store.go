package params

import (
	"bytes"
	"encoding/json"
	"fmt"

	"grantchain/native/allocations"
	"grantchain/native/common"
	"grantchain/native/grants"
)

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for governance-controlled parameters.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// Values are marshalled as JSON to align with governance proposal payloads.
func (s *Store) put(key string, value interface{}) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("params: encode %s: %w", key, err)
	}
	return state.ParamStoreSet(key, encoded)
}

func (s *Store) get(key string, out interface{}) (bool, error) {
	state, err := s.withState()
	if err != nil {
		return false, err
	}
	raw, ok, err := state.ParamStoreGet(key)
	if err != nil {
		return false, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("params: decode %s: %w", key, err)
	}
	return true, nil
}

// SetPauses persists the supplied pause configuration.
func (s *Store) SetPauses(pauses common.Pauses) error {
	return s.put(ParamsKeyPauses, pauses)
}

// Pauses loads the persisted pause configuration. When unset, a zero-value
// configuration is returned.
func (s *Store) Pauses() (common.Pauses, error) {
	var pauses common.Pauses
	if _, err := s.get(ParamsKeyPauses, &pauses); err != nil {
		return common.Pauses{}, err
	}
	return pauses, nil
}

// SetAllocations validates and persists the allocation ledger limits.
func (s *Store) SetAllocations(p allocations.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.put(ParamsKeyAllocations, p)
}

// Allocations loads the allocation ledger limits, falling back to defaults.
func (s *Store) Allocations() (allocations.Params, error) {
	p := allocations.DefaultParams()
	ok, err := s.get(ParamsKeyAllocations, &p)
	if err != nil {
		return allocations.Params{}, err
	}
	if !ok {
		return allocations.DefaultParams(), nil
	}
	return p, nil
}

// SetGrants validates and persists the vesting engine limits.
func (s *Store) SetGrants(p grants.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.put(ParamsKeyGrants, p)
}

// Grants loads the vesting engine limits, falling back to defaults.
func (s *Store) Grants() (grants.Params, error) {
	p := grants.DefaultParams()
	ok, err := s.get(ParamsKeyGrants, &p)
	if err != nil {
		return grants.Params{}, err
	}
	if !ok {
		return grants.DefaultParams(), nil
	}
	return p, nil
}
