package grants

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"grantchain/core/events"
	"grantchain/native/common"
)

var (
	indexKey    = []byte("grants/index")
	errNilState = errors.New("grants: engine not configured")
)

func scheduleKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("grants/schedule/%x", addr[:]))
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVGetList(key []byte, out interface{}) error
	Atomic(fn func() error) error
}

// Ledger is the subset of the host ledger the vesting engine needs.
type Ledger interface {
	CurrentBlock() uint64
	Transfer(from, to [20]byte, amount *uint256.Int) error
}

// Engine stores vesting schedules and answers locked-balance queries.
type Engine struct {
	state   engineState
	ledger  Ledger
	emitter events.Emitter
	params  Params
}

// NewEngine constructs a vesting engine with default parameters.
func NewEngine(state engineState, ledger Ledger) *Engine {
	return &Engine{
		state:   state,
		ledger:  ledger,
		emitter: events.NoopEmitter{},
		params:  DefaultParams(),
	}
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetParams replaces the engine limits.
func (e *Engine) SetParams(params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	e.params = params
	return nil
}

// Params returns the active limits.
func (e *Engine) Params() Params {
	return e.params
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

// Schedules returns every rule registered for grantee, oldest first.
func (e *Engine) Schedules(grantee [20]byte) ([]Rule, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var rules []Rule
	if err := e.state.KVGetList(scheduleKey(grantee), &rules); err != nil {
		return nil, fmt.Errorf("grants: load schedule: %w", err)
	}
	return rules, nil
}

// Grantees lists every account that carries at least one rule, sorted
// bytewise.
func (e *Engine) Grantees() ([][20]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var index [][20]byte
	if err := e.state.KVGetList(indexKey, &index); err != nil {
		return nil, fmt.Errorf("grants: load index: %w", err)
	}
	return index, nil
}

// AddSchedule appends rules to grantee's schedule. Every rule is validated
// before anything is stored, so a bad rule rejects the whole batch.
func (e *Engine) AddSchedule(grantee [20]byte, rules []Rule) error {
	if err := e.ready(); err != nil {
		return err
	}
	if len(rules) == 0 {
		return fmt.Errorf("%w: no rules supplied", ErrInvalidSchedule)
	}
	existing, err := e.Schedules(grantee)
	if err != nil {
		return err
	}
	if uint64(len(existing))+uint64(len(rules)) > uint64(e.params.MaxRulesPerAccount) {
		return fmt.Errorf("%w: %d > %d", ErrTooManySchedules, len(existing)+len(rules), e.params.MaxRulesPerAccount)
	}
	added := new(uint256.Int)
	normalized := make([]Rule, 0, len(rules))
	for i, rule := range rules {
		rule = rule.normalized()
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		total, err := rule.Total()
		if err != nil {
			return err
		}
		if added, err = common.CheckedAdd(added, total); err != nil {
			return err
		}
		normalized = append(normalized, rule)
	}
	// The combined schedule must still be summable at any height.
	if _, err := LockedAt(append(append([]Rule(nil), existing...), normalized...), 0); err != nil {
		return err
	}

	err = e.state.Atomic(func() error {
		if err := e.state.KVPut(scheduleKey(grantee), append(existing, normalized...)); err != nil {
			return err
		}
		if len(existing) == 0 {
			return e.indexGrantee(grantee)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emitter.Emit(events.ScheduleAdded{Grantee: grantee, Rules: len(normalized), Total: added})
	return nil
}

func (e *Engine) indexGrantee(grantee [20]byte) error {
	index, err := e.Grantees()
	if err != nil {
		return err
	}
	idx := sort.Search(len(index), func(i int) bool {
		return bytes.Compare(index[i][:], grantee[:]) >= 0
	})
	if idx < len(index) && index[idx] == grantee {
		return nil
	}
	index = append(index, [20]byte{})
	copy(index[idx+1:], index[idx:])
	index[idx] = grantee
	return e.state.KVPut(indexKey, index)
}

// LockedBalance returns the amount of grantee's balance locked at height at.
func (e *Engine) LockedBalance(grantee [20]byte, at uint64) (*uint256.Int, error) {
	rules, err := e.Schedules(grantee)
	if err != nil {
		return nil, err
	}
	return LockedAt(rules, at)
}

// Locked implements the bank's lock source using the current block height.
func (e *Engine) Locked(account [20]byte) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.ledger == nil {
		return nil, errNilState
	}
	return e.LockedBalance(account, e.ledger.CurrentBlock())
}

// VestedTransfer moves the total of rules from sender to grantee and locks it
// behind the rules. Funds and schedule land together or not at all.
func (e *Engine) VestedTransfer(from, grantee [20]byte, rules []Rule) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.ledger == nil {
		return nil, errNilState
	}
	if from == grantee {
		return nil, ErrSelfVested
	}
	total := new(uint256.Int)
	for i, rule := range rules {
		rule = rule.normalized()
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		ruleTotal, err := rule.Total()
		if err != nil {
			return nil, err
		}
		if total, err = common.CheckedAdd(total, ruleTotal); err != nil {
			return nil, err
		}
	}
	var start uint64
	if len(rules) > 0 {
		start = rules[0].Start
	}
	err := e.state.Atomic(func() error {
		if err := e.ledger.Transfer(from, grantee, total); err != nil {
			return err
		}
		return e.AddSchedule(grantee, rules)
	})
	if err != nil {
		return nil, err
	}
	e.emitter.Emit(events.VestedTransfer{From: from, To: grantee, Amount: total.Clone(), Start: start})
	return total, nil
}
