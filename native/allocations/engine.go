package allocations

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	"grantchain/core/events"
	"grantchain/native/common"
	"grantchain/native/membership"
)

var (
	// ErrNotAuthorized is returned when the caller is not a current oracle.
	ErrNotAuthorized = errors.New("allocations: caller is not an oracle")
	// ErrCapExceeded is returned when an allocation would push the consumed
	// total above the configured maximum.
	ErrCapExceeded = errors.New("allocations: maximum coins ever allocated exceeded")
	// ErrArithmeticOverflow is returned instead of wrapping on addition.
	ErrArithmeticOverflow = common.ErrArithmeticOverflow
	// ErrProofTooLarge is returned when the evidence exceeds MaxProofBytes.
	ErrProofTooLarge = errors.New("allocations: proof too large")
	// ErrZeroAllocation rejects degenerate zero-amount requests.
	ErrZeroAllocation = errors.New("allocations: amount must be positive")
	// ErrRecordNotFound marks unknown allocation sequence numbers.
	ErrRecordNotFound = errors.New("allocations: record not found")

	errNilState = errors.New("allocations: engine not configured")
)

var (
	consumedKey     = []byte("allocations/consumed")
	seqKey          = []byte("allocations/seq")
	recordKeyFormat = "allocations/record/%020d"
)

func recordKey(seq uint64) []byte {
	return []byte(fmt.Sprintf(recordKeyFormat, seq))
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Atomic(fn func() error) error
}

// Ledger is the subset of the host ledger the allocation engine writes to.
type Ledger interface {
	Credit(account [20]byte, amount *uint256.Int) error
	CurrentBlock() uint64
}

// Members answers oracle membership questions.
type Members interface {
	Contains(role membership.Role, account [20]byte) (bool, error)
	SetMembers(role membership.Role, accounts [][20]byte) error
}

// Engine is the capped, oracle gated allocation ledger.
type Engine struct {
	state   engineState
	ledger  Ledger
	members Members
	emitter events.Emitter
	params  Params
}

// NewEngine constructs an allocation engine with default parameters.
func NewEngine(state engineState, ledger Ledger, members Members) *Engine {
	return &Engine{
		state:   state,
		ledger:  ledger,
		members: members,
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
	e.params = Params{
		MaxCoinsEverAllocated: params.MaxCoinsEverAllocated.Clone(),
		MaxProofBytes:         params.MaxProofBytes,
	}
	return nil
}

// Params returns a copy of the active limits.
func (e *Engine) Params() Params {
	return Params{
		MaxCoinsEverAllocated: common.Amount(e.params.MaxCoinsEverAllocated),
		MaxProofBytes:         e.params.MaxProofBytes,
	}
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.ledger == nil || e.members == nil {
		return errNilState
	}
	return nil
}

// InitializeMembers replaces the oracle set wholesale. Callers are expected to
// have authorized the request (genesis or governance).
func (e *Engine) InitializeMembers(accounts [][20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.members.SetMembers(membership.RoleOracle, accounts)
}

// CoinsConsumed returns the cumulative amount allocated since genesis.
func (e *Engine) CoinsConsumed() (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	consumed := new(uint256.Int)
	if _, err := e.state.KVGet(consumedKey, consumed); err != nil {
		return nil, fmt.Errorf("allocations: load consumed: %w", err)
	}
	return consumed, nil
}

// Remaining returns how much can still be allocated before the cap.
func (e *Engine) Remaining() (*uint256.Int, error) {
	consumed, err := e.CoinsConsumed()
	if err != nil {
		return nil, err
	}
	return common.SaturatingSub(e.params.MaxCoinsEverAllocated, consumed), nil
}

// Count returns the number of successful allocations so far.
func (e *Engine) Count() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	var seq uint64
	if _, err := e.state.KVGet(seqKey, &seq); err != nil {
		return 0, fmt.Errorf("allocations: load sequence: %w", err)
	}
	return seq, nil
}

// Record loads the allocation with the given sequence number (1-based).
func (e *Engine) Record(seq uint64) (*Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	record := new(Record)
	ok, err := e.state.KVGet(recordKey(seq), record)
	if err != nil {
		return nil, fmt.Errorf("allocations: load record %d: %w", seq, err)
	}
	if !ok {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// Allocate credits amount to grantee on behalf of an oracle. All checks run
// before any write; the credit, the counter update and the audit record are
// applied as one unit and rolled back together on failure.
func (e *Engine) Allocate(caller, grantee [20]byte, amount *uint256.Int, proof []byte) (*Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	isOracle, err := e.members.Contains(membership.RoleOracle, caller)
	if err != nil {
		return nil, fmt.Errorf("allocations: check oracle: %w", err)
	}
	if !isOracle {
		return nil, ErrNotAuthorized
	}
	if uint64(len(proof)) > uint64(e.params.MaxProofBytes) {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrProofTooLarge, len(proof), e.params.MaxProofBytes)
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAllocation
	}
	consumed, err := e.CoinsConsumed()
	if err != nil {
		return nil, err
	}
	newTotal, err := common.CheckedAdd(consumed, amount)
	if err != nil {
		return nil, err
	}
	if newTotal.Gt(e.params.MaxCoinsEverAllocated) {
		return nil, ErrCapExceeded
	}
	seq, err := e.Count()
	if err != nil {
		return nil, err
	}
	seq++

	record := &Record{
		Seq:     seq,
		Oracle:  caller,
		Grantee: grantee,
		Amount:  amount.Clone(),
		Proof:   append([]byte(nil), proof...),
		Height:  e.ledger.CurrentBlock(),
	}
	err = e.state.Atomic(func() error {
		if err := e.ledger.Credit(grantee, amount); err != nil {
			return fmt.Errorf("allocations: credit grantee: %w", err)
		}
		if err := e.state.KVPut(consumedKey, newTotal); err != nil {
			return err
		}
		if err := e.state.KVPut(seqKey, seq); err != nil {
			return err
		}
		return e.state.KVPut(recordKey(seq), record)
	})
	if err != nil {
		return nil, err
	}

	e.emitter.Emit(events.Allocated{
		Seq:       seq,
		Oracle:    caller,
		Grantee:   grantee,
		Amount:    amount.Clone(),
		Consumed:  newTotal,
		ProofHash: blake3.Sum256(proof),
		ProofSize: len(proof),
	})
	return record, nil
}
