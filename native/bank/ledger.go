package bank

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"grantchain/core/events"
	"grantchain/native/common"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrLockedFunds is returned when a debit would dip into vesting funds.
	ErrLockedFunds = errors.New("bank: funds are locked by a vesting schedule")
	// ErrInvalidAmount rejects missing amounts.
	ErrInvalidAmount = errors.New("bank: amount required")

	errNilState = errors.New("bank: state not configured")
)

type ledgerState interface {
	Balance(addr [20]byte) (*uint256.Int, error)
	SetBalance(addr [20]byte, amount *uint256.Int) error
	BlockHeight() (uint64, error)
}

// LockSource reports how much of an account's balance is currently locked.
type LockSource interface {
	Locked(account [20]byte) (*uint256.Int, error)
}

// Ledger is the native balance adapter the other modules credit and debit
// through. It is the only place that enforces vesting locks on outgoing funds.
type Ledger struct {
	state   ledgerState
	locks   LockSource
	emitter events.Emitter
}

// NewLedger wraps the state accessor.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state, emitter: events.NoopEmitter{}}
}

// SetLockSource installs the vesting lookup consulted on every debit.
func (l *Ledger) SetLockSource(locks LockSource) {
	l.locks = locks
}

// SetEmitter configures the downstream emitter.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Emit forwards evt stamped with the current block height.
func (l *Ledger) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	l.emitter.Emit(events.AtHeight(evt, l.CurrentBlock()))
}

// CurrentBlock returns the height supplied by the host. A read failure
// reports height zero, at which every schedule is still fully locked.
func (l *Ledger) CurrentBlock() uint64 {
	if l == nil || l.state == nil {
		return 0
	}
	height, err := l.state.BlockHeight()
	if err != nil {
		return 0
	}
	return height
}

// BalanceOf returns the full balance of account, locked funds included.
func (l *Ledger) BalanceOf(account [20]byte) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.Balance(account)
}

// Locked returns the portion of account's balance held by vesting schedules.
func (l *Ledger) Locked(account [20]byte) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	if l.locks == nil {
		return new(uint256.Int), nil
	}
	locked, err := l.locks.Locked(account)
	if err != nil {
		return nil, fmt.Errorf("bank: load locked balance: %w", err)
	}
	return locked, nil
}

// Transferable returns balance minus locked, floored at zero.
func (l *Ledger) Transferable(account [20]byte) (*uint256.Int, error) {
	balance, err := l.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	locked, err := l.Locked(account)
	if err != nil {
		return nil, err
	}
	return common.SaturatingSub(balance, locked), nil
}

// Credit adds amount to account.
func (l *Ledger) Credit(account [20]byte, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(account)
	if err != nil {
		return err
	}
	updated, err := common.CheckedAdd(balance, amount)
	if err != nil {
		return err
	}
	return l.state.SetBalance(account, updated)
}

// Debit removes amount from account. The remaining balance may never drop
// below the amount locked at the current height.
func (l *Ledger) Debit(account [20]byte, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(account)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: balance %s, need %s", ErrInsufficientFunds, balance.Dec(), amount.Dec())
	}
	transferable, err := l.Transferable(account)
	if err != nil {
		return err
	}
	if transferable.Lt(amount) {
		return fmt.Errorf("%w: transferable %s, need %s", ErrLockedFunds, transferable.Dec(), amount.Dec())
	}
	return l.state.SetBalance(account, new(uint256.Int).Sub(balance, amount))
}

// Transfer debits from and credits to. Callers wrap it in a state checkpoint
// when it is part of a larger transition.
func (l *Ledger) Transfer(from, to [20]byte, amount *uint256.Int) error {
	if err := l.Debit(from, amount); err != nil {
		return err
	}
	return l.Credit(to, amount)
}
