package bank

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"grantchain/core/events"
	"grantchain/core/state"
	"grantchain/storage"
	"grantchain/storage/trie"
)

type fixedLocks map[[20]byte]uint64

func (f fixedLocks) Locked(account [20]byte) (*uint256.Int, error) {
	return uint256.NewInt(f[account]), nil
}

func newLedger(t *testing.T) (*Ledger, *state.Manager) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	manager := state.NewManager(tr)
	return NewLedger(manager), manager
}

func TestCreditAndTransfer(t *testing.T) {
	ledger, _ := newLedger(t)
	alice, bob := [20]byte{1}, [20]byte{2}

	require.NoError(t, ledger.Credit(alice, uint256.NewInt(100)))
	require.NoError(t, ledger.Transfer(alice, bob, uint256.NewInt(40)))

	bal, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(60), bal.Uint64())
	bal, err = ledger.BalanceOf(bob)
	require.NoError(t, err)
	require.Equal(t, uint64(40), bal.Uint64())

	require.ErrorIs(t, ledger.Transfer(bob, alice, uint256.NewInt(41)), ErrInsufficientFunds)
	require.ErrorIs(t, ledger.Credit(alice, nil), ErrInvalidAmount)
}

func TestDebitRespectsLocks(t *testing.T) {
	ledger, _ := newLedger(t)
	grantee := [20]byte{3}
	ledger.SetLockSource(fixedLocks{grantee: 70})
	require.NoError(t, ledger.Credit(grantee, uint256.NewInt(100)))

	transferable, err := ledger.Transferable(grantee)
	require.NoError(t, err)
	require.Equal(t, uint64(30), transferable.Uint64())

	require.ErrorIs(t, ledger.Debit(grantee, uint256.NewInt(31)), ErrLockedFunds)
	require.NoError(t, ledger.Debit(grantee, uint256.NewInt(30)))
	require.ErrorIs(t, ledger.Debit(grantee, uint256.NewInt(1)), ErrLockedFunds)

	bal, err := ledger.BalanceOf(grantee)
	require.NoError(t, err)
	require.Equal(t, uint64(70), bal.Uint64())
}

func TestTransferableFloorsAtZero(t *testing.T) {
	ledger, _ := newLedger(t)
	grantee := [20]byte{4}
	ledger.SetLockSource(fixedLocks{grantee: 500})
	require.NoError(t, ledger.Credit(grantee, uint256.NewInt(100)))

	transferable, err := ledger.Transferable(grantee)
	require.NoError(t, err)
	require.True(t, transferable.IsZero())
}

func TestEmitStampsHeight(t *testing.T) {
	ledger, manager := newLedger(t)
	rec := &events.Recorder{}
	ledger.SetEmitter(rec)
	require.NoError(t, manager.SetBlockHeight(12))

	ledger.Emit(events.Transfer{From: [20]byte{1}, To: [20]byte{2}, Amount: uint256.NewInt(5)})
	got := rec.OfType(events.TypeTransfer)
	require.Len(t, got, 1)
	require.Equal(t, uint64(12), got[0].Height)
	require.Equal(t, uint64(12), ledger.CurrentBlock())
}
