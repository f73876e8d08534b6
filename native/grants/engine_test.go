package grants

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"grantchain/core/events"
	"grantchain/core/state"
	"grantchain/storage"
	"grantchain/storage/trie"
)

type fakeLedger struct {
	manager *state.Manager
	height  uint64
}

func (l *fakeLedger) CurrentBlock() uint64 { return l.height }

func (l *fakeLedger) Transfer(from, to [20]byte, amount *uint256.Int) error {
	fromBal, err := l.manager.Balance(from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return errors.New("insufficient")
	}
	toBal, err := l.manager.Balance(to)
	if err != nil {
		return err
	}
	if err := l.manager.SetBalance(from, new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.manager.SetBalance(to, new(uint256.Int).Add(toBal, amount))
}

func newTestEngine(t *testing.T) (*Engine, *fakeLedger, *events.Recorder) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	manager := state.NewManager(tr)
	ledger := &fakeLedger{manager: manager}
	engine := NewEngine(manager, ledger)
	rec := &events.Recorder{}
	engine.SetEmitter(rec)
	return engine, ledger, rec
}

func TestAddScheduleAndQuery(t *testing.T) {
	engine, _, rec := newTestEngine(t)
	ferdie := [20]byte{0xfe}

	require.NoError(t, engine.AddSchedule(ferdie, []Rule{LegacyRule(1000, 1, 1, amt(1000))}))
	require.NoError(t, engine.AddSchedule(ferdie, []Rule{LegacyRule(2000, 1000, 100, amt(100))}))

	rules, err := engine.Schedules(ferdie)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, uint64(2000), rules[1].Start)

	locked, err := engine.LockedBalance(ferdie, 999)
	require.NoError(t, err)
	require.Equal(t, uint64(11_000), locked.Uint64())
	locked, err = engine.LockedBalance(ferdie, 3000)
	require.NoError(t, err)
	require.Equal(t, uint64(9_800), locked.Uint64())

	grantees, err := engine.Grantees()
	require.NoError(t, err)
	require.Equal(t, [][20]byte{ferdie}, grantees)

	added := rec.OfType(events.TypeScheduleAdded)
	require.Len(t, added, 2)
	require.Equal(t, "10000", added[1].Attributes["total"])
}

func TestAddScheduleRejectsWholeBatch(t *testing.T) {
	engine, _, rec := newTestEngine(t)
	grantee := [20]byte{1}

	err := engine.AddSchedule(grantee, []Rule{
		LegacyRule(10, 5, 2, amt(3)),
		LegacyRule(10, 0, 2, amt(3)),
	})
	require.ErrorIs(t, err, ErrInvalidSchedule)

	rules, err := engine.Schedules(grantee)
	require.NoError(t, err)
	require.Empty(t, rules)
	require.Empty(t, rec.Events())

	require.ErrorIs(t, engine.AddSchedule(grantee, nil), ErrInvalidSchedule)
}

func TestAddScheduleLimit(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	require.NoError(t, engine.SetParams(Params{MaxRulesPerAccount: 2}))
	grantee := [20]byte{2}

	require.NoError(t, engine.AddSchedule(grantee, []Rule{LegacyRule(1, 1, 1, amt(1)), LegacyRule(2, 1, 1, amt(1))}))
	require.ErrorIs(t, engine.AddSchedule(grantee, []Rule{LegacyRule(3, 1, 1, amt(1))}), ErrTooManySchedules)
}

func TestLockedUsesLedgerHeight(t *testing.T) {
	engine, ledger, _ := newTestEngine(t)
	grantee := [20]byte{3}
	require.NoError(t, engine.AddSchedule(grantee, []Rule{LegacyRule(50, 10, 2, amt(40))}))

	ledger.height = 49
	locked, err := engine.Locked(grantee)
	require.NoError(t, err)
	require.Equal(t, uint64(80), locked.Uint64())

	ledger.height = 60
	locked, err = engine.Locked(grantee)
	require.NoError(t, err)
	require.Zero(t, locked.Uint64())
}

func TestVestedTransfer(t *testing.T) {
	engine, ledger, rec := newTestEngine(t)
	sender, grantee := [20]byte{4}, [20]byte{5}
	require.NoError(t, ledger.manager.SetBalance(sender, amt(500)))

	total, err := engine.VestedTransfer(sender, grantee, []Rule{LegacyRule(100, 10, 3, amt(100))})
	require.NoError(t, err)
	require.Equal(t, uint64(300), total.Uint64())

	bal, err := ledger.manager.Balance(grantee)
	require.NoError(t, err)
	require.Equal(t, uint64(300), bal.Uint64())
	locked, err := engine.LockedBalance(grantee, 99)
	require.NoError(t, err)
	require.Equal(t, uint64(300), locked.Uint64())
	require.Len(t, rec.OfType(events.TypeVestedTransfer), 1)
}

func TestVestedTransferRollsBack(t *testing.T) {
	engine, ledger, rec := newTestEngine(t)
	sender, grantee := [20]byte{6}, [20]byte{7}
	require.NoError(t, ledger.manager.SetBalance(sender, amt(50)))

	_, err := engine.VestedTransfer(sender, grantee, []Rule{LegacyRule(100, 10, 3, amt(100))})
	require.Error(t, err)

	bal, err := ledger.manager.Balance(sender)
	require.NoError(t, err)
	require.Equal(t, uint64(50), bal.Uint64())
	rules, err := engine.Schedules(grantee)
	require.NoError(t, err)
	require.Empty(t, rules)
	require.Empty(t, rec.Events())

	_, err = engine.VestedTransfer(sender, grantee, []Rule{LegacyRule(100, 0, 3, amt(1))})
	require.ErrorIs(t, err, ErrInvalidSchedule)
}
