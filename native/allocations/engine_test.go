package allocations

import (
	"bytes"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"grantchain/core/events"
	"grantchain/core/state"
	"grantchain/native/membership"
	"grantchain/storage"
	"grantchain/storage/trie"
)

type creditLedger struct {
	manager *state.Manager
	height  uint64
	fail    error
}

func (l *creditLedger) CurrentBlock() uint64 { return l.height }

func (l *creditLedger) Credit(account [20]byte, amount *uint256.Int) error {
	bal, err := l.manager.Balance(account)
	if err != nil {
		return err
	}
	if err := l.manager.SetBalance(account, new(uint256.Int).Add(bal, amount)); err != nil {
		return err
	}
	return l.fail
}

type fixture struct {
	engine  *Engine
	manager *state.Manager
	ledger  *creditLedger
	events  *events.Recorder
	oracle  [20]byte
}

func newFixture(t *testing.T, maxCoins uint64) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	manager := state.NewManager(tr)
	ledger := &creditLedger{manager: manager, height: 7}
	engine := NewEngine(manager, ledger, membership.NewRegistry(manager))
	rec := &events.Recorder{}
	engine.SetEmitter(rec)
	require.NoError(t, engine.SetParams(Params{MaxCoinsEverAllocated: uint256.NewInt(maxCoins), MaxProofBytes: DefaultMaxProofBytes}))

	oracle := [20]byte{0x0a}
	require.NoError(t, engine.InitializeMembers([][20]byte{oracle}))
	return &fixture{engine: engine, manager: manager, ledger: ledger, events: rec, oracle: oracle}
}

func (f *fixture) consumed(t *testing.T) uint64 {
	t.Helper()
	c, err := f.engine.CoinsConsumed()
	require.NoError(t, err)
	return c.Uint64()
}

func (f *fixture) balance(t *testing.T, acct [20]byte) uint64 {
	t.Helper()
	b, err := f.manager.Balance(acct)
	require.NoError(t, err)
	return b.Uint64()
}

func TestAllocateWithinCap(t *testing.T) {
	f := newFixture(t, 150)
	grantee := [20]byte{0x0b}

	record, err := f.engine.Allocate(f.oracle, grantee, uint256.NewInt(100), []byte("proof"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), record.Seq)
	require.Equal(t, uint64(100), f.consumed(t))
	require.Equal(t, uint64(100), f.balance(t, grantee))

	_, err = f.engine.Allocate(f.oracle, grantee, uint256.NewInt(60), nil)
	require.ErrorIs(t, err, ErrCapExceeded)
	require.Equal(t, uint64(100), f.consumed(t))
	require.Equal(t, uint64(100), f.balance(t, grantee))

	remaining, err := f.engine.Remaining()
	require.NoError(t, err)
	require.Equal(t, uint64(50), remaining.Uint64())

	_, err = f.engine.Allocate(f.oracle, grantee, uint256.NewInt(50), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(150), f.consumed(t))

	allocated := f.events.OfType(events.TypeAllocated)
	require.Len(t, allocated, 2)
	require.Equal(t, "100", allocated[0].Attributes["amount"])
	require.Equal(t, "150", allocated[1].Attributes["consumed"])
}

func TestAllocateRecordsAudit(t *testing.T) {
	f := newFixture(t, 1_000)
	grantee := [20]byte{0x0c}
	proof := bytes.Repeat([]byte{0xab}, 32)

	_, err := f.engine.Allocate(f.oracle, grantee, uint256.NewInt(5), proof)
	require.NoError(t, err)

	count, err := f.engine.Count()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	record, err := f.engine.Record(1)
	require.NoError(t, err)
	require.Equal(t, f.oracle, record.Oracle)
	require.Equal(t, grantee, record.Grantee)
	require.Equal(t, uint64(5), record.Amount.Uint64())
	require.Equal(t, proof, record.Proof)
	require.Equal(t, uint64(7), record.Height)

	_, err = f.engine.Record(2)
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestAllocateRejectsNonOracle(t *testing.T) {
	f := newFixture(t, 1_000)
	stranger := [20]byte{0x0d}

	_, err := f.engine.Allocate(stranger, stranger, uint256.NewInt(1), nil)
	require.ErrorIs(t, err, ErrNotAuthorized)
	require.Zero(t, f.consumed(t))
	require.Zero(t, f.balance(t, stranger))
	require.Empty(t, f.events.Events())
}

func TestOracleSetReplacement(t *testing.T) {
	f := newFixture(t, 1_000)
	next := [20]byte{0x0e}
	require.NoError(t, f.engine.InitializeMembers([][20]byte{next}))

	_, err := f.engine.Allocate(f.oracle, next, uint256.NewInt(1), nil)
	require.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.engine.Allocate(next, next, uint256.NewInt(1), nil)
	require.NoError(t, err)
}

func TestAllocateRejectsOversizedProof(t *testing.T) {
	f := newFixture(t, 1_000)
	grantee := [20]byte{0x0f}

	_, err := f.engine.Allocate(f.oracle, grantee, uint256.NewInt(1), make([]byte, DefaultMaxProofBytes+1))
	require.ErrorIs(t, err, ErrProofTooLarge)

	_, err = f.engine.Allocate(f.oracle, grantee, uint256.NewInt(1), make([]byte, DefaultMaxProofBytes))
	require.NoError(t, err)
}

func TestAllocateRejectsZero(t *testing.T) {
	f := newFixture(t, 1_000)
	_, err := f.engine.Allocate(f.oracle, [20]byte{1}, new(uint256.Int), nil)
	require.ErrorIs(t, err, ErrZeroAllocation)
	_, err = f.engine.Allocate(f.oracle, [20]byte{1}, nil, nil)
	require.ErrorIs(t, err, ErrZeroAllocation)
}

func TestAllocateOverflow(t *testing.T) {
	f := newFixture(t, 0)
	ceiling := new(uint256.Int).SetAllOne()
	require.NoError(t, f.engine.SetParams(Params{MaxCoinsEverAllocated: ceiling, MaxProofBytes: 8}))

	_, err := f.engine.Allocate(f.oracle, [20]byte{1}, ceiling, nil)
	require.NoError(t, err)
	_, err = f.engine.Allocate(f.oracle, [20]byte{2}, uint256.NewInt(1), nil)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
	require.True(t, errors.Is(err, ErrArithmeticOverflow))

	consumed, err := f.engine.CoinsConsumed()
	require.NoError(t, err)
	require.True(t, consumed.Eq(ceiling))
}

func TestAllocateRollsBackOnCreditFailure(t *testing.T) {
	f := newFixture(t, 1_000)
	grantee := [20]byte{0x10}
	f.ledger.fail = errors.New("ledger unavailable")

	_, err := f.engine.Allocate(f.oracle, grantee, uint256.NewInt(10), nil)
	require.Error(t, err)
	require.Zero(t, f.consumed(t))
	require.Zero(t, f.balance(t, grantee))
	count, err := f.engine.Count()
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, f.events.OfType(events.TypeAllocated))
}

func TestParamsValidate(t *testing.T) {
	require.Error(t, Params{MaxProofBytes: 1}.Validate())
	require.Error(t, Params{MaxCoinsEverAllocated: uint256.NewInt(1)}.Validate())
	require.NoError(t, DefaultParams().Validate())
}

func TestUnconfiguredEngine(t *testing.T) {
	var engine *Engine
	_, err := engine.Allocate([20]byte{}, [20]byte{}, uint256.NewInt(1), nil)
	require.Error(t, err)
}
