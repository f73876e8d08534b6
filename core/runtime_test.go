package core

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"grantchain/core/events"
	"grantchain/core/state"
	"grantchain/native/allocations"
	"grantchain/native/bank"
	nativecommon "grantchain/native/common"
	"grantchain/native/grants"
	"grantchain/native/membership"
	"grantchain/storage"
)

var (
	rootAcct   = [20]byte{0x01}
	oracleAcct = [20]byte{0x02}
	ferdie     = [20]byte{0x03}
	bob        = [20]byte{0x04}
)

func amount(v uint64) *uint256.Int { return uint256.NewInt(v) }

func testGenesis() Genesis {
	return Genesis{
		Balances: map[[20]byte]*uint256.Int{
			rootAcct: amount(100),
			ferdie:   amount(11_000),
		},
		Roles: map[membership.Role][][20]byte{
			membership.RoleRoot:   {rootAcct},
			membership.RoleOracle: {oracleAcct},
		},
		Schedules: map[[20]byte][]grants.Rule{
			ferdie: {
				grants.LegacyRule(1000, 1, 1, amount(1000)),
				grants.LegacyRule(2000, 1000, 100, amount(100)),
			},
		},
		Allocations: allocations.Params{MaxCoinsEverAllocated: amount(150), MaxProofBytes: allocations.DefaultMaxProofBytes},
		Grants:      grants.DefaultParams(),
	}
}

func newRuntime(t *testing.T) (*Runtime, *events.Recorder) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	rec := &events.Recorder{}
	rt, err := NewRuntime(db, WithEmitter(rec))
	require.NoError(t, err)
	_, err = rt.ApplyGenesis(testGenesis())
	require.NoError(t, err)
	rec.Reset()
	return rt, rec
}

func TestAllocationCapScenario(t *testing.T) {
	rt, rec := newRuntime(t)
	ctx := context.Background()
	grantee := [20]byte{0x09}

	require.NoError(t, rt.Apply(ctx, AllocateCall{Oracle: oracleAcct, Grantee: grantee, Amount: amount(100), Proof: []byte("evidence")}))
	err := rt.Apply(ctx, AllocateCall{Oracle: oracleAcct, Grantee: grantee, Amount: amount(60)})
	require.ErrorIs(t, err, allocations.ErrCapExceeded)

	stats, err := rt.AllocationStats()
	require.NoError(t, err)
	require.Equal(t, uint64(100), stats.Consumed.Uint64())
	require.Equal(t, uint64(50), stats.Remaining.Uint64())
	require.Equal(t, uint64(1), stats.Count)

	view, err := rt.Account(grantee)
	require.NoError(t, err)
	require.Equal(t, uint64(100), view.Balance.Uint64())

	require.ErrorIs(t, rt.Apply(ctx, AllocateCall{Oracle: bob, Grantee: bob, Amount: amount(1)}), allocations.ErrNotAuthorized)
	require.Len(t, rec.OfType(events.TypeAllocated), 1)
}

func TestVestingBlocksTransfersUntilUnlocked(t *testing.T) {
	rt, rec := newRuntime(t)
	ctx := context.Background()

	require.NoError(t, rt.SetBlock(999))
	err := rt.Apply(ctx, TransferCall{From: ferdie, To: bob, Amount: amount(1)})
	require.ErrorIs(t, err, bank.ErrLockedFunds)

	require.NoError(t, rt.SetBlock(1000))
	require.NoError(t, rt.Apply(ctx, TransferCall{From: ferdie, To: bob, Amount: amount(1000)}))
	require.ErrorIs(t, rt.Apply(ctx, TransferCall{From: ferdie, To: bob, Amount: amount(1)}), bank.ErrLockedFunds)

	require.NoError(t, rt.SetBlock(3000))
	view, err := rt.Account(ferdie)
	require.NoError(t, err)
	require.Equal(t, uint64(10_000), view.Balance.Uint64())
	require.Equal(t, uint64(9_800), view.Locked.Uint64())
	require.Equal(t, uint64(200), view.Transferable.Uint64())

	transfers := rec.OfType(events.TypeTransfer)
	require.Len(t, transfers, 1)
	require.Equal(t, uint64(1000), transfers[0].Height)

	grant, err := rt.Grant(ferdie, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(11_000), grant.Total.Uint64())
	require.Equal(t, uint64(9_800), grant.Locked.Uint64())

	at := uint64(102_000)
	grant, err = rt.Grant(ferdie, &at)
	require.NoError(t, err)
	require.True(t, grant.Locked.IsZero())
}

func TestBlockHeightIsMonotonic(t *testing.T) {
	rt, _ := newRuntime(t)
	require.NoError(t, rt.SetBlock(10))
	require.Error(t, rt.SetBlock(9))
	height, err := rt.Height()
	require.NoError(t, err)
	require.Equal(t, uint64(10), height)
}

func TestGovernanceRequiresRoot(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := context.Background()
	next := [20]byte{0x0a}

	err := rt.Apply(ctx, SetMembersCall{Caller: oracleAcct, Role: membership.RoleOracle, Members: [][20]byte{next}})
	require.ErrorIs(t, err, membership.ErrNotAuthorized)

	require.NoError(t, rt.Apply(ctx, SetMembersCall{Caller: rootAcct, Role: membership.RoleOracle, Members: [][20]byte{next, next}}))
	members, err := rt.Members(membership.RoleOracle)
	require.NoError(t, err)
	require.Equal(t, [][20]byte{next}, members)

	require.ErrorIs(t, rt.Apply(ctx, AllocateCall{Oracle: oracleAcct, Grantee: bob, Amount: amount(1)}), allocations.ErrNotAuthorized)
	require.NoError(t, rt.Apply(ctx, AllocateCall{Oracle: next, Grantee: bob, Amount: amount(1)}))

	err = rt.Apply(ctx, AddScheduleCall{Caller: bob, Grantee: bob, Rules: []grants.Rule{grants.LegacyRule(1, 1, 1, amount(1))}})
	require.ErrorIs(t, err, membership.ErrNotAuthorized)
	err = rt.Apply(ctx, AddScheduleCall{Caller: rootAcct, Grantee: bob, Rules: []grants.Rule{grants.LegacyRule(1, 0, 1, amount(1))}})
	require.ErrorIs(t, err, grants.ErrInvalidSchedule)
}

func TestPausedModulesRejectCalls(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := context.Background()

	require.ErrorIs(t, rt.Apply(ctx, SetPausesCall{Caller: bob, Pauses: nativecommon.Pauses{Allocations: true}}), membership.ErrNotAuthorized)
	require.NoError(t, rt.Apply(ctx, SetPausesCall{Caller: rootAcct, Pauses: nativecommon.Pauses{Allocations: true}}))

	err := rt.Apply(ctx, AllocateCall{Oracle: oracleAcct, Grantee: bob, Amount: amount(1)})
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	require.NoError(t, rt.Apply(ctx, TransferCall{From: rootAcct, To: bob, Amount: amount(1)}))
}

func TestAllocationParamsCannotUndercutConsumed(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.Apply(ctx, AllocateCall{Oracle: oracleAcct, Grantee: bob, Amount: amount(100)}))

	err := rt.Apply(ctx, SetAllocationParamsCall{Caller: rootAcct, Params: allocations.Params{MaxCoinsEverAllocated: amount(99), MaxProofBytes: 16}})
	require.ErrorIs(t, err, allocations.ErrCapExceeded)

	require.NoError(t, rt.Apply(ctx, SetAllocationParamsCall{Caller: rootAcct, Params: allocations.Params{MaxCoinsEverAllocated: amount(500), MaxProofBytes: 16}}))
	stats, err := rt.AllocationStats()
	require.NoError(t, err)
	require.Equal(t, uint64(400), stats.Remaining.Uint64())
	require.Equal(t, uint32(16), stats.MaxProofBytes)
}

func TestVestedTransferCall(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.SetBlock(5))

	rules := []grants.Rule{{Start: 10, Cliff: amount(20), Period: 5, PeriodCount: 4, PerPeriod: amount(20)}}
	require.NoError(t, rt.Apply(ctx, VestedTransferCall{From: rootAcct, To: bob, Rules: rules}))

	view, err := rt.Account(bob)
	require.NoError(t, err)
	require.Equal(t, uint64(100), view.Balance.Uint64())
	require.Equal(t, uint64(100), view.Locked.Uint64())

	err = rt.Apply(ctx, VestedTransferCall{From: rootAcct, To: bob, Rules: rules})
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)

	grantees, err := rt.Grantees()
	require.NoError(t, err)
	require.Contains(t, grantees, bob)
}

func TestGenesisRunsOnce(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, err := NewRuntime(db)
	require.NoError(t, err)
	first, err := rt.ApplyGenesis(testGenesis())
	require.NoError(t, err)
	_, err = rt.ApplyGenesis(testGenesis())
	require.ErrorIs(t, err, ErrGenesisExists)

	other, err := NewRuntime(storage.NewMemDB())
	require.NoError(t, err)
	second, err := other.ApplyGenesis(testGenesis())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestUnknownCall(t *testing.T) {
	rt, _ := newRuntime(t)
	require.ErrorIs(t, rt.Apply(context.Background(), nil), ErrUnknownCall)
}

func TestReopenFromCommittedHead(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	rt, err := NewRuntime(db)
	require.NoError(t, err)
	_, err = rt.ApplyGenesis(testGenesis())
	require.NoError(t, err)
	require.NoError(t, rt.SetBlock(7))
	require.NoError(t, rt.Apply(context.Background(), AllocateCall{Oracle: oracleAcct, Grantee: bob, Amount: amount(42)}))
	root, err := rt.Commit()
	require.NoError(t, err)
	db.Close()

	reopened, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()
	rt, err = NewRuntime(reopened)
	require.NoError(t, err)
	require.Equal(t, root, rt.Root())

	stats, err := rt.AllocationStats()
	require.NoError(t, err)
	require.Equal(t, uint64(42), stats.Consumed.Uint64())
	require.Equal(t, uint64(150), stats.Max.Uint64())
	height, err := rt.Height()
	require.NoError(t, err)
	require.Equal(t, uint64(7), height)
}

func TestFailedGenesisLeavesNoTrace(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rec := &events.Recorder{}
	rt, err := NewRuntime(db, WithEmitter(rec))
	require.NoError(t, err)
	before := rt.Root()

	bad := testGenesis()
	bad.Allocations = allocations.Params{MaxCoinsEverAllocated: amount(777), MaxProofBytes: 9}
	bad.Schedules[[20]byte{0x05}] = []grants.Rule{grants.LegacyRule(1, 0, 1, amount(1))}
	_, err = rt.ApplyGenesis(bad)
	require.ErrorIs(t, err, grants.ErrInvalidSchedule)

	require.Empty(t, rec.Events())
	require.Equal(t, before, rt.Root())
	stats, err := rt.AllocationStats()
	require.NoError(t, err)
	require.True(t, stats.Max.IsZero())
	require.Equal(t, allocations.DefaultMaxProofBytes, stats.MaxProofBytes)
	oracles, err := rt.Members(membership.RoleOracle)
	require.NoError(t, err)
	require.Empty(t, oracles)

	_, err = rt.ApplyGenesis(testGenesis())
	require.NoError(t, err)
	require.NotEmpty(t, rec.OfType(events.TypeMembersReset))
	stats, err = rt.AllocationStats()
	require.NoError(t, err)
	require.Equal(t, uint64(150), stats.Max.Uint64())
}

func TestSetBlockCallRequiresRoot(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := context.Background()

	require.ErrorIs(t, rt.Apply(ctx, SetBlockCall{Caller: bob, Height: 5}), membership.ErrNotAuthorized)
	require.NoError(t, rt.Apply(ctx, SetBlockCall{Caller: rootAcct, Height: 5}))
	require.ErrorIs(t, rt.Apply(ctx, SetBlockCall{Caller: rootAcct, Height: 4}), state.ErrHeightRegression)
	height, err := rt.Height()
	require.NoError(t, err)
	require.Equal(t, uint64(5), height)
}

func TestCommitEveryCallSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	rt, err := NewRuntime(db, WithCommitEveryCall())
	require.NoError(t, err)
	_, err = rt.ApplyGenesis(testGenesis())
	require.NoError(t, err)
	require.NoError(t, rt.Apply(context.Background(), AllocateCall{Oracle: oracleAcct, Grantee: bob, Amount: amount(42)}))
	require.NoError(t, rt.SetBlock(9))
	db.Close()

	reopened, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()
	rt, err = NewRuntime(reopened)
	require.NoError(t, err)
	view, err := rt.Account(bob)
	require.NoError(t, err)
	require.Equal(t, uint64(42), view.Balance.Uint64())
	height, err := rt.Height()
	require.NoError(t, err)
	require.Equal(t, uint64(9), height)
}
