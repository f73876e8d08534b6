package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"grantchain/core/events"
	"grantchain/core/state"
	"grantchain/native/allocations"
	"grantchain/native/bank"
	nativecommon "grantchain/native/common"
	"grantchain/native/grants"
	"grantchain/native/membership"
	"grantchain/native/params"
	"grantchain/observability/metrics"
	"grantchain/observability/otel"
	"grantchain/storage"
	"grantchain/storage/trie"
)

var (
	// ErrUnknownCall is returned for call types the runtime does not handle.
	ErrUnknownCall = errors.New("runtime: unknown call")
	// ErrGenesisExists is returned when genesis is applied twice.
	ErrGenesisExists = errors.New("runtime: genesis already applied")
)

var rejectionReasons = []struct {
	label string
	err   error
}{
	{"not_authorized", allocations.ErrNotAuthorized},
	{"not_authorized", membership.ErrNotAuthorized},
	{"cap_exceeded", allocations.ErrCapExceeded},
	{"overflow", nativecommon.ErrArithmeticOverflow},
	{"proof_too_large", allocations.ErrProofTooLarge},
	{"zero_allocation", allocations.ErrZeroAllocation},
	{"invalid_schedule", grants.ErrInvalidSchedule},
	{"too_many_schedules", grants.ErrTooManySchedules},
	{"locked_funds", bank.ErrLockedFunds},
	{"insufficient_funds", bank.ErrInsufficientFunds},
	{"paused", nativecommon.ErrModulePaused},
	{"unknown_role", membership.ErrUnknownRole},
	{"self_vested", grants.ErrSelfVested},
	{"height_regression", state.ErrHeightRegression},
}

func rejectionReason(err error) string {
	for _, r := range rejectionReasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "other"
}

// Runtime owns the state trie and the native modules and applies calls one
// at a time. Every call is all-or-nothing.
type Runtime struct {
	mu sync.Mutex

	db          storage.Database
	manager     *state.Manager
	registry    *membership.Registry
	ledger      *bank.Ledger
	allocations *allocations.Engine
	grants      *grants.Engine
	params      *params.Store

	// pending collects events raised inside a transition; sink receives
	// them once the transition succeeds.
	pending    *events.Buffer
	sink       events.Emitter
	autoCommit bool

	logger  *slog.Logger
	metrics *metrics.LedgerMetrics
	tracer  trace.Tracer
}

// Option customises a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger used for rejected calls.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEmitter sets the downstream event sink (indexer, fanout, recorder).
func WithEmitter(emitter events.Emitter) Option {
	return func(r *Runtime) {
		r.sink = emitter
	}
}

// WithCommitEveryCall flushes the state to disk after every successful call
// and block height change, so an acknowledged call survives a crash.
func WithCommitEveryCall() Option {
	return func(r *Runtime) {
		r.autoCommit = true
	}
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

// NewRuntime opens the state at the last committed head of db, or at the
// empty root on a fresh database.
func NewRuntime(db storage.Database, opts ...Option) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("runtime: database required")
	}
	head, ok, err := state.ReadHead(db)
	if err != nil {
		return nil, err
	}
	var root []byte
	if ok {
		root = head.Root.Bytes()
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("runtime: open state at %x: %w", root, err)
	}
	manager := state.NewManager(tr)

	pending := &events.Buffer{}
	ledger := bank.NewLedger(manager)
	ledger.SetEmitter(pending)
	registry := membership.NewRegistry(manager)
	registry.SetEmitter(ledger)
	alloc := allocations.NewEngine(manager, ledger, registry)
	alloc.SetEmitter(ledger)
	vesting := grants.NewEngine(manager, ledger)
	vesting.SetEmitter(ledger)
	ledger.SetLockSource(vesting)

	r := &Runtime{
		db:          db,
		manager:     manager,
		registry:    registry,
		ledger:      ledger,
		allocations: alloc,
		grants:      vesting,
		params:      params.NewStore(manager),
		pending:     pending,
		logger:      slog.Default(),
		tracer:      otel.Tracer("grantchain/core"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.loadParams(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) loadParams() error {
	allocParams, err := r.params.Allocations()
	if err != nil {
		return err
	}
	if err := r.allocations.SetParams(allocParams); err != nil {
		return err
	}
	grantParams, err := r.params.Grants()
	if err != nil {
		return err
	}
	return r.grants.SetParams(grantParams)
}

// Apply runs call against the current state. On error every write made by
// the call is rolled back.
func (r *Runtime) Apply(ctx context.Context, call Call) error {
	if call == nil {
		return ErrUnknownCall
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, span := r.tracer.Start(ctx, "runtime.apply", trace.WithAttributes(attribute.String("call", call.Kind())))
	defer span.End()

	err := r.transact(func() error { return r.dispatch(call) })
	if err == nil && r.autoCommit {
		if _, commitErr := r.commitLocked(); commitErr != nil {
			r.logger.Error("commit after call", "call", call.Kind(), "error", commitErr)
			err = commitErr
		}
	}
	r.metrics.ObserveCall(call.Kind(), err)
	if err != nil {
		reason := rejectionReason(err)
		r.metrics.ObserveRejection(reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		r.logger.Debug("call rejected", "call", call.Kind(), "reason", reason, "error", err)
		return err
	}
	return nil
}

// transact runs fn as one all-or-nothing transition. Events raised by fn
// reach the sink only on success. On failure the trie is restored and the
// engines reload their params from it.
func (r *Runtime) transact(fn func() error) error {
	r.pending.Discard()
	if err := r.manager.Atomic(fn); err != nil {
		r.pending.Discard()
		if reloadErr := r.loadParams(); reloadErr != nil {
			return errors.Join(err, reloadErr)
		}
		return err
	}
	r.pending.Flush(r.sink)
	return nil
}

func (r *Runtime) guard(module string) error {
	pauses, err := r.params.Pauses()
	if err != nil {
		return err
	}
	return nativecommon.Guard(pauses, module)
}

func (r *Runtime) requireRoot(caller [20]byte) error {
	ok, err := r.registry.Contains(membership.RoleRoot, caller)
	if err != nil {
		return err
	}
	if !ok {
		return membership.ErrNotAuthorized
	}
	return nil
}

func (r *Runtime) dispatch(call Call) error {
	switch c := call.(type) {
	case AllocateCall:
		if err := r.guard(nativecommon.ModuleAllocations); err != nil {
			return err
		}
		if _, err := r.allocations.Allocate(c.Oracle, c.Grantee, c.Amount, c.Proof); err != nil {
			return err
		}
		r.observeCoins(true)
		return nil
	case SetMembersCall:
		return r.registry.ReplaceMembers(c.Caller, c.Role, c.Members)
	case AddScheduleCall:
		if err := r.guard(nativecommon.ModuleGrants); err != nil {
			return err
		}
		if err := r.requireRoot(c.Caller); err != nil {
			return err
		}
		return r.grants.AddSchedule(c.Grantee, c.Rules)
	case VestedTransferCall:
		if err := r.guard(nativecommon.ModuleGrants); err != nil {
			return err
		}
		_, err := r.grants.VestedTransfer(c.From, c.To, c.Rules)
		return err
	case TransferCall:
		if err := r.guard(nativecommon.ModuleTransfers); err != nil {
			return err
		}
		if err := r.ledger.Transfer(c.From, c.To, c.Amount); err != nil {
			if errors.Is(err, bank.ErrLockedFunds) {
				r.metrics.ObserveLockedTransfer()
			}
			return err
		}
		r.ledger.Emit(events.Transfer{From: c.From, To: c.To, Amount: c.Amount.Clone()})
		return nil
	case SetBlockCall:
		if err := r.requireRoot(c.Caller); err != nil {
			return err
		}
		return r.setBlockLocked(c.Height)
	case SetPausesCall:
		if err := r.requireRoot(c.Caller); err != nil {
			return err
		}
		return r.params.SetPauses(c.Pauses)
	case SetAllocationParamsCall:
		if err := r.requireRoot(c.Caller); err != nil {
			return err
		}
		return r.setAllocationParams(c.Params)
	case SetGrantParamsCall:
		if err := r.requireRoot(c.Caller); err != nil {
			return err
		}
		if err := r.params.SetGrants(c.Params); err != nil {
			return err
		}
		return r.grants.SetParams(c.Params)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCall, call)
	}
}

func (r *Runtime) setAllocationParams(p allocations.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	consumed, err := r.allocations.CoinsConsumed()
	if err != nil {
		return err
	}
	if p.MaxCoinsEverAllocated.Lt(consumed) {
		return fmt.Errorf("%w: cap %s below consumed %s", allocations.ErrCapExceeded, p.MaxCoinsEverAllocated.Dec(), consumed.Dec())
	}
	if err := r.params.SetAllocations(p); err != nil {
		return err
	}
	if err := r.allocations.SetParams(p); err != nil {
		return err
	}
	r.observeCoins(false)
	return nil
}

func (r *Runtime) observeCoins(allocated bool) {
	if r.metrics == nil {
		return
	}
	consumed, err := r.allocations.CoinsConsumed()
	if err != nil {
		return
	}
	remaining, err := r.allocations.Remaining()
	if err != nil {
		return
	}
	if allocated {
		r.metrics.ObserveAllocation(consumed, remaining)
		return
	}
	r.metrics.SetCoins(consumed, remaining)
}

// SetBlock records the block height supplied by the host. Heights never go
// backwards.
func (r *Runtime) SetBlock(height uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.setBlockLocked(height); err != nil {
		return err
	}
	if r.autoCommit {
		_, err := r.commitLocked()
		return err
	}
	return nil
}

func (r *Runtime) setBlockLocked(height uint64) error {
	if err := r.manager.SetBlockHeight(height); err != nil {
		return err
	}
	r.metrics.SetBlockHeight(height)
	return nil
}

// Commit flushes the state to disk, records the new head and returns the
// state root.
func (r *Runtime) Commit() (common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitLocked()
}

func (r *Runtime) commitLocked() (common.Hash, error) {
	height, err := r.manager.BlockHeight()
	if err != nil {
		return common.Hash{}, err
	}
	root, err := r.manager.Commit(height)
	if err != nil {
		return common.Hash{}, fmt.Errorf("runtime: commit: %w", err)
	}
	if err := state.WriteHead(r.db, state.Head{Root: root, Height: height}); err != nil {
		return common.Hash{}, err
	}
	return root, nil
}

// Root returns the state root including uncommitted writes.
func (r *Runtime) Root() common.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manager.Hash()
}
