package app

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	blockchainDomain "github.com/fd1az/gas-keeper/business/blockchain/domain"
	"github.com/fd1az/gas-keeper/business/keeper/domain"
	"github.com/fd1az/gas-keeper/internal/apperror"
	"github.com/fd1az/gas-keeper/internal/logger"
)

// mockChain scripts ChainOps responses for a test.
type mockChain struct {
	mu sync.Mutex

	contractPrice *big.Int
	readErr       error

	submitErrs   []error // consumed per submit call; nil entry = success
	submitCalls  int
	submitPrices []*big.Int

	statuses    []blockchainDomain.TxStatus // consumed per status call
	statusErrs  []error
	statusCalls int
}

func (m *mockChain) ContractPrice(_ context.Context, _ uint64) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	return new(big.Int).Set(m.contractPrice), nil
}

func (m *mockChain) SubmitPriceUpdate(_ context.Context, newPrice *big.Int) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.submitCalls
	m.submitCalls++
	m.submitPrices = append(m.submitPrices, new(big.Int).Set(newPrice))

	if call < len(m.submitErrs) && m.submitErrs[call] != nil {
		return common.Hash{}, m.submitErrs[call]
	}
	return common.BigToHash(big.NewInt(int64(call + 1))), nil
}

func (m *mockChain) TxStatus(_ context.Context, _ common.Hash) (blockchainDomain.TxStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.statusCalls
	m.statusCalls++

	if call < len(m.statusErrs) && m.statusErrs[call] != nil {
		return "", m.statusErrs[call]
	}
	if call < len(m.statuses) {
		return m.statuses[call], nil
	}
	return blockchainDomain.TxPending, nil
}

// recordingReporter captures reported events.
type recordingReporter struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingReporter) Start(context.Context) error { return nil }
func (r *recordingReporter) Stop() error                 { return nil }

func (r *recordingReporter) Report(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingReporter) byType(typ domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func newTestLifecycle(t *testing.T, chain ChainOps, reporter Reporter) *Lifecycle {
	t.Helper()
	l, err := NewLifecycle(chain, reporter, LifecycleConfig{
		MaxWaitBlocks: 10,
		MaxRetries:    3,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewLifecycle() error = %v", err)
	}
	return l
}

func raiseDecision(target int64) domain.Decision {
	return domain.Decision{Action: domain.ActionRaise, TargetPrice: big.NewInt(target)}
}

func TestLifecycle_SubmitMovesToAwaiting(t *testing.T) {
	chain := &mockChain{}
	reporter := &recordingReporter{}
	l := newTestLifecycle(t, chain, reporter)

	if l.State() != domain.StateIdle {
		t.Fatalf("initial state = %v, want idle", l.State())
	}

	if err := l.Submit(context.Background(), 100, raiseDecision(1210)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if l.State() != domain.StateAwaiting {
		t.Errorf("state after submit = %v, want awaiting", l.State())
	}

	pending := l.Pending()
	if pending == nil {
		t.Fatal("Pending() = nil after submit")
	}
	if pending.TargetPrice.Int64() != 1210 {
		t.Errorf("pending target = %v, want 1210", pending.TargetPrice)
	}
	if pending.AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", pending.AttemptCount)
	}
	if pending.SubmittedAtBlock != 100 {
		t.Errorf("submitted at block = %d, want 100", pending.SubmittedAtBlock)
	}
}

func TestLifecycle_SecondSubmitRejected(t *testing.T) {
	chain := &mockChain{}
	reporter := &recordingReporter{}
	l := newTestLifecycle(t, chain, reporter)

	if err := l.Submit(context.Background(), 100, raiseDecision(1210)); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	err := l.Submit(context.Background(), 101, raiseDecision(1300))
	if apperror.GetCode(err) != apperror.CodeUpdateInFlight {
		t.Fatalf("second Submit() code = %v, want UPDATE_IN_FLIGHT", apperror.GetCode(err))
	}

	if chain.submitCalls != 1 {
		t.Errorf("chain submit calls = %d, want 1 (gating must not touch the chain)", chain.submitCalls)
	}
}

// Three pending checks, then a confirmation: exactly one broadcast, state
// returns to idle.
func TestLifecycle_PendingThenConfirmed(t *testing.T) {
	chain := &mockChain{
		statuses: []blockchainDomain.TxStatus{
			blockchainDomain.TxPending,
			blockchainDomain.TxPending,
			blockchainDomain.TxPending,
			blockchainDomain.TxConfirmed,
		},
	}
	reporter := &recordingReporter{}
	l := newTestLifecycle(t, chain, reporter)

	ctx := context.Background()
	if err := l.Submit(ctx, 100, raiseDecision(1210)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	for _, block := range []uint64{101, 102, 103} {
		if err := l.Reconcile(ctx, block); err != nil {
			t.Fatalf("Reconcile(%d) error = %v", block, err)
		}
		if l.State() != domain.StateAwaiting {
			t.Fatalf("state at block %d = %v, want awaiting", block, l.State())
		}
	}

	if err := l.Reconcile(ctx, 104); err != nil {
		t.Fatalf("Reconcile(104) error = %v", err)
	}

	if l.State() != domain.StateIdle {
		t.Errorf("state after confirmation = %v, want idle", l.State())
	}
	if chain.submitCalls != 1 {
		t.Errorf("chain submit calls = %d, want 1", chain.submitCalls)
	}
	if got := reporter.byType(domain.EventUpdateConfirmed); len(got) != 1 {
		t.Errorf("confirmed events = %d, want 1", len(got))
	}
}

// Two broadcast errors then success: the update goes out with attempt
// count 3 and confirms normally.
func TestLifecycle_SubmitRetriesOnBroadcastError(t *testing.T) {
	broadcastErr := errors.New("nonce too low")
	chain := &mockChain{
		submitErrs: []error{broadcastErr, broadcastErr, nil},
		statuses:   []blockchainDomain.TxStatus{blockchainDomain.TxConfirmed},
	}
	reporter := &recordingReporter{}
	l := newTestLifecycle(t, chain, reporter)

	ctx := context.Background()
	if err := l.Submit(ctx, 100, raiseDecision(1210)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if chain.submitCalls != 3 {
		t.Errorf("chain submit calls = %d, want 3", chain.submitCalls)
	}

	pending := l.Pending()
	if pending == nil {
		t.Fatal("Pending() = nil")
	}
	if pending.AttemptCount != 3 {
		t.Errorf("attempt count = %d, want 3", pending.AttemptCount)
	}

	if got := reporter.byType(domain.EventUpdateRetried); len(got) != 2 {
		t.Errorf("retried events = %d, want 2", len(got))
	}

	if err := l.Reconcile(ctx, 101); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if l.State() != domain.StateIdle {
		t.Errorf("state after confirmation = %v, want idle", l.State())
	}
}

func TestLifecycle_SubmitExhaustsRetries(t *testing.T) {
	broadcastErr := errors.New("connection refused")
	chain := &mockChain{
		submitErrs: []error{broadcastErr, broadcastErr, broadcastErr},
	}
	reporter := &recordingReporter{}
	l := newTestLifecycle(t, chain, reporter)

	err := l.Submit(context.Background(), 100, raiseDecision(1210))
	if apperror.GetCode(err) != apperror.CodeRetriesExhausted {
		t.Fatalf("Submit() code = %v, want RETRIES_EXHAUSTED", apperror.GetCode(err))
	}

	if l.State() != domain.StateIdle {
		t.Errorf("state after exhaustion = %v, want idle", l.State())
	}
	if got := reporter.byType(domain.EventUpdateFailed); len(got) != 1 {
		t.Errorf("failed events = %d, want 1", len(got))
	}
}

// An update that never confirms within the wait window times out and
// returns the keeper to idle without a resubmission.
func TestLifecycle_PendingTimesOut(t *testing.T) {
	chain := &mockChain{} // every status check returns pending
	reporter := &recordingReporter{}
	l := newTestLifecycle(t, chain, reporter)

	ctx := context.Background()
	if err := l.Submit(ctx, 100, raiseDecision(1210)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Blocks 101..109: still inside the window.
	for block := uint64(101); block < 110; block++ {
		if err := l.Reconcile(ctx, block); err != nil {
			t.Fatalf("Reconcile(%d) error = %v", block, err)
		}
		if l.State() != domain.StateAwaiting {
			t.Fatalf("state at block %d = %v, want awaiting", block, l.State())
		}
	}

	// Block 110: ten blocks waited, window spent.
	if err := l.Reconcile(ctx, 110); err != nil {
		t.Fatalf("Reconcile(110) error = %v", err)
	}

	if l.State() != domain.StateIdle {
		t.Errorf("state after timeout = %v, want idle", l.State())
	}
	if chain.submitCalls != 1 {
		t.Errorf("chain submit calls = %d, want 1 (timeout must not resubmit)", chain.submitCalls)
	}
	if got := reporter.byType(domain.EventUpdateTimedOut); len(got) != 1 {
		t.Errorf("timed out events = %d, want 1", len(got))
	}
	if got := reporter.byType(domain.EventUpdateFailed); len(got) != 0 {
		t.Errorf("failed events = %d, want 0", len(got))
	}
}

func TestLifecycle_FailedTxResubmitsSameTarget(t *testing.T) {
	chain := &mockChain{
		statuses: []blockchainDomain.TxStatus{
			blockchainDomain.TxFailed,
			blockchainDomain.TxConfirmed,
		},
	}
	reporter := &recordingReporter{}
	l := newTestLifecycle(t, chain, reporter)

	ctx := context.Background()
	if err := l.Submit(ctx, 100, raiseDecision(1210)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := l.Reconcile(ctx, 101); err != nil {
		t.Fatalf("Reconcile(101) error = %v", err)
	}

	if chain.submitCalls != 2 {
		t.Fatalf("chain submit calls = %d, want 2", chain.submitCalls)
	}
	if chain.submitPrices[1].Int64() != 1210 {
		t.Errorf("resubmitted target = %v, want 1210 (same target)", chain.submitPrices[1])
	}

	pending := l.Pending()
	if pending == nil {
		t.Fatal("Pending() = nil after resubmit")
	}
	if pending.AttemptCount != 2 {
		t.Errorf("attempt count = %d, want 2", pending.AttemptCount)
	}

	if err := l.Reconcile(ctx, 102); err != nil {
		t.Fatalf("Reconcile(102) error = %v", err)
	}
	if l.State() != domain.StateIdle {
		t.Errorf("state after confirmation = %v, want idle", l.State())
	}
}

func TestLifecycle_NotFoundExhaustsRetries(t *testing.T) {
	chain := &mockChain{
		statuses: []blockchainDomain.TxStatus{
			blockchainDomain.TxNotFound,
			blockchainDomain.TxNotFound,
			blockchainDomain.TxNotFound,
		},
	}
	reporter := &recordingReporter{}
	l := newTestLifecycle(t, chain, reporter)

	ctx := context.Background()
	if err := l.Submit(ctx, 100, raiseDecision(1210)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Attempt 1 dropped; attempt 2 resubmitted at block 101; attempt 3 at 102.
	if err := l.Reconcile(ctx, 101); err != nil {
		t.Fatalf("Reconcile(101) error = %v", err)
	}
	if err := l.Reconcile(ctx, 102); err != nil {
		t.Fatalf("Reconcile(102) error = %v", err)
	}

	// Attempt budget spent, the third drop is permanent.
	err := l.Reconcile(ctx, 103)
	if apperror.GetCode(err) != apperror.CodeRetriesExhausted {
		t.Fatalf("Reconcile(103) code = %v, want RETRIES_EXHAUSTED", apperror.GetCode(err))
	}

	if l.State() != domain.StateIdle {
		t.Errorf("state after exhaustion = %v, want idle", l.State())
	}
	if got := reporter.byType(domain.EventUpdateFailed); len(got) != 1 {
		t.Errorf("failed events = %d, want 1", len(got))
	}
}

func TestLifecycle_TransientStatusErrorLeavesStateUntouched(t *testing.T) {
	chain := &mockChain{
		statusErrs: []error{errors.New("rpc timeout")},
		statuses: []blockchainDomain.TxStatus{
			"", // consumed by the error slot
			blockchainDomain.TxConfirmed,
		},
	}
	reporter := &recordingReporter{}
	l := newTestLifecycle(t, chain, reporter)

	ctx := context.Background()
	if err := l.Submit(ctx, 100, raiseDecision(1210)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	before := l.Pending()

	if err := l.Reconcile(ctx, 101); err != nil {
		t.Fatalf("Reconcile() with transient error = %v, want nil", err)
	}

	after := l.Pending()
	if after == nil {
		t.Fatal("pending cleared by transient status error")
	}
	if after.TxHash != before.TxHash || after.AttemptCount != before.AttemptCount {
		t.Errorf("pending mutated by transient status error: %+v vs %+v", after, before)
	}

	// Next block the check succeeds.
	if err := l.Reconcile(ctx, 102); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if l.State() != domain.StateIdle {
		t.Errorf("state = %v, want idle", l.State())
	}
}

func TestLifecycle_ReconcileIdleIsNoop(t *testing.T) {
	chain := &mockChain{}
	l := newTestLifecycle(t, chain, &recordingReporter{})

	if err := l.Reconcile(context.Background(), 100); err != nil {
		t.Fatalf("Reconcile() while idle error = %v", err)
	}
	if chain.statusCalls != 0 {
		t.Errorf("status calls = %d, want 0", chain.statusCalls)
	}
}

func TestLifecycle_NoActionDecisionIsNoop(t *testing.T) {
	chain := &mockChain{}
	l := newTestLifecycle(t, chain, &recordingReporter{})

	err := l.Submit(context.Background(), 100, domain.Decision{Action: domain.ActionNone})
	if err != nil {
		t.Fatalf("Submit(none) error = %v", err)
	}
	if chain.submitCalls != 0 {
		t.Errorf("submit calls = %d, want 0", chain.submitCalls)
	}
	if l.State() != domain.StateIdle {
		t.Errorf("state = %v, want idle", l.State())
	}
}
