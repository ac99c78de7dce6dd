package app

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	blockchainDomain "github.com/fd1az/gas-keeper/business/blockchain/domain"
	"github.com/fd1az/gas-keeper/business/keeper/domain"
	"github.com/fd1az/gas-keeper/internal/apperror"
	"github.com/fd1az/gas-keeper/internal/logger"
)

const (
	keeperTracerName = "github.com/fd1az/gas-keeper/business/keeper/app"
	keeperMeterName  = "github.com/fd1az/gas-keeper/business/keeper/app"
)

// LifecycleConfig holds the transaction lifecycle limits.
type LifecycleConfig struct {
	MaxWaitBlocks uint64 // blocks to wait for confirmation before timing out
	MaxRetries    uint32 // total broadcast attempts per target price
}

// lifecycleMetrics holds OTEL metric instruments.
type lifecycleMetrics struct {
	updatesSubmitted metric.Int64Counter
	updatesConfirmed metric.Int64Counter
	updatesRetried   metric.Int64Counter
	updatesTimedOut  metric.Int64Counter
	updatesFailed    metric.Int64Counter
}

// Lifecycle manages the single in-flight price update. It owns the
// Idle/AwaitingConfirmation state machine: Submit moves Idle to awaiting,
// Reconcile moves it back once the transaction confirms, times out, or
// exhausts its retries.
type Lifecycle struct {
	chain    ChainOps
	reporter Reporter
	config   LifecycleConfig
	logger   logger.LoggerInterface

	mu      sync.Mutex
	pending *domain.PendingUpdate

	tracer  trace.Tracer
	metrics *lifecycleMetrics
}

// NewLifecycle creates a transaction lifecycle manager.
func NewLifecycle(chain ChainOps, reporter Reporter, cfg LifecycleConfig, log logger.LoggerInterface) (*Lifecycle, error) {
	l := &Lifecycle{
		chain:    chain,
		reporter: reporter,
		config:   cfg,
		logger:   log,
		tracer:   otel.Tracer(keeperTracerName),
	}

	if err := l.initMetrics(); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *Lifecycle) initMetrics() error {
	meter := otel.Meter(keeperMeterName)
	var err error

	l.metrics = &lifecycleMetrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&l.metrics.updatesSubmitted, "gaskeeper_updates_submitted_total", "Price updates broadcast"},
		{&l.metrics.updatesConfirmed, "gaskeeper_updates_confirmed_total", "Price updates confirmed on chain"},
		{&l.metrics.updatesRetried, "gaskeeper_updates_retried_total", "Price update retry attempts"},
		{&l.metrics.updatesTimedOut, "gaskeeper_updates_timed_out_total", "Price updates abandoned after the wait window"},
		{&l.metrics.updatesFailed, "gaskeeper_updates_failed_total", "Price updates that exhausted all retries"},
	}

	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit("{update}"))
		if err != nil {
			return err
		}
	}

	return nil
}

// State returns the current engine state.
func (l *Lifecycle) State() domain.EngineState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != nil {
		return domain.StateAwaiting
	}
	return domain.StateIdle
}

// Pending returns a copy of the in-flight update, or nil when idle.
func (l *Lifecycle) Pending() *domain.PendingUpdate {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return nil
	}
	p := *l.pending
	return &p
}

// Submit broadcasts the decided price update. Broadcast errors are retried
// immediately up to MaxRetries attempts; the attempt count carries into the
// pending update so on-chain failures continue the same budget.
//
// Calling Submit while an update is already in flight is a protocol
// violation and returns CodeUpdateInFlight without touching the chain.
func (l *Lifecycle) Submit(ctx context.Context, blockNumber uint64, decision domain.Decision) error {
	ctx, span := l.tracer.Start(ctx, "keeper.submit",
		trace.WithAttributes(
			attribute.Int64("block", int64(blockNumber)),
			attribute.String("action", string(decision.Action)),
		),
	)
	defer span.End()

	if !decision.NeedsUpdate() {
		return nil
	}

	l.mu.Lock()
	if l.pending != nil {
		l.mu.Unlock()
		return apperror.New(apperror.CodeUpdateInFlight,
			apperror.WithContext("submit called while an update is awaiting confirmation"))
	}
	l.mu.Unlock()

	var attempt uint32
	for attempt = 1; attempt <= l.config.MaxRetries; attempt++ {
		hash, err := l.chain.SubmitPriceUpdate(ctx, decision.TargetPrice)
		if err == nil {
			pending := &domain.PendingUpdate{
				TargetPrice:      decision.TargetPrice,
				TxHash:           hash,
				SubmittedAtBlock: blockNumber,
				AttemptCount:     attempt,
			}

			l.mu.Lock()
			l.pending = pending
			l.mu.Unlock()

			l.metrics.updatesSubmitted.Add(ctx, 1)
			l.logger.Info(ctx, "price update submitted",
				"tx_hash", hash.Hex(),
				"target", decision.TargetPrice.String(),
				"attempt", attempt)

			ev := domain.NewEvent(domain.EventUpdateSubmitted, blockNumber)
			ev.Action = decision.Action
			ev.TargetPrice = decision.TargetPrice
			ev.TxHash = hash
			ev.Attempt = attempt
			l.reporter.Report(ctx, ev)

			return nil
		}

		span.RecordError(err)
		l.logger.Warn(ctx, "broadcast failed",
			"attempt", attempt, "max_retries", l.config.MaxRetries, "error", err)

		if attempt < l.config.MaxRetries {
			l.metrics.updatesRetried.Add(ctx, 1)

			ev := domain.NewEvent(domain.EventUpdateRetried, blockNumber)
			ev.TargetPrice = decision.TargetPrice
			ev.Attempt = attempt
			ev.Err = err
			l.reporter.Report(ctx, ev)
		}
	}

	l.metrics.updatesFailed.Add(ctx, 1)

	ev := domain.NewEvent(domain.EventUpdateFailed, blockNumber)
	ev.TargetPrice = decision.TargetPrice
	ev.Attempt = l.config.MaxRetries
	l.reporter.Report(ctx, ev)

	l.logger.Error(ctx, "price update failed permanently",
		"target", decision.TargetPrice.String(),
		"attempts", l.config.MaxRetries)

	return apperror.New(apperror.CodeRetriesExhausted,
		apperror.WithContext("all broadcast attempts failed"))
}

// Reconcile checks the in-flight update against the chain for the given
// block. No-op when idle. A transient status-read error leaves the state
// untouched; the next block retries the check.
func (l *Lifecycle) Reconcile(ctx context.Context, currentBlock uint64) error {
	l.mu.Lock()
	pending := l.pending
	l.mu.Unlock()

	if pending == nil {
		return nil
	}

	ctx, span := l.tracer.Start(ctx, "keeper.reconcile",
		trace.WithAttributes(
			attribute.Int64("block", int64(currentBlock)),
			attribute.String("tx_hash", pending.TxHash.Hex()),
		),
	)
	defer span.End()

	status, err := l.chain.TxStatus(ctx, pending.TxHash)
	if err != nil {
		span.RecordError(err)
		l.logger.Warn(ctx, "tx status check failed, will retry next block",
			"tx_hash", pending.TxHash.Hex(), "error", err)
		return nil
	}

	switch status {
	case blockchainDomain.TxConfirmed:
		l.clearPending()
		l.metrics.updatesConfirmed.Add(ctx, 1)
		l.logger.Info(ctx, "price update confirmed",
			"tx_hash", pending.TxHash.Hex(),
			"target", pending.TargetPrice.String(),
			"blocks_waited", pending.BlocksWaited(currentBlock))

		ev := domain.NewEvent(domain.EventUpdateConfirmed, currentBlock)
		ev.TargetPrice = pending.TargetPrice
		ev.TxHash = pending.TxHash
		ev.Attempt = pending.AttemptCount
		l.reporter.Report(ctx, ev)
		return nil

	case blockchainDomain.TxPending:
		if pending.BlocksWaited(currentBlock) < l.config.MaxWaitBlocks {
			span.AddEvent("still_pending")
			return nil
		}

		// Waited long enough. Abandon the update; the next evaluation
		// cycle re-decides from fresh prices.
		l.clearPending()
		l.metrics.updatesTimedOut.Add(ctx, 1)
		l.logger.Warn(ctx, "price update timed out",
			"tx_hash", pending.TxHash.Hex(),
			"blocks_waited", pending.BlocksWaited(currentBlock),
			"max_wait_blocks", l.config.MaxWaitBlocks)

		ev := domain.NewEvent(domain.EventUpdateTimedOut, currentBlock)
		ev.TargetPrice = pending.TargetPrice
		ev.TxHash = pending.TxHash
		l.reporter.Report(ctx, ev)
		return nil

	case blockchainDomain.TxFailed, blockchainDomain.TxNotFound:
		return l.resubmit(ctx, currentBlock, pending, status)

	default:
		l.logger.Warn(ctx, "unknown tx status", "status", status)
		return nil
	}
}

// resubmit rebroadcasts the same target after an on-chain failure while
// attempts remain.
func (l *Lifecycle) resubmit(ctx context.Context, currentBlock uint64, pending *domain.PendingUpdate, status blockchainDomain.TxStatus) error {
	if pending.AttemptCount >= l.config.MaxRetries {
		l.clearPending()
		l.metrics.updatesFailed.Add(ctx, 1)
		l.logger.Error(ctx, "price update failed permanently",
			"tx_hash", pending.TxHash.Hex(),
			"status", status,
			"attempts", pending.AttemptCount)

		ev := domain.NewEvent(domain.EventUpdateFailed, currentBlock)
		ev.TargetPrice = pending.TargetPrice
		ev.TxHash = pending.TxHash
		ev.Attempt = pending.AttemptCount
		l.reporter.Report(ctx, ev)

		return apperror.New(apperror.CodeRetriesExhausted,
			apperror.WithContext("update failed on chain with no attempts left"))
	}

	attempt := pending.AttemptCount + 1
	l.logger.Warn(ctx, "update failed on chain, resubmitting",
		"old_tx_hash", pending.TxHash.Hex(),
		"status", status,
		"attempt", attempt)

	hash, err := l.chain.SubmitPriceUpdate(ctx, pending.TargetPrice)
	if err != nil {
		// Count the attempt; the next block reconciles again.
		l.mu.Lock()
		if l.pending != nil {
			l.pending.AttemptCount = attempt
		}
		l.mu.Unlock()

		l.logger.Warn(ctx, "resubmit broadcast failed", "attempt", attempt, "error", err)
		return nil
	}

	l.mu.Lock()
	l.pending = &domain.PendingUpdate{
		TargetPrice:      pending.TargetPrice,
		TxHash:           hash,
		SubmittedAtBlock: currentBlock,
		AttemptCount:     attempt,
	}
	l.mu.Unlock()

	l.metrics.updatesRetried.Add(ctx, 1)

	ev := domain.NewEvent(domain.EventUpdateRetried, currentBlock)
	ev.TargetPrice = pending.TargetPrice
	ev.TxHash = hash
	ev.Attempt = attempt
	l.reporter.Report(ctx, ev)

	return nil
}

func (l *Lifecycle) clearPending() {
	l.mu.Lock()
	l.pending = nil
	l.mu.Unlock()
}
