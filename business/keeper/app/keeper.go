package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	blockchainDomain "github.com/fd1az/gas-keeper/business/blockchain/domain"
	"github.com/fd1az/gas-keeper/business/keeper/domain"
	"github.com/fd1az/gas-keeper/internal/logger"
)

// KeeperConfig holds the keeper's decision thresholds.
type KeeperConfig struct {
	Thresholds domain.Thresholds
}

// keeperMetrics holds OTEL metric instruments for the control loop.
type keeperMetrics struct {
	blocksProcessed metric.Int64Counter
	blocksSkipped   metric.Int64Counter
	decisionsMade   metric.Int64Counter
	readErrors      metric.Int64Counter
}

// Keeper is the control loop: one evaluation per new block. While an
// update is in flight it only reconciles; otherwise it reads prices,
// decides, and submits.
type Keeper struct {
	feed      BlockFeed
	chain     ChainOps
	lifecycle *Lifecycle
	reporter  Reporter
	config    KeeperConfig
	logger    logger.LoggerInterface

	lastBlock uint64
	done      chan struct{}

	tracer  trace.Tracer
	metrics *keeperMetrics
}

// NewKeeper creates the keeper control loop.
func NewKeeper(
	feed BlockFeed,
	chain ChainOps,
	lifecycle *Lifecycle,
	reporter Reporter,
	cfg KeeperConfig,
	log logger.LoggerInterface,
) (*Keeper, error) {
	k := &Keeper{
		feed:      feed,
		chain:     chain,
		lifecycle: lifecycle,
		reporter:  reporter,
		config:    cfg,
		logger:    log,
		done:      make(chan struct{}),
		tracer:    otel.Tracer(keeperTracerName),
	}

	if err := k.initMetrics(); err != nil {
		return nil, err
	}

	return k, nil
}

func (k *Keeper) initMetrics() error {
	meter := otel.Meter(keeperMeterName)
	var err error

	k.metrics = &keeperMetrics{}

	k.metrics.blocksProcessed, err = meter.Int64Counter(
		"gaskeeper_blocks_processed_total",
		metric.WithDescription("Blocks evaluated by the keeper"),
		metric.WithUnit("{block}"))
	if err != nil {
		return err
	}

	k.metrics.blocksSkipped, err = meter.Int64Counter(
		"gaskeeper_blocks_skipped_total",
		metric.WithDescription("Duplicate or out-of-order blocks ignored"),
		metric.WithUnit("{block}"))
	if err != nil {
		return err
	}

	k.metrics.decisionsMade, err = meter.Int64Counter(
		"gaskeeper_decisions_total",
		metric.WithDescription("Price decisions by action"),
		metric.WithUnit("{decision}"))
	if err != nil {
		return err
	}

	k.metrics.readErrors, err = meter.Int64Counter(
		"gaskeeper_read_errors_total",
		metric.WithDescription("Recoverable chain read errors"),
		metric.WithUnit("{error}"))
	if err != nil {
		return err
	}

	return nil
}

// Start subscribes to blocks and runs the evaluation loop until the
// context is cancelled.
func (k *Keeper) Start(ctx context.Context) error {
	k.logger.Info(ctx, "starting gas keeper",
		"upward_trigger_pct", k.config.Thresholds.UpwardTriggerPct,
		"downward_trigger_pct", k.config.Thresholds.DownwardTriggerPct)

	blocks, err := k.feed.SubscribeBlocks(ctx)
	if err != nil {
		return err
	}

	if err := k.reporter.Start(ctx); err != nil {
		return err
	}

	go k.run(ctx, blocks)

	return nil
}

func (k *Keeper) run(ctx context.Context, blocks <-chan *blockchainDomain.Block) {
	for {
		select {
		case <-k.done:
			k.logger.Info(ctx, "keeper stopped")
			return
		case <-ctx.Done():
			k.logger.Info(ctx, "keeper stopping", "reason", ctx.Err())
			return
		case block, ok := <-blocks:
			if !ok {
				k.logger.Info(ctx, "block feed closed, keeper stopping")
				return
			}
			if block != nil {
				k.OnNewBlock(ctx, block)
			}
		}
	}
}

// OnNewBlock runs one evaluation cycle. Duplicate and out-of-order blocks
// are ignored; gaps are tolerated. Errors are absorbed here: a failed
// cycle never stops the loop.
func (k *Keeper) OnNewBlock(ctx context.Context, block *blockchainDomain.Block) {
	ctx, span := k.tracer.Start(ctx, "keeper.on_new_block")
	defer span.End()

	if k.lastBlock != 0 && block.Number <= k.lastBlock {
		k.metrics.blocksSkipped.Add(ctx, 1)
		k.logger.Debug(ctx, "skipping stale block",
			"number", block.Number, "last", k.lastBlock)
		span.AddEvent("stale_block")
		return
	}
	k.lastBlock = block.Number
	k.metrics.blocksProcessed.Add(ctx, 1)

	// An in-flight update suspends decision making for the cycle.
	if k.lifecycle.State() == domain.StateAwaiting {
		if err := k.lifecycle.Reconcile(ctx, block.Number); err != nil {
			k.logger.Error(ctx, "reconcile failed", "block", block.Number, "error", err)
		}
		return
	}

	networkPrice := block.NetworkPrice()
	if networkPrice == nil {
		k.logger.Debug(ctx, "block carries no base fee, skipping", "number", block.Number)
		return
	}

	contractPrice, err := k.chain.ContractPrice(ctx, block.Number)
	if err != nil {
		// Recoverable: skip this cycle, the next block retries.
		k.metrics.readErrors.Add(ctx, 1)
		k.logger.Warn(ctx, "contract price read failed, skipping cycle",
			"block", block.Number, "error", err)

		ev := domain.NewEvent(domain.EventReadError, block.Number)
		ev.Err = err
		k.reporter.Report(ctx, ev)
		return
	}

	decision := domain.Decide(contractPrice, networkPrice, k.config.Thresholds)
	k.metrics.decisionsMade.Add(ctx, 1)

	ev := domain.NewEvent(domain.EventDecisionMade, block.Number)
	ev.Action = decision.Action
	ev.NetworkPrice = networkPrice
	ev.ContractPrice = contractPrice
	ev.TargetPrice = decision.TargetPrice
	k.reporter.Report(ctx, ev)

	k.logger.Debug(ctx, "decision made",
		"block", block.Number,
		"action", decision.Action,
		"network", networkPrice.String(),
		"contract", contractPrice.String())

	if !decision.NeedsUpdate() {
		return
	}

	if err := k.lifecycle.Submit(ctx, block.Number, decision); err != nil {
		k.logger.Error(ctx, "submit failed", "block", block.Number, "error", err)
	}
}

// Stop halts the evaluation loop and shuts down the reporter.
func (k *Keeper) Stop() error {
	select {
	case <-k.done:
	default:
		close(k.done)
	}
	return k.reporter.Stop()
}

// State exposes the lifecycle state for status displays.
func (k *Keeper) State() domain.EngineState {
	return k.lifecycle.State()
}

// LastBlock returns the highest block number processed.
func (k *Keeper) LastBlock() uint64 {
	return k.lastBlock
}
