package app

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	blockchainDomain "github.com/fd1az/gas-keeper/business/blockchain/domain"
	"github.com/fd1az/gas-keeper/business/keeper/domain"
)

// mockFeed delivers scripted blocks.
type mockFeed struct {
	blocks chan *blockchainDomain.Block
}

func (f *mockFeed) SubscribeBlocks(context.Context) (<-chan *blockchainDomain.Block, error) {
	return f.blocks, nil
}

func makeBlock(number uint64, baseFee int64) *blockchainDomain.Block {
	return &blockchainDomain.Block{
		Number:    number,
		Timestamp: time.Now(),
		BaseFee:   big.NewInt(baseFee),
	}
}

func newTestKeeper(t *testing.T, chain ChainOps, reporter Reporter) *Keeper {
	t.Helper()

	l := newTestLifecycle(t, chain, reporter)
	k, err := NewKeeper(&mockFeed{}, chain, l, reporter, KeeperConfig{
		Thresholds: domain.Thresholds{
			UpwardTriggerPct:   120,
			DownwardTriggerPct: 80,
			UpwardBufferPct:    120,
			DownwardBufferPct:  110,
		},
	}, testLogger())
	if err != nil {
		t.Fatalf("NewKeeper() error = %v", err)
	}
	return k
}

func TestKeeper_InBandBlockMakesNoSubmission(t *testing.T) {
	chain := &mockChain{contractPrice: big.NewInt(1000)}
	reporter := &recordingReporter{}
	k := newTestKeeper(t, chain, reporter)

	k.OnNewBlock(context.Background(), makeBlock(100, 1000))

	if chain.submitCalls != 0 {
		t.Errorf("submit calls = %d, want 0", chain.submitCalls)
	}

	decisions := reporter.byType(domain.EventDecisionMade)
	if len(decisions) != 1 {
		t.Fatalf("decision events = %d, want 1", len(decisions))
	}
	if decisions[0].Action != domain.ActionNone {
		t.Errorf("decision action = %v, want none", decisions[0].Action)
	}
}

func TestKeeper_OutOfBandBlockSubmits(t *testing.T) {
	chain := &mockChain{contractPrice: big.NewInt(1000)}
	reporter := &recordingReporter{}
	k := newTestKeeper(t, chain, reporter)

	k.OnNewBlock(context.Background(), makeBlock(100, 1500))

	if chain.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", chain.submitCalls)
	}
	if got := chain.submitPrices[0].Int64(); got != 1800 { // 1500 * 120 / 100
		t.Errorf("submitted target = %d, want 1800", got)
	}
	if k.State() != domain.StateAwaiting {
		t.Errorf("state = %v, want awaiting", k.State())
	}
}

func TestKeeper_DuplicateAndOutOfOrderBlocksIgnored(t *testing.T) {
	chain := &mockChain{contractPrice: big.NewInt(1000)}
	reporter := &recordingReporter{}
	k := newTestKeeper(t, chain, reporter)

	ctx := context.Background()
	k.OnNewBlock(ctx, makeBlock(100, 1000))
	k.OnNewBlock(ctx, makeBlock(100, 1500)) // duplicate
	k.OnNewBlock(ctx, makeBlock(99, 1500))  // out of order

	if chain.submitCalls != 0 {
		t.Errorf("submit calls = %d, want 0 (stale blocks must not evaluate)", chain.submitCalls)
	}
	if got := reporter.byType(domain.EventDecisionMade); len(got) != 1 {
		t.Errorf("decision events = %d, want 1", len(got))
	}
	if k.LastBlock() != 100 {
		t.Errorf("last block = %d, want 100", k.LastBlock())
	}
}

func TestKeeper_BlockGapsAreTolerated(t *testing.T) {
	chain := &mockChain{contractPrice: big.NewInt(1000)}
	reporter := &recordingReporter{}
	k := newTestKeeper(t, chain, reporter)

	ctx := context.Background()
	k.OnNewBlock(ctx, makeBlock(100, 1000))
	k.OnNewBlock(ctx, makeBlock(105, 1000)) // gap of 4

	if got := reporter.byType(domain.EventDecisionMade); len(got) != 2 {
		t.Errorf("decision events = %d, want 2", len(got))
	}
	if k.LastBlock() != 105 {
		t.Errorf("last block = %d, want 105", k.LastBlock())
	}
}

func TestKeeper_ReadErrorSkipsCycle(t *testing.T) {
	chain := &mockChain{
		contractPrice: big.NewInt(1000),
		readErr:       errors.New("rpc timeout"),
	}
	reporter := &recordingReporter{}
	k := newTestKeeper(t, chain, reporter)

	ctx := context.Background()
	k.OnNewBlock(ctx, makeBlock(100, 1500))

	if chain.submitCalls != 0 {
		t.Errorf("submit calls = %d, want 0", chain.submitCalls)
	}
	if got := reporter.byType(domain.EventReadError); len(got) != 1 {
		t.Errorf("read error events = %d, want 1", len(got))
	}

	// The error clears; the next block evaluates normally.
	chain.mu.Lock()
	chain.readErr = nil
	chain.mu.Unlock()

	k.OnNewBlock(ctx, makeBlock(101, 1500))
	if chain.submitCalls != 1 {
		t.Errorf("submit calls after recovery = %d, want 1", chain.submitCalls)
	}
}

func TestKeeper_AwaitingSuspendsDecisions(t *testing.T) {
	chain := &mockChain{contractPrice: big.NewInt(1000)}
	reporter := &recordingReporter{}
	k := newTestKeeper(t, chain, reporter)

	ctx := context.Background()
	k.OnNewBlock(ctx, makeBlock(100, 1500)) // submits, moves to awaiting

	// While awaiting, blocks only reconcile: no new decisions, no reads.
	k.OnNewBlock(ctx, makeBlock(101, 9000))
	k.OnNewBlock(ctx, makeBlock(102, 9000))

	if chain.submitCalls != 1 {
		t.Errorf("submit calls = %d, want 1", chain.submitCalls)
	}
	if got := reporter.byType(domain.EventDecisionMade); len(got) != 1 {
		t.Errorf("decision events = %d, want 1", len(got))
	}
	if chain.statusCalls != 2 {
		t.Errorf("status calls = %d, want 2", chain.statusCalls)
	}
}

func TestKeeper_ResumesDecisionsAfterConfirmation(t *testing.T) {
	chain := &mockChain{
		contractPrice: big.NewInt(1000),
		statuses:      []blockchainDomain.TxStatus{blockchainDomain.TxConfirmed},
	}
	reporter := &recordingReporter{}
	k := newTestKeeper(t, chain, reporter)

	ctx := context.Background()
	k.OnNewBlock(ctx, makeBlock(100, 1500)) // submit
	k.OnNewBlock(ctx, makeBlock(101, 1500)) // reconcile, confirms

	if k.State() != domain.StateIdle {
		t.Fatalf("state = %v, want idle", k.State())
	}

	k.OnNewBlock(ctx, makeBlock(102, 1500)) // evaluates again
	if chain.submitCalls != 2 {
		t.Errorf("submit calls = %d, want 2", chain.submitCalls)
	}
}

func TestKeeper_MissingBaseFeeSkipsBlock(t *testing.T) {
	chain := &mockChain{contractPrice: big.NewInt(1000)}
	reporter := &recordingReporter{}
	k := newTestKeeper(t, chain, reporter)

	block := &blockchainDomain.Block{Number: 100, Timestamp: time.Now()}
	k.OnNewBlock(context.Background(), block)

	if got := reporter.byType(domain.EventDecisionMade); len(got) != 0 {
		t.Errorf("decision events = %d, want 0", len(got))
	}
	if k.LastBlock() != 100 {
		t.Errorf("last block = %d, want 100 (skipped blocks still advance the cursor)", k.LastBlock())
	}
}
