// Package infra contains infrastructure adapters for the keeper context.
package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	blockchainDomain "github.com/fd1az/gas-keeper/business/blockchain/domain"
	"github.com/fd1az/gas-keeper/business/keeper/domain"
)

// ConsoleReporter implements Reporter for CLI output.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a new ConsoleReporter.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{
		out: os.Stdout,
	}
}

// Start initializes the console reporter.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	fmt.Fprintln(r.out, "Gas Keeper Started")
	fmt.Fprintln(r.out, "==================")
	return nil
}

// Report outputs a keeper event to the console. In-band decisions are
// suppressed to keep the output readable over long runs.
func (r *ConsoleReporter) Report(_ context.Context, ev domain.Event) {
	ts := ev.Timestamp.Format(time.RFC3339)

	switch ev.Type {
	case domain.EventDecisionMade:
		if ev.Action == domain.ActionNone {
			return
		}
		fmt.Fprintf(r.out, "[%s] block #%d: %s\n", ts, ev.BlockNumber, ev.Action)
		fmt.Fprintf(r.out, "  network:  %s gwei\n", blockchainDomain.WeiToGwei(ev.NetworkPrice))
		fmt.Fprintf(r.out, "  contract: %s gwei\n", blockchainDomain.WeiToGwei(ev.ContractPrice))
		fmt.Fprintf(r.out, "  target:   %s gwei\n", blockchainDomain.WeiToGwei(ev.TargetPrice))

	case domain.EventUpdateSubmitted:
		fmt.Fprintf(r.out, "[%s] submitted %s (attempt %d, target %s gwei)\n",
			ts, ev.TxHash.Hex(), ev.Attempt, blockchainDomain.WeiToGwei(ev.TargetPrice))

	case domain.EventUpdateConfirmed:
		fmt.Fprintf(r.out, "[%s] confirmed %s at block #%d\n", ts, ev.TxHash.Hex(), ev.BlockNumber)

	case domain.EventUpdateRetried:
		fmt.Fprintf(r.out, "[%s] retrying at block #%d (attempt %d)\n", ts, ev.BlockNumber, ev.Attempt)

	case domain.EventUpdateTimedOut:
		fmt.Fprintf(r.out, "[%s] update %s timed out at block #%d\n", ts, ev.TxHash.Hex(), ev.BlockNumber)

	case domain.EventUpdateFailed:
		fmt.Fprintf(r.out, "[%s] update failed permanently after %d attempts\n", ts, ev.Attempt)

	case domain.EventReadError:
		fmt.Fprintf(r.out, "[%s] read error at block #%d: %v\n", ts, ev.BlockNumber, ev.Err)
	}
}

// Stop gracefully shuts down the console reporter.
func (r *ConsoleReporter) Stop() error {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "Gas Keeper Stopped")
	return nil
}
