// Package infra contains infrastructure adapters for the keeper context.
package infra

import (
	"context"

	blockchainDomain "github.com/fd1az/gas-keeper/business/blockchain/domain"
	"github.com/fd1az/gas-keeper/business/keeper/domain"
	"github.com/fd1az/gas-keeper/pkg/ui"
)

// TUIReporter implements Reporter by forwarding events to the Bubble Tea
// program as messages.
type TUIReporter struct{}

// NewTUIReporter creates a new TUIReporter.
func NewTUIReporter() *TUIReporter {
	return &TUIReporter{}
}

// Start initializes the TUI reporter. The Bubble Tea program itself is
// started by main; nothing to do here.
func (r *TUIReporter) Start(ctx context.Context) error {
	return nil
}

// Report forwards a keeper event to the TUI.
func (r *TUIReporter) Report(_ context.Context, ev domain.Event) {
	ui.Send(ui.EventMsg{Event: ev})
	if ev.BlockNumber > 0 {
		ui.Send(ui.BlockMsg{Number: ev.BlockNumber, Timestamp: ev.Timestamp})
	}

	switch ev.Type {
	case domain.EventDecisionMade:
		ui.Send(ui.PricesMsg{
			BlockNumber:  ev.BlockNumber,
			NetworkGwei:  blockchainDomain.WeiToGwei(ev.NetworkPrice).StringFixed(2),
			ContractGwei: blockchainDomain.WeiToGwei(ev.ContractPrice).StringFixed(2),
		})

	case domain.EventUpdateSubmitted, domain.EventUpdateRetried:
		ui.Send(ui.StateMsg{
			State:   domain.StateAwaiting,
			TxHash:  ev.TxHash.Hex(),
			Target:  blockchainDomain.WeiToGwei(ev.TargetPrice).StringFixed(2),
			Attempt: ev.Attempt,
		})

	case domain.EventUpdateConfirmed, domain.EventUpdateTimedOut, domain.EventUpdateFailed:
		ui.Send(ui.StateMsg{State: domain.StateIdle})

	case domain.EventReadError:
		if ev.Err != nil {
			ui.Send(ui.ErrorMsg{Error: ev.Err})
		}
	}
}

// Stop gracefully shuts down the TUI reporter.
func (r *TUIReporter) Stop() error {
	return nil
}
