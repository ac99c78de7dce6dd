// Package ui provides the Bubble Tea TUI for the gas keeper.
package ui

import (
	"time"

	"github.com/fd1az/gas-keeper/business/keeper/domain"
)

// Message types for TUI updates

// EventMsg is sent for every keeper lifecycle event.
type EventMsg struct {
	Event domain.Event
}

// BlockMsg is sent when a new block is received.
type BlockMsg struct {
	Number    uint64
	Timestamp time.Time
}

// PricesMsg carries the latest observed prices in gwei for display.
type PricesMsg struct {
	BlockNumber  uint64
	NetworkGwei  string
	ContractGwei string
}

// StateMsg is sent when the engine state changes.
type StateMsg struct {
	State   domain.EngineState
	TxHash  string
	Target  string
	Attempt uint32
}

// ConnectionStatusMsg is sent when connection status changes.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
	Latency   time.Duration
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// StartupMsg is sent during application startup to show progress.
type StartupMsg struct {
	Step   string // Current step name
	Status string // "connecting", "connected", "failed"
}
