package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType identifies a keeper lifecycle event.
type EventType string

const (
	EventDecisionMade    EventType = "decision_made"
	EventUpdateSubmitted EventType = "update_submitted"
	EventUpdateConfirmed EventType = "update_confirmed"
	EventUpdateRetried   EventType = "update_retried"
	EventUpdateTimedOut  EventType = "update_timed_out"
	EventUpdateFailed    EventType = "update_failed_permanently"
	EventReadError       EventType = "read_error"
)

// Event is a keeper lifecycle event emitted toward reporters.
type Event struct {
	Type        EventType
	Timestamp   time.Time
	BlockNumber uint64

	// Set for decision events.
	Action        Action
	NetworkPrice  *big.Int
	ContractPrice *big.Int
	TargetPrice   *big.Int

	// Set for lifecycle events.
	TxHash  common.Hash
	Attempt uint32

	// Set for failures.
	Err error
}

// NewEvent creates an event stamped with the current time.
func NewEvent(typ EventType, blockNumber uint64) Event {
	return Event{
		Type:        typ,
		Timestamp:   time.Now(),
		BlockNumber: blockNumber,
	}
}
