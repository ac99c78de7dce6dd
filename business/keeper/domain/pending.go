package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EngineState is the lifecycle state of the keeper.
type EngineState string

const (
	// StateIdle means no update transaction is in flight.
	StateIdle EngineState = "idle"
	// StateAwaiting means an update was broadcast and awaits confirmation.
	StateAwaiting EngineState = "awaiting_confirmation"
)

// GasSnapshot captures the prices observed for one block cycle.
type GasSnapshot struct {
	BlockNumber   uint64
	NetworkPrice  *big.Int
	ContractPrice *big.Int
	ObservedAt    time.Time
}

// PendingUpdate tracks the single in-flight price update. At most one
// exists at any time; a second submission while one is pending is a bug.
type PendingUpdate struct {
	TargetPrice      *big.Int
	TxHash           common.Hash
	SubmittedAtBlock uint64
	SubmittedAt      time.Time
	AttemptCount     uint32
}

// BlocksWaited returns how many blocks have elapsed since submission.
func (p *PendingUpdate) BlocksWaited(currentBlock uint64) uint64 {
	if currentBlock <= p.SubmittedAtBlock {
		return 0
	}
	return currentBlock - p.SubmittedAtBlock
}
