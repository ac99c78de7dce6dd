// Package domain contains the core domain types for the keeper context.
package domain

import "math/big"

// Action is the outcome of a price evaluation.
type Action string

const (
	// ActionNone means the contract price is inside the tolerance band.
	ActionNone Action = "none"
	// ActionRaise means the network price moved above the upward trigger.
	ActionRaise Action = "raise"
	// ActionLower means the network price dropped below the downward trigger.
	ActionLower Action = "lower"
)

// Thresholds are integer percentages governing when and how to reprice.
// Triggers define the tolerance band around the contract price; buffers
// are applied to the network price to compute the new target.
type Thresholds struct {
	UpwardTriggerPct   uint64
	DownwardTriggerPct uint64
	UpwardBufferPct    uint64
	DownwardBufferPct  uint64
}

// Decision is the result of comparing network and contract prices.
// TargetPrice is nil when Action is ActionNone.
type Decision struct {
	Action      Action
	TargetPrice *big.Int
}

// NeedsUpdate reports whether the decision calls for a transaction.
func (d Decision) NeedsUpdate() bool {
	return d.Action != ActionNone
}

// pctOf computes x * pct / 100 with truncating integer division.
func pctOf(x *big.Int, pct uint64) *big.Int {
	out := new(big.Int).Mul(x, new(big.Int).SetUint64(pct))
	return out.Quo(out, big.NewInt(100))
}

// Decide compares the network price against the tolerance band around the
// contract price and returns the action to take. All arithmetic is exact
// integer math on wei; division truncates.
//
// A contract price of zero means the contract was never priced: any
// positive network price triggers a raise.
func Decide(contractPrice, networkPrice *big.Int, t Thresholds) Decision {
	if networkPrice == nil || networkPrice.Sign() <= 0 {
		return Decision{Action: ActionNone}
	}

	if contractPrice == nil || contractPrice.Sign() == 0 {
		return Decision{
			Action:      ActionRaise,
			TargetPrice: pctOf(networkPrice, t.UpwardBufferPct),
		}
	}

	upperBound := pctOf(contractPrice, t.UpwardTriggerPct)
	if networkPrice.Cmp(upperBound) > 0 {
		return Decision{
			Action:      ActionRaise,
			TargetPrice: pctOf(networkPrice, t.UpwardBufferPct),
		}
	}

	lowerBound := pctOf(contractPrice, t.DownwardTriggerPct)
	if networkPrice.Cmp(lowerBound) < 0 {
		return Decision{
			Action:      ActionLower,
			TargetPrice: pctOf(networkPrice, t.DownwardBufferPct),
		}
	}

	return Decision{Action: ActionNone}
}
