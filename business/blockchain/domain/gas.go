// Package domain contains the core domain types for the blockchain context.
package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// WeiToGwei converts a wei amount to gwei for display. Wei stays the
// canonical unit everywhere; gwei exists only at presentation boundaries.
func WeiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -9)
}
