// Package app contains application services and port definitions for the keeper context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	blockchainDomain "github.com/fd1az/gas-keeper/business/blockchain/domain"
	"github.com/fd1az/gas-keeper/business/keeper/domain"
)

// BlockFeed delivers new block headers to the keeper.
type BlockFeed interface {
	SubscribeBlocks(ctx context.Context) (<-chan *blockchainDomain.Block, error)
}

// ChainOps is the chain surface the keeper needs: reading the contract
// price, broadcasting updates, and checking transaction status.
type ChainOps interface {
	ContractPrice(ctx context.Context, blockNumber uint64) (*big.Int, error)
	SubmitPriceUpdate(ctx context.Context, newPrice *big.Int) (common.Hash, error)
	TxStatus(ctx context.Context, txHash common.Hash) (blockchainDomain.TxStatus, error)
}

// Reporter receives keeper lifecycle events for display.
type Reporter interface {
	// Start initializes the reporter.
	Start(ctx context.Context) error

	// Report delivers an event. Must not block the keeper loop.
	Report(ctx context.Context, event domain.Event)

	// Stop shuts down the reporter.
	Stop() error
}
