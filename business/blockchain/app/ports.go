// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/gas-keeper/business/blockchain/domain"
)

// BlockSubscriber defines the interface for subscribing to new blocks.
type BlockSubscriber interface {
	// Subscribe starts listening for new blocks and returns a channel of blocks.
	Subscribe(ctx context.Context) (<-chan *domain.Block, error)

	// LatestBlock retrieves the most recent block.
	LatestBlock(ctx context.Context) (*domain.Block, error)

	// State returns the current connection state.
	State() domain.ConnectionState
}

// ChainClient defines the interface for interacting with the paymaster contract.
type ChainClient interface {
	// ContractPrice reads the gas price currently stored in the contract.
	// blockNumber identifies the evaluation cycle for caching purposes.
	ContractPrice(ctx context.Context, blockNumber uint64) (*big.Int, error)

	// SubmitPriceUpdate broadcasts a signed setGasPrice transaction.
	SubmitPriceUpdate(ctx context.Context, newPrice *big.Int) (common.Hash, error)

	// TxStatus queries the status of a previously submitted transaction.
	TxStatus(ctx context.Context, txHash common.Hash) (domain.TxStatus, error)
}
