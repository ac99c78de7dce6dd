// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/gas-keeper/business/blockchain/domain"
)

// BlockchainService coordinates blockchain interactions for the keeper.
type BlockchainService struct {
	subscriber BlockSubscriber
	chain      ChainClient
}

// NewBlockchainService creates a new BlockchainService.
func NewBlockchainService(subscriber BlockSubscriber, chain ChainClient) *BlockchainService {
	return &BlockchainService{
		subscriber: subscriber,
		chain:      chain,
	}
}

// SubscribeBlocks starts the block subscription and returns the channel.
func (s *BlockchainService) SubscribeBlocks(ctx context.Context) (<-chan *domain.Block, error) {
	return s.subscriber.Subscribe(ctx)
}

// ContractPrice reads the gas price stored in the paymaster contract.
func (s *BlockchainService) ContractPrice(ctx context.Context, blockNumber uint64) (*big.Int, error) {
	return s.chain.ContractPrice(ctx, blockNumber)
}

// SubmitPriceUpdate broadcasts a signed price update transaction.
func (s *BlockchainService) SubmitPriceUpdate(ctx context.Context, newPrice *big.Int) (common.Hash, error) {
	return s.chain.SubmitPriceUpdate(ctx, newPrice)
}

// TxStatus queries the status of a submitted transaction.
func (s *BlockchainService) TxStatus(ctx context.Context, txHash common.Hash) (domain.TxStatus, error) {
	return s.chain.TxStatus(ctx, txHash)
}

// ConnectionState returns the current connection state.
func (s *BlockchainService) ConnectionState() domain.ConnectionState {
	return s.subscriber.State()
}
