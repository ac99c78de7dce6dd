// Package di contains dependency injection tokens for the blockchain context.
package di

import (
	"github.com/fd1az/gas-keeper/business/blockchain/app"
	"github.com/fd1az/gas-keeper/internal/di"
)

// Public service tokens - exposed to other modules
var (
	BlockchainService = di.NewToken[*app.BlockchainService]("blockchain.BlockchainService")
)

// Private dependency tokens - internal to blockchain module
var (
	BlockSubscriber = di.NewToken[app.BlockSubscriber]("blockchain:blockSubscriber")
	ChainClient     = di.NewToken[app.ChainClient]("blockchain:chainClient")
)

// Helper functions for type-safe access
func GetBlockchainService(c di.ServiceRegistry) *app.BlockchainService {
	return di.GetToken(c, BlockchainService)
}

func GetBlockSubscriber(c di.ServiceRegistry) app.BlockSubscriber {
	return di.GetToken(c, BlockSubscriber)
}

func GetChainClient(c di.ServiceRegistry) app.ChainClient {
	return di.GetToken(c, ChainClient)
}
