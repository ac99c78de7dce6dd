// Package blockchain implements the blockchain bounded context for Ethereum integration.
package blockchain

import (
	"context"

	"github.com/fd1az/gas-keeper/business/blockchain/app"
	blockchainDI "github.com/fd1az/gas-keeper/business/blockchain/di"
	"github.com/fd1az/gas-keeper/business/blockchain/infra/ethereum"
	"github.com/fd1az/gas-keeper/internal/config"
	"github.com/fd1az/gas-keeper/internal/di"
	"github.com/fd1az/gas-keeper/internal/logger"
	"github.com/fd1az/gas-keeper/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register BlockSubscriber (private - internal dependency)
	di.RegisterToken(c, blockchainDI.BlockSubscriber, func(sr di.ServiceRegistry) app.BlockSubscriber {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if cfg.Ethereum.Transport == config.TransportRawWS {
			feed, err := ethereum.NewWSFeed(cfg.Ethereum.WebSocketURL, log)
			if err != nil {
				panic("failed to create ws feed: " + err.Error())
			}
			return feed
		}

		subCfg := ethereum.DefaultSubscriberConfig(cfg.Ethereum.WebSocketURL, cfg.Ethereum.HTTPURL)
		if cfg.Ethereum.PollInterval > 0 {
			subCfg.PollInterval = cfg.Ethereum.PollInterval
		}
		sub, err := ethereum.NewSubscriber(subCfg, log)
		if err != nil {
			panic("failed to create subscriber: " + err.Error())
		}
		return sub
	})

	// Register ChainClient (private - internal dependency)
	di.RegisterToken(c, blockchainDI.ChainClient, func(sr di.ServiceRegistry) app.ChainClient {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		rpcURL := cfg.Ethereum.HTTPURL
		if rpcURL == "" {
			rpcURL = cfg.Ethereum.WebSocketURL
		}

		clientCfg := ethereum.DefaultChainClientConfig(
			rpcURL,
			cfg.Contract.AddressHex(),
			cfg.Contract.OwnerPrivateKey,
		)
		if cfg.Contract.GasLimit > 0 {
			clientCfg.GasLimit = cfg.Contract.GasLimit
		}

		client, err := ethereum.NewChainClient(clientCfg, log)
		if err != nil {
			panic("failed to create chain client: " + err.Error())
		}
		return client
	})

	// Register BlockchainService (public - exposed to other modules)
	di.RegisterToken(c, blockchainDI.BlockchainService, func(sr di.ServiceRegistry) *app.BlockchainService {
		sub := blockchainDI.GetBlockSubscriber(sr)
		chain := blockchainDI.GetChainClient(sr)
		return app.NewBlockchainService(sub, chain)
	})

	return nil
}

// Startup initializes the blockchain module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	sub := blockchainDI.GetBlockSubscriber(mono.Services())
	chain := blockchainDI.GetChainClient(mono.Services())

	// Connect the chain client up front; the subscriber connects on Subscribe.
	if connector, ok := chain.(interface{ Connect(context.Context) error }); ok {
		if err := connector.Connect(ctx); err != nil {
			log.Error(ctx, "failed to connect chain client", "error", err)
			return err
		}
	}

	_ = sub // the keeper module drives Subscribe

	log.Info(ctx, "blockchain module started")
	return nil
}
