// Package keeper implements the gas keeper bounded context: deciding when
// the paymaster's stored gas price drifts out of band and driving the
// update transaction lifecycle.
package keeper

import (
	"context"

	blockchainDI "github.com/fd1az/gas-keeper/business/blockchain/di"
	"github.com/fd1az/gas-keeper/business/keeper/app"
	keeperDI "github.com/fd1az/gas-keeper/business/keeper/di"
	"github.com/fd1az/gas-keeper/business/keeper/domain"
	"github.com/fd1az/gas-keeper/business/keeper/infra"
	"github.com/fd1az/gas-keeper/internal/config"
	"github.com/fd1az/gas-keeper/internal/di"
	"github.com/fd1az/gas-keeper/internal/logger"
	"github.com/fd1az/gas-keeper/internal/monolith"
)

// Module implements the keeper bounded context.
type Module struct{}

// RegisterServices registers all keeper services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Reporter (private - internal dependency)
	di.RegisterToken(c, keeperDI.Reporter, func(sr di.ServiceRegistry) app.Reporter {
		cfg := sr.Get("config").(*config.Config)
		if cfg.Keeper.TUIMode {
			return infra.NewTUIReporter()
		}
		return infra.NewConsoleReporter()
	})

	// Register Lifecycle (private - internal dependency)
	di.RegisterToken(c, keeperDI.Lifecycle, func(sr di.ServiceRegistry) *app.Lifecycle {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		chain := blockchainDI.GetBlockchainService(sr)
		reporter := keeperDI.GetReporter(sr)

		lifecycle, err := app.NewLifecycle(chain, reporter, app.LifecycleConfig{
			MaxWaitBlocks: cfg.Keeper.MaxWaitBlocks,
			MaxRetries:    cfg.Keeper.MaxRetries,
		}, log)
		if err != nil {
			panic("failed to create lifecycle: " + err.Error())
		}
		return lifecycle
	})

	// Register Keeper (public - exposed to main)
	di.RegisterToken(c, keeperDI.Keeper, func(sr di.ServiceRegistry) *app.Keeper {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		chain := blockchainDI.GetBlockchainService(sr)
		lifecycle := keeperDI.GetLifecycle(sr)
		reporter := keeperDI.GetReporter(sr)

		keeper, err := app.NewKeeper(chain, chain, lifecycle, reporter, app.KeeperConfig{
			Thresholds: domain.Thresholds{
				UpwardTriggerPct:   cfg.Keeper.UpwardThresholdPct,
				DownwardTriggerPct: cfg.Keeper.DownwardThresholdPct,
				UpwardBufferPct:    cfg.Keeper.UpwardBufferPct,
				DownwardBufferPct:  cfg.Keeper.DownwardBufferPct,
			},
		}, log)
		if err != nil {
			panic("failed to create keeper: " + err.Error())
		}
		return keeper
	})

	return nil
}

// Startup initializes the keeper module. The keeper itself is started by
// main once all modules are up.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mono.Logger().Info(ctx, "keeper module started")
	return nil
}
