// Package di contains dependency injection tokens for the keeper context.
package di

import (
	"github.com/fd1az/gas-keeper/business/keeper/app"
	"github.com/fd1az/gas-keeper/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Keeper = di.NewToken[*app.Keeper]("keeper.Keeper")
)

// Private dependency tokens - internal to keeper module
var (
	Lifecycle = di.NewToken[*app.Lifecycle]("keeper:lifecycle")
	Reporter  = di.NewToken[app.Reporter]("keeper:reporter")
)

// Helper functions for type-safe access
func GetKeeper(c di.ServiceRegistry) *app.Keeper {
	return di.GetToken(c, Keeper)
}

func GetLifecycle(c di.ServiceRegistry) *app.Lifecycle {
	return di.GetToken(c, Lifecycle)
}

func GetReporter(c di.ServiceRegistry) app.Reporter {
	return di.GetToken(c, Reporter)
}
