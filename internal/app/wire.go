//go:build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"intraday/internal/config"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, error) {
	wire.Build(
		provideAppBuilder,
		wire.Bind(new(appBuilderDeps), new(*AppBuilder)),
		provideAppFromBuilder,
	)
	return nil, nil
}

func buildBacktestWithWire(cfg *config.Config) (*BacktestService, error) {
	wire.Build(provideBacktestService)
	return nil, nil
}
