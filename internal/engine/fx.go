package engine

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		New,
		NewJanitor,
	),
	fx.Invoke(func(lc fx.Lifecycle, e *Engine, j *Janitor) {
		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				e.Start(ctx)
				return j.Schedule(ctx)
			},
			OnStop: func(context.Context) error {
				cancel()
				e.Close()
				return nil
			},
		})
	}),
)
