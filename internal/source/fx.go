package source

import "go.uber.org/fx"

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewPgx,
			fx.As(new(Client)),
		),
	),
)
