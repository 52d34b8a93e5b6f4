package connectivity

import (
	"context"

	"go.uber.org/fx"

	"github.com/healthconnect/feed-engine/pkg/config"
	"github.com/healthconnect/feed-engine/pkg/logger"
)

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			func(lc fx.Lifecycle, cfg *config.Config, log logger.Logger) *Probe {
				probe := NewProbe(ProbeOpts{
					URL:      cfg.Probe.URL,
					Interval: cfg.Probe.Interval,
					Logger:   log,
				})
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						probe.Close()
						return nil
					},
				})
				return probe
			},
			fx.As(new(Monitor)),
		),
	),
)
