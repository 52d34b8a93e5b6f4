package cache

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/healthconnect/feed-engine/pkg/config"
	"github.com/healthconnect/feed-engine/pkg/logger"
)

type Opts struct {
	fx.In
	LC fx.Lifecycle

	Logger logger.Logger
	Config *config.Config
}

// New selects the snapshot backend from configuration.
func New(opts Opts) (Store, error) {
	switch opts.Config.Cache.Backend {
	case "badger":
		store, err := NewBadger(BadgerOpts{
			Path:   opts.Config.Cache.Path,
			Logger: opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		opts.LC.Append(fx.Hook{
			OnStop: func(context.Context) error { return store.Close() },
		})
		return store, nil
	case "redis":
		store, err := NewRedis(context.Background(), RedisOpts{
			Addr:     opts.Config.Redis.Addr,
			Password: opts.Config.Redis.Password,
			DB:       opts.Config.Redis.DB,
			TTL:      opts.Config.Cache.FreshnessWindow,
		})
		if err != nil {
			return nil, err
		}
		opts.LC.Append(fx.Hook{
			OnStop: func(context.Context) error { return store.Close() },
		})
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", opts.Config.Cache.Backend)
	}
}

var Module = fx.Options(
	fx.Provide(New),
)
