package kvstore

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/weldvault/weldvault/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("kvstore",
	fx.Provide(NewClient),
	fx.Provide(NewRedis),
)

// NewClient builds the shared redis client.
func NewClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}
