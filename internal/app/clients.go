package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/atelier-backend/internal/platform/eventbus"
	"github.com/yungbote/atelier-backend/internal/platform/gcp"
	"github.com/yungbote/atelier-backend/internal/platform/imagegen"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/platform/paygw"
)

type Clients struct {
	Gateway   paygw.Client
	ImageGen  imagegen.Client
	Artifacts gcp.ArtifactStore
	Events    eventbus.Bus
	// Redis is nil when no broker is configured.
	Redis *goredis.Client
}

func wireClients(ctx context.Context, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	gateway, err := paygw.NewClient(log, paygw.ConfigFromEnv())
	if err != nil {
		return Clients{}, fmt.Errorf("init payment gateway client: %w", err)
	}

	provider, err := imagegen.NewClient(log, imagegen.ConfigFromEnv())
	if err != nil {
		return Clients{}, fmt.Errorf("init image provider client: %w", err)
	}

	storeCfg, cfgErr := gcp.ArtifactStoreConfigFromEnv()
	store, err := resolveArtifactStore(ctx, log, storeCfg, cfgErr)
	if err != nil {
		return Clients{}, err
	}

	out := Clients{Gateway: gateway, ImageGen: provider, Artifacts: store, Events: eventbus.NewNoop()}

	// Redis
	redisCfg := eventbus.RedisConfigFromEnv()
	if redisCfg.Addr != "" {
		bus, err := eventbus.NewRedisBus(log, redisCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis event bus: %w", err)
		}
		out.Events = bus
		out.Redis = bus.Client()
	} else {
		log.Info("REDIS_ADDR not set; status events are not published")
	}
	return out, nil
}
