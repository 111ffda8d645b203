package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/osvaldoandrade/elqbulk/internal/providers"
	"github.com/osvaldoandrade/elqbulk/internal/repository"
	"github.com/osvaldoandrade/elqbulk/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis-specific configuration.
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	// IdempotencyHours bounds how long idempotency keys are remembered.
	IdempotencyHours int `json:"idempotencyHours,omitempty"`
}

// Plugin implements PluginPersistence on Redis or a protocol-compatible store.
type Plugin struct {
	client *redis.Client
	repo   repository.JobRepository
}

func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	var cfg Config
	if err := json.Unmarshal(config.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis persistence: addr is required")
	}

	client := providers.NewRedisProvider(cfg.Addr, cfg.Password)
	repo := repository.NewJobRepository(client, config.Timezone, time.Duration(cfg.IdempotencyHours)*time.Hour)

	return &Plugin{client: client, repo: repo}, nil
}

// Register adds the redis provider to reg.
func Register(reg *persistence.Registry) {
	reg.Register("redis", NewPlugin)
}

func (p *Plugin) JobStorage() persistence.JobStorage {
	return &jobStorageAdapter{repo: p.repo}
}

func (p *Plugin) Health(ctx context.Context) error {
	return providers.PingRedis(ctx, p.client, 2*time.Second)
}

func (p *Plugin) Close() error {
	return p.client.Close()
}
