package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deepgram/forecaster/internal/domain/agents/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	agentIDKeyFormat   = "agents:id:%s"
	agentLockKeyFormat = "agents:lock:%s"

	defaultLockTTL     = 30 * time.Second
	defaultLockRetry   = 250 * time.Millisecond
	defaultLockRetries = 40
)

// releaseLock deletes the lock only while it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Catalog is the subset of the agent backend provisioning needs.
type Catalog interface {
	CreateAgent(ctx context.Context, spec models.AgentSpec) (models.Agent, error)
	GetAgent(ctx context.Context, agentID string) (models.Agent, error)
	FindAgentByName(ctx context.Context, name string) (*models.Agent, error)
}

// Provisioner resolves an agent by its stable name, creating it at most once.
// With a Redis cache the agent id is shared between replicas and creation is
// serialized by a short-lived lock.
type Provisioner struct {
	catalog    Catalog
	cache      redis.Cmdable
	lockTTL    time.Duration
	lockRetry  time.Duration
	maxRetries int
}

func NewProvisioner(catalog Catalog, cache redis.Cmdable) *Provisioner {
	return &Provisioner{
		catalog:    catalog,
		cache:      cache,
		lockTTL:    defaultLockTTL,
		lockRetry:  defaultLockRetry,
		maxRetries: defaultLockRetries,
	}
}

func (p *Provisioner) Ensure(ctx context.Context, spec models.AgentSpec) (models.Agent, error) {
	if p.cache == nil {
		return p.findOrCreate(ctx, spec)
	}

	idKey := fmt.Sprintf(agentIDKeyFormat, spec.Name)
	lockKey := fmt.Sprintf(agentLockKeyFormat, spec.Name)
	token := uuid.NewString()

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		agent, ok, err := p.cached(ctx, idKey)
		if err != nil {
			return models.Agent{}, err
		}
		if ok {
			return agent, nil
		}

		locked, err := p.cache.SetNX(ctx, lockKey, token, p.lockTTL).Result()
		if err != nil {
			return models.Agent{}, fmt.Errorf("agents: acquire provisioning lock: %w", err)
		}
		if locked {
			defer p.unlock(context.WithoutCancel(ctx), lockKey, token)

			agent, err := p.findOrCreate(ctx, spec)
			if err != nil {
				return models.Agent{}, err
			}
			if err := p.cache.Set(ctx, idKey, agent.ID, 0).Err(); err != nil {
				log.Warn().Err(err).Str("agent_name", spec.Name).Msg("Failed to cache agent id")
			}
			return agent, nil
		}

		select {
		case <-ctx.Done():
			return models.Agent{}, models.NewError(models.KindCancelled, "Provision", "", ctx.Err())
		case <-time.After(p.lockRetry):
		}
	}

	return models.Agent{}, fmt.Errorf("agents: provisioning lock for %q held too long", spec.Name)
}

func (p *Provisioner) unlock(ctx context.Context, lockKey, token string) {
	if err := releaseLock.Run(ctx, p.cache, []string{lockKey}, token).Err(); err != nil {
		log.Warn().Err(err).Str("lock", lockKey).Msg("Failed to release provisioning lock")
	}
}

// cached resolves the cached id. A cached id the backend no longer knows is
// dropped so the caller provisions a fresh agent.
func (p *Provisioner) cached(ctx context.Context, idKey string) (models.Agent, bool, error) {
	id, err := p.cache.Get(ctx, idKey).Result()
	if errors.Is(err, redis.Nil) {
		return models.Agent{}, false, nil
	}
	if err != nil {
		return models.Agent{}, false, fmt.Errorf("agents: read cached agent id: %w", err)
	}

	agent, err := p.catalog.GetAgent(ctx, id)
	if err == nil {
		return agent, true, nil
	}
	if IsNotFound(err) {
		log.Warn().Str("agent_id", id).Msg("Cached agent no longer exists, reprovisioning")
		p.cache.Del(ctx, idKey)
		return models.Agent{}, false, nil
	}
	return models.Agent{}, false, err
}

func (p *Provisioner) findOrCreate(ctx context.Context, spec models.AgentSpec) (models.Agent, error) {
	existing, err := p.catalog.FindAgentByName(ctx, spec.Name)
	if err != nil {
		return models.Agent{}, err
	}
	if existing != nil {
		log.Info().Str("agent_id", existing.ID).Str("agent_name", spec.Name).Msg("Reusing existing agent")
		return *existing, nil
	}
	return p.catalog.CreateAgent(ctx, spec)
}
