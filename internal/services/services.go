package services

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/deepgram/forecaster/internal/config"
	domain "github.com/deepgram/forecaster/internal/domain/agents"
	"github.com/deepgram/forecaster/internal/domain/agents/models"
	"github.com/deepgram/forecaster/internal/infrastructure/openai"
	"github.com/deepgram/forecaster/internal/infrastructure/redis"
	"github.com/deepgram/forecaster/internal/services/agents"
	"github.com/deepgram/forecaster/internal/services/orchestrator"
	"github.com/deepgram/forecaster/internal/services/queue"
	"github.com/deepgram/forecaster/internal/services/relay"
	"github.com/deepgram/forecaster/internal/services/weather"
)

type Services struct {
	redisClient   *goredis.Client
	promptService domain.PromptService
	relay         *relay.Relay
	worker        *weather.Worker
}

// InitializeServices connects to Redis and the agent backend, provisions the
// agent and wires the run orchestrator to the tool pipeline.
func InitializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	log.Info().Msg("Initializing core services")

	redisClient, err := redis.NewClient(ctx, cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	agentClient := agents.NewClient(openai.NewClient(cfg.Agent))
	bridge := queue.NewBridge(redisClient,
		queue.WithBlockTimeout(cfg.Queue.BlockTimeout),
		queue.WithClaimIdle(cfg.Queue.ClaimIdle),
	)
	log.Info().Msg("Initializing queue bridge")

	spec := cfg.AgentSpec()
	toolRelay := relay.New(redisClient, bridge, agentClient, spec.Tools, cfg.RelayTTL)
	if cfg.ToolRelayEnabled {
		agentClient.SetActionHandler(toolRelay)
	}

	provider, err := newAgentProvider(ctx, cfg.Agent.Lifecycle, agentClient, redisClient, spec)
	if err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to provision agent: %w", err)
	}

	promptService := orchestrator.NewService(provider, agentClient,
		orchestrator.WithPollInterval(cfg.Run.PollInterval),
		orchestrator.WithMaxPollAttempts(cfg.Run.MaxPollAttempts),
		orchestrator.WithTimeout(cfg.Run.Timeout),
	)
	log.Info().Msg("Initializing run orchestrator")

	log.Info().Msg("All services initialized successfully")

	return &Services{
		redisClient:   redisClient,
		promptService: promptService,
		relay:         toolRelay,
		worker:        weather.NewWorker(bridge, cfg.Queue.InputName, cfg.Queue.OutputName),
	}, nil
}

func newAgentProvider(ctx context.Context, lifecycle string, client *agents.Client, cache goredis.Cmdable, spec models.AgentSpec) (orchestrator.AgentProvider, error) {
	if lifecycle == config.LifecyclePerRequest {
		log.Info().Str("agent", spec.Name).Msg("Agents are created per request")
		return agents.NewPerRequestAgent(client, spec), nil
	}

	agent, err := agents.NewProvisioner(client, cache).Ensure(ctx, spec)
	if err != nil {
		return nil, err
	}
	log.Info().Str("agent", spec.Name).Str("agent_id", agent.ID).Msg("Using shared agent")
	return agents.NewSharedAgent(agent), nil
}

// NewServices assembles a container from already built parts.
func NewServices(redisClient *goredis.Client, promptService domain.PromptService, toolRelay *relay.Relay, worker *weather.Worker) *Services {
	return &Services{
		redisClient:   redisClient,
		promptService: promptService,
		relay:         toolRelay,
		worker:        worker,
	}
}

// GetPromptService returns the run orchestrator
func (s *Services) GetPromptService() domain.PromptService {
	return s.promptService
}

// GetRedisClient returns the shared Redis client, or nil
func (s *Services) GetRedisClient() *goredis.Client {
	return s.redisClient
}

// GetRelay returns the tool relay
func (s *Services) GetRelay() *relay.Relay {
	return s.relay
}

// GetWeatherWorker returns the weather worker
func (s *Services) GetWeatherWorker() *weather.Worker {
	return s.worker
}

// Close releases the Redis connection pool.
func (s *Services) Close() error {
	if s.redisClient == nil {
		return nil
	}
	return s.redisClient.Close()
}
