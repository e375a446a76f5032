package config

import (
	"strings"
	"time"

	"github.com/deepgram/forecaster/internal/domain/agents/models"
	"github.com/deepgram/forecaster/pkg/logger"
)

// Config is the process configuration, read once at startup.
type Config struct {
	ServerAddr    string
	LogLevel      string
	LogFormat     string
	Agent         AgentConfig
	RedisURL      string
	RedisPassword string
	Queue         QueueConfig
	Run           RunConfig
	RelayTTL      time.Duration
	Tools         *ToolsConfig

	WeatherWorkerEnabled bool
	ToolRelayEnabled     bool
}

// Load reads the environment and fails with a configuration_missing error
// naming every required key that is absent.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr:           GetEnvOrDefault("SERVER_ADDR", ":8080"),
		LogLevel:             GetEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            GetEnvOrDefault("LOG_FORMAT", "json"),
		Agent:                GetAgentConfig(),
		RedisURL:             GetRedisURL(),
		RedisPassword:        GetRedisPassword(),
		Queue:                GetQueueConfig(),
		Run:                  GetRunConfig(),
		RelayTTL:             GetRelayPendingTTL(),
		WeatherWorkerEnabled: parseEnvBool("WEATHER_WORKER_ENABLED", true),
		ToolRelayEnabled:     parseEnvBool("TOOL_RELAY_ENABLED", true),
	}

	var missing []string
	if cfg.Agent.Endpoint == "" {
		missing = append(missing, "AGENT_ENDPOINT")
	}
	if cfg.Agent.APIKey == "" {
		missing = append(missing, "AGENT_API_KEY")
	}
	if cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if len(missing) > 0 {
		return nil, models.NewError(models.KindConfigurationMissing, "config.Load", strings.Join(missing, ", "), nil)
	}

	tools, err := LoadToolsConfig(GetEnvOrDefault("TOOLS_CONFIG_PATH", ""))
	if err != nil {
		return nil, models.NewError(models.KindConfigurationMissing, "config.Load", "TOOLS_CONFIG_PATH", err)
	}
	tools.bindQueues(cfg.Queue)
	cfg.Tools = tools

	logger.Info(logger.CONFIG, "Configuration loaded (api type %s, lifecycle %s, %d tools)", cfg.Agent.APIType, cfg.Agent.Lifecycle, len(tools.Tools))
	return cfg, nil
}

// AgentSpec returns the agent definition described by the configuration.
func (c *Config) AgentSpec() models.AgentSpec {
	return models.AgentSpec{
		Name:         c.Agent.Name,
		Model:        c.Agent.Model,
		Instructions: c.Agent.Instructions,
		Tools:        c.Tools.Tools,
	}
}
