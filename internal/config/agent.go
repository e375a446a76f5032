package config

import (
	"strings"

	"github.com/deepgram/forecaster/pkg/logger"
)

const (
	APITypeOpenAI = "openai"
	APITypeAzure  = "azure"

	LifecycleShared     = "shared"
	LifecyclePerRequest = "per_request"

	defaultAgentModel        = "gpt-4o-mini"
	defaultAgentName         = "azure-function-agent-get-weather"
	defaultAgentInstructions = "You are a helpful support agent. Answer the user's questions to the best of your ability."
	defaultAzureAPIVersion   = "2024-05-01-preview"
)

// AgentConfig points at the agent backend and describes the agent to run.
type AgentConfig struct {
	Endpoint     string
	APIKey       string
	APIType      string
	APIVersion   string
	Model        string
	Name         string
	Instructions string
	Lifecycle    string
}

func GetAgentConfig() AgentConfig {
	logger.Debug(logger.CONFIG, "Attempting to retrieve agent backend configuration from environment")

	apiType := strings.ToLower(GetEnvOrDefault("AGENT_API_TYPE", APITypeOpenAI))
	if apiType != APITypeOpenAI && apiType != APITypeAzure {
		logger.Warn(logger.CONFIG, "Unknown AGENT_API_TYPE %q, using %s", apiType, APITypeOpenAI)
		apiType = APITypeOpenAI
	}

	lifecycle := strings.ToLower(GetEnvOrDefault("AGENT_LIFECYCLE", LifecycleShared))
	if lifecycle != LifecycleShared && lifecycle != LifecyclePerRequest {
		logger.Warn(logger.CONFIG, "Unknown AGENT_LIFECYCLE %q, using %s", lifecycle, LifecycleShared)
		lifecycle = LifecycleShared
	}

	return AgentConfig{
		Endpoint:     GetEnvOrDefault("AGENT_ENDPOINT", ""),
		APIKey:       GetEnvOrDefault("AGENT_API_KEY", ""),
		APIType:      apiType,
		APIVersion:   GetEnvOrDefault("AGENT_API_VERSION", defaultAzureAPIVersion),
		Model:        GetEnvOrDefault("AGENT_MODEL", defaultAgentModel),
		Name:         GetEnvOrDefault("AGENT_NAME", defaultAgentName),
		Instructions: GetEnvOrDefault("AGENT_INSTRUCTIONS", defaultAgentInstructions),
		Lifecycle:    lifecycle,
	}
}
