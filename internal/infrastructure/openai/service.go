package openai

import (
	"net/http"
	"strings"
	"time"

	"github.com/deepgram/forecaster/internal/config"
	"github.com/deepgram/forecaster/pkg/logger"
	"github.com/sashabaranov/go-openai"
)

const requestTimeout = 60 * time.Second

// NewClient builds the long-lived, goroutine-safe backend client shared by
// every request.
func NewClient(cfg config.AgentConfig) *openai.Client {
	logger.Info(logger.SERVICE, "Initialising agent backend client (%s)", cfg.APIType)
	return openai.NewClientWithConfig(ClientConfig(cfg))
}

// ClientConfig maps the agent configuration onto a go-openai client config.
func ClientConfig(cfg config.AgentConfig) openai.ClientConfig {
	var clientConfig openai.ClientConfig
	switch cfg.APIType {
	case config.APITypeAzure:
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		clientConfig.APIVersion = cfg.APIVersion
	default:
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		clientConfig.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	}

	clientConfig.HTTPClient = &http.Client{Timeout: requestTimeout}
	return clientConfig
}
