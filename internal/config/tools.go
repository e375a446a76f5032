package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/deepgram/forecaster/internal/domain/agents/models"
)

//go:embed tools.json
var defaultToolsJSON []byte

type ToolsConfig struct {
	Tools []models.ToolDefinition `json:"tools"`
}

// LoadToolsConfig reads a tool manifest from configPath, or the embedded
// manifest when configPath is empty.
func LoadToolsConfig(configPath string) (*ToolsConfig, error) {
	data := defaultToolsJSON
	if configPath != "" {
		var err error
		data, err = os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read tools config: %w", err)
		}
	}

	var config ToolsConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse tools config: %w", err)
	}

	for i, tool := range config.Tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("tools config: tool %d has no name", i)
		}
	}

	return &config, nil
}

// bindQueues fills in unset queue bindings with the configured defaults.
func (c *ToolsConfig) bindQueues(q QueueConfig) {
	for i := range c.Tools {
		if c.Tools[i].InputQueue == "" {
			c.Tools[i].InputQueue = q.InputName
		}
		if c.Tools[i].OutputQueue == "" {
			c.Tools[i].OutputQueue = q.OutputName
		}
	}
}
