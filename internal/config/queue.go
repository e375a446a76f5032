package config

import (
	"time"

	"github.com/deepgram/forecaster/pkg/logger"
)

// MinBlockTimeout keeps stream reads bounded; zero would block forever.
const MinBlockTimeout = 100 * time.Millisecond

// QueueConfig names the tool queues and tunes the stream consumers.
type QueueConfig struct {
	InputName    string
	OutputName   string
	BlockTimeout time.Duration
	ClaimIdle    time.Duration
}

func GetQueueConfig() QueueConfig {
	cfg := QueueConfig{
		InputName:    GetEnvOrDefault("QUEUE_INPUT_NAME", "input"),
		OutputName:   GetEnvOrDefault("QUEUE_OUTPUT_NAME", "output"),
		BlockTimeout: parseEnvDuration("QUEUE_BLOCK_TIMEOUT", 5*time.Second),
		ClaimIdle:    parseEnvDuration("QUEUE_CLAIM_IDLE", time.Minute),
	}
	if cfg.BlockTimeout < MinBlockTimeout {
		logger.Warn(logger.CONFIG, "QUEUE_BLOCK_TIMEOUT %s too small, using %s", cfg.BlockTimeout, MinBlockTimeout)
		cfg.BlockTimeout = MinBlockTimeout
	}
	return cfg
}
