// Package orchestrator drives one agent run per prompt: it opens a thread,
// posts the prompt, starts a run, polls it to a terminal status and reads the
// assistant's reply.
package orchestrator

import (
	"context"
	"time"

	domain "github.com/deepgram/forecaster/internal/domain/agents"
	"github.com/deepgram/forecaster/internal/domain/agents/models"
	"github.com/deepgram/forecaster/internal/services/agents"
)

// FallbackResponse is returned when the thread holds no assistant text.
const FallbackResponse = "No response from the assistant."

const (
	defaultPollInterval    = time.Second
	defaultMaxPollAttempts = 300
	defaultTimeout         = 5 * time.Minute
	cleanupTimeout         = 10 * time.Second
)

// AgentProvider hands out the agent a run executes with.
type AgentProvider interface {
	Acquire(ctx context.Context) (models.Agent, agents.ReleaseFunc, error)
}

// AgentService is the part of the agent backend a run needs.
type AgentService interface {
	CreateThread(ctx context.Context) (models.Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	CreateMessage(ctx context.Context, threadID string, role models.Role, content string) (models.Message, error)
	ListMessages(ctx context.Context, threadID string) ([]models.Message, error)
	CreateRun(ctx context.Context, threadID, agentID string) (models.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (models.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (models.Run, error)
}

type Implementation struct {
	agents          AgentProvider
	backend         AgentService
	pollInterval    time.Duration
	maxPollAttempts int
	timeout         time.Duration
}

type Option func(*Implementation)

func WithPollInterval(d time.Duration) Option {
	return func(s *Implementation) { s.pollInterval = d }
}

// WithMaxPollAttempts caps the status fetches of one run. Zero means no cap.
func WithMaxPollAttempts(n int) Option {
	return func(s *Implementation) { s.maxPollAttempts = n }
}

// WithTimeout bounds how long a run may stay pending. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Implementation) { s.timeout = d }
}

func NewService(provider AgentProvider, backend AgentService, opts ...Option) domain.PromptService {
	s := &Implementation{
		agents:          provider,
		backend:         backend,
		pollInterval:    defaultPollInterval,
		maxPollAttempts: defaultMaxPollAttempts,
		timeout:         defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
