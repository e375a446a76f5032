package agents

import (
	"context"

	"github.com/deepgram/forecaster/internal/domain/agents/models"
)

// ReleaseFunc gives an acquired agent back. Errors are cleanup failures.
type ReleaseFunc func(ctx context.Context) error

// SharedAgent hands out one provisioned agent to every request and never
// deletes it.
type SharedAgent struct {
	agent models.Agent
}

func NewSharedAgent(agent models.Agent) *SharedAgent {
	return &SharedAgent{agent: agent}
}

func (s *SharedAgent) Acquire(context.Context) (models.Agent, ReleaseFunc, error) {
	return s.agent, func(context.Context) error { return nil }, nil
}

type agentLifecycle interface {
	CreateAgent(ctx context.Context, spec models.AgentSpec) (models.Agent, error)
	DeleteAgent(ctx context.Context, agentID string) error
}

// PerRequestAgent creates a fresh agent for every request and deletes it on
// release.
type PerRequestAgent struct {
	client agentLifecycle
	spec   models.AgentSpec
}

func NewPerRequestAgent(client agentLifecycle, spec models.AgentSpec) *PerRequestAgent {
	return &PerRequestAgent{client: client, spec: spec}
}

func (p *PerRequestAgent) Acquire(ctx context.Context) (models.Agent, ReleaseFunc, error) {
	agent, err := p.client.CreateAgent(ctx, p.spec)
	if err != nil {
		return models.Agent{}, nil, err
	}
	return agent, func(ctx context.Context) error {
		return p.client.DeleteAgent(ctx, agent.ID)
	}, nil
}
