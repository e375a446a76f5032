package agents

import (
	"context"

	"github.com/deepgram/forecaster/internal/domain/agents/models"
	"github.com/deepgram/forecaster/pkg/logger"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const listPageSize = 100

// ActionHandler is told about every requires_action run the client observes.
// It stands in for the backend's own tool dispatch and must be idempotent:
// the same run is reported once per poll until its tool outputs land.
type ActionHandler interface {
	HandleRequiredAction(ctx context.Context, run models.Run) error
}

// Client is the agent backend client. It holds no per-request state and is
// safe for concurrent use.
type Client struct {
	api     *openai.Client
	actions ActionHandler
}

func NewClient(api *openai.Client) *Client {
	return &Client{api: api}
}

// SetActionHandler registers the tool dispatch hook. Call it during wiring,
// before the client is shared.
func (c *Client) SetActionHandler(h ActionHandler) {
	c.actions = h
}

func (c *Client) CreateAgent(ctx context.Context, spec models.AgentSpec) (models.Agent, error) {
	tools := make([]openai.AssistantTool, 0, len(spec.Tools))
	for _, tool := range spec.Tools {
		tools = append(tools, openai.AssistantTool{
			Type: openai.AssistantToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	name, instructions := spec.Name, spec.Instructions
	assistant, err := c.api.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        spec.Model,
		Name:         &name,
		Instructions: &instructions,
		Tools:        tools,
	})
	if err != nil {
		return models.Agent{}, wrapError(ctx, "CreateAgent", err)
	}

	log.Info().Str("agent_id", assistant.ID).Str("agent_name", spec.Name).Msg("Created agent")
	return toAgent(assistant), nil
}

func (c *Client) GetAgent(ctx context.Context, agentID string) (models.Agent, error) {
	assistant, err := c.api.RetrieveAssistant(ctx, agentID)
	if err != nil {
		return models.Agent{}, wrapError(ctx, "GetAgent", err)
	}
	return toAgent(assistant), nil
}

// FindAgentByName pages through the backend's agents and returns the first
// one named name, or nil.
func (c *Client) FindAgentByName(ctx context.Context, name string) (*models.Agent, error) {
	limit, order := listPageSize, "desc"
	var after *string

	for {
		list, err := c.api.ListAssistants(ctx, &limit, &order, after, nil)
		if err != nil {
			return nil, wrapError(ctx, "FindAgentByName", err)
		}

		for _, assistant := range list.Assistants {
			if assistant.Name != nil && *assistant.Name == name {
				agent := toAgent(assistant)
				return &agent, nil
			}
		}

		if !list.HasMore || list.LastID == nil || len(list.Assistants) == 0 {
			return nil, nil
		}
		after = list.LastID
	}
}

func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	if _, err := c.api.DeleteAssistant(ctx, agentID); err != nil {
		return wrapError(ctx, "DeleteAgent", err)
	}
	log.Info().Str("agent_id", agentID).Msg("Deleted agent")
	return nil
}

func (c *Client) CreateThread(ctx context.Context) (models.Thread, error) {
	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return models.Thread{}, wrapError(ctx, "CreateThread", err)
	}
	return models.Thread{ID: thread.ID}, nil
}

func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := c.api.DeleteThread(ctx, threadID); err != nil {
		return wrapError(ctx, "DeleteThread", err)
	}
	return nil
}

func (c *Client) CreateMessage(ctx context.Context, threadID string, role models.Role, content string) (models.Message, error) {
	msg, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(role),
		Content: content,
	})
	if err != nil {
		return models.Message{}, wrapError(ctx, "CreateMessage", err)
	}
	return toMessage(msg), nil
}

// ListMessages returns every message on the thread, oldest first.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	limit, order := listPageSize, "asc"
	var after *string
	var messages []models.Message

	for {
		list, err := c.api.ListMessage(ctx, threadID, &limit, &order, after, nil, nil)
		if err != nil {
			return nil, wrapError(ctx, "ListMessages", err)
		}

		for _, msg := range list.Messages {
			messages = append(messages, toMessage(msg))
		}

		if !list.HasMore || list.LastID == nil || len(list.Messages) == 0 {
			return messages, nil
		}
		after = list.LastID
	}
}

func (c *Client) CreateRun(ctx context.Context, threadID, agentID string) (models.Run, error) {
	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: agentID})
	if err != nil {
		return models.Run{}, wrapError(ctx, "CreateRun", err)
	}
	return c.observe(ctx, toRun(run)), nil
}

func (c *Client) GetRun(ctx context.Context, threadID, runID string) (models.Run, error) {
	run, err := c.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return models.Run{}, wrapError(ctx, "GetRun", err)
	}
	return c.observe(ctx, toRun(run)), nil
}

func (c *Client) CancelRun(ctx context.Context, threadID, runID string) (models.Run, error) {
	run, err := c.api.CancelRun(ctx, threadID, runID)
	if err != nil {
		return models.Run{}, wrapError(ctx, "CancelRun", err)
	}
	return toRun(run), nil
}

func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []models.ToolOutput) (models.Run, error) {
	req := openai.SubmitToolOutputsRequest{ToolOutputs: make([]openai.ToolOutput, 0, len(outputs))}
	for _, out := range outputs {
		req.ToolOutputs = append(req.ToolOutputs, openai.ToolOutput{
			ToolCallID: out.ToolCallID,
			Output:     out.Output,
		})
	}

	run, err := c.api.SubmitToolOutputs(ctx, threadID, runID, req)
	if err != nil {
		return models.Run{}, wrapError(ctx, "SubmitToolOutputs", err)
	}
	return toRun(run), nil
}

func (c *Client) observe(ctx context.Context, run models.Run) models.Run {
	if run.Status != models.RunStatusRequiresAction || c.actions == nil {
		return run
	}
	if err := c.actions.HandleRequiredAction(ctx, run); err != nil {
		l := logger.For(logger.AGENTS)
		l.Warn().
			Err(err).
			Str("run_id", run.ID).
			Str("thread_id", run.ThreadID).
			Msg("Tool dispatch failed, will retry on next poll")
	}
	return run
}

func toAgent(a openai.Assistant) models.Agent {
	agent := models.Agent{ID: a.ID, Model: a.Model}
	if a.Name != nil {
		agent.Name = *a.Name
	}
	return agent
}

func toMessage(m openai.Message) models.Message {
	msg := models.Message{
		ID:        m.ID,
		Role:      models.Role(m.Role),
		CreatedAt: int64(m.CreatedAt),
		Content:   make([]models.Content, 0, len(m.Content)),
	}
	for _, part := range m.Content {
		if part.Type == "text" && part.Text != nil {
			msg.Content = append(msg.Content, models.TextContent{Value: part.Text.Value})
			continue
		}
		msg.Content = append(msg.Content, models.OtherContent{Type: part.Type})
	}
	return msg
}

func toRun(r openai.Run) models.Run {
	run := models.Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		AgentID:  r.AssistantID,
		Status:   models.RunStatus(r.Status),
	}
	if r.LastError != nil {
		run.LastError = &models.RunLastError{
			Code:    string(r.LastError.Code),
			Message: r.LastError.Message,
		}
	}
	if r.RequiredAction != nil && r.RequiredAction.SubmitToolOutputs != nil {
		action := &models.RequiredAction{}
		for _, call := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
			action.ToolCalls = append(action.ToolCalls, models.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
		run.RequiredAction = action
	}
	return run
}
