package agents

import "context"

// PromptService answers one user prompt through an agent run.
type PromptService interface {
	ExecutePrompt(ctx context.Context, prompt string) (string, error)
}
