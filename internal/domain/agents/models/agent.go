// Package models holds the data model shared by the agent client, the run
// orchestrator and the queue-mediated tool pipeline.
package models

// ToolDefinition describes a function tool and the queues it is bound to.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
	InputQueue  string                 `json:"input_queue"`
	OutputQueue string                 `json:"output_queue"`
}

// AgentSpec is everything needed to create an agent.
type AgentSpec struct {
	Name         string
	Model        string
	Instructions string
	Tools        []ToolDefinition
}

// Tool returns the tool definition with the given name.
func (s AgentSpec) Tool(name string) (ToolDefinition, bool) {
	return FindTool(s.Tools, name)
}

func FindTool(tools []ToolDefinition, name string) (ToolDefinition, bool) {
	for _, tool := range tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return ToolDefinition{}, false
}

type Agent struct {
	ID    string
	Name  string
	Model string
}

type Thread struct {
	ID string
}
