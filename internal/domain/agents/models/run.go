package models

// RunStatus is the backend-owned state of a run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
)

// IsPending reports whether the backend is still working on the run.
func (s RunStatus) IsPending() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusRequiresAction, RunStatusCancelling:
		return true
	default:
		return false
	}
}

func (s RunStatus) IsTerminal() bool {
	return !s.IsPending()
}

type Run struct {
	ID             string
	ThreadID       string
	AgentID        string
	Status         RunStatus
	LastError      *RunLastError
	RequiredAction *RequiredAction
}

type RunLastError struct {
	Code    string
	Message string
}

func (e *RunLastError) String() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// RequiredAction lists the tool calls a requires_action run is waiting on.
type RequiredAction struct {
	ToolCalls []ToolCall
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}
