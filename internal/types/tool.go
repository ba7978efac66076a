package types

import "encoding/json"

// ToolCall kinds, matching the actions the reasoning backend may request.
const (
	KindServiceCall      = "service_call"
	KindQueryState       = "query_state"
	KindCreateAutomation = "create_automation"
	KindScheduleJob      = "schedule_job"
	KindRemoveJob        = "remove_job"
	KindListJobs         = "list_jobs"
)

// ToolCall is a structured action request emitted by the reasoning
// backend. Transient: it exists only within one orchestration turn, or
// serialized inside a scheduled job's command list.
type ToolCall struct {
	ID     string          `json:"id,omitempty"`
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// ExecutionResult is the outcome of exactly one ToolCall.
type ExecutionResult struct {
	CallID  string `json:"callId,omitempty"`
	Success bool   `json:"success"`
	Summary string `json:"summary"`         // human-readable, sent back to the backend or the user
	Error   string `json:"error,omitempty"` // raw error when Success is false
}

// ToolDefinition is the format required by LLM APIs for tool/function calling.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}
