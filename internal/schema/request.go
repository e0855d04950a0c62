package schema

// ToolRequest is one user-supplied request to run an allowlisted tool on the
// remote host. Zero values mean "absent": the validator fills defaults from
// policy and assigns a correlation id when none is given. MaxOutputBytes is
// a pointer so an explicit zero is distinguishable from absent and can be
// rejected instead of silently taking the policy cap.
type ToolRequest struct {
	Host           string   `json:"host"`
	User           string   `json:"user"`
	Tool           string   `json:"tool"`
	Args           []string `json:"args,omitempty"`
	TimeoutSec     int      `json:"timeout_sec,omitempty"`
	MaxOutputBytes *int64   `json:"max_output_bytes,omitempty"`
	CorrelationID  string   `json:"correlation_id,omitempty"`
}

// ExecutionPlan is a vetted ToolRequest: every field has passed validation
// and the effective limits are resolved against policy. One plan is consumed
// by one attempt.
type ExecutionPlan struct {
	Host           string   `json:"host"`
	User           string   `json:"user"`
	Tool           string   `json:"tool"`
	Command        string   `json:"command"`
	DefaultArgs    []string `json:"default_args,omitempty"`
	Args           []string `json:"args,omitempty"`
	TimeoutSec     int      `json:"timeout_sec"`
	MaxOutputBytes int64    `json:"max_output_bytes"`
	CorrelationID  string   `json:"correlation_id"`
}

// Request converts the plan back to the request it vets. Validating the
// result yields an identical plan (validation is idempotent over vetted
// plans).
func (p ExecutionPlan) Request() ToolRequest {
	outputCap := p.MaxOutputBytes
	return ToolRequest{
		Host:           p.Host,
		User:           p.User,
		Tool:           p.Tool,
		Args:           p.Args,
		TimeoutSec:     p.TimeoutSec,
		MaxOutputBytes: &outputCap,
		CorrelationID:  p.CorrelationID,
	}
}

// StepSpec is one step of a workflow. Host and user are inherited from the
// workflow; the remaining fields mirror ToolRequest.
type StepSpec struct {
	Tool           string   `json:"tool"`
	Args           []string `json:"args,omitempty"`
	TimeoutSec     int      `json:"timeout_sec,omitempty"`
	MaxOutputBytes *int64   `json:"max_output_bytes,omitempty"`
}

// WorkflowRequest sequences steps against one host under one stop policy.
type WorkflowRequest struct {
	ID          string     `json:"id,omitempty"`
	Host        string     `json:"host"`
	User        string     `json:"user"`
	StopOnError *bool      `json:"stop_on_error,omitempty"`
	Steps       []StepSpec `json:"steps"`
}

// StopOnErrorValue resolves the stop policy; absent means stop on the first
// failed step.
func (w WorkflowRequest) StopOnErrorValue() bool {
	if w.StopOnError == nil {
		return true
	}
	return *w.StopOnError
}

// ToolRequestFor expands a step into the ToolRequest the validator consumes.
func (w WorkflowRequest) ToolRequestFor(step StepSpec, correlationID string) ToolRequest {
	return ToolRequest{
		Host:           w.Host,
		User:           w.User,
		Tool:           step.Tool,
		Args:           step.Args,
		TimeoutSec:     step.TimeoutSec,
		MaxOutputBytes: step.MaxOutputBytes,
		CorrelationID:  correlationID,
	}
}
