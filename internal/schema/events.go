package schema

// Event is the envelope shared by every protocol and observability event.
// Payload is one of the typed payload structs below; chunk data rides as
// []byte and therefore serializes as base64.
type Event struct {
	TsMs          int64  `json:"ts_ms"`
	CorrelationID string `json:"correlation_id"`
	Event         string `json:"event"`
	Payload       any    `json:"payload"`
}

// Protocol event tags (stdout channel).
const (
	EventStarted         = "started"
	EventStdoutChunk     = "stdout_chunk"
	EventStderrChunk     = "stderr_chunk"
	EventOutputTruncated = "output_truncated"
	EventFinished        = "finished"
	EventError           = "error"
)

// Observability event tags (stderr channel).
const (
	EventAttemptStarted  = "attempt_started"
	EventAttemptFinished = "attempt_finished"
	EventRetryScheduled  = "retry_scheduled"
)

// Workflow event tags.
const (
	EventWorkflowStarted  = "workflow_started"
	EventStepStarted      = "step_started"
	EventStepFinished     = "step_finished"
	EventStepFailed       = "step_failed"
	EventWorkflowFinished = "workflow_finished"
)

// Error kinds carried by EventError payloads.
const (
	ErrorKindTimeout    = "timeout"
	ErrorKindTransport  = "transport"
	ErrorKindValidation = "validation"
)

type StartedPayload struct {
	Tool       string   `json:"tool"`
	Args       []string `json:"args"`
	Host       string   `json:"host"`
	User       string   `json:"user"`
	TimeoutSec int      `json:"timeout_sec"`
}

type ChunkPayload struct {
	Data []byte `json:"data"`
}

type TruncatedPayload struct {
	BytesSeen int64 `json:"bytes_seen"`
	Cap       int64 `json:"cap"`
}

type FinishedPayload struct {
	ExitCode    int   `json:"exit_code"`
	DurationMs  int64 `json:"duration_ms"`
	Truncated   bool  `json:"truncated"`
	StdoutBytes int64 `json:"stdout_bytes"`
	StderrBytes int64 `json:"stderr_bytes"`
}

type ErrorPayload struct {
	Kind       string `json:"kind"`
	Detail     string `json:"detail,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

type AttemptStartedPayload struct {
	Attempt int    `json:"attempt"`
	Tool    string `json:"tool"`
	Host    string `json:"host"`
}

type AttemptFinishedPayload struct {
	Attempt     int    `json:"attempt"`
	OutcomeKind string `json:"outcome_kind"`
	DurationMs  int64  `json:"duration_ms"`
}

type RetryScheduledPayload struct {
	Attempt     int   `json:"attempt"`
	NextAttempt int   `json:"next_attempt"`
	BackoffMs   int64 `json:"backoff_ms"`
}

type WorkflowStartedPayload struct {
	WorkflowID string `json:"workflow_id"`
	StepCount  int    `json:"step_count"`
}

type StepStartedPayload struct {
	WorkflowID string `json:"workflow_id"`
	StepIndex  int    `json:"step_index"`
	Tool       string `json:"tool"`
}

type StepFinishedPayload struct {
	WorkflowID    string `json:"workflow_id"`
	StepIndex     int    `json:"step_index"`
	OutcomeKind   string `json:"outcome_kind"`
	ExitCode      int    `json:"exit_code"`
	DurationMs    int64  `json:"duration_ms"`
	Attempts      int    `json:"attempts"`
	Truncated     bool   `json:"truncated,omitempty"`
	StdoutPreview string `json:"stdout_preview,omitempty"`
	StderrPreview string `json:"stderr_preview,omitempty"`
}

type StepFailedPayload struct {
	WorkflowID  string `json:"workflow_id"`
	StepIndex   int    `json:"step_index"`
	OutcomeKind string `json:"outcome_kind"`
	Detail      string `json:"detail,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
	Attempts    int    `json:"attempts"`
}

type WorkflowFinishedPayload struct {
	WorkflowID     string `json:"workflow_id"`
	CompletedSteps int    `json:"completed_steps"`
	Aborted        bool   `json:"aborted"`
}
