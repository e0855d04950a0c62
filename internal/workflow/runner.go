// Package workflow sequences tool steps against one host through the
// attempt controller. Step output is collected internally; the protocol
// stream carries workflow-level events only, strictly ordered by step index.
package workflow

import (
	"context"
	"time"

	"github.com/marcohefti/kali-bridge/internal/attempt"
	"github.com/marcohefti/kali-bridge/internal/events"
	"github.com/marcohefti/kali-bridge/internal/ids"
	"github.com/marcohefti/kali-bridge/internal/policy"
	"github.com/marcohefti/kali-bridge/internal/schema"
	"github.com/marcohefti/kali-bridge/internal/validate"
)

// previewBytes bounds the stdout/stderr excerpts carried on step_finished.
const previewBytes = 240

// Runner executes workflows. CollectStep is injectable for tests.
type Runner struct {
	Policy     *policy.Policy
	Controller *attempt.Controller

	CollectStep func(ctx context.Context, plan schema.ExecutionPlan) attempt.CollectedRun
}

func NewRunner(pol *policy.Policy, ctrl *attempt.Controller) *Runner {
	return &Runner{Policy: pol, Controller: ctrl}
}

// Result summarizes one workflow execution.
type Result struct {
	WorkflowID     string
	CompletedSteps int
	Aborted        bool
}

// Run emits workflow_started, the per-step events, and workflow_finished to
// sink. Step indices are 1-based; each step's attempts share the derived
// correlation id <workflow_id>-step-<index>. With stop_on_error, the first
// step that does not succeed aborts the remainder; otherwise all steps run.
func (r *Runner) Run(ctx context.Context, wf schema.WorkflowRequest, sink events.Sink) Result {
	// The workflow id is user-supplied and becomes the correlation id of
	// every workflow event plus the prefix of each derived step id.
	workflowID := ids.SanitizeComponent(wf.ID)
	if workflowID == "" {
		workflowID = ids.NewCorrelationID()
	}
	stopOnError := wf.StopOnErrorValue()

	emit := func(event string, payload any) {
		sink.Emit(schema.Event{
			TsMs:          time.Now().UnixMilli(),
			CorrelationID: workflowID,
			Event:         event,
			Payload:       payload,
		})
	}

	emit(schema.EventWorkflowStarted, schema.WorkflowStartedPayload{
		WorkflowID: workflowID,
		StepCount:  len(wf.Steps),
	})

	result := Result{WorkflowID: workflowID}
	for i, step := range wf.Steps {
		stepIndex := i + 1
		emit(schema.EventStepStarted, schema.StepStartedPayload{
			WorkflowID: workflowID,
			StepIndex:  stepIndex,
			Tool:       step.Tool,
		})
		result.CompletedSteps++

		outcome := r.runStep(ctx, wf, step, stepIndex, workflowID, emit)

		if outcome.Kind != schema.OutcomeSucceeded && stopOnError {
			result.Aborted = true
			break
		}
	}

	emit(schema.EventWorkflowFinished, schema.WorkflowFinishedPayload{
		WorkflowID:     workflowID,
		CompletedSteps: result.CompletedSteps,
		Aborted:        result.Aborted,
	})
	return result
}

func (r *Runner) runStep(ctx context.Context, wf schema.WorkflowRequest, step schema.StepSpec, stepIndex int, workflowID string, emit func(string, any)) schema.AttemptOutcome {
	req := wf.ToolRequestFor(step, ids.StepID(workflowID, stepIndex))

	plan, verr := validate.Request(r.Policy, req)
	if verr != nil {
		outcome := schema.AttemptOutcome{
			Kind:           schema.OutcomeValidationError,
			ValidationKind: verr.Kind,
			Detail:         verr.Detail,
		}
		emit(schema.EventStepFailed, schema.StepFailedPayload{
			WorkflowID:  workflowID,
			StepIndex:   stepIndex,
			OutcomeKind: string(outcome.Kind),
			Detail:      verr.Kind + ": " + verr.Detail,
		})
		return outcome
	}

	run := r.collectStep(ctx, plan)
	outcome := run.Outcome

	switch outcome.Kind {
	case schema.OutcomeSucceeded, schema.OutcomeFailedExit:
		emit(schema.EventStepFinished, schema.StepFinishedPayload{
			WorkflowID:    workflowID,
			StepIndex:     stepIndex,
			OutcomeKind:   string(outcome.Kind),
			ExitCode:      outcome.ExitCode,
			DurationMs:    outcome.DurationMs,
			Attempts:      outcome.Attempts,
			Truncated:     outcome.Truncated,
			StdoutPreview: preview(run.Stdout),
			StderrPreview: preview(run.Stderr),
		})
	default:
		emit(schema.EventStepFailed, schema.StepFailedPayload{
			WorkflowID:  workflowID,
			StepIndex:   stepIndex,
			OutcomeKind: string(outcome.Kind),
			Detail:      outcome.Detail,
			DurationMs:  outcome.DurationMs,
			Attempts:    outcome.Attempts,
		})
	}
	return outcome
}

func (r *Runner) collectStep(ctx context.Context, plan schema.ExecutionPlan) attempt.CollectedRun {
	if r.CollectStep != nil {
		return r.CollectStep(ctx, plan)
	}
	return r.Controller.Collect(ctx, plan)
}

func preview(b []byte) string {
	if len(b) > previewBytes {
		b = b[:previewBytes]
	}
	return string(b)
}
