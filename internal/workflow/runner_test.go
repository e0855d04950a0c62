package workflow

import (
	"context"
	"testing"

	"github.com/marcohefti/kali-bridge/internal/attempt"
	"github.com/marcohefti/kali-bridge/internal/events"
	"github.com/marcohefti/kali-bridge/internal/policy"
	"github.com/marcohefti/kali-bridge/internal/schema"
)

func boolPtr(b bool) *bool { return &b }

func testWorkflow(stopOnError bool, tools ...string) schema.WorkflowRequest {
	steps := make([]schema.StepSpec, 0, len(tools))
	for _, tool := range tools {
		steps = append(steps, schema.StepSpec{Tool: tool, Args: []string{"-sn"}, TimeoutSec: 10})
	}
	return schema.WorkflowRequest{
		ID:          "wf-1",
		Host:        "kali",
		User:        "ops",
		StopOnError: boolPtr(stopOnError),
		Steps:       steps,
	}
}

// scriptedRunner maps tool name → outcome so steps are deterministic without
// spawning anything.
func scriptedRunner(t *testing.T, outcomes map[string]schema.AttemptOutcome) (*Runner, *[]string) {
	t.Helper()
	var seenPlans []string
	r := NewRunner(policy.Default(), nil)
	r.CollectStep = func(ctx context.Context, plan schema.ExecutionPlan) attempt.CollectedRun {
		seenPlans = append(seenPlans, plan.CorrelationID)
		out, ok := outcomes[plan.Tool]
		if !ok {
			t.Fatalf("unexpected step for tool %q", plan.Tool)
		}
		if out.Attempts == 0 {
			out.Attempts = 1
		}
		return attempt.CollectedRun{Outcome: out, Stdout: []byte(plan.Tool + " output"), Stderr: nil}
	}
	return r, &seenPlans
}

func eventTags(evs []schema.Event) []string {
	tags := make([]string, 0, len(evs))
	for _, ev := range evs {
		tags = append(tags, ev.Event)
	}
	return tags
}

func TestRun_AllStepsSucceed(t *testing.T) {
	t.Parallel()

	r, _ := scriptedRunner(t, map[string]schema.AttemptOutcome{
		"nmap":  {Kind: schema.OutcomeSucceeded},
		"nikto": {Kind: schema.OutcomeSucceeded},
	})
	sink := events.NewCollector()
	res := r.Run(context.Background(), testWorkflow(true, "nmap", "nikto"), sink)

	if res.Aborted || res.CompletedSteps != 2 {
		t.Fatalf("result = %+v", res)
	}

	want := []string{
		schema.EventWorkflowStarted,
		schema.EventStepStarted, schema.EventStepFinished,
		schema.EventStepStarted, schema.EventStepFinished,
		schema.EventWorkflowFinished,
	}
	got := eventTags(sink.Events())
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events[%d] = %s, want %s (%v)", i, got[i], want[i], got)
		}
	}
}

func TestRun_StopOnErrorAbortsAfterFailedExit(t *testing.T) {
	t.Parallel()

	r, seen := scriptedRunner(t, map[string]schema.AttemptOutcome{
		"nmap":  {Kind: schema.OutcomeFailedExit, ExitCode: 2},
		"nikto": {Kind: schema.OutcomeSucceeded},
	})
	sink := events.NewCollector()
	res := r.Run(context.Background(), testWorkflow(true, "nmap", "nikto"), sink)

	if !res.Aborted {
		t.Fatalf("expected aborted workflow")
	}
	if res.CompletedSteps != 1 {
		t.Fatalf("completed_steps = %d, want 1", res.CompletedSteps)
	}
	if len(*seen) != 1 {
		t.Fatalf("later steps must not run: %v", *seen)
	}

	evs := sink.Events()
	for _, ev := range evs {
		if p, ok := ev.Payload.(schema.StepStartedPayload); ok && p.StepIndex == 2 {
			t.Fatalf("step 2 must never start")
		}
	}
	// A nonzero exit is still a step_finished, not a step_failed.
	var sawFinished bool
	for _, ev := range evs {
		if ev.Event == schema.EventStepFinished {
			p := ev.Payload.(schema.StepFinishedPayload)
			if p.ExitCode != 2 || p.OutcomeKind != string(schema.OutcomeFailedExit) {
				t.Fatalf("step_finished payload = %+v", p)
			}
			sawFinished = true
		}
	}
	if !sawFinished {
		t.Fatalf("missing step_finished for the failing step")
	}

	last := evs[len(evs)-1]
	p, ok := last.Payload.(schema.WorkflowFinishedPayload)
	if !ok || !p.Aborted || p.CompletedSteps != 1 {
		t.Fatalf("workflow_finished payload = %+v", last.Payload)
	}
}

func TestRun_ContinuesWhenStopOnErrorFalse(t *testing.T) {
	t.Parallel()

	r, seen := scriptedRunner(t, map[string]schema.AttemptOutcome{
		"nmap":   {Kind: schema.OutcomeTimedOut},
		"nikto":  {Kind: schema.OutcomeSucceeded},
		"sqlmap": {Kind: schema.OutcomeSucceeded},
	})
	sink := events.NewCollector()
	res := r.Run(context.Background(), testWorkflow(false, "nmap", "nikto", "sqlmap"), sink)

	if res.Aborted {
		t.Fatalf("stop_on_error=false must never abort")
	}
	if res.CompletedSteps != 3 || len(*seen) != 3 {
		t.Fatalf("all steps must run: %+v, seen %v", res, *seen)
	}
}

func TestRun_TimeoutStepIsStepFailed(t *testing.T) {
	t.Parallel()

	r, _ := scriptedRunner(t, map[string]schema.AttemptOutcome{
		"nmap": {Kind: schema.OutcomeTimedOut, DurationMs: 2000, Attempts: 1},
	})
	sink := events.NewCollector()
	r.Run(context.Background(), testWorkflow(true, "nmap"), sink)

	var sawFailed bool
	for _, ev := range sink.Events() {
		if ev.Event == schema.EventStepFailed {
			p := ev.Payload.(schema.StepFailedPayload)
			if p.OutcomeKind != string(schema.OutcomeTimedOut) {
				t.Fatalf("step_failed payload = %+v", p)
			}
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Fatalf("a timed out step must be step_failed")
	}
}

func TestRun_ValidationFailureSkipsExecution(t *testing.T) {
	t.Parallel()

	r, seen := scriptedRunner(t, map[string]schema.AttemptOutcome{})
	sink := events.NewCollector()
	res := r.Run(context.Background(), testWorkflow(true, "bash"), sink)

	if len(*seen) != 0 {
		t.Fatalf("a rejected step must never reach the controller")
	}
	if !res.Aborted {
		t.Fatalf("stop_on_error must abort on a validation failure")
	}

	var sawFailed bool
	for _, ev := range sink.Events() {
		if ev.Event == schema.EventStepFailed {
			p := ev.Payload.(schema.StepFailedPayload)
			if p.OutcomeKind != string(schema.OutcomeValidationError) {
				t.Fatalf("step_failed payload = %+v", p)
			}
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Fatalf("missing step_failed for the rejected step")
	}
}

func TestRun_StepCorrelationIDs(t *testing.T) {
	t.Parallel()

	r, seen := scriptedRunner(t, map[string]schema.AttemptOutcome{
		"nmap":  {Kind: schema.OutcomeSucceeded},
		"nikto": {Kind: schema.OutcomeSucceeded},
	})
	r.Run(context.Background(), testWorkflow(true, "nmap", "nikto"), events.NewCollector())

	if len(*seen) != 2 || (*seen)[0] != "wf-1-step-1" || (*seen)[1] != "wf-1-step-2" {
		t.Fatalf("step correlation ids = %v", *seen)
	}
}

func TestRun_PreviewsAreBounded(t *testing.T) {
	t.Parallel()

	big := make([]byte, 4096)
	for i := range big {
		big[i] = 'x'
	}
	r := NewRunner(policy.Default(), nil)
	r.CollectStep = func(ctx context.Context, plan schema.ExecutionPlan) attempt.CollectedRun {
		return attempt.CollectedRun{Outcome: schema.AttemptOutcome{Kind: schema.OutcomeSucceeded, Attempts: 1}, Stdout: big}
	}
	sink := events.NewCollector()
	r.Run(context.Background(), testWorkflow(true, "nmap"), sink)

	for _, ev := range sink.Events() {
		if ev.Event == schema.EventStepFinished {
			p := ev.Payload.(schema.StepFinishedPayload)
			if len(p.StdoutPreview) != previewBytes {
				t.Fatalf("preview length = %d, want %d", len(p.StdoutPreview), previewBytes)
			}
		}
	}
}
