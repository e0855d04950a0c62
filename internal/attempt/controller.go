// Package attempt wraps the execution engine with the bounded-retry policy:
// attempt indices, linear backoff, and the observability event stream that
// mirrors every attempt boundary.
package attempt

import (
	"context"
	"time"

	"github.com/marcohefti/kali-bridge/internal/engine"
	"github.com/marcohefti/kali-bridge/internal/events"
	"github.com/marcohefti/kali-bridge/internal/policy"
	"github.com/marcohefti/kali-bridge/internal/schema"
	"github.com/marcohefti/kali-bridge/internal/sshcmd"
)

// Controller runs plans under the policy's retry budget. BuildArgv, Exec,
// and Sleep are injectable so tests can count SSH invocations, script
// outcome sequences, and skip real backoff waits.
type Controller struct {
	Policy *policy.Policy
	Engine *engine.Engine
	Obs    events.ObsSink

	BuildArgv func(plan schema.ExecutionPlan) []string
	Exec      func(ctx context.Context, plan schema.ExecutionPlan, argv []string, sink events.Sink) schema.AttemptOutcome
	Sleep     func(d time.Duration)
}

func NewController(pol *policy.Policy, obs events.ObsSink) *Controller {
	return &Controller{Policy: pol, Engine: engine.New(), Obs: obs}
}

// Run executes plan through up to 1+max_retries attempts. Attempts are
// indexed from 1; FailedExit, TimedOut, and TransportError are retry
// eligible, Succeeded terminates immediately. The returned outcome carries
// the number of attempts made.
func (c *Controller) Run(ctx context.Context, plan schema.ExecutionPlan, sink events.Sink) schema.AttemptOutcome {
	maxAttempts := 1 + c.Policy.MaxRetries()

	for attemptIndex := 1; ; attemptIndex++ {
		c.Obs.Observe(plan.CorrelationID, schema.EventAttemptStarted, schema.AttemptStartedPayload{
			Attempt: attemptIndex,
			Tool:    plan.Tool,
			Host:    plan.Host,
		})

		outcome := c.exec(ctx, plan, c.buildArgv(plan), sink)
		outcome.Attempts = attemptIndex

		c.Obs.Observe(plan.CorrelationID, schema.EventAttemptFinished, schema.AttemptFinishedPayload{
			Attempt:     attemptIndex,
			OutcomeKind: string(outcome.Kind),
			DurationMs:  outcome.DurationMs,
		})

		if !outcome.Retryable() || attemptIndex >= maxAttempts || ctx.Err() != nil {
			return outcome
		}

		// Linear backoff, measured from the end of the previous attempt.
		backoff := time.Duration(attemptIndex) * time.Duration(c.Policy.RetryBackoffMs()) * time.Millisecond
		c.Obs.Observe(plan.CorrelationID, schema.EventRetryScheduled, schema.RetryScheduledPayload{
			Attempt:     attemptIndex,
			NextAttempt: attemptIndex + 1,
			BackoffMs:   backoff.Milliseconds(),
		})
		c.sleep(backoff)
	}
}

// CollectedRun is one retried request with its streams assembled in memory,
// for adapters that respond with a single aggregate (MCP tools/call,
// workflow steps).
type CollectedRun struct {
	Outcome schema.AttemptOutcome
	Stdout  []byte
	Stderr  []byte
}

// Collect runs the plan against an internal collector sink instead of the
// caller's protocol stream. Each attempt emits its own started event, and
// the collector resets on it, so the assembled streams belong to the final
// attempt only.
func (c *Controller) Collect(ctx context.Context, plan schema.ExecutionPlan) CollectedRun {
	sink := events.NewCollector()
	outcome := c.Run(ctx, plan, sinkFunc(func(ev schema.Event) {
		if ev.Event == schema.EventStarted {
			sink.Reset()
		}
		sink.Emit(ev)
	}))
	return CollectedRun{
		Outcome: outcome,
		Stdout:  sink.Stream(schema.EventStdoutChunk),
		Stderr:  sink.Stream(schema.EventStderrChunk),
	}
}

type sinkFunc func(ev schema.Event)

func (f sinkFunc) Emit(ev schema.Event) { f(ev) }

func (c *Controller) buildArgv(plan schema.ExecutionPlan) []string {
	if c.BuildArgv != nil {
		return c.BuildArgv(plan)
	}
	return sshcmd.Build(c.Policy, plan)
}

func (c *Controller) exec(ctx context.Context, plan schema.ExecutionPlan, argv []string, sink events.Sink) schema.AttemptOutcome {
	if c.Exec != nil {
		return c.Exec(ctx, plan, argv, sink)
	}
	return c.Engine.Execute(ctx, plan, argv, sink)
}

func (c *Controller) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
		return
	}
	time.Sleep(d)
}
