// Package engine turns a vetted execution plan into one supervised child
// process and a well-ordered event stream. One engine execution is one
// attempt: exactly one started event, zero or more chunk events, at most one
// output_truncated, and exactly one terminal event (finished or error). The
// engine never retries and never returns a Go error across its boundary;
// every failure mode is a typed outcome plus the matching terminal event.
package engine

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/marcohefti/kali-bridge/internal/events"
	"github.com/marcohefti/kali-bridge/internal/schema"
)

const (
	// DefaultGrace is the margin between the remote `timeout` firing and
	// the local deadline. The remote ceiling must win on a healthy
	// connection; the local one exists for dead SSH sessions, half-closed
	// TCP connections, and a remote timeout that itself hangs.
	DefaultGrace = 10 * time.Second

	// DefaultTermWait is the SIGTERM→SIGKILL escalation window for the
	// local SSH child.
	DefaultTermWait = 2 * time.Second

	// DefaultChunkSize bounds one read from either stream.
	DefaultChunkSize = 4096

	// remoteTimeoutExit is what coreutils `timeout` exits with after
	// delivering SIGTERM.
	remoteTimeoutExit = 124

	// sshTransportExit is SSH's reserved exit code for connection and
	// authentication failures.
	sshTransportExit = 255
)

// Engine executes plans. The zero value uses the production constants;
// tests compress Grace and TermWait to keep timeout paths fast.
type Engine struct {
	Grace     time.Duration
	TermWait  time.Duration
	ChunkSize int
}

func New() *Engine {
	return &Engine{Grace: DefaultGrace, TermWait: DefaultTermWait, ChunkSize: DefaultChunkSize}
}

// Execute runs argv (normally sshcmd.Build output) under the plan's limits
// and streams events to sink. It blocks until the child has exited and both
// reader goroutines are joined, on every exit path including timeout and
// cancellation.
func (e *Engine) Execute(ctx context.Context, plan schema.ExecutionPlan, argv []string, sink events.Sink) schema.AttemptOutcome {
	grace := e.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	termWait := e.TermWait
	if termWait <= 0 {
		termWait = DefaultTermWait
	}
	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	start := time.Now()
	em := newEmitter(sink, plan.CorrelationID, plan.MaxOutputBytes)
	em.emit(schema.EventStarted, schema.StartedPayload{
		Tool:       plan.Tool,
		Args:       plan.Args,
		Host:       plan.Host,
		User:       plan.User,
		TimeoutSec: plan.TimeoutSec,
	})

	if len(argv) == 0 {
		return e.transportOutcome(em, start, "empty argv")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	// Own process group, so the kill path reaches ssh and anything it
	// leaves behind.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return e.transportOutcome(em, start, "stdout pipe: "+err.Error())
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return e.transportOutcome(em, start, "stderr pipe: "+err.Error())
	}

	if err := cmd.Start(); err != nil {
		return e.transportOutcome(em, start, "spawn failed: "+err.Error())
	}

	pgid := cmd.Process.Pid
	exited := make(chan struct{})
	var deadlineFired, canceled atomic.Bool

	// The deadline watcher runs apart from the readers so a blocked pipe
	// read can never delay the kill path.
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		timer := time.NewTimer(time.Duration(plan.TimeoutSec)*time.Second + grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			deadlineFired.Store(true)
			terminate(pgid, exited, termWait)
		case <-ctx.Done():
			canceled.Store(true)
			terminate(pgid, exited, termWait)
		case <-exited:
		}
	}()

	var stdoutBytes, stderrBytes int64
	var wg sync.WaitGroup
	wg.Add(2)
	go readStream(&wg, stdout, em, schema.EventStdoutChunk, &stdoutBytes, chunkSize)
	go readStream(&wg, stderr, em, schema.EventStderrChunk, &stderrBytes, chunkSize)

	// Readers drain to EOF before Wait so the child is never blocked on a
	// full pipe, then the exit is observed exactly once.
	wg.Wait()
	waitErr := cmd.Wait()
	close(exited)
	<-watcherDone

	durationMs := time.Since(start).Milliseconds()
	truncated := em.truncatedOnce()

	exitCode := 0
	transportDetail := ""
	if waitErr != nil {
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			exitCode = ee.ExitCode()
		} else {
			transportDetail = waitErr.Error()
		}
	}

	outcome := schema.AttemptOutcome{
		ExitCode:    exitCode,
		StdoutBytes: atomic.LoadInt64(&stdoutBytes),
		StderrBytes: atomic.LoadInt64(&stderrBytes),
		Truncated:   truncated,
		DurationMs:  durationMs,
		Attempts:    1,
	}

	switch {
	case transportDetail != "":
		outcome.Kind = schema.OutcomeTransportError
		outcome.Detail = transportDetail
		em.terminal(schema.EventError, schema.ErrorPayload{Kind: schema.ErrorKindTransport, Detail: transportDetail, DurationMs: durationMs})
	case deadlineFired.Load() || exitCode == remoteTimeoutExit:
		outcome.Kind = schema.OutcomeTimedOut
		em.terminal(schema.EventError, schema.ErrorPayload{Kind: schema.ErrorKindTimeout, DurationMs: durationMs})
	case canceled.Load():
		outcome.Kind = schema.OutcomeTransportError
		outcome.Detail = "canceled"
		em.terminal(schema.EventError, schema.ErrorPayload{Kind: schema.ErrorKindTransport, Detail: "canceled", DurationMs: durationMs})
	case exitCode == sshTransportExit:
		outcome.Kind = schema.OutcomeTransportError
		outcome.Detail = "ssh exited 255"
		em.terminal(schema.EventError, schema.ErrorPayload{Kind: schema.ErrorKindTransport, Detail: "ssh exited 255", DurationMs: durationMs})
	case exitCode < 0:
		outcome.Kind = schema.OutcomeTransportError
		outcome.Detail = "terminated by signal"
		em.terminal(schema.EventError, schema.ErrorPayload{Kind: schema.ErrorKindTransport, Detail: "terminated by signal", DurationMs: durationMs})
	default:
		if exitCode == 0 {
			outcome.Kind = schema.OutcomeSucceeded
		} else {
			outcome.Kind = schema.OutcomeFailedExit
		}
		em.terminal(schema.EventFinished, schema.FinishedPayload{
			ExitCode:    exitCode,
			DurationMs:  durationMs,
			Truncated:   truncated,
			StdoutBytes: outcome.StdoutBytes,
			StderrBytes: outcome.StderrBytes,
		})
	}

	return outcome
}

func (e *Engine) transportOutcome(em *emitter, start time.Time, detail string) schema.AttemptOutcome {
	durationMs := time.Since(start).Milliseconds()
	em.terminal(schema.EventError, schema.ErrorPayload{Kind: schema.ErrorKindTransport, Detail: detail, DurationMs: durationMs})
	return schema.AttemptOutcome{
		Kind:       schema.OutcomeTransportError,
		Detail:     detail,
		DurationMs: durationMs,
		Attempts:   1,
	}
}

func readStream(wg *sync.WaitGroup, r io.Reader, em *emitter, kind string, total *int64, chunkSize int) {
	defer wg.Done()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			atomic.AddInt64(total, int64(n))
			em.chunk(kind, buf[:n])
		}
		if err != nil {
			return
		}
	}
}
