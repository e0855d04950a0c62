// Package cli is the framing shell around the bridge core: flag parsing,
// config loading, the three stdio adapters, and exit-code mapping. All of
// the interesting behavior lives below in validate, engine, attempt, and
// workflow.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcohefti/kali-bridge/internal/codes"
	"github.com/marcohefti/kali-bridge/internal/schema"
	"github.com/marcohefti/kali-bridge/internal/validate"
)

const defaultConfigPath = "bridge-config.json"

type Runner struct {
	Version string
	Now     func() time.Time
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

func (r Runner) Run(args []string) int {
	if r.Stdin == nil {
		r.Stdin = os.Stdin
	}
	if r.Stdout == nil {
		r.Stdout = os.Stdout
	}
	if r.Stderr == nil {
		r.Stderr = os.Stderr
	}
	if r.Now == nil {
		r.Now = time.Now
	}

	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printRootHelp(r.Stdout)
		return 0
	}

	switch args[0] {
	case "run":
		return r.runRun(args[1:])
	case "serve":
		return r.runServe(args[1:])
	case "mcp-serve":
		return r.runMCPServe(args[1:])
	case "workflow-serve":
		return r.runWorkflowServe(args[1:])
	case "print-schema":
		return r.runPrintSchema(args[1:])
	case "version":
		fmt.Fprintf(r.Stdout, "%s\n", r.Version)
		return 0
	default:
		fmt.Fprintf(r.Stderr, codes.Usage+": unknown command %q\n", args[0])
		printRootHelp(r.Stderr)
		return 2
	}
}

func (r Runner) writeJSON(v any) int {
	enc := json.NewEncoder(r.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(r.Stderr, codes.IO+": failed to encode json\n")
		return 1
	}
	return 0
}

func (r Runner) failUsage(msg string) int {
	fmt.Fprintf(r.Stderr, codes.Usage+": %s\n", msg)
	return 2
}

func (r Runner) failConfig(err error) int {
	fmt.Fprintf(r.Stderr, codes.Config+": %s\n", err.Error())
	return 1
}

// signalContext is the shutdown path: SIGINT/SIGTERM cancels the context,
// which drives every in-flight attempt through its kill ladder to a
// terminal event before the process exits.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// validationEvent is the error event for a request that never became an
// attempt. No started event precedes it; the detail is the validation
// sub-kind.
func (r Runner) validationEvent(correlationID string, verr *validate.Error) schema.Event {
	if correlationID == "" {
		correlationID = "unknown"
	}
	return schema.Event{
		TsMs:          r.Now().UnixMilli(),
		CorrelationID: correlationID,
		Event:         schema.EventError,
		Payload: schema.ErrorPayload{
			Kind:   schema.ErrorKindValidation,
			Detail: verr.Kind,
		},
	}
}

// parseErrorEvent covers a stdin line that is not valid request JSON.
func (r Runner) parseErrorEvent() schema.Event {
	return schema.Event{
		TsMs:          r.Now().UnixMilli(),
		CorrelationID: "unknown",
		Event:         schema.EventError,
		Payload:       schema.ErrorPayload{Kind: schema.ErrorKindValidation, Detail: "ParseError"},
	}
}

func printRootHelp(w io.Writer) {
	fmt.Fprint(w, `kali-bridge

Usage:
  kbridge run --host <host> --user <user> --tool <tool> [--args <arg>]... [--timeout-sec N] [--max-output-bytes N] [--config <path>]
  kbridge serve [--config <path>]
  kbridge mcp-serve [--config <path>]
  kbridge workflow-serve [--config <path>]
  kbridge print-schema
  kbridge version

Commands:
  run             Run one tool attempt and stream events to stdout.
  serve           Line-JSON server: ToolRequest per line in, events out.
  mcp-serve       JSON-RPC (MCP) server over stdio.
  workflow-serve  Line-JSON workflow server: WorkflowRequest per line in, workflow events out.
  print-schema    Print the ToolRequest / WorkflowRequest JSON schema.
  version         Print version.
`)
}
