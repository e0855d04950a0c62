package cli

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/marcohefti/kali-bridge/internal/attempt"
	"github.com/marcohefti/kali-bridge/internal/codes"
	"github.com/marcohefti/kali-bridge/internal/events"
	"github.com/marcohefti/kali-bridge/internal/policy"
	"github.com/marcohefti/kali-bridge/internal/schema"
	"github.com/marcohefti/kali-bridge/internal/validate"
)

func (r Runner) runRun(args []string) int {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	host := fs.String("host", "", "remote host (required)")
	user := fs.String("user", "", "remote ssh user (required)")
	tool := fs.String("tool", "", "allowlisted tool name (required)")
	toolArgs := fs.StringArray("args", nil, "tool argument (repeatable, order preserved)")
	timeoutSec := fs.Int("timeout-sec", 0, "per-attempt timeout in seconds (default from config)")
	maxOutputBytes := fs.Int64("max-output-bytes", 0, "output byte cap across stdout+stderr (default from config)")
	correlationID := fs.String("correlation-id", "", "correlation id (generated when absent)")
	configPath := fs.String("config", defaultConfigPath, "config file path")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("run: invalid flags")
	}
	if *help {
		printRunHelp(r.Stdout)
		return 0
	}

	pol, err := policy.Load(*configPath)
	if err != nil {
		return r.failConfig(err)
	}

	req := schema.ToolRequest{
		Host:          *host,
		User:          *user,
		Tool:          *tool,
		Args:          *toolArgs,
		TimeoutSec:    *timeoutSec,
		CorrelationID: *correlationID,
	}
	// Only an explicitly passed flag becomes a requested cap; an explicit
	// zero must reach the validator as such, not read as "absent".
	if fs.Changed("max-output-bytes") {
		req.MaxOutputBytes = maxOutputBytes
	}

	sink := events.NewLineWriter(r.Stdout)
	plan, verr := validate.Request(pol, req)
	if verr != nil {
		sink.Emit(r.validationEvent(req.CorrelationID, verr))
		fmt.Fprintf(r.Stderr, codes.Validation+": %s\n", verr.Error())
		return codes.ExitValidation
	}

	ctx, stop := signalContext()
	defer stop()

	ctrl := attempt.NewController(pol, events.NewObservability(r.Stderr, pol.ObservabilityLogs()))
	outcome := ctrl.Run(ctx, plan, sink)

	switch outcome.Kind {
	case schema.OutcomeSucceeded:
		return codes.ExitOK
	case schema.OutcomeFailedExit:
		return codes.ExitToolFailed
	case schema.OutcomeTimedOut:
		return codes.ExitTimeout
	default:
		return codes.ExitTransport
	}
}

func printRunHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  kbridge run --host <host> --user <user> --tool <tool> [--args <arg>]... [--timeout-sec N] [--max-output-bytes N] [--correlation-id <id>] [--config <path>]

Streams events to stdout, one JSON object per line. Exit codes:
  0 remote tool exited 0
  1 remote tool exited nonzero
  2 request rejected by validation
  3 timeout
  4 transport failure
`)
}
