package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/marcohefti/kali-bridge/internal/attempt"
	"github.com/marcohefti/kali-bridge/internal/codes"
	"github.com/marcohefti/kali-bridge/internal/events"
	"github.com/marcohefti/kali-bridge/internal/policy"
	"github.com/marcohefti/kali-bridge/internal/schema"
	"github.com/marcohefti/kali-bridge/internal/workflow"
)

// runWorkflowServe is the workflow adapter: one WorkflowRequest per stdin
// line, workflow events out on stdout.
func (r Runner) runWorkflowServe(args []string) int {
	fs := pflag.NewFlagSet("workflow-serve", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	help := fs.Bool("help", false, "show help")
	if err := fs.Parse(args); err != nil {
		return r.failUsage("workflow-serve: invalid flags")
	}
	if *help {
		printWorkflowServeHelp(r.Stdout)
		return 0
	}

	pol, err := policy.Load(*configPath)
	if err != nil {
		return r.failConfig(err)
	}

	ctx, stop := signalContext()
	defer stop()

	sink := events.NewLineWriter(r.Stdout)
	ctrl := attempt.NewController(pol, events.NewObservability(r.Stderr, pol.ObservabilityLogs()))
	runner := workflow.NewRunner(pol, ctrl)

	sc := bufio.NewScanner(r.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var wf schema.WorkflowRequest
		if err := json.Unmarshal([]byte(line), &wf); err != nil {
			sink.Emit(r.parseErrorEvent())
			continue
		}
		runner.Run(ctx, wf, sink)
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(r.Stderr, codes.IO+": read stdin: %s\n", err.Error())
		return 1
	}
	return 0
}

func printWorkflowServeHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  kbridge workflow-serve [--config <path>]

Reads one WorkflowRequest JSON object per line from stdin and writes
workflow event JSON objects to stdout, one per line.
`)
}
