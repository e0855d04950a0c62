package cli

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/marcohefti/kali-bridge/internal/schema"
)

func (r Runner) runPrintSchema(args []string) int {
	fs := pflag.NewFlagSet("print-schema", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	help := fs.Bool("help", false, "show help")
	if err := fs.Parse(args); err != nil {
		return r.failUsage("print-schema: invalid flags")
	}
	if *help {
		printPrintSchemaHelp(r.Stdout)
		return 0
	}

	return r.writeJSON(map[string]any{
		"tool_request":     schema.ToolRequestSchema(),
		"workflow_request": schema.WorkflowRequestSchema(),
		"events": []string{
			schema.EventStarted,
			schema.EventStdoutChunk,
			schema.EventStderrChunk,
			schema.EventOutputTruncated,
			schema.EventFinished,
			schema.EventError,
		},
	})
}

func printPrintSchemaHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  kbridge print-schema
`)
}
