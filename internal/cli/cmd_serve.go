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
	"github.com/marcohefti/kali-bridge/internal/validate"
)

// runServe is the line-JSON adapter: one ToolRequest per stdin line, events
// out on stdout, observability on stderr.
func (r Runner) runServe(args []string) int {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	help := fs.Bool("help", false, "show help")
	if err := fs.Parse(args); err != nil {
		return r.failUsage("serve: invalid flags")
	}
	if *help {
		printServeHelp(r.Stdout)
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

		var req schema.ToolRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			sink.Emit(r.parseErrorEvent())
			continue
		}

		plan, verr := validate.Request(pol, req)
		if verr != nil {
			sink.Emit(r.validationEvent(req.CorrelationID, verr))
			continue
		}
		ctrl.Run(ctx, plan, sink)
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(r.Stderr, codes.IO+": read stdin: %s\n", err.Error())
		return 1
	}
	return 0
}

func printServeHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  kbridge serve [--config <path>]

Reads one ToolRequest JSON object per line from stdin and writes event JSON
objects to stdout, one per line.
`)
}
