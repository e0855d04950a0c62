package cli

import (
	"bufio"
	"context"
	"encoding/base64"
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

const mcpProtocolVersion = "2025-01-01"

// JSON-RPC error codes used by the MCP adapter.
const (
	rpcParseError     = -32700
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcExecFailed     = -32000
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type mcpCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type mcpToolArguments struct {
	Host           string   `json:"host"`
	User           string   `json:"user"`
	Args           []string `json:"args"`
	TimeoutSec     int      `json:"timeout_sec"`
	MaxOutputBytes *int64   `json:"max_output_bytes"`
	CorrelationID  string   `json:"correlation_id"`
}

// runMCPServe is the JSON-RPC adapter: MCP-shaped initialize / tools/list /
// tools/call over stdio, one message per line.
func (r Runner) runMCPServe(args []string) int {
	fs := pflag.NewFlagSet("mcp-serve", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	help := fs.Bool("help", false, "show help")
	if err := fs.Parse(args); err != nil {
		return r.failUsage("mcp-serve: invalid flags")
	}
	if *help {
		printMCPServeHelp(r.Stdout)
		return 0
	}

	pol, err := policy.Load(*configPath)
	if err != nil {
		return r.failConfig(err)
	}

	ctx, stop := signalContext()
	defer stop()

	ctrl := attempt.NewController(pol, events.NewObservability(r.Stderr, pol.ObservabilityLogs()))
	out := json.NewEncoder(r.Stdout)
	out.SetEscapeHTML(false)

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

		var req rpcRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			writeRPCError(out, nil, rpcParseError, "parse error: "+err.Error())
			continue
		}
		r.handleMCPRequest(ctx, pol, ctrl, out, req)
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(r.Stderr, codes.IO+": read stdin: %s\n", err.Error())
		return 1
	}
	return 0
}

func (r Runner) handleMCPRequest(ctx context.Context, pol *policy.Policy, ctrl *attempt.Controller, out *json.Encoder, req rpcRequest) {
	switch req.Method {
	case "initialize":
		writeRPCResult(out, req.ID, map[string]any{
			"protocolVersion": mcpProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "kali-bridge", "version": r.Version},
		})
	case "tools/list":
		tools := make([]map[string]any, 0, len(pol.ToolNames()))
		for _, name := range pol.ToolNames() {
			spec, _ := pol.Tool(name)
			tools = append(tools, map[string]any{
				"name":         name,
				"description":  fmt.Sprintf("Runs %s on the remote Kali host over SSH with enforced timeouts", spec.Command),
				"input_schema": schema.ToolInputSchema(),
			})
		}
		writeRPCResult(out, req.ID, map[string]any{"tools": tools})
	case "tools/call":
		r.handleMCPCall(ctx, pol, ctrl, out, req)
	default:
		writeRPCError(out, req.ID, rpcMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (r Runner) handleMCPCall(ctx context.Context, pol *policy.Policy, ctrl *attempt.Controller, out *json.Encoder, req rpcRequest) {
	var params mcpCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeRPCError(out, req.ID, rpcInvalidParams, "invalid params: "+err.Error())
		return
	}
	var toolArgs mcpToolArguments
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &toolArgs); err != nil {
			writeRPCError(out, req.ID, rpcInvalidParams, "invalid tool arguments: "+err.Error())
			return
		}
	}

	plan, verr := validate.Request(pol, schema.ToolRequest{
		Host:           toolArgs.Host,
		User:           toolArgs.User,
		Tool:           params.Name,
		Args:           toolArgs.Args,
		TimeoutSec:     toolArgs.TimeoutSec,
		MaxOutputBytes: toolArgs.MaxOutputBytes,
		CorrelationID:  toolArgs.CorrelationID,
	})
	if verr != nil {
		writeRPCError(out, req.ID, rpcInvalidParams, verr.Error())
		return
	}

	run := ctrl.Collect(ctx, plan)
	outcome := run.Outcome

	switch outcome.Kind {
	case schema.OutcomeSucceeded, schema.OutcomeFailedExit:
		summary := fmt.Sprintf("exit_code=%d duration_ms=%d attempts=%d truncated=%t",
			outcome.ExitCode, outcome.DurationMs, outcome.Attempts, outcome.Truncated)
		writeRPCResult(out, req.ID, map[string]any{
			"content": []map[string]any{{"type": "text", "text": summary}},
			"isError": outcome.Kind != schema.OutcomeSucceeded,
			"structuredContent": map[string]any{
				"exit_code":   outcome.ExitCode,
				"duration_ms": outcome.DurationMs,
				"attempts":    outcome.Attempts,
				"truncated":   outcome.Truncated,
				"stdout_b64":  base64.StdEncoding.EncodeToString(run.Stdout),
				"stderr_b64":  base64.StdEncoding.EncodeToString(run.Stderr),
			},
		})
	case schema.OutcomeTimedOut:
		writeRPCError(out, req.ID, rpcExecFailed, fmt.Sprintf("timeout after %d attempts (duration_ms=%d)", outcome.Attempts, outcome.DurationMs))
	default:
		msg := outcome.Detail
		if msg == "" {
			msg = string(outcome.Kind)
		}
		writeRPCError(out, req.ID, rpcExecFailed, fmt.Sprintf("transport failure after %d attempts: %s", outcome.Attempts, msg))
	}
}

func writeRPCResult(out *json.Encoder, id json.RawMessage, result any) {
	_ = out.Encode(map[string]any{"jsonrpc": "2.0", "id": rpcID(id), "result": result})
}

func writeRPCError(out *json.Encoder, id json.RawMessage, code int, message string) {
	_ = out.Encode(map[string]any{"jsonrpc": "2.0", "id": rpcID(id), "error": map[string]any{"code": code, "message": message}})
}

func rpcID(id json.RawMessage) any {
	if len(id) == 0 {
		return nil
	}
	return id
}

func printMCPServeHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  kbridge mcp-serve [--config <path>]

JSON-RPC over stdio, one message per line. Methods: initialize, tools/list,
tools/call.
`)
}
