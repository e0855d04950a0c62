// Package sshcmd turns a vetted execution plan into the argv for the local
// ssh binary. The remote side is a single command line joined by SSH, so
// every remote word is shell-quoted here; the local side receives each
// element as a distinct process argument and nothing from the request can be
// read as a flag to ssh or timeout. Request args follow the tool's command
// path, so they reach the tool as its own arguments.
package sshcmd

import (
	"fmt"
	"strings"

	"github.com/marcohefti/kali-bridge/internal/policy"
	"github.com/marcohefti/kali-bridge/internal/schema"
)

// killAfter is the remote SIGTERM→SIGKILL escalation window. The local
// deadline (engine grace) sits above timeout+killAfter so the remote side
// fires first on a healthy connection.
const killAfter = "5s"

// Build returns the full local argv: hardened ssh options, the target, a
// `--` separator, then the remote `timeout`-wrapped tool invocation.
func Build(pol *policy.Policy, plan schema.ExecutionPlan) []string {
	ssh := pol.SSH()

	strict := "no"
	if ssh.StrictHostKeyChecking {
		strict = "yes"
	}

	argv := []string{
		"ssh",
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=" + strict,
		"-o", fmt.Sprintf("ConnectTimeout=%d", ssh.ConnectTimeoutSec),
		"-o", fmt.Sprintf("ServerAliveInterval=%d", ssh.ServerAliveIntervalSec),
		"-o", fmt.Sprintf("ServerAliveCountMax=%d", ssh.ServerAliveCountMax),
		plan.User + "@" + plan.Host,
		"--",
		"timeout", "--signal=TERM", "--kill-after=" + killAfter, fmt.Sprintf("%ds", plan.TimeoutSec),
	}

	words := make([]string, 0, 1+len(plan.DefaultArgs)+len(plan.Args))
	words = append(words, plan.Command)
	words = append(words, plan.DefaultArgs...)
	words = append(words, plan.Args...)
	for _, w := range words {
		argv = append(argv, Quote(w))
	}
	return argv
}

// Quote wraps s in single quotes for the remote POSIX shell; an embedded
// single quote becomes the sequence quote, backslash-quote, quote.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
