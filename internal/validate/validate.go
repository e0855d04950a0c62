package validate

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/marcohefti/kali-bridge/internal/ids"
	"github.com/marcohefti/kali-bridge/internal/policy"
	"github.com/marcohefti/kali-bridge/internal/schema"
)

// Validation sub-kinds. These surface verbatim in error event details.
const (
	KindBadHost        = "BadHost"
	KindBadUser        = "BadUser"
	KindToolNotAllowed = "ToolNotAllowed"
	KindTooManyArgs    = "TooManyArgs"
	KindInvalidArg     = "InvalidArg"
	KindBadTimeout     = "BadTimeout"
)

const maxArgLen = 1024

// Error is a structured validation rejection. The request never became an
// attempt; no child process was spawned.
type Error struct {
	Kind   string
	Detail string
}

func (e *Error) Error() string { return e.Kind + ": " + e.Detail }

// shellMeta are the characters that must never appear in a host or user.
// Args are not checked against this set: they travel as separate process
// arguments and are single-quoted for the remote shell, so checkArg rejects
// only oversized args, newlines, carriage returns, and NUL bytes.
const shellMeta = "`$;&|><\n\r"

// Request checks req against pol, first failure wins. On success the
// returned plan carries the resolved tool spec, effective limits, and a
// correlation id (generated when the request had none).
func Request(pol *policy.Policy, req schema.ToolRequest) (schema.ExecutionPlan, *Error) {
	if err := checkPrincipal(req.Host, KindBadHost, "host"); err != nil {
		return schema.ExecutionPlan{}, err
	}
	if err := checkPrincipal(req.User, KindBadUser, "user"); err != nil {
		return schema.ExecutionPlan{}, err
	}

	spec, ok := pol.Tool(req.Tool)
	if !ok {
		return schema.ExecutionPlan{}, &Error{Kind: KindToolNotAllowed, Detail: fmt.Sprintf("tool %q is not allowlisted", req.Tool)}
	}

	if len(req.Args) > pol.ArgCap() {
		return schema.ExecutionPlan{}, &Error{Kind: KindTooManyArgs, Detail: fmt.Sprintf("%d args exceeds cap %d", len(req.Args), pol.ArgCap())}
	}
	for i, arg := range req.Args {
		if err := checkArg(i, arg); err != nil {
			return schema.ExecutionPlan{}, err
		}
	}

	if req.TimeoutSec < 0 {
		return schema.ExecutionPlan{}, &Error{Kind: KindBadTimeout, Detail: "timeout_sec must be positive"}
	}
	requestedCap := int64(0)
	if req.MaxOutputBytes != nil {
		if *req.MaxOutputBytes <= 0 {
			return schema.ExecutionPlan{}, &Error{Kind: KindInvalidArg, Detail: "max_output_bytes must be positive"}
		}
		requestedCap = *req.MaxOutputBytes
	}

	// User-supplied correlation ids feed derived step ids and log fields,
	// so they get the same sanitization as any other id component.
	correlationID := ids.SanitizeComponent(req.CorrelationID)
	if correlationID == "" {
		correlationID = ids.NewCorrelationID()
	}

	return schema.ExecutionPlan{
		Host:           req.Host,
		User:           req.User,
		Tool:           req.Tool,
		Command:        spec.Command,
		DefaultArgs:    spec.DefaultArgs,
		Args:           req.Args,
		TimeoutSec:     pol.TimeoutFor(req.TimeoutSec),
		MaxOutputBytes: pol.OutputCap(requestedCap),
		CorrelationID:  correlationID,
	}, nil
}

func checkPrincipal(v, kind, field string) *Error {
	if v == "" {
		return &Error{Kind: kind, Detail: field + " must be non-empty"}
	}
	for _, r := range v {
		switch {
		case unicode.IsSpace(r):
			return &Error{Kind: kind, Detail: field + " contains whitespace"}
		case r == '@' || r == ':':
			return &Error{Kind: kind, Detail: fmt.Sprintf("%s contains forbidden character %q", field, r)}
		case strings.ContainsRune(shellMeta, r):
			return &Error{Kind: kind, Detail: fmt.Sprintf("%s contains shell metacharacter %q", field, r)}
		case !unicode.IsPrint(r):
			return &Error{Kind: kind, Detail: field + " contains a non-printable character"}
		}
	}
	return nil
}

func checkArg(i int, arg string) *Error {
	if len(arg) > maxArgLen {
		return &Error{Kind: KindInvalidArg, Detail: fmt.Sprintf("args[%d] exceeds %d bytes", i, maxArgLen)}
	}
	if strings.ContainsAny(arg, "\n\r\x00") {
		return &Error{Kind: KindInvalidArg, Detail: fmt.Sprintf("args[%d] contains a newline or NUL byte", i)}
	}
	return nil
}
