package ids

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	reInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	reDashes  = regexp.MustCompile(`-+`)
)

// NewCorrelationID returns a fresh opaque correlation id for a request that
// did not supply one.
func NewCorrelationID() string {
	return uuid.NewString()
}

// maxComponentLen bounds a sanitized id fragment. Correlation and workflow
// ids land in every event envelope and log line, so an attacker-sized id
// must not inflate them.
const maxComponentLen = 64

// SanitizeComponent normalizes a user-supplied id fragment so it is safe to
// embed in derived ids and log lines: lower + [a-z0-9-], collapsed dashes,
// length-bounded. A generated uuid passes through unchanged.
func SanitizeComponent(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "_", "-")
	v = reInvalid.ReplaceAllString(v, "-")
	v = reDashes.ReplaceAllString(v, "-")
	if len(v) > maxComponentLen {
		v = v[:maxComponentLen]
	}
	v = strings.Trim(v, "-")
	return v
}

// StepID derives the correlation id for step index (1-based) of a workflow.
// All events of that step's attempts share it. The workflow id is sanitized
// so a raw user-supplied id never reaches derived ids or log fields, and the
// prefix is cut so the derived id itself stays within the component bound
// (re-sanitizing it later must not strip the step suffix).
func StepID(workflowID string, index int) string {
	prefix := SanitizeComponent(workflowID)
	suffix := fmt.Sprintf("-step-%d", index)
	if len(prefix)+len(suffix) > maxComponentLen {
		prefix = strings.TrimRight(prefix[:maxComponentLen-len(suffix)], "-")
	}
	return prefix + suffix
}
