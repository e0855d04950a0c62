package ids

import (
	"strings"
	"testing"
)

func TestNewCorrelationID_Unique(t *testing.T) {
	t.Parallel()

	a, b := NewCorrelationID(), NewCorrelationID()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a, b)
	}
}

func TestSanitizeComponent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Recon Sweep", "recon-sweep"},
		{"a__b", "a-b"},
		{"  spaced  ", "spaced"},
		{"UPPER-case", "upper-case"},
		{"weird!!chars", "weird-chars"},
		{"---", ""},
		{strings.Repeat("a", 100), strings.Repeat("a", 64)},
	}
	for _, tc := range cases {
		if got := SanitizeComponent(tc.in); got != tc.want {
			t.Fatalf("SanitizeComponent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStepID(t *testing.T) {
	t.Parallel()

	if got := StepID("wf-9", 3); got != "wf-9-step-3" {
		t.Fatalf("StepID = %q", got)
	}
	if got := StepID("Recon Sweep", 1); got != "recon-sweep-step-1" {
		t.Fatalf("StepID must sanitize the workflow id, got %q", got)
	}

	// A maximal workflow id must not push the derived id past the component
	// bound, or a later sanitize pass would strip the step suffix.
	long := StepID(strings.Repeat("a", 100), 7)
	if len(long) > 64 || !strings.HasSuffix(long, "-step-7") {
		t.Fatalf("derived id out of bounds: %q (len %d)", long, len(long))
	}
	if SanitizeComponent(long) != long {
		t.Fatalf("derived id must be a sanitize fixed point: %q", long)
	}
}
