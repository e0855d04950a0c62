package policy

import (
	"reflect"
	"testing"
)

func TestDefault_SecureDefaults(t *testing.T) {
	t.Parallel()

	p := Default()
	if got := p.ToolNames(); !reflect.DeepEqual(got, []string{"nikto", "nmap", "sqlmap"}) {
		t.Fatalf("unexpected default allowlist: %v", got)
	}
	if p.ArgCap() != 32 {
		t.Fatalf("ArgCap = %d", p.ArgCap())
	}
	if p.MaxOutputBytes() != 262144 {
		t.Fatalf("MaxOutputBytes = %d", p.MaxOutputBytes())
	}
	if p.DefaultTimeoutSec() != 60 || p.MaxTimeoutSec() != 300 {
		t.Fatalf("timeouts = %d/%d", p.DefaultTimeoutSec(), p.MaxTimeoutSec())
	}
	if p.MaxRetries() != 0 {
		t.Fatalf("MaxRetries = %d", p.MaxRetries())
	}
	if p.RetryBackoffMs() != 500 {
		t.Fatalf("RetryBackoffMs = %d", p.RetryBackoffMs())
	}
	if !p.ObservabilityLogs() {
		t.Fatalf("observability must default to enabled")
	}
	ssh := p.SSH()
	if !ssh.StrictHostKeyChecking || ssh.ConnectTimeoutSec != 10 || ssh.ServerAliveIntervalSec != 15 || ssh.ServerAliveCountMax != 2 {
		t.Fatalf("unexpected ssh defaults: %+v", ssh)
	}
}

func TestIsAllowed(t *testing.T) {
	t.Parallel()

	p := Default()
	if !p.IsAllowed("nmap") {
		t.Fatalf("nmap must be allowed by default")
	}
	if p.IsAllowed("bash") {
		t.Fatalf("bash must not be allowed")
	}
}

func TestOutputCap(t *testing.T) {
	t.Parallel()

	p := Default()
	if got := p.OutputCap(0); got != p.MaxOutputBytes() {
		t.Fatalf("absent request must take the policy cap, got %d", got)
	}
	if got := p.OutputCap(1024); got != 1024 {
		t.Fatalf("smaller request must stick, got %d", got)
	}
	if got := p.OutputCap(p.MaxOutputBytes() + 1); got != p.MaxOutputBytes() {
		t.Fatalf("oversized request must clamp, got %d", got)
	}
}

func TestTimeoutFor(t *testing.T) {
	t.Parallel()

	p := Default()
	if got := p.TimeoutFor(0); got != p.DefaultTimeoutSec() {
		t.Fatalf("absent request must take the default, got %d", got)
	}
	if got := p.TimeoutFor(30); got != 30 {
		t.Fatalf("in-range request must stick, got %d", got)
	}
	if got := p.TimeoutFor(p.MaxTimeoutSec() + 1); got != p.MaxTimeoutSec() {
		t.Fatalf("oversized request must clamp, got %d", got)
	}
}
