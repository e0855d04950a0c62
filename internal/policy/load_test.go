package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()

	p, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.ArgCap() != 32 || !p.IsAllowed("nmap") {
		t.Fatalf("missing config must yield defaults")
	}
}

func TestLoad_JSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "bridge.json", `{
		"max_retries": 2,
		"retry_backoff_ms": 100,
		"max_output_bytes": 4096,
		"tools": {"nmap": {"command": "/usr/bin/nmap", "default_args": ["-Pn"]}}
	}`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.MaxRetries() != 2 || p.RetryBackoffMs() != 100 || p.MaxOutputBytes() != 4096 {
		t.Fatalf("file values not applied")
	}
	if p.IsAllowed("nikto") {
		t.Fatalf("a tools section replaces the default allowlist entirely")
	}
	spec, ok := p.Tool("nmap")
	if !ok || len(spec.DefaultArgs) != 1 || spec.DefaultArgs[0] != "-Pn" {
		t.Fatalf("tool spec not applied: %+v", spec)
	}
}

func TestLoad_JSONRejectsUnknownField(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "bridge.json", `{"max_retriez": 2}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("unknown field must be rejected")
	}
}

func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "bridge.yaml", "max_retries: 1\ndefault_timeout_sec: 20\n")
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.MaxRetries() != 1 || p.DefaultTimeoutSec() != 20 {
		t.Fatalf("yaml values not applied")
	}
}

func TestLoad_YAMLRejectsUnknownField(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "bridge.yaml", "max_retriez: 1\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("unknown yaml field must be rejected")
	}
}

func TestLoad_TOML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "bridge.toml", "max_retries = 3\nssh_strict_host_key_checking = false\n")
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.MaxRetries() != 3 || p.SSH().StrictHostKeyChecking {
		t.Fatalf("toml values not applied")
	}
}

func TestLoad_TOMLRejectsUnknownField(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "bridge.toml", "max_retriez = 3\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("unknown toml field must be rejected")
	}
}

func TestLoad_JSONC(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "bridge.jsonc", `{
		// retries for flaky links
		"max_retries": 1,
	}`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.MaxRetries() != 1 {
		t.Fatalf("jsonc values not applied")
	}
}

func TestLoad_RejectsBadBounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
	}{
		{"zero max_args", `{"max_args": 0}`},
		{"negative retries", `{"max_retries": -1}`},
		{"zero backoff", `{"retry_backoff_ms": 0}`},
		{"zero output cap", `{"max_output_bytes": 0}`},
		{"default above cap", `{"default_timeout_sec": 500, "max_timeout_sec": 300}`},
		{"tool without command", `{"tools": {"nmap": {"command": ""}}}`},
		{"tool relative command", `{"tools": {"nmap": {"command": "nmap"}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, "bridge.json", tc.content)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected load error")
			}
		})
	}
}
