package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the config file. Pointer fields distinguish "absent"
// (take the secure default) from an explicit zero, which is rejected where
// the bound must be positive.
type FileConfig struct {
	Tools                  map[string]ToolSpec `json:"tools,omitempty" yaml:"tools" toml:"tools"`
	MaxArgs                *int                `json:"max_args,omitempty" yaml:"max_args" toml:"max_args"`
	MaxOutputBytes         *int64              `json:"max_output_bytes,omitempty" yaml:"max_output_bytes" toml:"max_output_bytes"`
	DefaultTimeoutSec      *int                `json:"default_timeout_sec,omitempty" yaml:"default_timeout_sec" toml:"default_timeout_sec"`
	MaxTimeoutSec          *int                `json:"max_timeout_sec,omitempty" yaml:"max_timeout_sec" toml:"max_timeout_sec"`
	MaxRetries             *int                `json:"max_retries,omitempty" yaml:"max_retries" toml:"max_retries"`
	RetryBackoffMs         *int64              `json:"retry_backoff_ms,omitempty" yaml:"retry_backoff_ms" toml:"retry_backoff_ms"`
	ObservabilityJSONLogs  *bool               `json:"observability_json_logs,omitempty" yaml:"observability_json_logs" toml:"observability_json_logs"`
	SSHConnectTimeoutSec   *int                `json:"ssh_connect_timeout_sec,omitempty" yaml:"ssh_connect_timeout_sec" toml:"ssh_connect_timeout_sec"`
	SSHServerAliveInterval *int                `json:"ssh_server_alive_interval_sec,omitempty" yaml:"ssh_server_alive_interval_sec" toml:"ssh_server_alive_interval_sec"`
	SSHServerAliveCountMax *int                `json:"ssh_server_alive_count_max,omitempty" yaml:"ssh_server_alive_count_max" toml:"ssh_server_alive_count_max"`
	SSHStrictHostKey       *bool               `json:"ssh_strict_host_key_checking,omitempty" yaml:"ssh_strict_host_key_checking" toml:"ssh_strict_host_key_checking"`
}

// Load reads a policy from path. A missing file yields Default(). The format
// follows the extension (.json default, .jsonc, .yaml/.yml, .toml); every
// format is decoded strictly so an unknown field is a load error, not a
// silently ignored typo.
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid config yaml: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(raw), &fc)
		if err != nil {
			return nil, fmt.Errorf("invalid config toml: %w", err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return nil, fmt.Errorf("invalid config toml: unknown field %q", undec[0].String())
		}
	case ".jsonc":
		if err := decodeStrictJSON(jsonc.ToJSON(raw), &fc); err != nil {
			return nil, fmt.Errorf("invalid config jsonc: %w", err)
		}
	default:
		if err := decodeStrictJSON(raw, &fc); err != nil {
			return nil, fmt.Errorf("invalid config json: %w", err)
		}
	}

	return fc.Build()
}

func decodeStrictJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// A config file is exactly one document.
	if dec.More() {
		return fmt.Errorf("trailing data after config document")
	}
	return nil
}

// Build merges the file values over the secure defaults and range-checks
// every bound.
func (fc FileConfig) Build() (*Policy, error) {
	p := Default()

	if fc.Tools != nil {
		tools := make(map[string]ToolSpec, len(fc.Tools))
		for name, spec := range fc.Tools {
			name = strings.TrimSpace(name)
			if name == "" {
				return nil, fmt.Errorf("config: empty tool name")
			}
			if strings.TrimSpace(spec.Command) == "" {
				return nil, fmt.Errorf("config: tool %q has no command", name)
			}
			if !filepath.IsAbs(spec.Command) {
				return nil, fmt.Errorf("config: tool %q command must be an absolute path", name)
			}
			tools[name] = spec
		}
		p.tools = tools
	}
	if fc.MaxArgs != nil {
		if *fc.MaxArgs <= 0 {
			return nil, fmt.Errorf("config: max_args must be positive")
		}
		p.maxArgs = *fc.MaxArgs
	}
	if fc.MaxOutputBytes != nil {
		if *fc.MaxOutputBytes <= 0 {
			return nil, fmt.Errorf("config: max_output_bytes must be positive")
		}
		p.maxOutputBytes = *fc.MaxOutputBytes
	}
	if fc.DefaultTimeoutSec != nil {
		if *fc.DefaultTimeoutSec <= 0 {
			return nil, fmt.Errorf("config: default_timeout_sec must be positive")
		}
		p.defaultTimeoutSec = *fc.DefaultTimeoutSec
	}
	if fc.MaxTimeoutSec != nil {
		if *fc.MaxTimeoutSec <= 0 {
			return nil, fmt.Errorf("config: max_timeout_sec must be positive")
		}
		p.maxTimeoutSec = *fc.MaxTimeoutSec
	}
	if p.defaultTimeoutSec > p.maxTimeoutSec {
		return nil, fmt.Errorf("config: default_timeout_sec exceeds max_timeout_sec")
	}
	if fc.MaxRetries != nil {
		if *fc.MaxRetries < 0 {
			return nil, fmt.Errorf("config: max_retries must be >= 0")
		}
		p.maxRetries = *fc.MaxRetries
	}
	if fc.RetryBackoffMs != nil {
		if *fc.RetryBackoffMs <= 0 {
			return nil, fmt.Errorf("config: retry_backoff_ms must be positive")
		}
		p.retryBackoffMs = *fc.RetryBackoffMs
	}
	if fc.ObservabilityJSONLogs != nil {
		p.obsLogs = *fc.ObservabilityJSONLogs
	}
	if fc.SSHConnectTimeoutSec != nil {
		if *fc.SSHConnectTimeoutSec <= 0 {
			return nil, fmt.Errorf("config: ssh_connect_timeout_sec must be positive")
		}
		p.ssh.ConnectTimeoutSec = *fc.SSHConnectTimeoutSec
	}
	if fc.SSHServerAliveInterval != nil {
		if *fc.SSHServerAliveInterval <= 0 {
			return nil, fmt.Errorf("config: ssh_server_alive_interval_sec must be positive")
		}
		p.ssh.ServerAliveIntervalSec = *fc.SSHServerAliveInterval
	}
	if fc.SSHServerAliveCountMax != nil {
		if *fc.SSHServerAliveCountMax <= 0 {
			return nil, fmt.Errorf("config: ssh_server_alive_count_max must be positive")
		}
		p.ssh.ServerAliveCountMax = *fc.SSHServerAliveCountMax
	}
	if fc.SSHStrictHostKey != nil {
		p.ssh.StrictHostKeyChecking = *fc.SSHStrictHostKey
	}

	return p, nil
}
