package redact

import "regexp"

type Applied struct {
	Names []string
}

var (
	// Keep this minimal but real: redaction must be bounded + default-safe.
	reGitHubToken = regexp.MustCompile(`\bghp_[A-Za-z0-9]{10,}\b`)
	reAPIKey      = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{10,}\b`)
	reBearer      = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{8,}=*`)
	rePassword    = regexp.MustCompile(`(?i)\b(password|passwd|pwd)=[^\s'"]+`)
	rePrivateKey  = regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)
)

// Text scrubs known secret shapes from s before it reaches a log line or an
// observability payload. Replacement markers contain no quotes or
// backslashes, so a marker never breaks the JSON string it lands in.
func Text(s string) (string, Applied) {
	applied := Applied{}
	out := s

	if reGitHubToken.MatchString(out) {
		out = reGitHubToken.ReplaceAllString(out, "[REDACTED:GITHUB_TOKEN]")
		applied.Names = append(applied.Names, "github_token")
	}
	if reAPIKey.MatchString(out) {
		out = reAPIKey.ReplaceAllString(out, "[REDACTED:API_KEY]")
		applied.Names = append(applied.Names, "api_key")
	}
	if reBearer.MatchString(out) {
		out = reBearer.ReplaceAllString(out, "[REDACTED:BEARER_TOKEN]")
		applied.Names = append(applied.Names, "bearer_token")
	}
	if rePassword.MatchString(out) {
		out = rePassword.ReplaceAllString(out, "$1=[REDACTED]")
		applied.Names = append(applied.Names, "password")
	}
	if rePrivateKey.MatchString(out) {
		out = rePrivateKey.ReplaceAllString(out, "[REDACTED:PRIVATE_KEY]")
		applied.Names = append(applied.Names, "private_key")
	}

	return out, applied
}
