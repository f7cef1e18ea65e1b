package sandbox

import (
	"regexp"
	"strings"
)

// Secret-shaped patterns. A variable is dropped from the child environment
// when its name matches secretNames or its value matches secretValues.
var (
	secretNames = regexp.MustCompile(`(?i)(API[_-]?KEY|SECRET|TOKEN|PASSWORD|PASSWD|CREDENTIAL|PRIVATE[_-]?KEY|AUTH)`)

	secretValues = []*regexp.Regexp{
		regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),   // PEM private key material
		regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`),              // API-key-shaped
		regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{16,}`),         // VCS token-shaped
		regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),                 // cloud access key id
		regexp.MustCompile(`(?i)\bpassword\s*=\s*\S+`),             // password assignment
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]{20,}=*`), // bearer token
	}
)

// ScrubEnv returns a copy of env with secret-shaped entries removed. Each
// entry is expected in "NAME=value" form; malformed entries are dropped.
func ScrubEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if secretNames.MatchString(name) {
			continue
		}
		if matchesSecretValue(value) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func matchesSecretValue(value string) bool {
	for _, re := range secretValues {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}
