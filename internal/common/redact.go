package common

import "regexp"

// Error messages and log lines must never carry credentials. These patterns
// cover the two places a token can leak from: an Authorization header echoed
// back by a proxy, and a token-endpoint JSON body quoted into an error.
var (
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)
	tokenPattern  = regexp.MustCompile(`"(access_token|refresh_token|client_secret)"\s*:\s*"[^"]*"`)
	secretPattern = regexp.MustCompile(`(?i)(client_secret|password)=[^&\s"]+`)
)

// Redact strips bearer tokens and credential values from a message so it is
// safe to log or return to the caller.
func Redact(s string) string {
	s = bearerPattern.ReplaceAllString(s, "Bearer [REDACTED]")
	s = tokenPattern.ReplaceAllString(s, `"$1":"[REDACTED]"`)
	s = secretPattern.ReplaceAllString(s, "$1=[REDACTED]")
	return s
}
