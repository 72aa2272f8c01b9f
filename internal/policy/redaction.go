package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)

	queryKeyPattern  = regexp.MustCompile(`(?i)([?&](?:key|api_key|apikey|access_token)=)[^&\s"']+`)
	googleKeyPattern = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`)
	bearerPattern    = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-~+/]+=*`)
)

// RedactSecrets masks credentials that can leak through backend URLs and
// transport errors, e.g. the Gemini ?key= query parameter.
func RedactSecrets(input string) string {
	out := queryKeyPattern.ReplaceAllString(input, "${1}[REDACTED]")
	out = googleKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	return bearerPattern.ReplaceAllString(out, "${1}[REDACTED]")
}

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Cards first, or the phone pattern swallows them.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// ForLog prepares untrusted text (backend frames, error strings) for log output.
func ForLog(input string) string {
	out, _ := RedactPII(RedactSecrets(input))
	return out
}
