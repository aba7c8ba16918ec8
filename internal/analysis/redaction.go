package analysis

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
)

const maxLoggedCondition = 120

// RedactPII masks emails and phone numbers in free text the user typed, and clips it so a
// log line stays short.
func RedactPII(input string) string {
	out := emailPattern.ReplaceAllString(input, "[REDACTED_EMAIL]")
	out = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	if r := []rune(out); len(r) > maxLoggedCondition {
		out = string(r[:maxLoggedCondition]) + "…"
	}
	return out
}
