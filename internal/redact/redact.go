// Package redact scrubs API credentials from URLs, paths and error messages
// before they reach logs or error responses.
package redact

import "regexp"

// patterns match Gemini's ?key=, generic token query parameters and Telegram
// bot tokens embedded in the path.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([?&](?:key|api_?key|access_token|token)=)[^&\s"]+`),
	regexp.MustCompile(`(/bot)[^/\s"?]+`),
}

// String replaces every credential in s with [REDACTED].
func String(s string) string {
	for _, p := range patterns {
		s = p.ReplaceAllString(s, "${1}[REDACTED]")
	}
	return s
}

// Error is String applied to err's message.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
