package safety

import (
	"regexp"
	"strings"
)

const (
	// RedactionMarker replaces any credential-shaped substring.
	RedactionMarker = "[REDACTED]"

	// TruncationMarker is appended when output exceeds the byte budget.
	TruncationMarker = "\n... [output truncated]"

	// MaxToolOutputBytes bounds a single tool observation before it is
	// shown to the model.
	MaxToolOutputBytes = 10 * 1024

	// MaxHistoryMessages caps caller-supplied prior conversation.
	MaxHistoryMessages = 50

	// MaxHistoryMessageBytes bounds a single caller-supplied message.
	MaxHistoryMessageBytes = 8 * 1024
)

// credentialPatterns covers the token shapes we know how to recognize.
var credentialPatterns = []*regexp.Regexp{
	// API keys
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),

	// Bearer tokens
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

	// Bot tokens (numeric id + secret)
	regexp.MustCompile(`\d{8,10}:[a-zA-Z0-9_-]{30,}`),

	// AWS keys
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

	// Generic assignments
	regexp.MustCompile(`password["\s:=]+[^\s"]+`),
	regexp.MustCompile(`token["\s:=]+[a-zA-Z0-9._-]{20,}`),
	regexp.MustCompile(`secret["\s:=]+[^\s"]+`),
}

// RedactCredentials replaces recognizable credential patterns with the
// redaction marker.
func RedactCredentials(s string) string {
	result := s
	for _, pattern := range credentialPatterns {
		result = pattern.ReplaceAllString(result, RedactionMarker)
	}
	return result
}

// SanitizeToolOutput prepares a tool observation for the model: credentials
// are redacted first, then the result is truncated to the byte budget.
// Redaction runs before truncation so a token straddling the cut point
// cannot survive in partial form.
func SanitizeToolOutput(s string) string {
	return Truncate(RedactCredentials(s), MaxToolOutputBytes)
}

// Truncate bounds s to max bytes, appending the truncation marker when
// anything was cut.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + TruncationMarker
}

// ValidToolCall reports whether name exactly matches one of the advertised
// schema names. The model only ever sees the filtered schema list, so an
// exact-match check here blocks hallucinated and deny-listed tools alike.
func ValidToolCall(name string, advertised []string) bool {
	for _, n := range advertised {
		if n == name {
			return true
		}
	}
	return false
}

// MatchesPrefixList reports whether name matches any entry in list, either
// exactly or as a prefix match (entry "mail" matches "mail_send").
func MatchesPrefixList(name string, list []string) bool {
	for _, entry := range list {
		if entry == "" {
			continue
		}
		if name == entry || strings.HasPrefix(name, entry) {
			return true
		}
	}
	return false
}
