package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx in keyword/value connection strings and driver errors
	passwordPattern = regexp.MustCompile(`(?i)\b(password|pwd|pass)=[^;&\s]+`)

	// user:pass@ in URLs; the password may itself contain '@' or '/'
	urlPasswordPattern = regexp.MustCompile(`(://[^:/@\s]+):[^\s"']*@`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeConnectionString hides the password of a connection URL or
// keyword/value string while keeping user, host and database readable.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := urlPasswordPattern.ReplaceAllString(connStr, "${1}:"+RedactedText+"@")
	return passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Use this before logging any error from database operations.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeConnectionString(err.Error())
}

// SanitizeQuery flattens a SQL statement onto one line and truncates it for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	sanitized := whitespacePattern.ReplaceAllString(strings.TrimSpace(query), " ")
	sanitized = TruncateString(sanitized, MaxQueryLogLength)
	return passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
