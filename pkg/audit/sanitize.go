package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// maxArgSize caps how much of any single string argument is stored.
const maxArgSize = 10240 // 10KB

// sqlStringLiteralPattern matches SQL string literals including the doubled
// quote escape ('').
var sqlStringLiteralPattern = regexp.MustCompile(`'(?:[^']*(?:'')?)*[^']*'`)

// sensitiveKeyFragments flags argument keys whose values must never be stored
// verbatim. Matched case-insensitively as substrings.
var sensitiveKeyFragments = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"credential", "auth", "ssn", "credit_card",
}

// SanitizeArguments prepares tool-call arguments for the activity log:
// sensitive keys are hashed, SQL-like values have string literals redacted,
// and oversized values are truncated. Structure is preserved so logged calls
// remain debuggable.
func SanitizeArguments(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	sanitized := make(map[string]any, len(args))
	for k, v := range args {
		sanitized[k] = sanitizeValue(k, v)
	}
	return sanitized
}

func sanitizeValue(key string, value any) any {
	if isSensitiveKey(key) {
		return hashValue(value)
	}

	switch val := value.(type) {
	case string:
		return sanitizeString(key, val)
	case map[string]any:
		return SanitizeArguments(val)
	default:
		return value
	}
}

func sanitizeString(key, val string) string {
	if len(val) > maxArgSize {
		val = val[:maxArgSize] + "...[truncated]"
	}
	if isSQLKey(key) {
		val = RedactSQLLiterals(val)
	}
	return val
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func isSQLKey(key string) bool {
	lower := strings.ToLower(key)
	return lower == "sql" || lower == "query" ||
		strings.HasSuffix(lower, "_sql") || strings.HasSuffix(lower, "_query")
}

// RedactSQLLiterals replaces string literal values with '***', keeping the
// statement's shape visible while hiding user-provided values.
func RedactSQLLiterals(sql string) string {
	return sqlStringLiteralPattern.ReplaceAllString(sql, "'***'")
}

// hashValue returns a short SHA-256 prefix so sensitive values can be
// correlated across entries without being stored.
func hashValue(value any) string {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	default:
		str = fmt.Sprintf("%v", v)
	}
	hash := sha256.Sum256([]byte(str))
	return "sha256:" + hex.EncodeToString(hash[:8])
}
