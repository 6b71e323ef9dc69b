package sqlguard

import (
	"errors"
	"strings"
)

// ErrMultipleStatements indicates the query contains more than one SQL statement.
var ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

// Normalize strips a trailing semicolon and surrounding whitespace, then
// rejects any remaining semicolon outside string literals (which would mean a
// second statement).
func Normalize(sqlQuery string) (string, error) {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return "", nil
	}

	normalized := stripTrailingSemicolon(sqlQuery)

	if hasSemicolonOutsideStrings(normalized) {
		return "", ErrMultipleStatements
	}

	return normalized, nil
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals. Handles both backslash escape (\') and SQL
// standard doubled-quote escape ('').
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// A doubled quote ('') exits and immediately re-enters on the next
			// quote, which correctly keeps us inside the string.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}

// extractStringLiterals returns the contents of every single-quoted literal.
func extractStringLiterals(sqlQuery string) []string {
	var literals []string
	var current strings.Builder
	inString := false
	prevChar := rune(0)

	for _, char := range sqlQuery {
		if inString {
			if char == '\'' && prevChar != '\\' {
				inString = false
				literals = append(literals, current.String())
				current.Reset()
			} else {
				current.WriteRune(char)
			}
			prevChar = char
			continue
		}
		if char == '\'' {
			inString = true
		}
		prevChar = char
	}

	return literals
}

// stripStringLiterals replaces single-quoted string contents with a marker so
// identifier scans do not see literal values.
func stripStringLiterals(sqlQuery string) string {
	var b strings.Builder
	inString := false
	prevChar := rune(0)

	for _, char := range sqlQuery {
		if inString {
			if char == '\'' && prevChar != '\\' {
				inString = false
				b.WriteRune(char)
			}
			prevChar = char
			continue
		}
		if char == '\'' {
			inString = true
		}
		b.WriteRune(char)
		prevChar = char
	}

	return b.String()
}
