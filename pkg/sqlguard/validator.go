// Package sqlguard applies the layered safety policy to generated SQL before
// any execution is permitted. All checks are deterministic and perform no I/O;
// the policy is a conservative pattern-based filter, not a SQL parser, and
// will reject some safe-but-unusual queries by design.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/popfly/queryweaver/pkg/models"
)

// Result is the outcome of validating one query against one target's
// constraint set. Reason is specific (the keyword, object or column at fault)
// so operators can tell policy rejections from schema rejections.
type Result struct {
	Valid    bool
	Reason   string
	Warnings []string

	// NormalizedSQL is the statement with trailing semicolon stripped; only
	// meaningful when Valid is true.
	NormalizedSQL string
}

// baseForbiddenKeywords are write/DDL class verbs rejected regardless of the
// target's own forbidden list. These are security rules, not metadata.
var baseForbiddenKeywords = []string{
	"DROP", "DELETE", "TRUNCATE", "ALTER", "CREATE", "INSERT", "UPDATE",
	"MERGE", "GRANT", "REVOKE", "CALL", "EXEC", "EXECUTE",
}

// readOnlyKeywords are the leading keywords a statement may begin with.
var readOnlyKeywords = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN"}

// sqlKeywords are tokens skipped by the column allow-list scan. Function
// names are included because the scan does not parse expressions; see the
// package note on the accepted gap around arguments inside SUM(x) etc.
var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "BY": true,
	"ORDER": true, "LIMIT": true, "OFFSET": true, "AND": true, "OR": true,
	"NOT": true, "IN": true, "LIKE": true, "ILIKE": true, "AS": true,
	"ASC": true, "DESC": true, "HAVING": true, "COUNT": true, "SUM": true,
	"AVG": true, "MAX": true, "MIN": true, "DISTINCT": true, "BETWEEN": true,
	"NULL": true, "IS": true, "ON": true, "JOIN": true, "INNER": true,
	"LEFT": true, "RIGHT": true, "OUTER": true, "CASE": true, "WHEN": true,
	"THEN": true, "ELSE": true, "END": true, "CAST": true, "EXTRACT": true,
	"DATE_TRUNC": true, "COALESCE": true, "NULLIF": true, "INTERVAL": true,
	"CURRENT_DATE": true, "CURRENT_TIMESTAMP": true, "NOW": true,
	"TRUE": true, "FALSE": true, "WITH": true, "UNION": true, "ALL": true,
}

var (
	objectRefPattern  = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([A-Za-z_][A-Za-z0-9_.]*)`)
	aliasPattern      = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+[A-Za-z_][A-Za-z0-9_.]*\s+(?:AS\s+)?([A-Za-z_][A-Za-z0-9_]*)`)
	dottedRefPattern  = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)+`)
	identifierPattern = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\b`)
)

// Validator checks generated query text against a target's QueryConstraint.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate applies the layered checks in order, short-circuiting on the first
// failure: normalization/multi-statement, forbidden keywords, read-only shape,
// injection heuristics, object allow-list, and (when the target opts in) the
// column allow-list.
func (v *Validator) Validate(sql string, constraint *models.QueryConstraint) Result {
	if constraint == nil {
		return Result{Valid: false, Reason: "no query constraints registered for target"}
	}

	normalized, err := Normalize(sql)
	if err != nil {
		return Result{Valid: false, Reason: err.Error()}
	}
	if normalized == "" {
		return Result{Valid: false, Reason: "empty query"}
	}

	if reason := checkForbiddenKeywords(normalized, constraint.ForbiddenKeywords); reason != "" {
		return Result{Valid: false, Reason: reason}
	}

	if !isReadOnly(normalized) {
		return Result{Valid: false, Reason: fmt.Sprintf(
			"only read-only statements are allowed (%s)", strings.Join(readOnlyKeywords, ", "))}
	}

	if reason := checkInjection(normalized); reason != "" {
		return Result{Valid: false, Reason: reason}
	}

	if reason := checkObjectAccess(normalized, constraint.TargetName); reason != "" {
		return Result{Valid: false, Reason: reason}
	}

	warnings, reason := checkColumnAccess(normalized, constraint)
	if reason != "" {
		return Result{Valid: false, Reason: reason}
	}

	return Result{Valid: true, NormalizedSQL: normalized, Warnings: warnings}
}

// checkForbiddenKeywords scans for write/DDL verbs and the target's own
// forbidden list, word-bounded and case-insensitive so that column names like
// CREATED_DATE do not match CREATE.
func checkForbiddenKeywords(sql string, extra []string) string {
	upper := strings.ToUpper(sql)

	keywords := make([]string, 0, len(baseForbiddenKeywords)+len(extra))
	keywords = append(keywords, baseForbiddenKeywords...)
	for _, k := range extra {
		keywords = append(keywords, strings.ToUpper(strings.TrimSpace(k)))
	}

	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(keyword) + `\b`)
		if pattern.MatchString(upper) {
			return fmt.Sprintf("forbidden keyword '%s' detected in query", keyword)
		}
	}
	return ""
}

var (
	commentPattern = regexp.MustCompile(`--|/\*|#`)
	// tautologyPattern matches OR-joined always-true comparisons like
	// OR '1'='1' or OR 1=1. Go's regexp engine has no backreferences, so
	// the pattern captures each side's quotes and value and isTautology
	// checks the equality the backreferences would have enforced.
	tautologyPattern = regexp.MustCompile(`(?i)\bOR\s+(['"]?)([A-Za-z0-9_]+)(['"]?)\s*=\s*(['"]?)([A-Za-z0-9_]+)(['"]?)`)
)

// checkInjection applies the injection heuristics. Comment sequences and
// tautologies are structural checks on the statement; libinjection runs on
// the string literal contents, where user-controlled values end up.
func checkInjection(sql string) string {
	if commentPattern.MatchString(stripStringLiterals(sql)) {
		return "sql comment sequences are not allowed"
	}
	if isTautology(sql) {
		return "sql injection pattern detected (tautology)"
	}
	for _, literal := range extractStringLiterals(sql) {
		if isSQLi, fingerprint := libinjection.IsSQLi(literal); isSQLi {
			return fmt.Sprintf("sql injection pattern detected in literal (fingerprint %s)", fingerprint)
		}
	}
	return ""
}

// isTautology reports whether sql contains an OR-joined comparison whose two
// sides are the same quote-consistent value (OR '1'='1', OR 1=1).
func isTautology(sql string) bool {
	for _, m := range tautologyPattern.FindAllStringSubmatch(sql, -1) {
		if m[1] == m[3] && m[4] == m[6] && strings.EqualFold(m[2], m[5]) {
			return true
		}
	}
	return false
}

func isReadOnly(sql string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	for _, keyword := range readOnlyKeywords {
		if strings.HasPrefix(upper, keyword) {
			return true
		}
	}
	return false
}

// checkObjectAccess extracts object names from FROM and JOIN positions and
// requires each to reference the constraint's target. Cross-target queries
// are rejected; every query validates against exactly one target's
// constraints. A reference matches when its dotted segments equal the tail of
// the stored target name, so a reference cannot smuggle in a qualification
// the stored name does not carry (a bare stored target accepts only the bare
// name).
func checkObjectAccess(sql string, targetName string) string {
	clean := stripStringLiterals(sql)
	targetSegments := strings.Split(strings.ToUpper(targetName), ".")

	for _, match := range objectRefPattern.FindAllStringSubmatch(clean, -1) {
		objectSegments := strings.Split(strings.ToUpper(match[1]), ".")
		if isTrailingSegments(objectSegments, targetSegments) {
			continue
		}
		return fmt.Sprintf("access to object '%s' is not allowed", match[1])
	}
	return ""
}

// isTrailingSegments reports whether object equals the last len(object)
// segments of target.
func isTrailingSegments(object, target []string) bool {
	if len(object) == 0 || len(object) > len(target) {
		return false
	}
	offset := len(target) - len(object)
	for i, seg := range object {
		if seg != target[offset+i] {
			return false
		}
	}
	return true
}

// checkColumnAccess checks identifier references against the allowed column
// list. Dotted references count only their final segment as a column, so a
// qualifier or a table alias can never launder a disallowed name (SELECT
// x.ssn names SSN no matter what x is). It does not parse expressions, so
// identifiers inside function calls are seen but arguments' positions are not
// understood; this is the documented conservative gap. Unknown identifiers
// reject when the target sets enforce_columns, otherwise they surface as
// warnings.
func checkColumnAccess(sql string, constraint *models.QueryConstraint) ([]string, string) {
	if len(constraint.AllowedColumns) == 0 {
		return nil, ""
	}

	allowed := make(map[string]bool, len(constraint.AllowedColumns))
	for _, col := range constraint.AllowedColumns {
		allowed[strings.ToUpper(col)] = true
	}

	clean := strings.ToUpper(stripStringLiterals(sql))
	targetSegments := strings.Split(strings.ToUpper(constraint.TargetName), ".")
	targetLast := targetSegments[len(targetSegments)-1]
	targetParts := make(map[string]bool, len(targetSegments))
	for _, seg := range targetSegments {
		targetParts[seg] = true
	}
	aliases := collectAliases(clean)

	var warnings []string
	seen := map[string]bool{}
	flag := func(token string) string {
		if seen[token] {
			return ""
		}
		seen[token] = true
		if constraint.EnforceColumns {
			return fmt.Sprintf("column '%s' is not in the allowed column list for %s", token, constraint.TargetName)
		}
		warnings = append(warnings, fmt.Sprintf("potential unauthorized column reference: %s", token))
		return ""
	}

	// Dotted references first: the final segment is the column (or the target
	// itself in FROM/JOIN position), everything before it is qualification.
	for _, ref := range dottedRefPattern.FindAllString(clean, -1) {
		segments := strings.Split(ref, ".")
		column := segments[len(segments)-1]
		if column == targetLast || allowed[column] {
			continue
		}
		if reason := flag(column); reason != "" {
			return nil, reason
		}
	}

	// Bare identifiers, with dotted references blanked out so their qualifier
	// segments are not re-scanned as columns.
	bare := dottedRefPattern.ReplaceAllString(clean, " ")
	for _, token := range identifierPattern.FindAllString(bare, -1) {
		if sqlKeywords[token] || allowed[token] || targetParts[token] || aliases[token] {
			continue
		}
		if reason := flag(token); reason != "" {
			return nil, reason
		}
	}

	return warnings, ""
}

// collectAliases returns alias names declared after FROM/JOIN object
// references. A keyword following the object (WHERE, LIMIT) is not an alias.
func collectAliases(clean string) map[string]bool {
	aliases := map[string]bool{}
	for _, match := range aliasPattern.FindAllStringSubmatch(clean, -1) {
		if !sqlKeywords[match[1]] {
			aliases[match[1]] = true
		}
	}
	return aliases
}
