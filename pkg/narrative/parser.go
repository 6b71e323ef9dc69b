// Package narrative turns operator-authored narrative documents into stored
// metadata. A narrative is a small markdown dialect: a header naming the
// target and its domains, a purpose line, and a fixed set of sections.
package narrative

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"github.com/popfly/queryweaver/pkg/apperrors"
)

// Narrative is the parsed form of one document.
type Narrative struct {
	TargetName       string
	Domains          []string
	Purpose          string
	BusinessRules    []string
	Columns          []ColumnNote
	TypicalQuestions []string
	SensitiveColumns []string
	Defaults         []string

	// PromptOverride is the raw template body of a Prompt Override section,
	// empty when absent. OverrideRequested is true when the section carries
	// an explicit "override: true" marker.
	PromptOverride    string
	OverrideRequested bool
}

// ColumnNote is one column's entry in the Key Columns section.
type ColumnNote struct {
	Name          string
	Meaning       string
	Synonyms      []string
	Examples      string
	Relationships string
}

// headerPattern matches the target header, e.g.
//
//	# ANALYTICS.PUBLIC.ORDERS_SUMMARY (domain: sales, finance)
var headerPattern = regexp.MustCompile(`^#\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\(domain:\s*([^)]+)\)\s*$`)

var columnHeaderPattern = regexp.MustCompile(`^###\s+(\S+)\s*$`)

const (
	sectionBusinessRules  = "business rules"
	sectionKeyColumns     = "key columns"
	sectionQuestions      = "typical questions"
	sectionSensitive      = "sensitive data"
	sectionDefaults       = "defaults"
	sectionPromptOverride = "prompt override"
)

// Parse reads a narrative document. Header problems are hard errors; unknown
// sections and stray lines are skipped so documents can carry prose the
// parser does not model.
func Parse(text string) (*Narrative, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	n := &Narrative{}
	headerSeen := false
	section := ""
	var currentColumn *ColumnNote
	var overrideLines []string

	flushColumn := func() {
		if currentColumn != nil && currentColumn.Name != "" {
			n.Columns = append(n.Columns, *currentColumn)
		}
		currentColumn = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if !headerSeen {
			if trimmed == "" {
				continue
			}
			m := headerPattern.FindStringSubmatch(trimmed)
			if m == nil {
				return nil, fmt.Errorf("%w: first line must be '# TARGET (domain: ...)', got %q",
					apperrors.ErrMalformedNarrative, trimmed)
			}
			n.TargetName = m[1]
			n.Domains = splitList(m[2])
			if len(n.Domains) == 0 {
				return nil, fmt.Errorf("%w: header names no domain", apperrors.ErrMalformedNarrative)
			}
			headerSeen = true
			continue
		}

		if strings.HasPrefix(trimmed, "## ") {
			flushColumn()
			section = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "## ")))
			continue
		}

		switch section {
		case "":
			if strings.HasPrefix(trimmed, "Purpose:") {
				n.Purpose = strings.TrimSpace(strings.TrimPrefix(trimmed, "Purpose:"))
			}
		case sectionBusinessRules:
			if rule := bulletText(trimmed); rule != "" {
				n.BusinessRules = append(n.BusinessRules, rule)
			}
		case sectionKeyColumns:
			if m := columnHeaderPattern.FindStringSubmatch(trimmed); m != nil {
				flushColumn()
				currentColumn = &ColumnNote{Name: m[1]}
				continue
			}
			if currentColumn == nil {
				continue
			}
			field, value := bulletField(trimmed)
			switch field {
			case "meaning":
				currentColumn.Meaning = value
			case "synonyms":
				currentColumn.Synonyms = splitList(value)
			case "examples":
				currentColumn.Examples = value
			case "relationships":
				currentColumn.Relationships = value
			}
		case sectionQuestions:
			if q := bulletText(trimmed); q != "" {
				n.TypicalQuestions = append(n.TypicalQuestions, q)
			}
		case sectionSensitive:
			if col := bulletText(trimmed); col != "" {
				n.SensitiveColumns = append(n.SensitiveColumns, col)
			}
		case sectionDefaults:
			if d := bulletText(trimmed); d != "" {
				n.Defaults = append(n.Defaults, d)
			}
		case sectionPromptOverride:
			if strings.EqualFold(trimmed, "override: true") {
				n.OverrideRequested = true
				continue
			}
			overrideLines = append(overrideLines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedNarrative, err)
	}

	flushColumn()

	if !headerSeen {
		return nil, fmt.Errorf("%w: document is empty", apperrors.ErrMalformedNarrative)
	}

	n.PromptOverride = strings.TrimSpace(strings.Join(overrideLines, "\n"))

	return n, nil
}

// bulletText strips a leading "- " bullet, returning "" for non-bullet lines.
func bulletText(line string) string {
	if !strings.HasPrefix(line, "- ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "- "))
}

// bulletField splits a "- Field: value" bullet into a lowercase field name
// and its value.
func bulletField(line string) (string, string) {
	text := bulletText(line)
	if text == "" {
		return "", ""
	}
	field, value, found := strings.Cut(text, ":")
	if !found {
		return "", ""
	}
	return strings.ToLower(strings.TrimSpace(field)), strings.TrimSpace(value)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
