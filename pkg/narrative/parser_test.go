package narrative

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popfly/queryweaver/pkg/apperrors"
)

const sampleNarrative = `# ANALYTICS.PUBLIC.ORDERS_SUMMARY (domain: sales, finance)

Purpose: One row per order with customer and fulfillment detail.

## Business Rules
- Fiscal year starts in February.
- Exclude orders with STATUS = 'TEST'.

## Key Columns
### TOTAL_AMOUNT
- Meaning: Order value in USD including tax
- Synonyms: revenue, sales, order value
- Examples: 199.99, 1050.00
- Relationships: Sums to daily revenue in DAILY_ROLLUP

### ORDER_DATE
- Meaning: Date the order was placed
- Synonyms: purchase date

## Typical Questions
- What was total revenue last month?
- How many orders shipped late?

## Sensitive Data
- CUSTOMER_EMAIL
- CUSTOMER_PHONE

## Defaults
- Date ranges default to the last 30 days.

## Prompt Override
override: true
Answer about [[VIEW_NAME]].
Question: [[USER_QUERY]]
`

func TestParse_FullDocument(t *testing.T) {
	n, err := Parse(sampleNarrative)
	require.NoError(t, err)

	assert.Equal(t, "ANALYTICS.PUBLIC.ORDERS_SUMMARY", n.TargetName)
	assert.Equal(t, []string{"sales", "finance"}, n.Domains)
	assert.Equal(t, "One row per order with customer and fulfillment detail.", n.Purpose)
	assert.Equal(t, []string{
		"Fiscal year starts in February.",
		"Exclude orders with STATUS = 'TEST'.",
	}, n.BusinessRules)

	require.Len(t, n.Columns, 2)
	assert.Equal(t, "TOTAL_AMOUNT", n.Columns[0].Name)
	assert.Equal(t, "Order value in USD including tax", n.Columns[0].Meaning)
	assert.Equal(t, []string{"revenue", "sales", "order value"}, n.Columns[0].Synonyms)
	assert.Equal(t, "199.99, 1050.00", n.Columns[0].Examples)
	assert.Equal(t, "Sums to daily revenue in DAILY_ROLLUP", n.Columns[0].Relationships)
	assert.Equal(t, "ORDER_DATE", n.Columns[1].Name)
	assert.Empty(t, n.Columns[1].Examples)

	assert.Len(t, n.TypicalQuestions, 2)
	assert.Equal(t, []string{"CUSTOMER_EMAIL", "CUSTOMER_PHONE"}, n.SensitiveColumns)
	assert.Equal(t, []string{"Date ranges default to the last 30 days."}, n.Defaults)

	assert.True(t, n.OverrideRequested)
	assert.Equal(t, "Answer about [[VIEW_NAME]].\nQuestion: [[USER_QUERY]]", n.PromptOverride)
}

func TestParse_MalformedHeader(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"missing domain", "# ORDERS_SUMMARY\n\nPurpose: x"},
		{"no header", "Purpose: x\n\n## Business Rules\n- y"},
		{"empty domain list", "# ORDERS_SUMMARY (domain: )"},
		{"empty document", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrMalformedNarrative)
		})
	}
}

func TestParse_MinimalDocument(t *testing.T) {
	n, err := Parse("# ORDERS (domain: sales)")
	require.NoError(t, err)

	assert.Equal(t, "ORDERS", n.TargetName)
	assert.Empty(t, n.Columns)
	assert.Empty(t, n.PromptOverride)
	assert.False(t, n.OverrideRequested)
}

func TestParse_OverrideWithoutMarker(t *testing.T) {
	n, err := Parse("# ORDERS (domain: sales)\n\n## Prompt Override\nCustom [[USER_QUERY]]")
	require.NoError(t, err)

	assert.False(t, n.OverrideRequested)
	assert.Equal(t, "Custom [[USER_QUERY]]", n.PromptOverride)
}

func TestParse_UnknownSectionsIgnored(t *testing.T) {
	n, err := Parse("# ORDERS (domain: sales)\n\n## Notes\n- something\n\n## Typical Questions\n- q1")
	require.NoError(t, err)

	assert.Equal(t, []string{"q1"}, n.TypicalQuestions)
}
