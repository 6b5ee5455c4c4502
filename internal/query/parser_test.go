package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_BareTokenIsTextSearch(t *testing.T) {
	node, err := Parse("acme")
	require.NoError(t, err)

	cond, ok := node.(*Condition)
	require.True(t, ok, "expected single condition, got %T", node)
	assert.Equal(t, "text", cond.Field)
	assert.Equal(t, "acme", cond.Value)
	assert.False(t, cond.Negated)
}

func TestParse_QuotedBareToken(t *testing.T) {
	node, err := Parse(`"sprint planning"`)
	require.NoError(t, err)

	cond := node.(*Condition)
	assert.Equal(t, "text", cond.Field)
	assert.Equal(t, "sprint planning", cond.Value)
}

func TestParse_FieldValue(t *testing.T) {
	node, err := Parse("domain:acme.com")
	require.NoError(t, err)

	cond := node.(*Condition)
	assert.Equal(t, "domain", cond.Field)
	assert.Equal(t, "acme.com", cond.Value)
}

func TestParse_QuotedValue(t *testing.T) {
	node, err := Parse(`title:"design review"`)
	require.NoError(t, err)

	cond := node.(*Condition)
	assert.Equal(t, "title", cond.Field)
	assert.Equal(t, "design review", cond.Value)
}

func TestParse_ImplicitAnd(t *testing.T) {
	node, err := Parse("domain:acme.com standup")
	require.NoError(t, err)

	and, ok := node.(*And)
	require.True(t, ok, "expected And, got %T", node)
	require.Len(t, and.Children, 2)
	assert.Equal(t, "domain", and.Children[0].(*Condition).Field)
	assert.Equal(t, "text", and.Children[1].(*Condition).Field)
}

func TestParse_Negation(t *testing.T) {
	node, err := Parse("-title:standup")
	require.NoError(t, err)

	cond := node.(*Condition)
	assert.Equal(t, "title", cond.Field)
	assert.True(t, cond.Negated)
}

func TestParse_OrAndParens(t *testing.T) {
	node, err := Parse("(domain:acme.com OR domain:acme.io) -recurring:yes")
	require.NoError(t, err)

	and, ok := node.(*And)
	require.True(t, ok, "expected And at top, got %T", node)
	require.Len(t, and.Children, 2)

	or, ok := and.Children[0].(*Or)
	require.True(t, ok, "expected Or on the left, got %T", and.Children[0])
	assert.Len(t, or.Children, 2)

	neg := and.Children[1].(*Condition)
	assert.True(t, neg.Negated)
	assert.Equal(t, "recurring", neg.Field)
}

func TestParse_OrIsCaseInsensitive(t *testing.T) {
	node, err := Parse("acme or beta")
	require.NoError(t, err)
	_, ok := node.(*Or)
	assert.True(t, ok, "lowercase 'or' should still be the operator, got %T", node)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"unknown field", "projectid:abc", "unknown field"},
		{"quoted field name", `"title":standup`, "unknown field"},
		{"unterminated quote", `title:"design`, "unterminated quote"},
		{"empty query", "", "empty expression"},
		{"empty parens", "()", "empty expression"},
		{"missing close paren", "(domain:acme.com", "expected )"},
		{"missing value", "title:", "expected value"},
		{"dangling negation", "-", "expected term"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.query)
			require.Error(t, err)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, perr.Message, tt.want)
		})
	}
}

func TestParse_FieldNameCaseInsensitive(t *testing.T) {
	node, err := Parse("Domain:acme.com")
	require.NoError(t, err)
	assert.Equal(t, "domain", node.(*Condition).Field)
}
