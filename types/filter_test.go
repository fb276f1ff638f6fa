package types

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterNodeUnmarshal(t *testing.T) {
	raw := `{
		"filterType": "group",
		"op": "OR",
		"filters": [
			{
				"filterType": "statement",
				"lhs": {"operandType": "column", "name": "Name"},
				"op": "starts_with",
				"rhs": {"operandType": "literal", "value": "Acme", "litType": "string"}
			},
			{
				"filterType": "statement",
				"lhs": {"operandType": "column", "name": "Phone"},
				"op": "is_null"
			}
		]
	}`

	node := &FilterNode{}
	require.NoError(t, json.Unmarshal([]byte(raw), node))

	require.NotNil(t, node.Group)
	assert.Equal(t, "OR", node.Group.Op)
	require.Len(t, node.Group.Filters, 2)

	first := node.Group.Filters[0].Statement
	require.NotNil(t, first)
	assert.Equal(t, "Name", first.LHS.Name)
	assert.Equal(t, "starts_with", first.Op)
	require.NotNil(t, first.RHS)
	assert.Equal(t, LitTypeString, first.RHS.LitType)

	second := node.Group.Filters[1].Statement
	require.NotNil(t, second)
	assert.Nil(t, second.RHS)
}

func TestFilterNodeRejectsUnknownShape(t *testing.T) {
	cases := map[string]string{
		"unknown node type":  `{"filterType": "regex", "pattern": ".*"}`,
		"missing node type":  `{"op": "AND", "filters": []}`,
		"bad group operator": `{"filterType": "group", "op": "XOR", "filters": []}`,
		"literal lhs":        `{"filterType": "statement", "lhs": {"operandType": "literal", "value": "x"}, "op": "equals"}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			node := &FilterNode{}
			assert.Error(t, json.Unmarshal([]byte(raw), node))
		})
	}
}

func TestFilterNodeMarshalRoundTrip(t *testing.T) {
	raw := `{
		"filterType": "statement",
		"lhs": {"operandType": "column", "name": "AnnualRevenue"},
		"op": "greater_than",
		"rhs": {"operandType": "literal", "value": "100000.5", "litType": "number"}
	}`

	node := &FilterNode{}
	require.NoError(t, json.Unmarshal([]byte(raw), node))

	out, err := json.Marshal(node)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}
