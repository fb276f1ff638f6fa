package types

import (
	"fmt"

	"github.com/goccy/go-json"
)

const (
	FilterTypeStatement = "statement"
	FilterTypeGroup     = "group"

	OperandColumn  = "column"
	OperandLiteral = "literal"

	LitTypeString  = "string"
	LitTypeNumber  = "number"
	LitTypeBoolean = "boolean"
	LitTypeDate    = "date"
)

// FilterNode is one node of the boolean filter tree supplied in config.
// Exactly one of Statement or Group is set; malformed nodes are rejected
// while the config is parsed, never mid extraction.
type FilterNode struct {
	Statement *FilterStatement
	Group     *FilterGroup
}

// FilterStatement is a leaf comparison. RHS is nil for unary operators
// (is_null, is_not_null).
type FilterStatement struct {
	LHS Operand  `json:"lhs"`
	Op  string   `json:"op"`
	RHS *Operand `json:"rhs,omitempty"`
}

// FilterGroup joins child nodes with a boolean operator.
type FilterGroup struct {
	Op      string        `json:"op"`
	Filters []*FilterNode `json:"filters"`
}

// Operand is either a column reference (Name set) or a literal
// (Value and LitType set).
type Operand struct {
	OperandType string `json:"operandType"`
	Name        string `json:"name,omitempty"`
	Value       string `json:"value,omitempty"`
	LitType     string `json:"litType,omitempty"`
}

func (o *Operand) IsColumn() bool {
	return o.OperandType == OperandColumn
}

func (n *FilterNode) UnmarshalJSON(data []byte) error {
	header := struct {
		FilterType string `json:"filterType"`
	}{}
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}

	switch header.FilterType {
	case FilterTypeStatement:
		statement := &FilterStatement{}
		if err := json.Unmarshal(data, statement); err != nil {
			return err
		}
		if !statement.LHS.IsColumn() {
			return fmt.Errorf("filter statement lhs must be a column reference, got operand type [%s]", statement.LHS.OperandType)
		}
		n.Statement = statement
	case FilterTypeGroup:
		group := &FilterGroup{}
		if err := json.Unmarshal(data, group); err != nil {
			return err
		}
		if group.Op != "AND" && group.Op != "OR" {
			return fmt.Errorf("filter group operator must be AND or OR, got [%s]", group.Op)
		}
		n.Group = group
	default:
		return fmt.Errorf("unknown filter node type [%s]", header.FilterType)
	}
	return nil
}

func (n *FilterNode) MarshalJSON() ([]byte, error) {
	switch {
	case n.Statement != nil:
		return json.Marshal(struct {
			FilterType string `json:"filterType"`
			*FilterStatement
		}{FilterTypeStatement, n.Statement})
	case n.Group != nil:
		return json.Marshal(struct {
			FilterType string `json:"filterType"`
			*FilterGroup
		}{FilterTypeGroup, n.Group})
	}
	return nil, fmt.Errorf("filter node carries neither statement nor group")
}
