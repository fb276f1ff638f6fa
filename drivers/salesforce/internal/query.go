package driver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/datamorph-io/forcetap/types"
	"github.com/datamorph-io/forcetap/utils/typeutils"
)

// UnknownOperatorError reports a filter operator outside the operator table.
type UnknownOperatorError struct {
	Op string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown filter operator: %s", e.Op)
}

var operatorTable = map[string]string{
	"less_than":           "<",
	"less_than_equals":    "<=",
	"equals":              "=",
	"not_equals":          "!=",
	"greater_than_equals": ">=",
	"greater_than":        ">",
	"is_null":             "= null",
	"is_not_null":         "!= null",
	"starts_with":         "LIKE",
	"ends_with":           "LIKE",
	"contains":            "LIKE",
	"not_contains":        "NOT LIKE",
}

// buildQuery assembles the extraction query. Predicate order is fixed:
// soft-delete exclusion, compiled filter, replication key lower bound,
// optional upper bound. ORDER BY only applies when requested and a
// replication key exists; batched extraction cannot rely on server-side
// ordering.
func buildQuery(stream types.StreamInterface, fields []string, start time.Time, end *time.Time, filter *types.FilterNode, orderBy bool) (string, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(fields, ","), stream.Name())
	replicationKey := stream.ReplicationKey()

	whereClauses := []string{}

	selected := map[string]bool{}
	for _, field := range fields {
		selected[field] = true
	}
	if selected["IsDeleted"] {
		whereClauses = append(whereClauses, "IsDeleted = false")
	}

	if filter != nil {
		predicate, err := compileFilter(filter, stream.SourceColumnTypes())
		if err != nil {
			return "", err
		}
		if predicate != "" {
			whereClauses = append(whereClauses, predicate)
		}
	}

	if replicationKey != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("%s >= %s", replicationKey, typeutils.FormatTimestamp(start)))
		if end != nil {
			whereClauses = append(whereClauses, fmt.Sprintf("%s < %s", replicationKey, typeutils.FormatTimestamp(*end)))
		}
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	if replicationKey != "" && orderBy {
		query += fmt.Sprintf(" ORDER BY %s ASC", replicationKey)
	}

	return query, nil
}

// compileFilter recursively lowers the filter tree into a predicate string.
// An empty group compiles to nothing and the parent drops it.
func compileFilter(node *types.FilterNode, sourceColumnTypes map[string]string) (string, error) {
	if node.Statement != nil {
		return compileStatement(node.Statement, sourceColumnTypes)
	}

	compiled := []string{}
	for _, child := range node.Group.Filters {
		childPredicate, err := compileFilter(child, sourceColumnTypes)
		if err != nil {
			return "", err
		}
		if childPredicate != "" {
			compiled = append(compiled, childPredicate)
		}
	}

	if len(compiled) == 0 {
		return "", nil
	}
	return fmt.Sprintf("(%s)", strings.Join(compiled, fmt.Sprintf(" %s ", node.Group.Op))), nil
}

func compileStatement(statement *types.FilterStatement, sourceColumnTypes map[string]string) (string, error) {
	lhs := operandValue(&statement.LHS)
	op, found := operatorTable[statement.Op]
	if !found {
		return "", &UnknownOperatorError{Op: statement.Op}
	}

	if statement.RHS == nil {
		// unary operators carry the null comparison in the operator itself
		return fmt.Sprintf("(%s %s)", lhs, op), nil
	}

	rhs := operandValue(statement.RHS)

	switch statement.RHS.LitType {
	case types.LitTypeDate:
		// only datetime columns accept a time component; the service stores
		// timestamps in UTC and wants a zulu suffix
		if sourceColumnTypes[lhs] == "datetime" {
			parsed, err := typeutils.ParseTimestamp(rhs)
			if err != nil {
				return "", fmt.Errorf("invalid date literal [%s]: %s", rhs, err)
			}
			rhs = parsed.UTC().Format("2006-01-02T15:04:05Z")
		}
		return fmt.Sprintf("(%s %s %s)", lhs, op, rhs), nil
	case types.LitTypeNumber:
		if columnType := sourceColumnTypes[lhs]; columnType == "int" || columnType == "long" {
			// float first, the literal may look decimal
			parsed, err := strconv.ParseFloat(rhs, 64)
			if err != nil {
				return "", fmt.Errorf("invalid numeric literal [%s]: %s", rhs, err)
			}
			rhs = strconv.FormatInt(int64(parsed), 10)
		}
		return fmt.Sprintf("(%s %s %s)", lhs, op, rhs), nil
	case types.LitTypeBoolean:
		return fmt.Sprintf("(%s %s %s)", lhs, op, rhs), nil
	}

	switch statement.Op {
	case "starts_with":
		return fmt.Sprintf("(%s %s '%s%%')", lhs, op, rhs), nil
	case "ends_with":
		return fmt.Sprintf("(%s %s '%%%s')", lhs, op, rhs), nil
	case "contains", "not_contains":
		return fmt.Sprintf("(%s %s '%%%s%%')", lhs, op, rhs), nil
	}

	return fmt.Sprintf("(%s %s '%s')", lhs, op, rhs), nil
}

func operandValue(operand *types.Operand) string {
	if operand.IsColumn() {
		return operand.Name
	}
	return operand.Value
}
