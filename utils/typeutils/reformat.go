package typeutils

import (
	"strconv"
	"strings"

	"github.com/datamorph-io/forcetap/types"
)

// transport-only metadata keys stripped from every record
var blacklistedFields = map[string]struct{}{
	"attributes": {},
}

// ReformatRecord repairs type coercion artifacts the textual transport
// introduces. Coercion is best-effort: a value that resists repair is left
// untouched, never dropped.
func ReformatRecord(record types.Record, schema *types.TypeSchema) types.Record {
	for field := range blacklistedFields {
		delete(record, field)
	}

	for key, value := range record {
		property, err := schema.GetProperty(key)
		if err != nil {
			continue
		}
		record[key] = reformatValue(value, property)
	}

	return record
}

func reformatValue(value any, property *types.Property) any {
	if str, ok := value.(string); ok {
		// integer zero comes back rendered as "0.0"
		if str == "0.0" && property.HasType(types.Int64) {
			value = "0"
		}
		if str == "" && property.Nullable() {
			return nil
		}
	}

	switch {
	case property.Untyped():
		return reformatAny(value)
	case property.HasType(types.Float64):
		if str, ok := value.(string); ok && str == "-" {
			return ""
		}
	case property.Format == types.FormatDateTime:
		if str, ok := value.(string); ok && strings.EqualFold(str, "<null>") {
			return ""
		}
	}

	return value
}

// reformatAny coerces a value whose source type carries no schema mapping:
// int first, then float, then boolean literal, then empty string to null,
// else left as string.
func reformatAny(value any) any {
	str, ok := value.(string)
	if !ok {
		return value
	}

	if parsed, err := strconv.ParseInt(str, 10, 64); err == nil {
		return parsed
	}
	if parsed, err := strconv.ParseFloat(str, 64); err == nil {
		return parsed
	}
	if str == "true" || str == "false" {
		return str == "true"
	}
	if str == "" {
		return nil
	}

	return str
}
