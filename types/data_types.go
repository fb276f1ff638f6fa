package types

type DataType string

const (
	Null    DataType = "null"
	Int64   DataType = "integer"
	Float64 DataType = "number"
	String  DataType = "string"
	Bool    DataType = "boolean"
	Object  DataType = "object"
	Array   DataType = "array"
)

// FormatDateTime marks string properties carrying timestamp values; the
// textual transport renders a "<null>" sentinel for them that the record
// pipeline repairs.
const FormatDateTime = "date-time"

type Record map[string]any
