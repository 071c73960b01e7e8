package graph

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// DataType names the declared type of a field. It drives casting of
// discovered values and truncation of masked values.
type DataType string

// Supported data types.
const (
	TypeNone     DataType = ""
	TypeString   DataType = "string"
	TypeInteger  DataType = "integer"
	TypeFloat    DataType = "float"
	TypeBoolean  DataType = "boolean"
	TypeObjectID DataType = "object_id"
	TypeNoOp     DataType = "no_op"
)

var dataTypes = []DataType{TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeObjectID, TypeNoOp}

var fold = cases.Fold()

// ParseDataType returns the data type with the given name. Names are matched
// case-insensitively; the empty name is TypeNone.
func ParseDataType(name string) (DataType, error) {
	name = strings.TrimSpace(fold.String(name))
	if name == "" {
		return TypeNone, nil
	}
	for _, t := range dataTypes {
		if string(t) == name {
			return t, nil
		}
	}
	return TypeNone, fmt.Errorf("graph: unknown data type %q", name)
}

// String returns the name of the data type.
func (t DataType) String() string { return string(t) }

// Cast converts v to the data type. It returns false if the value cannot be
// represented, in which case the value should be dropped. QueryTokens pass
// through unchanged, as does every value for TypeNone and TypeNoOp.
func (t DataType) Cast(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.(QueryToken); ok {
		return v, true
	}
	switch t {
	case TypeString:
		return castString(v)
	case TypeInteger:
		return castInteger(v)
	case TypeFloat:
		return castFloat(v)
	case TypeBoolean:
		return castBoolean(v)
	case TypeObjectID:
		return castObjectID(v)
	default:
		return v, true
	}
}

// Truncate shortens a string value to at most length characters. Values of
// other types are returned unchanged. A negative length is treated as zero.
func (t DataType) Truncate(length int, v any) any {
	if t != TypeString {
		return v
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	if length < 0 {
		length = 0
	}
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length])
}

func castString(v any) (any, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	case map[string]any, []any:
		return nil, false
	default:
		return fmt.Sprint(v), true
	}
}

func castInteger(v any) (any, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return nil, false
		}
		return int64(v), true
	case float32:
		return castInteger(float64(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return nil, false
		}
		return int64(v), true
	case bool:
		if v {
			return int64(1), true
		}
		return int64(0), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, false
		}
		return i, true
	default:
		return nil, false
	}
}

func castFloat(v any) (any, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	}
	if i, ok := castInteger(v); ok {
		return float64(i.(int64)), true
	}
	return nil, false
}

func castBoolean(v any) (any, bool) {
	switch v := v.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, false
		}
		return b, true
	}
	if i, ok := castInteger(v); ok {
		return i.(int64) != 0, true
	}
	return nil, false
}

// castObjectID accepts the 24 character hex form of a document id. The
// document connector converts it to its native identifier type.
func castObjectID(v any) (any, bool) {
	s, ok := v.(string)
	if !ok || len(s) != 24 {
		return nil, false
	}
	if _, err := hex.DecodeString(s); err != nil {
		return nil, false
	}
	return s, true
}
