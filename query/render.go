package query

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/syssam/dsr/graph"
)

// substitute replaces the ":name" placeholders of a statement with the
// literal form of their values. Quoted text is copied as is, and tuples
// already enclosed in parentheses are not wrapped twice.
func substitute(query string, params map[string]any) string {
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			j := i + 1
			for j < len(query) && query[j] != ch {
				j++
			}
			if j < len(query) {
				j++
			}
			b.WriteString(query[i:j])
			i = j - 1
		case ch == ':' && i+1 < len(query) && isNameByte(query[i+1]):
			j := i + 1
			for j < len(query) && isNameByte(query[j]) {
				j++
			}
			v, ok := params[query[i+1:j]]
			if !ok {
				b.WriteString(query[i:j])
				i = j - 1
				continue
			}
			enclosed := i > 0 && query[i-1] == '(' && j < len(query) && query[j] == ')'
			if tuple, ok := v.([]any); ok && enclosed {
				b.WriteString(literalList(tuple))
			} else {
				b.WriteString(literal(v))
			}
			i = j - 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func isNameByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// literal renders a value the way it would read in a statement: strings
// single-quoted, tuples parenthesized, placeholders as "?".
func literal(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case graph.QueryToken:
		return v.String()
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case []any:
		return "(" + literalList(v) + ")"
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func literalList(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = literal(v)
	}
	return strings.Join(parts, ", ")
}

// document renders a filter, projection or update the way it would be typed
// in the mongo shell. Keys keep their order.
func document(v any) string {
	var b strings.Builder
	writeDocument(&b, v)
	return b.String()
}

func writeDocument(b *strings.Builder, v any) {
	switch v := v.(type) {
	case bson.D:
		b.WriteByte('{')
		for i, e := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(e.Key))
			b.WriteString(": ")
			writeDocument(b, e.Value)
		}
		b.WriteByte('}')
	case bson.A:
		writeArray(b, v)
	case []any:
		writeArray(b, v)
	case string:
		b.WriteString(strconv.Quote(v))
	case bson.ObjectID:
		b.WriteString("ObjectId(" + strconv.Quote(v.Hex()) + ")")
	case nil:
		b.WriteString("null")
	case graph.QueryToken:
		b.WriteString(v.String())
	default:
		fmt.Fprint(b, v)
	}
}

func writeArray(b *strings.Builder, values []any) {
	b.WriteByte('[')
	for i, e := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		writeDocument(b, e)
	}
	b.WriteByte(']')
}
