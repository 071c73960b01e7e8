package sql

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/dsr/dialect"
)

// Bind rewrites a statement written with ":name" placeholders into the
// placeholder syntax of the target driver and returns the matching
// arguments. A parameter holding a []any is expanded into one placeholder
// per element, parenthesized unless the statement already encloses it:
//
//	Bind(dialect.BindDollar, "SELECT a FROM t WHERE id IN :id", map[string]any{"id": []any{1, 2}})
//	// SELECT a FROM t WHERE id IN ($1, $2)  [1 2]
//
// Placeholders inside quoted literals or identifiers and Postgres casts
// ("::text") are left untouched.
func Bind(style dialect.BindStyle, query string, params map[string]any) (string, []any, error) {
	var (
		b     strings.Builder
		args  []any
		named = make(map[string]struct{})
		n     int
	)
	placeholder := func(name string, v any) string {
		switch style {
		case dialect.BindDollar:
			n++
			args = append(args, v)
			return "$" + strconv.Itoa(n)
		case dialect.BindAt, dialect.BindColon:
			if _, ok := named[name]; !ok {
				named[name] = struct{}{}
				args = append(args, sql.Named(name, v))
			}
			if style == dialect.BindAt {
				return "@" + name
			}
			return ":" + name
		default:
			args = append(args, v)
			return "?"
		}
	}
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := closingQuote(query, i)
			b.WriteString(query[i:end])
			i = end - 1
		case c == ':' && i+1 < len(query) && query[i+1] == ':':
			b.WriteString("::")
			i++
		case c == ':' && i+1 < len(query) && isNameStart(query[i+1]) && (i == 0 || query[i-1] != ':'):
			j := i + 1
			for j < len(query) && isNamePart(query[j]) {
				j++
			}
			name := query[i+1 : j]
			v, ok := params[name]
			if !ok {
				return "", nil, fmt.Errorf("dialect/sql: missing value for parameter %q", name)
			}
			if tuple, ok := v.([]any); ok {
				if len(tuple) == 0 {
					return "", nil, fmt.Errorf("dialect/sql: empty tuple for parameter %q", name)
				}
				parts := make([]string, len(tuple))
				for k, tv := range tuple {
					parts[k] = placeholder(name+"_"+strconv.Itoa(k), tv)
				}
				list := strings.Join(parts, ", ")
				if enclosed(query, i, j) {
					b.WriteString(list)
				} else {
					b.WriteString("(" + list + ")")
				}
			} else {
				b.WriteString(placeholder(name, v))
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), args, nil
}

// closingQuote returns the index just past the quoted section starting at i.
// Doubled quotes inside the section are treated as escapes.
func closingQuote(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

// enclosed reports whether s[start:end] is directly wrapped in parentheses.
func enclosed(s string, start, end int) bool {
	l := strings.TrimRight(s[:start], " \t\n")
	r := strings.TrimLeft(s[end:], " \t\n")
	return strings.HasSuffix(l, "(") && strings.HasPrefix(r, ")")
}

func isNameStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isNamePart(c byte) bool {
	return isNameStart(c) || ('0' <= c && c <= '9')
}
