package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowGet(t *testing.T) {
	row := Row{
		"id":             1,
		"workplace_info": map[string]any{"employer": "Mountain Baking Company"},
		"children":       []any{"Christopher", "Courtney"},
		"emergency.name": "flat",
	}
	v, ok := row.Get("workplace_info.employer")
	assert.True(t, ok)
	assert.Equal(t, "Mountain Baking Company", v)

	v, ok = row.Get("children.1")
	assert.True(t, ok)
	assert.Equal(t, "Courtney", v)

	v, ok = row.Get("emergency.name")
	assert.True(t, ok)
	assert.Equal(t, "flat", v)

	_, ok = row.Get("children.5")
	assert.False(t, ok)
	_, ok = row.Get("id.x")
	assert.False(t, ok)
}

func TestRowRefinedPaths(t *testing.T) {
	row := Row{
		"name":     "Jo",
		"children": []any{"Christopher", "Courtney"},
		"workplace_info": map[string]any{
			"employer": "Mountain Baking Company",
		},
		"friends": []any{
			map[string]any{"name": "Alice"},
			map[string]any{"name": "Bob", "phone": "555"},
		},
		"empty": nil,
	}
	tests := []struct {
		path FieldPath
		want []string
	}{
		{"name", []string{"name"}},
		{"children", []string{"children.0", "children.1"}},
		{"workplace_info.employer", []string{"workplace_info.employer"}},
		{"friends.name", []string{"friends.0.name", "friends.1.name"}},
		{"friends.phone", []string{"friends.1.phone"}},
		{"empty", []string{"empty"}},
		{"missing", nil},
		{"workplace_info.position", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, row.RefinedPaths(tt.path))
		})
	}
}

func TestRowSet(t *testing.T) {
	row := Row{"children": []any{"a", "b"}}
	assert.True(t, row.Set("children.1", nil))
	assert.True(t, row.Set("workplace_info.employer", "MASKED"))
	assert.False(t, row.Set("children.9", "x"))
	assert.Equal(t, Row{
		"children":       []any{"a", nil},
		"workplace_info": map[string]any{"employer": "MASKED"},
	}, row)
}
