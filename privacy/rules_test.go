package privacy_test

import (
	"errors"
	"testing"

	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/privacy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func field(coll, path string, categories ...string) privacy.Field {
	return privacy.Field{
		Address: graph.FieldAddress{Dataset: "db", Collection: coll, Path: graph.FieldPath(path)},
		Field:   &graph.Field{Name: path, Categories: categories},
	}
}

func TestDecisions(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"allowf", privacy.Allowf("because %d", 1), privacy.Allow},
		{"denyf", privacy.Denyf("because %d", 2), privacy.Deny},
		{"skipf", privacy.Skipf("because %d", 3), privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.Contains(t, tt.err.Error(), "because")
		})
	}
}

func TestFieldPolicyEval(t *testing.T) {
	email := field("customer", "email", "user.contact.email")
	card := field("customer", "card", "user.financial.card")
	id := field("customer", "id")

	tests := []struct {
		name    string
		policy  privacy.FieldPolicy
		field   privacy.Field
		allowed bool
	}{
		{"empty_denies", nil, email, false},
		{"match", privacy.FieldPolicy{privacy.MatchCategories("user.contact")}, email, true},
		{"match_exact", privacy.FieldPolicy{privacy.MatchCategories("user.contact.email")}, email, true},
		{"no_match", privacy.FieldPolicy{privacy.MatchCategories("user.contact")}, card, false},
		{"uncategorized", privacy.FieldPolicy{privacy.MatchCategories("user")}, id, false},
		{"deny_first", privacy.FieldPolicy{privacy.DenyCategories("user.financial"), privacy.MatchCategories("user")}, card, false},
		{"deny_skips_others", privacy.FieldPolicy{privacy.DenyCategories("user.financial"), privacy.MatchCategories("user")}, email, true},
		{"always_allow", privacy.FieldPolicy{privacy.AlwaysAllowRule()}, id, true},
		{"always_deny", privacy.FieldPolicy{privacy.AlwaysDenyRule(), privacy.AlwaysAllowRule()}, email, false},
		{"nil_is_skip", privacy.FieldPolicy{privacy.FieldRuleFunc(func(privacy.Field) error { return nil }), privacy.AlwaysAllowRule()}, id, true},
		{"nested_policy", privacy.FieldPolicy{privacy.FieldPolicy{privacy.MatchCategories("nothing")}, privacy.AlwaysAllowRule()}, id, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Eval(tt.field)
			if tt.allowed {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, privacy.Deny))
		})
	}
}

func TestOnCollections(t *testing.T) {
	rule := privacy.OnCollections(privacy.AlwaysDenyRule(), "db:orders")
	p := privacy.FieldPolicy{rule, privacy.AlwaysAllowRule()}
	require.NoError(t, p.Eval(field("customer", "id")))
	require.Error(t, p.Eval(field("orders", "id")))
}
