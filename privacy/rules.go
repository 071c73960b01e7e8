package privacy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/dsr/graph"
)

// Rule decision sentinel errors.
//
// Field rules return one of these to tell the evaluation how to proceed.
// Use errors.Is to check for them:
//
//	if errors.Is(err, privacy.Deny) { ... }
var (
	// Allow terminates the evaluation and keeps the field.
	Allow = errors.New("dsr/privacy: allow rule")

	// Deny terminates the evaluation and drops the field.
	Deny = errors.New("dsr/privacy: deny rule")

	// Skip defers the decision to the next rule in the chain.
	Skip = errors.New("dsr/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Field is the subject of a field rule: a declared field and the address it
// was declared at.
type Field struct {
	Address graph.FieldAddress
	Field   *graph.Field
}

// Categories returns the data categories of the field, or nil.
func (f Field) Categories() []string {
	if f.Field == nil {
		return nil
	}
	return f.Field.Categories
}

type (
	// FieldRule decides whether a field is released in access results.
	FieldRule interface {
		EvalField(Field) error
	}

	// FieldRuleFunc is an adapter to allow the use of ordinary functions
	// as field rules.
	FieldRuleFunc func(Field) error

	// FieldPolicy is an ordered chain of field rules.
	FieldPolicy []FieldRule
)

// EvalField calls f(fd).
func (f FieldRuleFunc) EvalField(fd Field) error {
	return f(fd)
}

// Eval runs the chain. The first rule returning Allow or Deny decides;
// rules returning nil or Skip defer to the next one. A chain that never
// decides denies the field. A nil result means the field is allowed.
func (policy FieldPolicy) Eval(f Field) error {
	for _, rule := range policy {
		switch decision := rule.EvalField(f); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return Denyf("privacy: %s is not targeted by any rule", f.Address)
}

// EvalField makes a policy usable as a rule of another policy. Unlike Eval,
// an undecided chain skips.
func (policy FieldPolicy) EvalField(f Field) error {
	for _, rule := range policy {
		switch decision := rule.EvalField(f); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return Skip
}

// AlwaysAllowRule returns a rule that allows every field.
func AlwaysAllowRule() FieldRule {
	return FieldRuleFunc(func(Field) error { return Allow })
}

// AlwaysDenyRule returns a rule that denies every field.
func AlwaysDenyRule() FieldRule {
	return FieldRuleFunc(func(Field) error { return Deny })
}

// MatchCategories returns a rule allowing fields with a data category
// starting with one of the targets. Other fields are skipped.
//
// A target "user.provided.identifiable.contact" matches the categories
// "user.provided.identifiable.contact" and
// "user.provided.identifiable.contact.email".
func MatchCategories(targets ...string) FieldRule {
	return FieldRuleFunc(func(f Field) error {
		if matchesAny(f.Categories(), targets) {
			return Allow
		}
		return Skip
	})
}

// DenyCategories returns a rule denying fields with a data category starting
// with one of the targets. Other fields are skipped.
//
//	policy.Fields = privacy.FieldPolicy{
//	    privacy.DenyCategories("user.financial"),
//	}
func DenyCategories(targets ...string) FieldRule {
	return FieldRuleFunc(func(f Field) error {
		if matchesAny(f.Categories(), targets) {
			return Denyf("privacy: %s has a denied category", f.Address)
		}
		return Skip
	})
}

// OnCollections returns a rule that evaluates rule only for fields of the
// given collections, written "dataset:collection". Other fields are skipped.
func OnCollections(rule FieldRule, addrs ...string) FieldRule {
	return FieldRuleFunc(func(f Field) error {
		want := f.Address.Address().String()
		for _, addr := range addrs {
			if addr == want {
				return rule.EvalField(f)
			}
		}
		return Skip
	})
}

func matchesAny(categories, targets []string) bool {
	for _, c := range categories {
		for _, t := range targets {
			if strings.HasPrefix(c, t) {
				return true
			}
		}
	}
	return false
}
