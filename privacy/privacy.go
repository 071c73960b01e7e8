package privacy

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/masking"
)

// ActionType is the kind of privacy request a rule applies to.
type ActionType string

// Supported action types.
const (
	ActionAccess  ActionType = "access"
	ActionErasure ActionType = "erasure"
)

var fold = cases.Fold()

// ParseActionType returns the action type with the given name, matched
// case-insensitively.
func ParseActionType(s string) (ActionType, error) {
	switch a := ActionType(strings.TrimSpace(fold.String(s))); a {
	case ActionAccess, ActionErasure:
		return a, nil
	default:
		return "", fmt.Errorf("privacy: unknown action type %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *ActionType) UnmarshalText(text []byte) error {
	v, err := ParseActionType(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Rule is one directive of a policy: which data categories it targets and,
// for erasure rules, how the targeted values are masked.
type Rule struct {
	Key     string          `yaml:"key" json:"key"`
	Name    string          `yaml:"name" json:"name"`
	Action  ActionType      `yaml:"action_type" json:"action_type"`
	Targets []string        `yaml:"targets" json:"targets"`
	Masking *masking.Config `yaml:"masking_strategy,omitempty" json:"masking_strategy,omitempty"`

	strategy masking.Strategy
}

// Strategy returns the masking strategy bound to the rule, or nil.
func (r *Rule) Strategy() masking.Strategy { return r.strategy }

// Policy is an ordered list of rules. Rules are evaluated in declared order;
// when erasure rules target the same field, the later rule wins.
type Policy struct {
	Key   string  `yaml:"key" json:"key"`
	Name  string  `yaml:"name" json:"name"`
	Rules []*Rule `yaml:"rules" json:"rules"`
	// Fields are evaluated before the access rules when filtering access
	// results, e.g. to deny a category regardless of the rules.
	Fields FieldPolicy `yaml:"-" json:"-"`
}

// Bind resolves the masking strategy of every erasure rule against the
// registry. All failures are reported together.
func (p *Policy) Bind(reg *masking.Registry) error {
	var errs []error
	for i, r := range p.Rules {
		name := fmt.Sprintf("%s.rules[%d]", p.Key, i)
		if r.Key != "" {
			name = p.Key + "." + r.Key
		}
		switch r.Action {
		case ActionAccess:
			if r.Masking != nil {
				errs = append(errs, dsr.Validationf(name, "access rules cannot have a masking strategy"))
			}
		case ActionErasure:
			if r.Masking == nil {
				errs = append(errs, dsr.Validationf(name, "erasure rules require a masking strategy"))
				continue
			}
			s, err := reg.Strategy(*r.Masking)
			if err != nil {
				errs = append(errs, dsr.NewValidationError(name, err))
				continue
			}
			r.strategy = s
		default:
			errs = append(errs, dsr.Validationf(name, "unknown action type %q", r.Action))
		}
	}
	return dsr.NewAggregateError(errs...)
}

// RulesFor returns the rules of the action type in policy order.
func (p *Policy) RulesFor(action ActionType) []*Rule {
	var out []*Rule
	for _, r := range p.Rules {
		if r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

// RuleTarget pairs an erasure rule with the field paths of a collection it
// targets.
type RuleTarget struct {
	Rule  *Rule
	Paths []graph.FieldPath
}

// ErasureTargets resolves, for every erasure rule with a bound strategy, the
// fields of c whose data category starts with one of the rule targets.
// Targets are returned in policy order; rules targeting no field of c are
// omitted.
func (p *Policy) ErasureTargets(c *graph.Collection) []RuleTarget {
	var out []RuleTarget
	for _, r := range p.RulesFor(ActionErasure) {
		if r.strategy == nil || len(r.Targets) == 0 {
			continue
		}
		if paths := c.PathsMatching(r.Targets); len(paths) > 0 {
			out = append(out, RuleTarget{Rule: r, Paths: paths})
		}
	}
	return out
}

// AccessTargets returns the data categories targeted by the access rules.
func (p *Policy) AccessTargets() []string {
	var out []string
	for _, r := range p.RulesFor(ActionAccess) {
		out = append(out, r.Targets...)
	}
	return out
}

// FilterAccessResults reduces the rows retrieved during an access run to
// the fields allowed by the policy, keyed by collection address. Collections
// left without any allowed field are omitted.
func (p *Policy) FilterAccessResults(tr *graph.Traversal, results map[graph.CollectionAddress][]graph.Row) map[string][]graph.Row {
	chain := append(FieldPolicy{}, p.Fields...)
	chain = append(chain, MatchCategories(p.AccessTargets()...))

	out := make(map[string][]graph.Row)
	for addr, rows := range results {
		node := tr.Node(addr)
		if node == nil || node.IsRoot() {
			continue
		}
		var allowed []graph.FieldPath
		for _, path := range node.Collection.FieldPaths() {
			f, _ := node.Collection.Field(path)
			if chain.Eval(Field{Address: addr.Field(path), Field: f}) == nil {
				allowed = append(allowed, path)
			}
		}
		if len(allowed) == 0 {
			continue
		}
		var filtered []graph.Row
		for _, row := range rows {
			fr := make(map[string]any)
			for _, path := range allowed {
				if v, ok := project(map[string]any(row), path.Levels()); ok {
					merge(fr, v)
				}
			}
			filtered = append(filtered, graph.Row(fr))
		}
		out[addr.String()] = filtered
	}
	return out
}

// project returns a copy of v holding only the value at levels, descending
// into every element of lists on the way.
func project(v any, levels []string) (any, bool) {
	if len(levels) == 0 {
		return v, true
	}
	switch cur := v.(type) {
	case graph.Row:
		return project(map[string]any(cur), levels)
	case map[string]any:
		next, ok := cur[levels[0]]
		if !ok {
			return nil, false
		}
		pv, ok := project(next, levels[1:])
		if !ok {
			return nil, false
		}
		return map[string]any{levels[0]: pv}, true
	case []any:
		out := make([]any, len(cur))
		found := false
		for i, elem := range cur {
			if pv, ok := project(elem, levels); ok {
				out[i] = pv
				found = true
			}
		}
		return out, found
	}
	return nil, false
}

// merge folds src into dst and returns the result. Maps merge by key and
// lists of equal length element-wise; anything else is replaced by src.
func merge(dst, src any) any {
	if dm, ok := dst.(map[string]any); ok {
		if sm, ok := src.(map[string]any); ok {
			for k, v := range sm {
				dm[k] = merge(dm[k], v)
			}
			return dm
		}
	}
	if dl, ok := dst.([]any); ok {
		if sl, ok := src.([]any); ok && len(dl) == len(sl) {
			for i := range sl {
				dl[i] = merge(dl[i], sl[i])
			}
			return dl
		}
	}
	return src
}
