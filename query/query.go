package query

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/masking"
	"github.com/syssam/dsr/privacy"
)

// Config generates the read and write instructions of one traversal node
// for a kind of datastore. T is the instruction type, a pointer that is nil
// when there is not enough data to build an instruction.
type Config[T any] interface {
	// GenerateQuery builds the read instruction for the values reaching the
	// node. Paths with one distinct value are matched by equality, paths
	// with several by membership.
	GenerateQuery(input map[string][]any, policy *privacy.Policy) (T, error)
	// GenerateUpdate builds the write instruction masking row according to
	// the erasure rules of policy.
	GenerateUpdate(row graph.Row, policy *privacy.Policy, req *dsr.Request) (T, error)
	// QueryToString renders an instruction with its values substituted.
	QueryToString(stmt T, input map[string][]any) string
	// DryRunQuery renders the read instruction with placeholder values.
	DryRunQuery() (string, error)
}

// Option configures a query config.
type Option func(*base)

// WithLogger sets the logger of the config. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// base holds what every datastore shares: the node, its field maps and the
// masking of rows.
type base struct {
	node   *graph.Node
	logger *slog.Logger
}

func newBase(node *graph.Node, opts []Option) base {
	b := base{node: node, logger: slog.Default()}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Node returns the traversal node of the config.
func (b *base) Node() *graph.Node { return b.node }

// primaryKeyValues returns the primary key values of the row, cast to their
// declared type. Missing, nil and uncastable values are left out.
func (b *base) primaryKeyValues(row graph.Row) map[string]any {
	out := make(map[string]any)
	for _, path := range b.node.Collection.PrimaryKeys() {
		v, ok := row.Get(path.String())
		if !ok || v == nil {
			continue
		}
		f, _ := b.node.Collection.Field(path)
		if cv, ok := f.Cast(v); ok && cv != nil {
			out[path.String()] = cv
		}
	}
	return out
}

// QuerySources returns, for each input path of the node, the addresses of
// the collections feeding it, e.g. {"user_info.user_id": [postgres_db:users]}.
func QuerySources(node *graph.Node) map[string][]graph.CollectionAddress {
	out := make(map[string][]graph.CollectionAddress)
	for _, e := range node.IncomingEdges() {
		key := e.To.Path.String()
		out[key] = append(out[key], e.From.Address())
	}
	return out
}

// DisplayQueryData returns placeholder input for a dry run. Paths fed only
// by the identity seed get one token; other paths may carry several values
// and get two distinct tokens.
func DisplayQueryData(node *graph.Node) map[string][]any {
	out := make(map[string][]any)
	t := graph.NewQueryToken()
	for key, sources := range QuerySources(node) {
		if len(sources) == 1 && sources[0].IsRoot() {
			out[key] = []any{t}
			continue
		}
		out[key] = []any{t, graph.NewQueryToken()}
	}
	return out
}

// UpdateValueMap masks the fields of row targeted by the erasure rules of
// policy and returns the masked values keyed by refined path, e.g.
// {"name": nil, "workplace_info.employer": nil, "children.0": nil}.
// Fields whose data type is missing or unsupported by the strategy are
// skipped. When rules overlap, the later rule wins.
func (b *base) UpdateValueMap(row graph.Row, policy *privacy.Policy, req *dsr.Request) (map[string]any, error) {
	values := make(map[string]any)
	if policy == nil {
		return values, nil
	}
	for _, target := range policy.ErasureTargets(b.node.Collection) {
		strategy := target.Rule.Strategy()
		null := strategy.Name() == masking.NullRewrite
		if err := masking.ProvisionSecrets(req, strategy); err != nil {
			return nil, err
		}
		for _, path := range target.Paths {
			f, _ := b.node.Collection.Field(path)
			override := f.MaskingOverride()
			if !supported(override, null, strategy) {
				b.logger.Warn("unable to generate a query for field: data_type is either not present on the field or not supported by the masking strategy",
					"field", path.String(),
					"strategy", strategy.Name(),
					"data_type", override.DataType.String(),
				)
				continue
			}
			for _, refined := range row.RefinedPaths(path) {
				v, _ := row.Get(refined)
				masked, err := strategy.Mask(req, v)
				if err != nil {
					return nil, fmt.Errorf("query: mask %s.%s: %w", b.node.Address, refined, err)
				}
				b.logger.Debug("generated masked value", "field", refined, "value", masked)
				if !null && override.Length != nil {
					b.logger.Warn("length specified for field, truncating masked value regardless of masking strategy",
						"field", refined,
						"length", *override.Length,
					)
					masked = override.DataType.Truncate(*override.Length, masked)
				}
				values[refined] = masked
			}
		}
	}
	return values, nil
}

func supported(override graph.MaskingOverride, null bool, s masking.Strategy) bool {
	if null {
		return true
	}
	if override.DataType == graph.TypeNone {
		return false
	}
	return s.SupportsDataType(override.DataType)
}

// distinct returns the values without duplicates, in first-seen order.
func distinct(values []any) []any {
	seen := make(map[any]struct{}, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		if v != nil && !reflect.TypeOf(v).Comparable() {
			out = append(out, v)
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
