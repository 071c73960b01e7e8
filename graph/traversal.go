package graph

import (
	"fmt"
	"slices"
	"sort"

	"github.com/syssam/dsr"
)

// Node is a collection situated in the traversal with its resolved edges.
// Nodes refer to each other only by address.
type Node struct {
	Address    CollectionAddress
	Collection *Collection
	// Dataset is nil for the root node.
	Dataset *Dataset

	incoming []Edge
	outgoing []Edge
	upstream []CollectionAddress
}

// IsRoot reports whether n is the synthetic root node.
func (n *Node) IsRoot() bool { return n.Address.IsRoot() }

// ConnectionKey returns the key of the connection serving the node.
func (n *Node) ConnectionKey() string {
	if n.Dataset == nil {
		return ""
	}
	return n.Dataset.ConnectionKey
}

// IncomingEdges returns the edges whose target is a field of this node,
// sorted by their string form.
func (n *Node) IncomingEdges() []Edge { return n.incoming }

// OutgoingEdges returns the edges whose source is a field of this node,
// sorted by their string form.
func (n *Node) OutgoingEdges() []Edge { return n.outgoing }

// Upstream returns the distinct addresses feeding this node, sorted.
func (n *Node) Upstream() []CollectionAddress { return n.upstream }

// TypedFilteredValues keeps the entries of input keyed by a field path that
// is the target of an incoming edge, casting every value to the declared
// type of the field. Values that fail to cast are dropped; entries left
// without values are omitted.
func (n *Node) TypedFilteredValues(input map[string][]any) map[string][]any {
	out := make(map[string][]any)
	for key, values := range input {
		path := FieldPath(key)
		if !n.isQueryPath(path) {
			continue
		}
		f, ok := n.Collection.Field(path)
		if !ok {
			continue
		}
		var cast []any
		for _, v := range values {
			if cv, ok := f.Cast(v); ok {
				cast = append(cast, cv)
			}
		}
		if len(cast) > 0 {
			out[key] = cast
		}
	}
	return out
}

func (n *Node) isQueryPath(p FieldPath) bool {
	for _, e := range n.incoming {
		if e.To.Path == p {
			return true
		}
	}
	return false
}

// InputData collects the values feeding this node: for every incoming edge,
// the values found at the source field of the rows retrieved for the source
// collection, keyed by the target path. Root edges read from the seed. List
// values are flattened and nil values skipped.
func (n *Node) InputData(results map[CollectionAddress][]Row, seed Row) map[string][]any {
	out := make(map[string][]any)
	for _, e := range n.incoming {
		rows := results[e.From.Address()]
		if e.From.Address().IsRoot() {
			rows = []Row{seed}
		}
		key := e.To.Path.String()
		for _, row := range rows {
			v, ok := row.Get(e.From.Path.String())
			if !ok || v == nil {
				continue
			}
			if list, ok := v.([]any); ok {
				for _, elem := range list {
					if elem != nil {
						out[key] = append(out[key], elem)
					}
				}
				continue
			}
			out[key] = append(out[key], v)
		}
	}
	return out
}

// Traversal is the dependency graph of one privacy request execution. It is
// an arena of nodes keyed by address with edges held by the nodes.
type Traversal struct {
	nodes map[CollectionAddress]*Node
	order []CollectionAddress
	edges []Edge
}

// Build constructs the traversal for the datasets. References without a
// direction are oriented away from the root: the end closer to the identity
// seed becomes the source, ties broken by address. Build fails if a
// reference points to an unknown field, if a collection cannot be reached
// from the root, or if the references form a cycle.
func Build(datasets []*Dataset) (*Traversal, error) {
	t := &Traversal{nodes: map[CollectionAddress]*Node{
		RootAddress: {Address: RootAddress, Collection: &Collection{Name: Root, fields: map[FieldPath]*Field{}}},
	}}
	for _, ds := range datasets {
		for _, c := range ds.Collections {
			addr := CollectionAddress{Dataset: ds.Name, Collection: c.Name}
			if _, ok := t.nodes[addr]; ok {
				return nil, dsr.NewConfigError(ds.Name, "duplicate collection %s", addr)
			}
			t.nodes[addr] = &Node{Address: addr, Collection: c, Dataset: ds}
		}
	}

	var (
		directed   []Edge
		undirected []Edge
		seeds      = make(map[string]struct{})
	)
	for _, ds := range datasets {
		for _, c := range ds.Collections {
			addr := CollectionAddress{Dataset: ds.Name, Collection: c.Name}
			for _, p := range c.FieldPaths() {
				f := c.fields[p]
				to := addr.Field(p)
				if f.Identity != "" {
					seeds[f.Identity] = struct{}{}
					directed = append(directed, Edge{From: RootAddress.Field(FieldPath(f.Identity)), To: to})
				}
				for _, ref := range f.References {
					target, ok := t.nodes[ref.Field.Address()]
					if !ok || target.IsRoot() {
						return nil, dsr.NewConfigError(ds.Name, "field %s references unknown collection %s", to, ref.Field.Address())
					}
					if _, ok := target.Collection.Field(ref.Field.Path); !ok {
						return nil, dsr.NewConfigError(ds.Name, "field %s references unknown field %s", to, ref.Field)
					}
					switch ref.Direction {
					case DirectionFrom:
						directed = append(directed, Edge{From: ref.Field, To: to})
					case DirectionTo:
						directed = append(directed, Edge{From: to, To: ref.Field})
					case DirectionNone:
						undirected = append(undirected, Edge{From: to, To: ref.Field})
					default:
						return nil, dsr.NewConfigError(ds.Name, "field %s: invalid reference direction %q", to, ref.Direction)
					}
				}
			}
		}
	}
	root := t.nodes[RootAddress]
	for key := range seeds {
		root.Collection.fields[FieldPath(key)] = &Field{Name: key}
		root.Collection.paths = append(root.Collection.paths, FieldPath(key))
	}
	slices.Sort(root.Collection.paths)

	t.edges = dedupe(append(directed, orient(directed, undirected)...))
	for _, e := range t.edges {
		from, to := t.nodes[e.From.Address()], t.nodes[e.To.Address()]
		from.outgoing = append(from.outgoing, e)
		to.incoming = append(to.incoming, e)
		if !slices.Contains(to.upstream, from.Address) {
			to.upstream = append(to.upstream, from.Address)
		}
	}
	for _, n := range t.nodes {
		sort.Slice(n.upstream, func(i, j int) bool { return n.upstream[i].String() < n.upstream[j].String() })
	}

	if unreachable := t.unreachable(); len(unreachable) > 0 {
		return nil, dsr.NewUnreachableError(unreachable)
	}
	order, cycle := t.sort()
	if len(cycle) > 0 {
		return nil, dsr.NewCycleError(cycle)
	}
	t.order = order
	return t, nil
}

// orient assigns a direction to undirected references by breadth-first
// distance from the root over directed edges and both ends of undirected
// ones.
func orient(directed, undirected []Edge) []Edge {
	if len(undirected) == 0 {
		return nil
	}
	adj := make(map[CollectionAddress][]CollectionAddress)
	for _, e := range directed {
		adj[e.From.Address()] = append(adj[e.From.Address()], e.To.Address())
	}
	for _, e := range undirected {
		a, b := e.From.Address(), e.To.Address()
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}
	dist := map[CollectionAddress]int{RootAddress: 0}
	queue := []CollectionAddress{RootAddress}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if _, ok := dist[next]; !ok {
				dist[next] = dist[cur] + 1
				queue = append(queue, next)
			}
		}
	}
	out := make([]Edge, 0, len(undirected))
	for _, e := range undirected {
		da, aok := dist[e.From.Address()]
		db, bok := dist[e.To.Address()]
		switch {
		case aok && (!bok || da < db):
			out = append(out, e)
		case bok && (!aok || db < da):
			out = append(out, Edge{From: e.To, To: e.From})
		case e.From.Address().String() <= e.To.Address().String():
			out = append(out, e)
		default:
			out = append(out, Edge{From: e.To, To: e.From})
		}
	}
	return out
}

func dedupe(edges []Edge) []Edge {
	seen := make(map[Edge]struct{}, len(edges))
	out := edges[:0]
	for _, e := range edges {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (t *Traversal) unreachable() []string {
	reached := map[CollectionAddress]bool{RootAddress: true}
	queue := []CollectionAddress{RootAddress}
	for len(queue) > 0 {
		n := t.nodes[queue[0]]
		queue = queue[1:]
		for _, e := range n.outgoing {
			if next := e.To.Address(); !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	var out []string
	for addr := range t.nodes {
		if !reached[addr] {
			out = append(out, addr.String())
		}
	}
	sort.Strings(out)
	return out
}

// sort orders the collections topologically with Kahn's algorithm, taking
// ready nodes in address order. It returns the addresses left on a cycle
// when the graph is not acyclic.
func (t *Traversal) sort() ([]CollectionAddress, []string) {
	indegree := make(map[CollectionAddress]int, len(t.nodes))
	for addr, n := range t.nodes {
		indegree[addr] = len(n.upstream)
	}
	var (
		ready = []CollectionAddress{RootAddress}
		order []CollectionAddress
	)
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		if !cur.IsRoot() {
			order = append(order, cur)
		}
		var next []CollectionAddress
		for _, e := range t.nodes[cur].outgoing {
			to := e.To.Address()
			if slices.Contains(next, to) {
				continue
			}
			next = append(next, to)
		}
		for _, to := range next {
			indegree[to]--
			if indegree[to] == 0 {
				ready = append(ready, to)
			}
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i].String() < ready[j].String() })
	}
	if len(order) == len(t.nodes)-1 {
		return order, nil
	}
	var cycle []string
	for addr, d := range indegree {
		if d > 0 {
			cycle = append(cycle, addr.String())
		}
	}
	sort.Strings(cycle)
	return nil, cycle
}

// Order returns the collection addresses in dependency order. The root is
// not included.
func (t *Traversal) Order() []CollectionAddress { return t.order }

// Node returns the node at addr, or nil.
func (t *Traversal) Node(addr CollectionAddress) *Node { return t.nodes[addr] }

// Root returns the root node.
func (t *Traversal) Root() *Node { return t.nodes[RootAddress] }

// Edges returns all edges sorted by their string form.
func (t *Traversal) Edges() []Edge { return t.edges }

// IdentityKeys returns the identity seed keys used by the datasets.
func (t *Traversal) IdentityKeys() []string {
	keys := make([]string, 0, len(t.Root().Collection.paths))
	for _, p := range t.Root().Collection.paths {
		keys = append(keys, string(p))
	}
	return keys
}

// String returns a description of the traversal for logging.
func (t *Traversal) String() string {
	return fmt.Sprintf("traversal(%d collections, %d edges)", len(t.order), len(t.edges))
}
