package task

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/connector"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/privacy"
)

// Executor runs access and erasure requests over a traversal. Nodes run as
// soon as the nodes feeding them have finished; independent branches run
// concurrently up to the worker ceiling and the ceiling of their
// connection.
type Executor struct {
	traversal  *graph.Traversal
	connectors map[string]connector.Connector
	sems       map[string]*semaphore.Weighted
	limits     map[string]int
	workers    int
	attempts   int
	backoff    time.Duration
	cache      Cache
	ttl        time.Duration
	logger     *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithWorkers sets the number of nodes running at once. Default is
// runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(e *Executor) {
		e.workers = n
	}
}

// WithConnectionLimit bounds the number of calls in flight on the
// connection key. Calls beyond the limit queue. Default is the worker
// ceiling.
func WithConnectionLimit(key string, n int) Option {
	return func(e *Executor) {
		e.limits[key] = n
	}
}

// WithRetry sets the number of attempts of a node whose connector fails
// with a transient error, and the delay before the first retry. Default is
// a single attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(e *Executor) {
		e.attempts = attempts
		e.backoff = backoff
	}
}

// WithCache sets the cache holding retrieved rows, and the TTL of its
// entries. Default is a MemoryCache without expiry.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(e *Executor) {
		e.cache = c
		e.ttl = ttl
	}
}

// NewExecutor returns an executor for the traversal. connectors are keyed
// by connection key; every collection must be served by one.
func NewExecutor(tr *graph.Traversal, connectors map[string]connector.Connector, opts ...Option) (*Executor, error) {
	e := &Executor{
		traversal:  tr,
		connectors: connectors,
		limits:     make(map[string]int),
		workers:    runtime.GOMAXPROCS(0),
		attempts:   1,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = NewMemoryCache()
	}
	if e.workers < 1 {
		e.workers = 1
	}
	var errs []error
	for _, addr := range tr.Order() {
		key := tr.Node(addr).ConnectionKey()
		if _, ok := connectors[key]; !ok {
			errs = append(errs, dsr.NewConfigError(key, "no connector serves collection %s", addr))
		}
	}
	if err := dsr.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	e.sems = make(map[string]*semaphore.Weighted, len(connectors))
	for key := range connectors {
		n := e.limits[key]
		if n <= 0 {
			n = e.workers
		}
		e.sems[key] = semaphore.NewWeighted(int64(n))
	}
	return e, nil
}

// nodeFunc runs one node and returns the number of rows it handled and the
// number of attempts made.
type nodeFunc func(ctx context.Context, node *graph.Node) (rows, attempts int, err error)

// errSkipped is returned by a nodeFunc that has nothing to do.
var errSkipped = errors.New("task: skipped")

// Access retrieves the rows of every collection reachable from the
// identity of req. Failed nodes are reported and their dependents skipped;
// the returned error aggregates the node errors, and the report is
// returned in every case.
func (e *Executor) Access(ctx context.Context, req *dsr.Request, policy *privacy.Policy) (*Report, error) {
	report := e.newReport(req, privacy.ActionAccess)
	seed := graph.Row(req.Identity)
	e.logger.InfoContext(ctx, "starting access request", "request", req.ID, "nodes", len(e.traversal.Order()))
	report.Nodes = e.run(ctx, "access", true, func(ctx context.Context, node *graph.Node) (int, int, error) {
		upstream := make(map[graph.CollectionAddress][]graph.Row)
		for _, addr := range node.Upstream() {
			if addr.IsRoot() {
				continue
			}
			rows, _, err := report.store.Rows(ctx, req.ID, addr)
			if err != nil {
				return 0, 0, err
			}
			upstream[addr] = rows
		}
		input := node.InputData(upstream, seed)
		conn := e.connectors[node.ConnectionKey()]
		var rows []graph.Row
		attempts, err := e.call(ctx, node, func(ctx context.Context) (err error) {
			rows, err = conn.RetrieveData(ctx, node, policy, req, input)
			return err
		})
		if err != nil {
			return 0, attempts, err
		}
		if err := report.store.Put(ctx, req.ID, node.Address, rows); err != nil {
			return 0, attempts, err
		}
		return len(rows), attempts, nil
	})
	e.logger.InfoContext(ctx, "finished access request", "request", req.ID, "summary", report.Summary())
	return report, report.Err()
}

// Erasure masks the rows retrieved by the access run of req. Nodes that did
// not complete in the access run are skipped.
func (e *Executor) Erasure(ctx context.Context, req *dsr.Request, policy *privacy.Policy, access *Report) (*Report, error) {
	if access == nil || access.RequestID != req.ID {
		return nil, dsr.NewConfigError(req.ID, "erasure requires the access report of the same request")
	}
	report := e.newReport(req, privacy.ActionErasure)
	report.store = access.store
	e.logger.InfoContext(ctx, "starting erasure request", "request", req.ID)
	report.Nodes = e.run(ctx, "erasure", false, func(ctx context.Context, node *graph.Node) (int, int, error) {
		if r, ok := access.Node(node.Address); !ok || r.Status != StatusComplete {
			return 0, 0, errSkipped
		}
		rows, _, err := access.store.Rows(ctx, req.ID, node.Address)
		if err != nil {
			return 0, 0, err
		}
		if len(rows) == 0 {
			return 0, 0, nil
		}
		conn := e.connectors[node.ConnectionKey()]
		var n int
		attempts, err := e.call(ctx, node, func(ctx context.Context) (err error) {
			n, err = conn.MaskData(ctx, node, policy, req, rows)
			return err
		})
		return n, attempts, err
	})
	e.logger.InfoContext(ctx, "finished erasure request", "request", req.ID, "summary", report.Summary())
	return report, report.Err()
}

// DryRun renders the read instruction of every node in traversal order,
// keyed by "dataset:collection".
func (e *Executor) DryRun() (map[string]string, error) {
	out := make(map[string]string)
	var errs []error
	for _, addr := range e.traversal.Order() {
		node := e.traversal.Node(addr)
		q, err := e.connectors[node.ConnectionKey()].DryRunQuery(node)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[addr.String()] = q
	}
	return out, dsr.NewAggregateError(errs...)
}

func (e *Executor) newReport(req *dsr.Request, action privacy.ActionType) *Report {
	return &Report{
		RequestID: req.ID,
		Action:    action,
		traversal: e.traversal,
		store:     NewStore(e.cache, e.ttl),
	}
}

// call runs fn with retries, holding a slot of the node's connection for
// each attempt.
func (e *Executor) call(ctx context.Context, node *graph.Node, fn func(context.Context) error) (int, error) {
	sem := e.sems[node.ConnectionKey()]
	return connector.Retry(ctx, e.attempts, e.backoff, func(ctx context.Context) error {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer sem.Release(1)
		return fn(ctx)
	})
}

// run executes fn on every node. With deps set, a node starts once all the
// nodes feeding it have finished, and is skipped if one of them did not
// complete. Results are returned in traversal order.
func (e *Executor) run(ctx context.Context, op string, deps bool, fn nodeFunc) []NodeResult {
	order := e.traversal.Order()
	var (
		mu      sync.Mutex
		results = make(map[graph.CollectionAddress]NodeResult, len(order))
		waiting = make(map[graph.CollectionAddress]int, len(order))
		next    = make(map[graph.CollectionAddress][]graph.CollectionAddress)
		done    = make(chan graph.CollectionAddress, len(order))
	)
	for _, addr := range order {
		for _, up := range e.traversal.Node(addr).Upstream() {
			if deps && !up.IsRoot() {
				waiting[addr]++
				next[up] = append(next[up], addr)
			}
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	pending := 0
	launch := func(addr graph.CollectionAddress) {
		pending++
		node := e.traversal.Node(addr)
		mu.Lock()
		blocked := false
		for _, up := range node.Upstream() {
			if r, ok := results[up]; deps && ok && r.Status != StatusComplete {
				blocked = true
			}
		}
		mu.Unlock()
		g.Go(func() error {
			r := e.runNode(ctx, op, node, fn, blocked)
			mu.Lock()
			results[addr] = r
			mu.Unlock()
			done <- addr
			return nil
		})
	}
	for _, addr := range order {
		if waiting[addr] == 0 {
			launch(addr)
		}
	}
	for pending > 0 {
		addr := <-done
		pending--
		for _, n := range next[addr] {
			if waiting[n]--; waiting[n] == 0 {
				launch(n)
			}
		}
	}
	_ = g.Wait()

	out := make([]NodeResult, len(order))
	for i, addr := range order {
		out[i] = results[addr]
	}
	return out
}

func (e *Executor) runNode(ctx context.Context, op string, node *graph.Node, fn nodeFunc, blocked bool) NodeResult {
	r := NodeResult{Address: node.Address}
	if blocked {
		r.Status = StatusSkipped
		e.logger.WarnContext(ctx, "skipping node, an upstream node did not complete", "op", op, "node", node.Address.String())
		return r
	}
	start := time.Now()
	rows, attempts, err := fn(ctx, node)
	r.Duration = time.Since(start)
	r.Rows = rows
	r.Attempts = attempts
	switch {
	case errors.Is(err, errSkipped):
		r.Status = StatusSkipped
	case err != nil:
		r.Status = StatusError
		r.Err = &dsr.NodeError{Address: node.Address.String(), Op: op, Attempts: max(attempts, 1), Err: err}
		e.logger.WarnContext(ctx, "node failed", "op", op, "node", node.Address.String(), "attempts", attempts, "error", err)
	default:
		r.Status = StatusComplete
		e.logger.DebugContext(ctx, "node complete", "op", op, "node", node.Address.String(), "rows", rows, "duration", r.Duration)
	}
	return r
}
