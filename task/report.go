package task

import (
	"context"
	"fmt"
	"time"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
	"github.com/syssam/dsr/privacy"
)

// Status is the outcome of one node of a run.
type Status string

// Node outcomes.
const (
	StatusComplete Status = "complete"
	StatusError    Status = "error"
	// StatusSkipped marks a node that did not run because a node it
	// depends on failed.
	StatusSkipped Status = "skipped"
)

// NodeResult is the outcome of one node.
type NodeResult struct {
	Address graph.CollectionAddress
	Status  Status
	// Rows is the number of rows retrieved by an access run or masked by an
	// erasure run.
	Rows     int
	Attempts int
	Duration time.Duration
	Err      error
}

// Report is the outcome of an access or erasure run. Node results are
// listed in traversal order.
type Report struct {
	RequestID string
	Action    privacy.ActionType
	Nodes     []NodeResult

	traversal *graph.Traversal
	store     *Store
}

// Node returns the result of addr.
func (r *Report) Node(addr graph.CollectionAddress) (NodeResult, bool) {
	for _, n := range r.Nodes {
		if n.Address == addr {
			return n, true
		}
	}
	return NodeResult{}, false
}

// Failed returns the results of the nodes that did not complete.
func (r *Report) Failed() []NodeResult {
	var out []NodeResult
	for _, n := range r.Nodes {
		if n.Status != StatusComplete {
			out = append(out, n)
		}
	}
	return out
}

// Summary describes the run in one line, e.g. "3 of 7 nodes failed".
func (r *Report) Summary() string {
	if failed := len(r.Failed()); failed > 0 {
		return fmt.Sprintf("%d of %d nodes failed", failed, len(r.Nodes))
	}
	return fmt.Sprintf("%d of %d nodes completed", len(r.Nodes), len(r.Nodes))
}

// Err returns the node errors of the run, or nil.
func (r *Report) Err() error {
	var errs []error
	for _, n := range r.Nodes {
		if n.Status == StatusError {
			errs = append(errs, n.Err)
		}
	}
	return dsr.NewAggregateError(errs...)
}

// Rows returns the rows retrieved for addr by an access run.
func (r *Report) Rows(ctx context.Context, addr graph.CollectionAddress) ([]graph.Row, error) {
	rows, _, err := r.store.Rows(ctx, r.RequestID, addr)
	return rows, err
}

// Results returns the rows retrieved for every completed node.
func (r *Report) Results(ctx context.Context) (map[graph.CollectionAddress][]graph.Row, error) {
	out := make(map[graph.CollectionAddress][]graph.Row)
	for _, n := range r.Nodes {
		if n.Status != StatusComplete {
			continue
		}
		rows, ok, err := r.store.Rows(ctx, r.RequestID, n.Address)
		if err != nil {
			return nil, err
		}
		if ok {
			out[n.Address] = rows
		}
	}
	return out, nil
}

// Filtered returns the retrieved rows reduced to the fields targeted by the
// access rules of policy, keyed by "dataset:collection".
func (r *Report) Filtered(ctx context.Context, policy *privacy.Policy) (map[string][]graph.Row, error) {
	results, err := r.Results(ctx)
	if err != nil {
		return nil, err
	}
	return policy.FilterAccessResults(r.traversal, results), nil
}

// Close drops the rows of the request from the store.
func (r *Report) Close(ctx context.Context) error {
	return r.store.Clear(ctx, r.RequestID)
}
