// Package task runs privacy requests over a traversal. An access run reads
// every collection reachable from the identity seed, feeding the values
// retrieved for a collection into the queries of the collections depending
// on it. An erasure run masks the rows found by the access run.
//
//	exec, err := task.NewExecutor(tr, connectors, task.WithRetry(3, time.Second))
//	if err != nil {
//		return err
//	}
//	req := dsr.NewRequest(map[string]any{"email": "customer-1@example.com"})
//	access, err := exec.Access(ctx, req, policy)
//	if err != nil {
//		slog.Warn("access request incomplete", "summary", access.Summary())
//	}
//	erasure, err := exec.Erasure(ctx, req, policy, access)
//
// Retrieved rows are kept msgpack encoded in a Cache until the report is
// closed.
package task
