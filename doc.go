// Package dsr fulfills privacy requests over data spread across relational
// databases, document stores and SaaS APIs.
//
// Datasets declare the collections of each store and how their fields
// reference each other. The graph package turns them into a traversal
// starting at the identity seed of a Request; the query package renders the
// read and update instructions of every node for its backend; the connector
// package executes them; and the task package runs a whole access or
// erasure request, feeding the rows retrieved for a collection into the
// queries of the collections depending on it. Erasure values come from the
// masking strategies bound to the rules of a privacy.Policy.
//
// A typical program loads its configuration and runs a request:
//
//	conf, err := config.Load("dsr.yml")
//	if err != nil {
//		return err
//	}
//	if err := conf.Validate(masking.Default()); err != nil {
//		return err
//	}
//	conns, err := conf.Connectors()
//	if err != nil {
//		return err
//	}
//	exec, err := conf.Executor(conns, slog.Default())
//	if err != nil {
//		return err
//	}
//	policy, _ := conf.Policy("default_access_policy")
//	report, err := exec.Access(ctx, dsr.NewRequest(map[string]any{"email": email}), policy)
//
// This package holds the Request type and the errors shared by the other
// packages.
package dsr
