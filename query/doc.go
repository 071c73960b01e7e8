// Package query turns the values reaching a traversal node into the read
// and write instructions of its datastore.
//
// Every datastore implements Config: SQLConfig emits parameterized
// statements whose formatting is driven by a dialect.SQL, MongoConfig emits
// filter and projection documents, and SaaSConfig populates the request
// templates of a SaaS connector. Writes mask the fields targeted by the
// erasure rules of a policy.
//
//	c := query.NewSQLConfig(node, dialect.Generic())
//	stmt, err := c.GenerateQuery(node.InputData(results, seed), policy)
//	if err != nil {
//	    return err
//	}
//	if stmt == nil {
//	    // not enough data to query the node
//	}
package query
