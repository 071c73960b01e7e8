// Package graph holds the dataset model and the traversal built from it for
// one privacy request.
//
// # Model
//
// A Dataset groups the Collections served by one connection. A Collection is
// a list of Fields; nested object fields are flattened into dot-separated
// FieldPaths when the collection is built, and a category index maps every
// data category to the fields labeled with it:
//
//	customer, _ := graph.NewCollection("customer",
//	    &graph.Field{Name: "id", DataType: graph.TypeInteger, PrimaryKey: true},
//	    &graph.Field{Name: "email", DataType: graph.TypeString, Identity: "email",
//	        Categories: []string{"user.contact.email"}},
//	)
//
// # Traversal
//
// Build turns identity markers and field references into Edges between
// fields and sorts the collections topologically, starting from the
// synthetic root node holding the identity seed:
//
//	tr, err := graph.Build(datasets)
//	for _, addr := range tr.Order() {
//	    node := tr.Node(addr)
//	    input := node.TypedFilteredValues(node.InputData(results, seed))
//	    ...
//	}
//
// Cycles and collections unreachable from the seed are rejected when the
// traversal is built.
package graph
