package saas

import (
	"github.com/syssam/dsr/graph"
)

// MergeDatasets merges the collections and fields of the dataset implied by
// a SaaS configuration into a user dataset. When both declare a field, the
// user's field is kept and inherits the references and identity of the
// configuration's field. The inputs are not modified.
func MergeDatasets(dataset, config *graph.Dataset) (*graph.Dataset, error) {
	var order []string
	fields := make(map[string][]*graph.Field)
	index := make(map[string]map[string]int)
	extract := func(colls []*graph.Collection) {
		for _, c := range colls {
			if _, ok := index[c.Name]; !ok {
				order = append(order, c.Name)
				index[c.Name] = make(map[string]int)
			}
			for _, f := range c.Fields {
				if i, ok := index[c.Name][f.Name]; ok {
					fields[c.Name][i] = mergeField(fields[c.Name][i], f)
					continue
				}
				cp := *f
				index[c.Name][f.Name] = len(fields[c.Name])
				fields[c.Name] = append(fields[c.Name], &cp)
			}
		}
	}
	extract(dataset.Collections)
	extract(config.Collections)

	out := &graph.Dataset{Name: dataset.Name, ConnectionKey: dataset.ConnectionKey}
	for _, name := range order {
		c, err := graph.NewCollection(name, fields[name]...)
		if err != nil {
			return nil, err
		}
		out.Collections = append(out.Collections, c)
	}
	return out, nil
}

func mergeField(target, source *graph.Field) *graph.Field {
	if source.References != nil {
		target.References = source.References
	}
	if source.Identity != "" {
		target.Identity = source.Identity
	}
	return target
}
