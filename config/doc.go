// Package config loads the YAML configuration of the engine: datasets,
// policies, connections, storage destinations and execution settings.
//
//	datasets:
//	  - fides_key: postgres_example
//	    connection_key: postgres_1
//	    collections:
//	      - name: customer
//	        fields:
//	          - name: email
//	            data_categories: [user.contact.email]
//	            fidesops_meta:
//	              identity: email
//	              data_type: string
//	connections:
//	  - key: postgres_1
//	    connection_type: postgres
//	    secrets:
//	      url: postgres://localhost:5432/example?sslmode=disable
//
// Validate reports every problem of a configuration at once, each named by
// its position in the file, e.g. "datasets[0].collections[1].fields[2].name".
package config
