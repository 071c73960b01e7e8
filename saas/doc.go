// Package saas models the configuration of SaaS connectors: the API client,
// the endpoints serving each collection and their request templates, and the
// post-processors that turn API responses into rows.
package saas
