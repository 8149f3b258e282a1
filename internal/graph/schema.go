// Package graph serves the GraphQL API. The schema lives in schema.graphql
// and is resolved by Resolver against the service layer.
package graph

import (
	_ "embed"

	"github.com/graph-gophers/graphql-go"
)

//go:embed schema.graphql
var schemaSDL string

const maxQueryDepth = 12

// NewSchema parses the embedded SDL against r. It panics if a schema field
// has no matching resolver method.
func NewSchema(r *Resolver) *graphql.Schema {
	return graphql.MustParseSchema(schemaSDL, r,
		graphql.MaxDepth(maxQueryDepth),
		graphql.MaxParallelism(10),
	)
}
