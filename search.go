package annlite

import (
	"context"

	"github.com/annlite/annlite/metadata"
)

// DefaultTopN is the number of neighbors returned when a search builder does
// not set one explicitly.
const DefaultTopN = 10

// SearchBuilder composes a KNN query fluently:
//
//	results, err := db.Search(query).KNN(5).EF(64).Execute(ctx)
type SearchBuilder struct {
	db     *AnnLite
	query  []float32
	topN   int
	optFns []func(o *KNNSearchOptions)
}

// Search starts building a query for the nearest neighbors of the given
// vector.
func (a *AnnLite) Search(query []float32) *SearchBuilder {
	return &SearchBuilder{
		db:    a,
		query: query,
		topN:  DefaultTopN,
	}
}

// KNN sets the number of neighbors to return.
func (b *SearchBuilder) KNN(topN int) *SearchBuilder {
	b.topN = topN
	return b
}

// EF sets the candidate list size for this query. Execute fails with
// ErrInvalidEFValue if the value is smaller than the requested number of
// neighbors.
func (b *SearchBuilder) EF(ef int) *SearchBuilder {
	b.optFns = append(b.optFns, func(o *KNNSearchOptions) {
		o.EF = ef
	})
	return b
}

// Exact forces an exhaustive scan instead of the graph search.
func (b *SearchBuilder) Exact() *SearchBuilder {
	b.optFns = append(b.optFns, func(o *KNNSearchOptions) {
		o.Exact = true
	})
	return b
}

// Filter restricts results to IDs for which fn returns true.
func (b *SearchBuilder) Filter(fn func(id uint32) bool) *SearchBuilder {
	b.optFns = append(b.optFns, func(o *KNNSearchOptions) {
		o.Filter = fn
	})
	return b
}

// Where restricts results to nodes whose metadata matches every given
// filter.
func (b *SearchBuilder) Where(filters ...metadata.Filter) *SearchBuilder {
	b.optFns = append(b.optFns, func(o *KNNSearchOptions) {
		o.Metadata.Filters = append(o.Metadata.Filters, filters...)
	})
	return b
}

// Execute runs the query.
func (b *SearchBuilder) Execute(ctx context.Context) ([]SearchResult, error) {
	return b.db.KNNSearch(ctx, b.query, b.topN, b.optFns...)
}
