package index

import (
	"vectorstore-go/internal/common/math"
	"vectorstore-go/internal/filter"
)

// SearchQuery is one k-nearest-neighbour lookup
type SearchQuery struct {
	Vector []float32
	// IdFilter restricts candidates; nil means unrestricted, empty means no candidates
	IdFilter *filter.IdFilter
	Hnsw     *HnswSearchOption
}

// SearchOption carries index-specific knobs; indexes ignore options meant for other kinds
type SearchOption interface {
	SetQuery(query *SearchQuery)
}

// HnswSearchOption overrides efSearch for a single query
type HnswSearchOption struct {
	EfSearch uint32
}

func (o *HnswSearchOption) SetQuery(query *SearchQuery) { query.Hnsw = o }

func NewSearchQuery(vector []float32) *SearchQuery {
	return &SearchQuery{Vector: vector}
}

func (q *SearchQuery) With(options ...SearchOption) *SearchQuery {
	for _, opt := range options {
		opt.SetQuery(q)
	}
	return q
}

func (q *SearchQuery) WithFilter(candidates *filter.IdFilter) *SearchQuery {
	q.IdFilter = candidates
	return q
}

// InsertParams pairs embedding rows with their row keys; Data.Rows must equal len(Labels)
type InsertParams struct {
	Data   *math.Matrix32
	Labels []int64
}

func NewInsertParams(data *math.Matrix32, labels []int64) *InsertParams {
	return &InsertParams{Data: data, Labels: labels}
}
