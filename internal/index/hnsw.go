package index

import (
	"fmt"
	"sync"

	faiss "github.com/blevesearch/go-faiss"
)

// DefaultEfSearch is the FAISS HNSW efSearch used by queries that do not override it
const DefaultEfSearch = 16

type HNSWIndex struct {
	index faiss.Index
	dim   int
	// efConstruction is recorded only, the FAISS factory string cannot carry it
	efConstruction int
	// efSearch is the value currently set on the index
	efSearch uint32
	mu       sync.Mutex
}

var _ Index = (*HNSWIndex)(nil)

func NewHNSWIndex(dim int, metric MetricType, efConstruction int, M int) (*HNSWIndex, error) {
	if M <= 0 || efConstruction <= 0 {
		return nil, ErrInvalidHNSWParams
	}
	metricType, err := faissMetric(metric)
	if err != nil {
		return nil, err
	}
	idx, err := faiss.IndexFactory(dim, fmt.Sprintf("IDMap,HNSW%d", M), metricType)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}
	return &HNSWIndex{index: idx, dim: dim, efConstruction: efConstruction, efSearch: DefaultEfSearch}, nil
}

func (hi *HNSWIndex) setParameter(name string, value float64) error {
	ps, err := faiss.NewParameterSpace()
	if err != nil {
		return fmt.Errorf("failed to create parameter space: %w", err)
	}
	defer ps.Delete()
	if err := ps.SetIndexParameter(hi.index, name, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	return nil
}

func (hi *HNSWIndex) Insert(params *InsertParams) error {
	hi.mu.Lock()
	defer hi.mu.Unlock()
	return insertInto(hi.index, hi.dim, params)
}

func (hi *HNSWIndex) Search(query *SearchQuery, k int) (*SearchResult, error) {
	hi.mu.Lock()
	defer hi.mu.Unlock()
	// efSearch lives on the shared index, so every query sets the value it needs
	want := uint32(DefaultEfSearch)
	if query.Hnsw != nil && query.Hnsw.EfSearch > 0 {
		want = query.Hnsw.EfSearch
	}
	if want != hi.efSearch {
		if err := hi.setParameter("efSearch", float64(want)); err != nil {
			return nil, err
		}
		hi.efSearch = want
	}
	return searchIn(hi.index, hi.dim, query, k)
}

func (hi *HNSWIndex) Ntotal() int64 {
	hi.mu.Lock()
	defer hi.mu.Unlock()
	return hi.index.Ntotal()
}

func (hi *HNSWIndex) Dim() int { return hi.dim }

func (hi *HNSWIndex) Close() {
	hi.mu.Lock()
	defer hi.mu.Unlock()
	hi.index.Close()
}
