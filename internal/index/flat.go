package index

import (
	"fmt"
	"sync"

	faiss "github.com/blevesearch/go-faiss"
)

type FlatIndex struct {
	index faiss.Index
	dim   int
	mu    sync.Mutex
}

var _ Index = (*FlatIndex)(nil)

func NewFlatIndex(dim int, metric MetricType) (*FlatIndex, error) {
	metricType, err := faissMetric(metric)
	if err != nil {
		return nil, err
	}
	idx, err := faiss.IndexFactory(dim, "IDMap,Flat", metricType)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}
	return &FlatIndex{index: idx, dim: dim}, nil
}

func (fi *FlatIndex) Insert(params *InsertParams) error {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return insertInto(fi.index, fi.dim, params)
}

func (fi *FlatIndex) Search(query *SearchQuery, k int) (*SearchResult, error) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return searchIn(fi.index, fi.dim, query, k)
}

func (fi *FlatIndex) Ntotal() int64 {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return fi.index.Ntotal()
}

func (fi *FlatIndex) Dim() int { return fi.dim }

func (fi *FlatIndex) Close() {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.index.Close()
}
