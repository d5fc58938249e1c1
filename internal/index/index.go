package index

import (
	"errors"
	"fmt"

	"vectorstore-go/internal/common"

	faiss "github.com/blevesearch/go-faiss"
)

var (
	ErrInvalidHNSWParams    = errors.New("invalid HNSW parameters")
	ErrUnsupportedIndexType = errors.New("unsupported index type")
	ErrUnsupportedMetric    = errors.New("unsupported metric type")
)

type Index interface {
	Insert(params *InsertParams) error
	Search(query *SearchQuery, k int) (*SearchResult, error)
	Ntotal() int64
	Dim() int
	Close()
}

// NewIndex builds the index described by params; params.Dim must be known
func NewIndex(params common.StoreParams) (Index, error) {
	if params.Dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", params.Dim)
	}

	switch params.IndexType {
	case common.IndexTypeFlat:
		return NewFlatIndex(params.Dim, params.MetricType)
	case common.IndexTypeHnsw:
		if params.HnswParams == nil {
			return nil, ErrInvalidHNSWParams
		}
		return NewHNSWIndex(params.Dim, params.MetricType, params.HnswParams.EFConstruction, params.HnswParams.M)
	default:
		return nil, ErrUnsupportedIndexType
	}
}

type MetricType = common.MetricType

var (
	L2 MetricType = common.MetricTypeL2
	IP MetricType = common.MetricTypeIP
)

type SearchResult struct {
	Distances []float32
	Labels    []int64
}

func faissMetric(metric MetricType) (int, error) {
	switch metric {
	case L2:
		return faiss.MetricL2, nil
	case IP:
		return faiss.MetricInnerProduct, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMetric, metric)
	}
}

// insertInto adds labelled rows to a FAISS index
func insertInto(idx faiss.Index, dim int, params *InsertParams) error {
	n, cols := params.Data.Dims()
	if n != len(params.Labels) {
		return fmt.Errorf("data and labels length mismatch")
	}
	if n == 0 {
		return nil
	}
	if cols != dim {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dim, cols)
	}
	// Get raw data from matrix without copying
	flat := params.Data.RawData()
	if err := idx.AddWithIDs(flat, params.Labels); err != nil {
		return fmt.Errorf("failed to insert data: %w", err)
	}
	return nil
}

// searchIn runs a k-NN query and drops the -1 labels FAISS pads short results with
func searchIn(idx faiss.Index, dim int, query *SearchQuery, k int) (*SearchResult, error) {
	if len(query.Vector) != dim {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", dim, len(query.Vector))
	}

	ntotal := idx.Ntotal()
	if k > int(ntotal) {
		k = int(ntotal)
	}
	if query.IdFilter != nil && uint64(k) > query.IdFilter.Cardinality() {
		k = int(query.IdFilter.Cardinality())
	}
	if k <= 0 {
		return &SearchResult{Distances: []float32{}, Labels: []int64{}}, nil
	}

	var labels []int64
	var distances []float32
	var err error

	if query.IdFilter != nil {
		// Use FAISS SearchWithIDs for filtering during search (not post-filtering)
		selector, selErr := query.IdFilter.AsSelector()
		if selErr != nil {
			return nil, fmt.Errorf("failed to create selector: %w", selErr)
		}
		defer selector.Delete()
		distances, labels, err = idx.SearchWithIDs(query.Vector, int64(k), selector, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to search with filter: %w", err)
		}
	} else {
		distances, labels, err = idx.Search(query.Vector, int64(k))
		if err != nil {
			return nil, fmt.Errorf("failed to search: %w", err)
		}
	}

	result := &SearchResult{
		Distances: make([]float32, 0, len(labels)),
		Labels:    make([]int64, 0, len(labels)),
	}
	for i, label := range labels {
		if label < 0 {
			continue
		}
		result.Labels = append(result.Labels, label)
		result.Distances = append(result.Distances, distances[i])
	}
	return result, nil
}
