package managed

import (
	"errors"
	"fmt"
)

// DefaultK is the number of results a search returns when k is not set.
const DefaultK = 4

// Filter operations accepted in SearchRequest.Filter.
const (
	FilterEqual    = "equal"
	FilterNotEqual = "not_equal"
)

var ErrRaggedColumns = errors.New("columns have different lengths")

// HnswParams configures an HNSW index at store creation.
type HnswParams struct {
	EFConstruction int `json:"ef_construction"`
	M              int `json:"m"`
}

// InitRequest creates a store at Path, or reuses the existing one unless Overwrite is set.
// Empty TensorParams selects DefaultTensorParams.
type InitRequest struct {
	Path         string         `json:"path"`
	TensorParams []TensorParams `json:"tensor_params,omitempty"`
	Overwrite    bool           `json:"overwrite"`
	IndexType    string         `json:"index_type,omitempty"`
	MetricType   string         `json:"metric_type,omitempty"`
	HnswParams   *HnswParams    `json:"hnsw_params,omitempty"`
}

// FilterInput restricts a search to rows whose integer attribute Field compares to Target.
type FilterInput struct {
	Field  string `json:"field"`
	Op     string `json:"op"`
	Target int64  `json:"target"`
}

// SearchRequest runs a k-nearest-neighbour query against the embedding tensor of a store.
type SearchRequest struct {
	Path          string        `json:"path"`
	Embedding     []float32     `json:"embedding"`
	K             int           `json:"k,omitempty"`
	Filter        []FilterInput `json:"filter,omitempty"`
	ReturnTensors []string      `json:"return_tensors,omitempty"`
	EfSearch      uint32        `json:"ef_search,omitempty"`
}

// TopK returns K, or DefaultK when unset.
func (r SearchRequest) TopK() int {
	if r.K <= 0 {
		return DefaultK
	}
	return r.K
}

// AddRequest appends rows given column-wise: Data maps tensor names to per-row values.
type AddRequest struct {
	Path string             `json:"path"`
	Data map[string][]Value `json:"data"`
}

// Rows returns the common column length.
func (r AddRequest) Rows() (int, error) {
	rows := -1
	for name, column := range r.Data {
		if rows == -1 {
			rows = len(column)
			continue
		}
		if len(column) != rows {
			return 0, fmt.Errorf("%w: column %q has %d values, expected %d", ErrRaggedColumns, name, len(column), rows)
		}
	}
	if rows == -1 {
		return 0, nil
	}
	return rows, nil
}
