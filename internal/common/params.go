package common

import (
	"fmt"

	"vectorstore-go/pkg/managed"
)

// IndexType represents the type of vector index
type IndexType string

const (
	IndexTypeFlat IndexType = "flat"
	IndexTypeHnsw IndexType = "hnsw"
)

// MetricType represents the distance metric type
type MetricType string

const (
	MetricTypeL2 MetricType = "l2"
	MetricTypeIP MetricType = "ip"
)

// Tensor htypes understood by the store
const (
	HtypeEmbedding = "embedding"
	HtypeText      = "text"
	HtypeJSON      = "json"
	HtypeGeneric   = "generic"
)

// IDTensorName is the tensor that receives generated row identifiers
const IDTensorName = "id"

// StoreParams contains parameters for store initialization
type StoreParams struct {
	Dim        int              `json:"dim"`
	MetricType MetricType       `json:"metric_type"`
	IndexType  IndexType        `json:"index_type"`
	HnswParams *HnswIndexOption `json:"hnsw_params,omitempty"`
	Version    string           `json:"version"`
}

// HnswIndexOption contains HNSW index creation parameters
type HnswIndexOption struct {
	EFConstruction int `json:"ef_construction"`
	M              int `json:"m"`
}

func (p StoreParams) Validate() error {
	switch p.MetricType {
	case MetricTypeL2, MetricTypeIP:
	default:
		return fmt.Errorf("unsupported metric type %q", p.MetricType)
	}

	switch p.IndexType {
	case IndexTypeFlat:
	case IndexTypeHnsw:
		if p.HnswParams == nil || p.HnswParams.M <= 0 || p.HnswParams.EFConstruction <= 0 {
			return fmt.Errorf("hnsw index requires positive m and ef_construction")
		}
	default:
		return fmt.Errorf("unsupported index type %q", p.IndexType)
	}

	if p.Dim < 0 {
		return fmt.Errorf("dimension must not be negative, got %d", p.Dim)
	}

	return nil
}

// TensorSpec is the part of a tensor's parameters the store acts on
type TensorSpec struct {
	Name        string
	Htype       string
	Dtype       string
	Compression string
}

// DefaultDtype returns the dtype shown for a tensor that does not declare one
func (s TensorSpec) DefaultDtype() string {
	if s.Dtype != "" {
		return s.Dtype
	}
	switch s.Htype {
	case HtypeEmbedding:
		return "float32"
	case HtypeText:
		return "str"
	case HtypeJSON:
		return "Any"
	default:
		return "None"
	}
}

// ParseTensorSpecs validates tensor parameters and extracts their specs
func ParseTensorSpecs(params []managed.TensorParams) ([]TensorSpec, error) {
	specs := make([]TensorSpec, 0, len(params))
	seen := make(map[string]bool, len(params))
	embeddings := 0

	for i, p := range params {
		name := p.Name()
		if name == "" {
			return nil, fmt.Errorf("tensor %d has no name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate tensor name %q", name)
		}
		seen[name] = true

		htype := p.Htype()
		if htype == "" {
			htype = HtypeGeneric
		}
		if htype == HtypeEmbedding {
			embeddings++
		}

		specs = append(specs, TensorSpec{
			Name:        name,
			Htype:       htype,
			Dtype:       p.Dtype(),
			Compression: p.SampleCompression(),
		})
	}

	if embeddings > 1 {
		return nil, fmt.Errorf("at most one embedding tensor is supported, got %d", embeddings)
	}

	return specs, nil
}

// IntFilterInput defines an integer field filter
type IntFilterInput struct {
	Field  string `json:"field"`
	Op     string `json:"op"` // "equal" or "not_equal"
	Target int64  `json:"target"`
}
