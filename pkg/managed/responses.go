package managed

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

var (
	ErrNegativeLength = errors.New("length must not be negative")
	ErrColumnLength   = errors.New("column length does not match row count")
	ErrTensorName     = errors.New("tensor parameters must carry a name")
	ErrIDCount        = errors.New("id count does not match row count")
)

// StatusCode is the HTTP status of a managed operation. It is the only error signal a response
// carries; payload fields of a failing response are not meaningful.
type StatusCode int

// Success reports whether the code is in the 2xx range.
func (c StatusCode) Success() bool { return c >= 200 && c < 300 }

// SummaryResponse is the reply to a store summary request.
type SummaryResponse struct {
	StatusCode StatusCode     `json:"status_code"`
	Summary    string         `json:"summary"`
	Length     int            `json:"length"`
	Tensors    []TensorParams `json:"tensors"`
}

func (r SummaryResponse) Validate() error {
	if r.Length < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeLength, r.Length)
	}
	return validateTensors(r.Tensors)
}

func (r SummaryResponse) Equal(o SummaryResponse) bool {
	return r.StatusCode == o.StatusCode &&
		r.Summary == o.Summary &&
		r.Length == o.Length &&
		equalTensors(r.Tensors, o.Tensors)
}

func (r *SummaryResponse) UnmarshalJSON(data []byte) error {
	type plain SummaryResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	decoded := SummaryResponse(p)
	if err := decoded.Validate(); err != nil {
		return err
	}
	*r = decoded
	return nil
}

// InitResponse is the reply to a store initialization. Length and Tensors describe the store
// after the call; Exists is true when an existing store was reused.
type InitResponse struct {
	StatusCode StatusCode     `json:"status_code"`
	Path       string         `json:"path"`
	Summary    string         `json:"summary"`
	Length     int            `json:"length"`
	Tensors    []TensorParams `json:"tensors"`
	Exists     bool           `json:"exists"`
}

func (r InitResponse) Validate() error {
	if r.Length < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeLength, r.Length)
	}
	return validateTensors(r.Tensors)
}

func (r InitResponse) Equal(o InitResponse) bool {
	return r.StatusCode == o.StatusCode &&
		r.Path == o.Path &&
		r.Summary == o.Summary &&
		r.Length == o.Length &&
		equalTensors(r.Tensors, o.Tensors) &&
		r.Exists == o.Exists
}

func (r *InitResponse) UnmarshalJSON(data []byte) error {
	type plain InitResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	decoded := InitResponse(p)
	if err := decoded.Validate(); err != nil {
		return err
	}
	*r = decoded
	return nil
}

// SearchResponse is the reply to a similarity search. Data maps each returned column to its
// per-row values; every column has exactly Length values.
type SearchResponse struct {
	StatusCode StatusCode         `json:"status_code"`
	Length     int                `json:"length"`
	Data       map[string][]Value `json:"data"`
}

func (r SearchResponse) Validate() error {
	if r.Length < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeLength, r.Length)
	}
	for name, column := range r.Data {
		if len(column) != r.Length {
			return fmt.Errorf("%w: column %q has %d values, length is %d", ErrColumnLength, name, len(column), r.Length)
		}
	}
	return nil
}

// Column returns a copy of one column of the result.
func (r SearchResponse) Column(name string) ([]Value, bool) {
	column, ok := r.Data[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(column), true
}

// Columns returns the column names in sorted order.
func (r SearchResponse) Columns() []string {
	return slices.Sorted(maps.Keys(r.Data))
}

func (r SearchResponse) Equal(o SearchResponse) bool {
	return r.StatusCode == o.StatusCode &&
		r.Length == o.Length &&
		maps.EqualFunc(r.Data, o.Data, func(a, b []Value) bool {
			return slices.EqualFunc(a, b, Value.Equal)
		})
}

func (r *SearchResponse) UnmarshalJSON(data []byte) error {
	type plain SearchResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	decoded := SearchResponse(p)
	if err := decoded.Validate(); err != nil {
		return err
	}
	*r = decoded
	return nil
}

// AddResponse is the reply to a vector insertion. IDs is absent when the service does not
// return identifiers.
type AddResponse struct {
	StatusCode StatusCode `json:"status_code"`
	IDs        IDs        `json:"ids,omitzero"`
}

// Validate has nothing to check on its own; see CheckRows.
func (r AddResponse) Validate() error { return nil }

// CheckRows verifies that present ids hold one identifier per attempted row.
func (r AddResponse) CheckRows(rows int) error {
	if r.IDs.Present() && r.IDs.Len() != rows {
		return fmt.Errorf("%w: %d ids for %d rows", ErrIDCount, r.IDs.Len(), rows)
	}
	return nil
}

func (r AddResponse) Equal(o AddResponse) bool {
	return r.StatusCode == o.StatusCode && r.IDs.Equal(o.IDs)
}

func validateTensors(ts []TensorParams) error {
	for i, t := range ts {
		if t.Name() == "" {
			return fmt.Errorf("%w: tensor %d", ErrTensorName, i)
		}
	}
	return nil
}
