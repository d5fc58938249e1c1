package math

import (
	"encoding/json"
	"fmt"
)

// Matrix32 represents a matrix with float32 data in row-major order
type Matrix32 struct {
	Rows int
	Cols int
	Data []float32 // row-major: Data[i*Cols + j] = element at row i, col j
}

// NewMatrix32Empty allocates a zeroed rows x cols matrix
func NewMatrix32Empty(rows, cols int) *Matrix32 {
	return &Matrix32{
		Rows: rows,
		Cols: cols,
		Data: make([]float32, rows*cols),
	}
}

// NewMatrix32FromRows flattens equally sized rows into a matrix
func NewMatrix32FromRows(rows [][]float32) (*Matrix32, error) {
	if len(rows) == 0 {
		return &Matrix32{Data: []float32{}}, nil
	}

	cols := len(rows[0])
	m := NewMatrix32Empty(len(rows), cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("inconsistent row length at row %d: expected %d, got %d", i, cols, len(row))
		}
		copy(m.Data[i*cols:(i+1)*cols], row)
	}

	return m, nil
}

// Dims returns the number of rows and columns
func (m *Matrix32) Dims() (int, int) {
	return m.Rows, m.Cols
}

// RawData returns the underlying float32 slice
func (m *Matrix32) RawData() []float32 {
	return m.Data
}

// Set writes one element
func (m *Matrix32) Set(i, j int, v float32) {
	m.Data[i*m.Cols+j] = v
}

// Row returns row i as a slice sharing the matrix storage
func (m *Matrix32) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// UnmarshalJSON implements json.Unmarshaler interface
// Accepts JSON in the format: [[1.0, 2.0, 3.0], [4.0, 5.0, 6.0]]
func (m *Matrix32) UnmarshalJSON(data []byte) error {
	var temp [][]float32
	if err := json.Unmarshal(data, &temp); err != nil {
		return fmt.Errorf("failed to unmarshal matrix: %w", err)
	}

	parsed, err := NewMatrix32FromRows(temp)
	if err != nil {
		return err
	}

	*m = *parsed
	return nil
}
