package math

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix32_Unmarshal(t *testing.T) {
	tests := []struct {
		name        string
		jsonData    string
		wantRows    int
		wantCols    int
		wantData    []float32
		expectError bool
	}{
		{
			name:     "valid 2x3 matrix",
			jsonData: `[[1.0, 2.0, 3.0], [4.0, 5.0, 6.0]]`,
			wantRows: 2,
			wantCols: 3,
			wantData: []float32{1.0, 2.0, 3.0, 4.0, 5.0, 6.0},
		},
		{
			name:     "valid 3x2 matrix",
			jsonData: `[[1.0, 2.0], [3.0, 4.0], [5.0, 6.0]]`,
			wantRows: 3,
			wantCols: 2,
			wantData: []float32{1.0, 2.0, 3.0, 4.0, 5.0, 6.0},
		},
		{
			name:     "single row matrix",
			jsonData: `[[7.0, 8.0, 9.0]]`,
			wantRows: 1,
			wantCols: 3,
			wantData: []float32{7.0, 8.0, 9.0},
		},
		{
			name:     "empty matrix",
			jsonData: `[]`,
			wantRows: 0,
			wantCols: 0,
			wantData: []float32{},
		},
		{
			name:        "inconsistent row lengths",
			jsonData:    `[[1.0, 2.0], [3.0, 4.0, 5.0]]`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Matrix32
			err := json.Unmarshal([]byte(tt.jsonData), &m)

			if tt.expectError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			rows, cols := m.Dims()
			assert.Equal(t, tt.wantRows, rows, "Rows mismatch")
			assert.Equal(t, tt.wantCols, cols, "Cols mismatch")
			assert.Equal(t, tt.wantData, m.RawData(), "Data mismatch")
		})
	}
}

func TestMatrix32_SetAndRow(t *testing.T) {
	m := NewMatrix32Empty(2, 2)
	m.Set(1, 0, 3)
	m.Set(1, 1, 4)

	assert.Equal(t, []float32{0, 0}, m.Row(0))
	assert.Equal(t, []float32{3, 4}, m.Row(1))
}
