package common

import (
	"bytes"
	"encoding/json"
	"math"
)

// JSONUnmarshal decodes data into a new T, keeping numbers as json.Number
func JSONUnmarshal[T any](data []byte) (T, error) {
	var result T

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	err := dec.Decode(&result)

	return result, err
}

// ToInt64 converts integer-valued numbers to int64
func ToInt64(intValue any) (int64, bool) {
	switch v := intValue.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return int64(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
	}

	return 0, false
}
