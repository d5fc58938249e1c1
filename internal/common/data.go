package common

import (
	"iter"

	"vectorstore-go/pkg/managed"
)

type KVPair[T any] struct {
	Key   []byte
	Value T
}

type KVIterator[T any] iter.Seq[KVPair[T]]

// Row is one stored vector plus its column values
type Row struct {
	ID         uint64                   `json:"id"`
	Vector     []float32                `json:"vector,omitempty"`
	Columns    map[string]managed.Value `json:"columns"`
	Attributes map[string]int64         `json:"attributes,omitempty"`
}

// RowAttributes collects the integer values of a row that can be used as filters.
// Integer columns are keyed by tensor name, integral entries of json columns by their own key.
func RowAttributes(specs []TensorSpec, columns map[string]managed.Value) map[string]int64 {
	attrs := make(map[string]int64)
	for _, spec := range specs {
		value, ok := columns[spec.Name]
		if !ok {
			continue
		}

		if spec.Htype == HtypeJSON {
			entries, ok := value.AsMap()
			if !ok {
				continue
			}
			for key, entry := range entries {
				if n, ok := ToInt64(entry.Any()); ok {
					attrs[key] = n
				}
			}
			continue
		}

		if n, ok := value.AsInt(); ok {
			attrs[spec.Name] = n
		}
	}
	return attrs
}
