package filter

import (
	"fmt"
	"sync"

	"vectorstore-go/internal/common"

	"github.com/RoaringBitmap/roaring"
)

// FilterOp compares an integer attribute with a target
type FilterOp int

const (
	Equal FilterOp = iota
	NotEqual
)

// ParseFilterOp maps the wire names "equal" and "not_equal" to a FilterOp
func ParseFilterOp(op string) (FilterOp, error) {
	switch op {
	case "equal", "eq", "":
		return Equal, nil
	case "not_equal", "ne":
		return NotEqual, nil
	default:
		return Equal, fmt.Errorf("unsupported filter op %q", op)
	}
}

// IntFilterInput defines an integer field filter
type IntFilterInput struct {
	Field  string
	Op     FilterOp
	Target int64
}

// FromCommon converts request filters, rejecting unknown ops
func FromCommon(inputs []common.IntFilterInput) ([]IntFilterInput, error) {
	out := make([]IntFilterInput, 0, len(inputs))
	for _, in := range inputs {
		op, err := ParseFilterOp(in.Op)
		if err != nil {
			return nil, err
		}
		if in.Field == "" {
			return nil, fmt.Errorf("filter field must not be empty")
		}
		out = append(out, IntFilterInput{Field: in.Field, Op: op, Target: in.Target})
	}
	return out, nil
}

// IntFilterIndex keeps, per integer attribute and value, the set of row keys carrying it
type IntFilterIndex struct {
	mu       sync.RWMutex
	postings map[string]map[int64]*roaring.Bitmap
}

func NewIntFilterIndex() *IntFilterIndex {
	return &IntFilterIndex{postings: make(map[string]map[int64]*roaring.Bitmap)}
}

// Upsert records that row id carries field=value
func (idx *IntFilterIndex) Upsert(field string, value int64, id uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	values := idx.postings[field]
	if values == nil {
		values = make(map[int64]*roaring.Bitmap)
		idx.postings[field] = values
	}
	if values[value] == nil {
		values[value] = roaring.New()
	}
	values[value].Add(uint32(id))
}

// Remove undoes an Upsert; unknown pairs are ignored
func (idx *IntFilterIndex) Remove(field string, value int64, id uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	keys := idx.postings[field][value]
	if keys == nil {
		return
	}
	keys.Remove(uint32(id))
	if keys.IsEmpty() {
		delete(idx.postings[field], value)
	}
	if len(idx.postings[field]) == 0 {
		delete(idx.postings, field)
	}
}

// Apply returns base united with the keys matching input. base is not modified.
func (idx *IntFilterIndex) Apply(input *IntFilterInput, base *roaring.Bitmap) *roaring.Bitmap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := base.Clone()
	switch input.Op {
	case Equal:
		if keys := idx.postings[input.Field][input.Target]; keys != nil {
			out.Or(keys)
		}
	case NotEqual:
		for value, keys := range idx.postings[input.Field] {
			if value != input.Target {
				out.Or(keys)
			}
		}
	}
	return out
}

// Select returns the keys matching every input. No inputs yields nil, meaning "no restriction";
// rows without the attribute never match.
func (idx *IntFilterIndex) Select(inputs []IntFilterInput) *IdFilter {
	if len(inputs) == 0 {
		return nil
	}

	var result *roaring.Bitmap
	for i := range inputs {
		matched := idx.Apply(&inputs[i], roaring.New())
		if result == nil {
			result = matched
		} else {
			result.And(matched)
		}
	}

	return FromBitmap(result)
}
