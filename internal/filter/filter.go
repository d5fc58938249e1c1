package filter

import (
	"github.com/RoaringBitmap/roaring"
	faiss "github.com/blevesearch/go-faiss"
)

// IdFilter is the set of row keys a search may return. Row keys are allocated from 1 upward
// and stay below 2^32, which lets a 32-bit roaring bitmap hold them.
type IdFilter struct {
	keys *roaring.Bitmap
}

func NewIdFilter(keys ...uint64) *IdFilter {
	f := &IdFilter{keys: roaring.New()}
	f.AddAll(keys)
	return f
}

// FromBitmap takes ownership of keys
func FromBitmap(keys *roaring.Bitmap) *IdFilter {
	if keys == nil {
		keys = roaring.New()
	}
	return &IdFilter{keys: keys}
}

func (f *IdFilter) Add(key uint64) { f.keys.Add(uint32(key)) }

func (f *IdFilter) AddAll(keys []uint64) {
	for _, key := range keys {
		f.keys.Add(uint32(key))
	}
}

func (f *IdFilter) Contains(key uint64) bool { return f.keys.Contains(uint32(key)) }

func (f *IdFilter) IsEmpty() bool { return f.keys.IsEmpty() }

func (f *IdFilter) Cardinality() uint64 { return f.keys.GetCardinality() }

// Bitmap exposes the underlying set; callers must not mutate it
func (f *IdFilter) Bitmap() *roaring.Bitmap { return f.keys }

func (f *IdFilter) Clone() *IdFilter { return &IdFilter{keys: f.keys.Clone()} }

// AsSelector builds a FAISS batch selector over the keys. The caller owns the selector and must
// Delete it after the search.
func (f *IdFilter) AsSelector() (faiss.Selector, error) {
	labels := make([]int64, 0, f.keys.GetCardinality())
	f.keys.Iterate(func(key uint32) bool {
		labels = append(labels, int64(key))
		return true
	})
	return faiss.NewIDSelectorBatch(labels)
}
