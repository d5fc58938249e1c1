package vecdb

import (
	"encoding/json"
	"errors"
	"fmt"

	"vectorstore-go/internal/common"
	"vectorstore-go/internal/scalar"
	"vectorstore-go/pkg/managed"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStoreNotFound   = errors.New("store not found")
	ErrInvalidPath     = fmt.Errorf("%w: invalid store path", ErrInvalidArgument)
	ErrNoEmbedding     = fmt.Errorf("%w: store has no embedding tensor", ErrInvalidArgument)
	ErrStoreClosed     = errors.New("store is closed")
)

var keyStoreMeta = []byte("store")

// StoreMeta is what a store records about itself in the meta bucket
type StoreMeta struct {
	Params    common.StoreParams     `json:"params"`
	Tensors   []managed.TensorParams `json:"tensors"`
	WALFormat string                 `json:"wal_format,omitempty"`
}

func loadMeta(storage scalar.ScalarStorage) (*StoreMeta, error) {
	data, err := storage.Get(scalar.NamespaceMeta, keyStoreMeta)
	if err != nil {
		return nil, fmt.Errorf("failed to read store metadata: %w", err)
	}
	if data == nil {
		return nil, ErrStoreNotFound
	}

	var meta StoreMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode store metadata: %w", err)
	}
	return &meta, nil
}

func saveMeta(storage scalar.ScalarStorage, meta *StoreMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode store metadata: %w", err)
	}
	if err := storage.Put(scalar.NamespaceMeta, keyStoreMeta, data); err != nil {
		return fmt.Errorf("failed to write store metadata: %w", err)
	}
	return nil
}
