package scalar

import (
	"encoding/binary"
	"errors"
	"fmt"

	"vectorstore-go/internal/common"

	"github.com/nutsdb/nutsdb"
)

const (
	NamespaceDocs = "docs"
	NamespaceMeta = "meta"
)

var (
	keyIDMax = []byte("__id_max__")
)

// ScalarStorage defines the interface for scalar database operations
type ScalarStorage interface {
	// Put stores a key-value pair in the specified namespace
	Put(namespace string, key []byte, value []byte) error

	// Get retrieves a value by key from the specified namespace, nil when missing
	Get(namespace string, key []byte) ([]byte, error)

	// Delete removes a key; deleting a missing key is not an error
	Delete(namespace string, key []byte) error

	// GetRow retrieves a stored row by ID, nil when missing
	GetRow(namespace string, id uint64) (*common.Row, error)

	// MultiGetRows retrieves rows by IDs, skipping missing ones
	MultiGetRows(namespace string, ids []uint64) ([]common.Row, error)

	// GenIncrIDs generates a sequence of unique IDs for a namespace
	GenIncrIDs(namespace string, count int) ([]uint64, error)

	// Iterator returns an iterator for all key-value pairs in the specified namespace
	Iterator(namespace string) (ScalarIterator, error)

	// Close closes the database
	Close() error
}

type ScalarOption struct {
	DIR     string   `toml:"dir"`
	Buckets []string `toml:"buckets"`
}

type ScalarIterator common.KVIterator[[]byte]

type nutsDBStorage struct {
	db *nutsdb.DB
}

var _ ScalarStorage = (*nutsDBStorage)(nil)

// NewScalarStorage opens (or creates) the NutsDB directory and ensures every bucket exists
func NewScalarStorage(opts *ScalarOption) (ScalarStorage, error) {
	dbOpts := nutsdb.DefaultOptions
	dbOpts.Dir = opts.DIR
	dbOpts.EntryIdxMode = nutsdb.HintKeyValAndRAMIdxMode
	dbOpts.SegmentSize = 64 * 1024 * 1024

	db, err := nutsdb.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open nutsdb at %s: %w", opts.DIR, err)
	}

	err = db.Update(func(tx *nutsdb.Tx) error {
		for _, bucket := range opts.Buckets {
			if tx.ExistBucket(nutsdb.DataStructureBTree, bucket) {
				continue
			}
			if err := tx.NewBucket(nutsdb.DataStructureBTree, bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &nutsDBStorage{db: db}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, nutsdb.ErrKeyNotFound) || errors.Is(err, nutsdb.ErrBucketEmpty)
}

// lookup reads key inside tx; a missing key yields nil without error
func lookup(tx *nutsdb.Tx, namespace string, key []byte) ([]byte, error) {
	value, err := tx.Get(namespace, key)
	if isNotFound(err) {
		return nil, nil
	}
	return value, err
}

func (s *nutsDBStorage) Put(namespace string, key []byte, value []byte) error {
	if err := s.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(namespace, key, value, 0)
	}); err != nil {
		return fmt.Errorf("failed to put key in %s: %w", namespace, err)
	}
	return nil
}

func (s *nutsDBStorage) Get(namespace string, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *nutsdb.Tx) (err error) {
		value, err = lookup(tx, namespace, key)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key from %s: %w", namespace, err)
	}
	return value, nil
}

func (s *nutsDBStorage) Delete(namespace string, key []byte) error {
	err := s.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Delete(namespace, key)
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete key from %s: %w", namespace, err)
	}
	return nil
}

func (s *nutsDBStorage) GetRow(namespace string, id uint64) (*common.Row, error) {
	rows, err := s.MultiGetRows(namespace, []uint64{id})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// MultiGetRows reads all ids in one read transaction, preserving the order of ids
func (s *nutsDBStorage) MultiGetRows(namespace string, ids []uint64) ([]common.Row, error) {
	rows := make([]common.Row, 0, len(ids))

	err := s.db.View(func(tx *nutsdb.Tx) error {
		for _, id := range ids {
			data, err := lookup(tx, namespace, EncodeID(id))
			if err != nil {
				return err
			}
			if data == nil {
				continue
			}
			row, err := common.JSONUnmarshal[common.Row](data)
			if err != nil {
				return fmt.Errorf("failed to decode row %d: %w", id, err)
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("failed to read rows from %s: %w", namespace, err)
	}
	return rows, nil
}

// GenIncrIDs reserves count consecutive keys after the namespace's high-water mark.
// Keys start at 1 and are never handed out twice, even when the rows are later rolled back.
func (s *nutsDBStorage) GenIncrIDs(namespace string, count int) ([]uint64, error) {
	if count < 0 {
		return nil, fmt.Errorf("id count must not be negative, got %d", count)
	}

	ids := make([]uint64, count)
	err := s.db.Update(func(tx *nutsdb.Tx) error {
		current, err := lookup(tx, namespace, keyIDMax)
		if err != nil {
			return fmt.Errorf("failed to read id high-water mark: %w", err)
		}
		last := DecodeID(current)
		for i := range ids {
			ids[i] = last + uint64(i) + 1
		}
		return tx.Put(namespace, keyIDMax, EncodeID(last+uint64(count)), 0)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *nutsDBStorage) Close() error {
	return s.db.Close()
}

// Iterator snapshots the namespace and yields its pairs in key order
func (s *nutsDBStorage) Iterator(namespace string) (ScalarIterator, error) {
	var keys, values [][]byte
	err := s.db.View(func(tx *nutsdb.Tx) (err error) {
		keys, values, err = tx.GetAll(namespace)
		return err
	})
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("failed to scan %s: %w", namespace, err)
	}

	return func(yield func(common.KVPair[[]byte]) bool) {
		for i := range keys {
			if !yield(common.KVPair[[]byte]{Key: keys[i], Value: values[i]}) {
				return
			}
		}
	}, nil
}

// IsRowKey reports whether a docs key addresses a row rather than bookkeeping
func IsRowKey(key []byte) bool {
	return len(key) == 8
}

func EncodeID(id uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), id)
}

// DecodeID returns 0 for keys shorter than 8 bytes
func DecodeID(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key)
}
