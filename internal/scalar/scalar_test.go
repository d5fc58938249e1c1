package scalar

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"vectorstore-go/internal/common"
	"vectorstore-go/pkg/managed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) ScalarStorage {
	t.Helper()

	db, err := NewScalarStorage(&ScalarOption{
		DIR:     t.TempDir(),
		Buckets: []string{NamespaceDocs, NamespaceMeta},
	})
	require.NoError(t, err, "Failed to create test database")
	t.Cleanup(func() { db.Close() })

	return db
}

func putRow(t *testing.T, db ScalarStorage, row common.Row) {
	t.Helper()
	data, err := json.Marshal(row)
	require.NoError(t, err)
	require.NoError(t, db.Put(NamespaceDocs, EncodeID(row.ID), data))
}

func TestPutGetDelete(t *testing.T) {
	db := setupTestDB(t)

	key := []byte("test_key")
	value := []byte("test_value")

	require.NoError(t, db.Put(NamespaceMeta, key, value))

	retrieved, err := db.Get(NamespaceMeta, key)
	require.NoError(t, err)
	assert.Equal(t, value, retrieved)

	nonExistent, err := db.Get(NamespaceMeta, []byte("non_existent"))
	require.NoError(t, err)
	assert.Nil(t, nonExistent)

	require.NoError(t, db.Delete(NamespaceMeta, key))
	retrieved, err = db.Get(NamespaceMeta, key)
	require.NoError(t, err)
	assert.Nil(t, retrieved)
}

func TestGetRowAndMultiGetRows(t *testing.T) {
	db := setupTestDB(t)

	rows := []common.Row{
		{ID: 1, Vector: []float32{1, 2}, Columns: map[string]managed.Value{"text": managed.String("Alice"), "age": managed.Int(30)}},
		{ID: 2, Vector: []float32{3, 4}, Columns: map[string]managed.Value{"text": managed.String("Bob")}, Attributes: map[string]int64{"age": 25}},
		{ID: 3, Columns: map[string]managed.Value{"text": managed.String("Charlie")}},
	}
	for _, row := range rows {
		putRow(t, db, row)
	}

	got, err := db.GetRow(NamespaceDocs, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []float32{1, 2}, got.Vector)
	assert.True(t, managed.Int(30).Equal(got.Columns["age"]), "ints survive storage as ints")

	missing, err := db.GetRow(NamespaceDocs, 42)
	require.NoError(t, err)
	assert.Nil(t, missing)

	multi, err := db.MultiGetRows(NamespaceDocs, []uint64{3, 42, 2})
	require.NoError(t, err)
	require.Len(t, multi, 2)
	assert.Equal(t, uint64(3), multi[0].ID)
	assert.Equal(t, uint64(2), multi[1].ID)
	assert.Equal(t, map[string]int64{"age": 25}, multi[1].Attributes)
}

func TestGenIncrIDs(t *testing.T) {
	db := setupTestDB(t)

	ids1, err := db.GenIncrIDs(NamespaceDocs, 5)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, ids1)

	ids2, err := db.GenIncrIDs(NamespaceDocs, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{6, 7, 8}, ids2)

	none, err := db.GenIncrIDs(NamespaceDocs, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = db.GenIncrIDs(NamespaceDocs, -1)
	assert.Error(t, err)
}

func TestGenIncrIDsConcurrent(t *testing.T) {
	db := setupTestDB(t)

	const workers = 8
	const perWorker = 10

	var mu sync.Mutex
	var wg sync.WaitGroup
	allIDs := make(map[uint64]bool)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := db.GenIncrIDs(NamespaceDocs, perWorker)
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				assert.False(t, allIDs[id], "Duplicate ID generated: %d", id)
				allIDs[id] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, allIDs, workers*perWorker)
}

func TestIterator(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GenIncrIDs(NamespaceDocs, 2)
	require.NoError(t, err)
	for i := uint64(1); i <= 2; i++ {
		putRow(t, db, common.Row{ID: i, Columns: map[string]managed.Value{"text": managed.String(fmt.Sprintf("doc%d", i))}})
	}

	iter, err := db.Iterator(NamespaceDocs)
	require.NoError(t, err)

	rowKeys := 0
	total := 0
	for pair := range iter {
		total++
		if IsRowKey(pair.Key) {
			rowKeys++
		}
	}
	assert.Equal(t, 2, rowKeys)
	assert.Equal(t, 3, total, "rows plus the id counter")
}

func TestEncodeDecodeID(t *testing.T) {
	for _, id := range []uint64{0, 1, 255, 1 << 40} {
		assert.Equal(t, id, DecodeID(EncodeID(id)))
	}
	assert.Equal(t, uint64(0), DecodeID([]byte{1}))
	assert.False(t, IsRowKey(keyIDMax))
	assert.True(t, IsRowKey(EncodeID(7)))
}
