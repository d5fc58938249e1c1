package vecdb

import (
	"net/http"
	"testing"

	"vectorstore-go/internal/common"
	"vectorstore-go/pkg/managed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, root string) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{RootDir: root})
	require.NoError(t, err)
	return m
}

func TestCleanStorePath(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "store", want: "store"},
		{input: "org/store", want: "org/store"},
		{input: " org//store/ ", want: "org/store"},
		{input: "", wantErr: true},
		{input: "/abs/store", wantErr: true},
		{input: "../escape", wantErr: true},
		{input: "org/../../escape", wantErr: true},
		{input: "org/../store", wantErr: true},
		{input: ".hidden", wantErr: true},
		{input: `org\store`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := CleanStorePath(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewManagerRequiresRoot(t *testing.T) {
	_, err := NewManager(ManagerConfig{})
	assert.Error(t, err)
}

func TestManagerInit(t *testing.T) {
	tp := newTestPath()
	defer tp.cleanup()

	m := newTestManager(t, tp.path())
	defer m.Close()

	fresh, err := m.Init(managed.InitRequest{Path: "org/store"})
	require.NoError(t, err)
	assert.Equal(t, managed.StatusCode(http.StatusOK), fresh.StatusCode)
	assert.Equal(t, "org/store", fresh.Path)
	assert.False(t, fresh.Exists)
	assert.Equal(t, 0, fresh.Length)
	assert.Len(t, fresh.Tensors, 4)
	assert.Contains(t, fresh.Summary, "org/store")
	require.NoError(t, fresh.Validate())

	_, err = m.Add(managed.AddRequest{Path: "org/store", Data: sampleData(testVectors[:2], []int64{1, 2})})
	require.NoError(t, err)

	// a second init reuses the store and ignores the requested schema
	reused, err := m.Init(managed.InitRequest{
		Path:         "org/store",
		TensorParams: []managed.TensorParams{managed.NewTensorParams("only", "text")},
	})
	require.NoError(t, err)
	assert.True(t, reused.Exists)
	assert.Equal(t, 2, reused.Length)
	assert.Len(t, reused.Tensors, 4)

	overwritten, err := m.Init(managed.InitRequest{
		Path:         "org/store",
		Overwrite:    true,
		TensorParams: []managed.TensorParams{managed.NewTensorParams("only", "text")},
	})
	require.NoError(t, err)
	assert.False(t, overwritten.Exists)
	assert.Equal(t, 0, overwritten.Length)
	require.Len(t, overwritten.Tensors, 1)
	assert.Equal(t, "only", overwritten.Tensors[0].Name())
	assert.Equal(t, 1, m.OpenStores())
}

func TestManagerInitOverwriteKeepsStoreOnBadSchema(t *testing.T) {
	tp := newTestPath()
	defer tp.cleanup()

	m := newTestManager(t, tp.path())
	defer m.Close()

	_, err := m.Init(managed.InitRequest{Path: "store"})
	require.NoError(t, err)
	_, err = m.Add(managed.AddRequest{Path: "store", Data: sampleData(testVectors[:1], []int64{1})})
	require.NoError(t, err)

	_, err = m.Init(managed.InitRequest{
		Path:      "store",
		Overwrite: true,
		TensorParams: []managed.TensorParams{
			managed.NewTensorParams("a", "embedding"),
			managed.NewTensorParams("b", "embedding"),
		},
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	summary, err := m.Summary("store")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Length)
}

func TestManagerInitIndexOptions(t *testing.T) {
	tp := newTestPath()
	defer tp.cleanup()

	m, err := NewManager(ManagerConfig{
		RootDir:    tp.path(),
		MetricType: common.MetricTypeIP,
		IndexType:  common.IndexTypeFlat,
	})
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Init(managed.InitRequest{Path: "defaults"})
	require.NoError(t, err)
	db, err := m.store("defaults")
	require.NoError(t, err)
	assert.Equal(t, common.MetricTypeIP, db.Params().MetricType)
	assert.Equal(t, common.IndexTypeFlat, db.Params().IndexType)

	_, err = m.Init(managed.InitRequest{Path: "hnsw", IndexType: "HNSW", MetricType: "l2"})
	require.NoError(t, err)
	db, err = m.store("hnsw")
	require.NoError(t, err)
	assert.Equal(t, common.IndexTypeHnsw, db.Params().IndexType)
	assert.Equal(t, DefaultHnswParams, *db.Params().HnswParams)

	_, err = m.Init(managed.InitRequest{Path: "bad", IndexType: "ivf"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = m.Init(managed.InitRequest{Path: "bad-hnsw", IndexType: "hnsw", HnswParams: &managed.HnswParams{M: 0, EFConstruction: 10}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestManagerMissingStore(t *testing.T) {
	tp := newTestPath()
	defer tp.cleanup()

	m := newTestManager(t, tp.path())
	defer m.Close()

	_, err := m.Summary("missing")
	assert.ErrorIs(t, err, ErrStoreNotFound)

	_, err = m.Search(managed.SearchRequest{Path: "missing", Embedding: []float32{1}})
	assert.ErrorIs(t, err, ErrStoreNotFound)

	_, err = m.Add(managed.AddRequest{Path: "missing"})
	assert.ErrorIs(t, err, ErrStoreNotFound)

	_, err = m.Summary("../missing")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestManagerSearchAndAdd(t *testing.T) {
	tp := newTestPath()
	defer tp.cleanup()

	m := newTestManager(t, tp.path())
	defer m.Close()

	_, err := m.Init(managed.InitRequest{Path: "store"})
	require.NoError(t, err)

	added, err := m.Add(managed.AddRequest{Path: "store", Data: sampleData(testVectors, []int64{1, 2, 1, 3})})
	require.NoError(t, err)
	assert.Equal(t, managed.StatusCode(http.StatusCreated), added.StatusCode)
	require.NoError(t, added.CheckRows(4))

	resp, err := m.Search(managed.SearchRequest{
		Path:          "store",
		Embedding:     []float32{1, 2, 3},
		Filter:        []managed.FilterInput{{Field: "category", Op: managed.FilterEqual, Target: 1}},
		ReturnTensors: []string{"id"},
	})
	require.NoError(t, err)
	assert.Equal(t, managed.StatusCode(http.StatusOK), resp.StatusCode)
	assert.Equal(t, 2, resp.Length)
	assert.Equal(t, []string{"id", "score"}, resp.Columns())
	require.NoError(t, resp.Validate())

	ids, _ := added.IDs.Values()
	first, _ := resp.Data["id"][0].AsString()
	assert.Equal(t, ids[0], first)
}

func TestManagerSearchRepliesAreValid(t *testing.T) {
	tp := newTestPath()
	defer tp.cleanup()

	m := newTestManager(t, tp.path())
	defer m.Close()

	_, err := m.Init(managed.InitRequest{Path: "store"})
	require.NoError(t, err)
	_, err = m.Add(managed.AddRequest{Path: "store", Data: sampleData(testVectors, []int64{1, 2, 1, 3})})
	require.NoError(t, err)

	tests := []struct {
		name          string
		k             int
		filter        []managed.FilterInput
		returnTensors []string
		wantLength    int
	}{
		{name: "default tensors", k: 3, wantLength: 3},
		{name: "repeated tensors", k: 4, returnTensors: []string{"text", "id", "text", "embedding", "id"}, wantLength: 4},
		{name: "filtered", k: 4, filter: []managed.FilterInput{{Field: "category", Op: managed.FilterNotEqual, Target: 1}}, returnTensors: []string{"metadata", "metadata"}, wantLength: 2},
		{name: "k above row count", k: 10, wantLength: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := m.Search(managed.SearchRequest{
				Path:          "store",
				Embedding:     testVectors[1],
				K:             tt.k,
				Filter:        tt.filter,
				ReturnTensors: tt.returnTensors,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantLength, resp.Length)
			assert.NoError(t, resp.Validate())
		})
	}
}

func TestManagerReopen(t *testing.T) {
	tp := newTestPath()
	defer tp.cleanup()

	m := newTestManager(t, tp.path())
	_, err := m.Init(managed.InitRequest{Path: "a/b"})
	require.NoError(t, err)
	_, err = m.Add(managed.AddRequest{Path: "a/b", Data: sampleData(testVectors[:3], []int64{1, 2, 3})})
	require.NoError(t, err)
	require.NoError(t, m.Close())
	assert.Equal(t, 0, m.OpenStores())

	m = newTestManager(t, tp.path())
	defer m.Close()

	summary, err := m.Summary("a/b")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Length)
	assert.Equal(t, 1, m.OpenStores())

	reused, err := m.Init(managed.InitRequest{Path: "a/b"})
	require.NoError(t, err)
	assert.True(t, reused.Exists)
	assert.Equal(t, 3, reused.Length)
}
