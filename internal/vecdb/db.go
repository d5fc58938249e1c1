package vecdb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"

	"vectorstore-go/internal/common"
	commonMath "vectorstore-go/internal/common/math"
	"vectorstore-go/internal/filter"
	"vectorstore-go/internal/index"
	"vectorstore-go/internal/persistence"
	"vectorstore-go/internal/scalar"
	"vectorstore-go/pkg/managed"

	"github.com/google/uuid"
)

const (
	// StoreVersion is written into the metadata of every created store
	StoreVersion = "1.0.0"

	// ScoreColumn is the search result column holding index distances
	ScoreColumn = "score"

	dataDirName   = ".vectorstore"
	scalarDirName = "scalar"
	walFileName   = "wal.log"
)

type Options struct {
	// WALFormat selects the WAL encoder of a new store, "binary" or "text"
	WALFormat string
}

type SearchArgs struct {
	Embedding     []float32
	K             int
	Filters       []common.IntFilterInput
	ReturnTensors []string
	EfSearch      uint32
}

type SearchResult struct {
	Length int
	Data   map[string][]managed.Value
}

// VectorDatabase is one store on disk: rows in NutsDB, a FAISS index over the embedding tensor,
// an attribute filter index and a WAL that stages every add.
type VectorDatabase struct {
	mu            sync.RWMutex
	path          string
	dir           string
	meta          StoreMeta
	specs         []common.TensorSpec
	scalarStorage scalar.ScalarStorage
	filterIndex   *filter.IntFilterIndex
	vectorIndex   index.Index
	wal           *persistence.Persistence
	length        int
	closed        bool
}

func dataDir(dir string) string {
	return filepath.Join(dir, dataDirName)
}

// StoreExists reports whether dir holds a store
func StoreExists(dir string) bool {
	info, err := os.Stat(filepath.Join(dataDir(dir), scalarDirName))
	return err == nil && info.IsDir()
}

// ValidateSchema checks the store parameters and tensor schema of a new store.
// A dim declared on the embedding tensor is copied into the returned params.
func ValidateSchema(params common.StoreParams, tensors []managed.TensorParams) (common.StoreParams, []common.TensorSpec, error) {
	specs, err := common.ParseTensorSpecs(tensors)
	if err != nil {
		return params, nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	for i, spec := range specs {
		// search replies carry distances under ScoreColumn
		if spec.Name == ScoreColumn {
			return params, nil, fmt.Errorf("%w: tensor name %q is reserved", ErrInvalidArgument, ScoreColumn)
		}
		if spec.Htype != common.HtypeEmbedding {
			continue
		}
		if dim, ok := tensors[i].Dim(); ok {
			params.Dim = dim
		}
	}

	if err := params.Validate(); err != nil {
		return params, nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	return params, specs, nil
}

// Create makes a new store in dir. path is the identifier the store reports.
func Create(dir, path string, params common.StoreParams, tensors []managed.TensorParams, opts Options) (*VectorDatabase, error) {
	params, specs, err := ValidateSchema(params, tensors)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dataDir(dir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	storage, err := openScalar(dir)
	if err != nil {
		return nil, err
	}

	meta := StoreMeta{
		Params:    params,
		Tensors:   managed.CloneTensors(tensors),
		WALFormat: opts.WALFormat,
	}
	if err := saveMeta(storage, &meta); err != nil {
		storage.Close()
		return nil, err
	}

	db, err := newVectorDatabase(dir, path, meta, specs, storage)
	if err != nil {
		return nil, err
	}

	if params.Dim > 0 {
		if err := db.ensureIndex(); err != nil {
			db.Close()
			return nil, err
		}
	}

	slog.Info("Created store", "path", path, "tensors", len(specs), "dim", params.Dim, "index", params.IndexType)
	return db, nil
}

// Open loads the store in dir, rebuilding its indexes from stored rows and replaying the WAL
func Open(dir, path string) (*VectorDatabase, error) {
	if !StoreExists(dir) {
		return nil, ErrStoreNotFound
	}

	storage, err := openScalar(dir)
	if err != nil {
		return nil, err
	}

	meta, err := loadMeta(storage)
	if err != nil {
		storage.Close()
		return nil, err
	}

	specs, err := common.ParseTensorSpecs(meta.Tensors)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("stored schema is invalid: %w", err)
	}

	db, err := newVectorDatabase(dir, path, *meta, specs, storage)
	if err != nil {
		return nil, err
	}

	if err := db.rebuild(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to rebuild store %s: %w", path, err)
	}

	restored, err := db.wal.Restore(db.scalarStorage, db.filterIndex, db.vectorIndex)
	if err != nil {
		db.Close()
		return nil, err
	}
	db.length += restored

	slog.Info("Opened store", "path", path, "rows", db.length, "restored", restored)
	return db, nil
}

func openScalar(dir string) (scalar.ScalarStorage, error) {
	storage, err := scalar.NewScalarStorage(&scalar.ScalarOption{
		DIR:     filepath.Join(dataDir(dir), scalarDirName),
		Buckets: []string{scalar.NamespaceDocs, scalar.NamespaceMeta},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open scalar storage: %w", err)
	}
	return storage, nil
}

func newVectorDatabase(dir, path string, meta StoreMeta, specs []common.TensorSpec, storage scalar.ScalarStorage) (*VectorDatabase, error) {
	encoder := persistence.EncoderFactory(meta.WALFormat, persistence.WALVersion)
	wal, err := persistence.NewPersistenceWithEncoder(filepath.Join(dataDir(dir), walFileName), encoder)
	if err != nil {
		storage.Close()
		return nil, err
	}

	return &VectorDatabase{
		path:          path,
		dir:           dir,
		meta:          meta,
		specs:         specs,
		scalarStorage: storage,
		filterIndex:   filter.NewIntFilterIndex(),
		wal:           wal,
	}, nil
}

// rebuild loads every stored row into the filter and vector indexes
func (db *VectorDatabase) rebuild() error {
	if db.meta.Params.Dim > 0 {
		if err := db.ensureIndex(); err != nil {
			return err
		}
	}

	iter, err := db.scalarStorage.Iterator(scalar.NamespaceDocs)
	if err != nil {
		return err
	}

	vectors := make([][]float32, 0)
	labels := make([]int64, 0)
	for pair := range iter {
		if !scalar.IsRowKey(pair.Key) {
			continue
		}
		row, err := common.JSONUnmarshal[common.Row](pair.Value)
		if err != nil {
			return fmt.Errorf("failed to decode row %d: %w", scalar.DecodeID(pair.Key), err)
		}

		db.length++
		for key, value := range row.Attributes {
			db.filterIndex.Upsert(key, value, row.ID)
		}
		if len(row.Vector) > 0 {
			vectors = append(vectors, row.Vector)
			labels = append(labels, int64(row.ID))
		}
	}

	if len(vectors) == 0 {
		return nil
	}
	if db.vectorIndex == nil {
		return fmt.Errorf("store holds %d vectors but no dimension", len(vectors))
	}

	mat, err := commonMath.NewMatrix32FromRows(vectors)
	if err != nil {
		return err
	}
	return db.vectorIndex.Insert(index.NewInsertParams(mat, labels))
}

func (db *VectorDatabase) ensureIndex() error {
	if db.vectorIndex != nil {
		return nil
	}
	idx, err := index.NewIndex(db.meta.Params)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	db.vectorIndex = idx
	return nil
}

func (db *VectorDatabase) embeddingSpec() *common.TensorSpec {
	for i := range db.specs {
		if db.specs[i].Htype == common.HtypeEmbedding {
			return &db.specs[i]
		}
	}
	return nil
}

func (db *VectorDatabase) hasTensor(name string) bool {
	return slices.ContainsFunc(db.specs, func(s common.TensorSpec) bool { return s.Name == name })
}

// Add appends rows given column-wise and returns the row ids when the store has an id tensor
func (db *VectorDatabase) Add(data map[string][]managed.Value) (managed.IDs, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return managed.NoIDs(), ErrStoreClosed
	}

	rows, err := managed.AddRequest{Data: data}.Rows()
	if err != nil {
		return managed.NoIDs(), fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	for name := range data {
		if !db.hasTensor(name) {
			return managed.NoIDs(), fmt.Errorf("%w: unknown tensor %q", ErrInvalidArgument, name)
		}
	}

	hasIDs := db.hasTensor(common.IDTensorName)
	if rows == 0 {
		if hasIDs {
			return managed.SomeIDs(), nil
		}
		return managed.NoIDs(), nil
	}

	emb := db.embeddingSpec()
	var vectors [][]float32
	if emb != nil {
		vectors, err = db.parseEmbeddings(emb.Name, data[emb.Name], rows)
		if err != nil {
			return managed.NoIDs(), err
		}
	}

	var ids []string
	if hasIDs {
		ids = rowIDs(data[common.IDTensorName], rows)
	}

	keys, err := db.scalarStorage.GenIncrIDs(scalar.NamespaceDocs, rows)
	if err != nil {
		return managed.NoIDs(), err
	}

	for i := 0; i < rows; i++ {
		columns := make(map[string]managed.Value, len(data)+1)
		for name, column := range data {
			if emb != nil && name == emb.Name {
				continue
			}
			columns[name] = column[i]
		}
		if hasIDs {
			columns[common.IDTensorName] = managed.String(ids[i])
		}

		var vector []float32
		if vectors != nil {
			vector = vectors[i]
		}

		attrs := common.RowAttributes(db.specs, columns)
		if err := db.wal.WriteOnly(keys[i], vector, columns, attrs); err != nil {
			if discardErr := db.wal.Discard(); discardErr != nil {
				slog.Error("Failed to discard partial batch", "path", db.path, "error", discardErr)
			}
			return managed.NoIDs(), err
		}
	}

	if err := db.wal.Sync(db.scalarStorage, db.filterIndex, db.vectorIndex); err != nil {
		return managed.NoIDs(), fmt.Errorf("failed to apply rows: %w", err)
	}
	db.length += rows

	slog.Debug("Added rows", "path", db.path, "rows", rows, "total", db.length)

	if !hasIDs {
		return managed.NoIDs(), nil
	}
	return managed.SomeIDs(ids...), nil
}

// parseEmbeddings converts the embedding column and fixes the store dimension on first use
func (db *VectorDatabase) parseEmbeddings(name string, column []managed.Value, rows int) ([][]float32, error) {
	if column == nil {
		return nil, fmt.Errorf("%w: missing embedding column %q", ErrInvalidArgument, name)
	}

	vectors := make([][]float32, rows)
	for i, v := range column {
		vec, ok := v.AsFloat32s()
		if !ok || len(vec) == 0 {
			return nil, fmt.Errorf("%w: row %d of %q is not a numeric vector", ErrInvalidArgument, i, name)
		}
		if i > 0 && len(vec) != len(vectors[0]) {
			return nil, fmt.Errorf("%w: row %d of %q has dimension %d, expected %d", ErrInvalidArgument, i, name, len(vec), len(vectors[0]))
		}
		vectors[i] = vec
	}

	dim := len(vectors[0])
	if db.meta.Params.Dim == 0 {
		db.meta.Params.Dim = dim
		if err := db.ensureIndex(); err != nil {
			db.meta.Params.Dim = 0
			return nil, err
		}
		if err := saveMeta(db.scalarStorage, &db.meta); err != nil {
			return nil, err
		}
		slog.Info("Fixed store dimension", "path", db.path, "dim", dim)
	} else if dim != db.meta.Params.Dim {
		return nil, fmt.Errorf("%w: embedding dimension %d does not match store dimension %d", ErrInvalidArgument, dim, db.meta.Params.Dim)
	}

	return vectors, nil
}

// rowIDs takes ids from the id column, generating uuids for rows without one
func rowIDs(column []managed.Value, rows int) []string {
	ids := make([]string, rows)
	for i := range ids {
		if column == nil || column[i].IsNull() {
			ids[i] = uuid.NewString()
			continue
		}
		if s, ok := column[i].AsString(); ok {
			ids[i] = s
		} else {
			ids[i] = column[i].String()
		}
	}
	return ids
}

// Search returns the k nearest rows to args.Embedding among those matching every filter
func (db *VectorDatabase) Search(args SearchArgs) (*SearchResult, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrStoreClosed
	}

	emb := db.embeddingSpec()
	if emb == nil {
		return nil, ErrNoEmbedding
	}
	if len(args.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ErrInvalidArgument)
	}
	if dim := db.meta.Params.Dim; dim > 0 && len(args.Embedding) != dim {
		return nil, fmt.Errorf("%w: query dimension %d does not match store dimension %d", ErrInvalidArgument, len(args.Embedding), dim)
	}

	columns, err := db.returnTensors(args.ReturnTensors)
	if err != nil {
		return nil, err
	}

	inputs, err := filter.FromCommon(args.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	result := &SearchResult{Data: make(map[string][]managed.Value, len(columns)+1)}
	result.Data[ScoreColumn] = []managed.Value{}
	for _, name := range columns {
		result.Data[name] = []managed.Value{}
	}

	if db.vectorIndex == nil || db.vectorIndex.Ntotal() == 0 {
		return result, nil
	}

	k := args.K
	if k <= 0 {
		k = managed.DefaultK
	}

	query := index.NewSearchQuery(args.Embedding).WithFilter(db.filterIndex.Select(inputs))
	if args.EfSearch > 0 {
		query.With(&index.HnswSearchOption{EfSearch: args.EfSearch})
	}

	found, err := db.vectorIndex.Search(query, k)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, len(found.Labels))
	for i, label := range found.Labels {
		ids[i] = uint64(label)
	}
	rows, err := db.scalarStorage.MultiGetRows(scalar.NamespaceDocs, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]common.Row, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	for i, id := range ids {
		result.Data[ScoreColumn] = append(result.Data[ScoreColumn], managed.Float(float64(found.Distances[i])))

		row, ok := byID[id]
		for _, name := range columns {
			value := managed.Null()
			if ok {
				if name == emb.Name {
					value = managed.Floats32(row.Vector)
				} else if v, present := row.Columns[name]; present {
					value = v
				}
			}
			result.Data[name] = append(result.Data[name], value)
		}
	}
	result.Length = len(ids)

	return result, nil
}

// returnTensors resolves the requested result columns, defaulting to every non-embedding tensor
func (db *VectorDatabase) returnTensors(requested []string) ([]string, error) {
	if len(requested) == 0 {
		names := make([]string, 0, len(db.specs))
		for _, spec := range db.specs {
			if spec.Htype != common.HtypeEmbedding {
				names = append(names, spec.Name)
			}
		}
		return names, nil
	}

	names := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		if !db.hasTensor(name) {
			return nil, fmt.Errorf("%w: unknown return tensor %q", ErrInvalidArgument, name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// Describe returns the summary text, row count and tensor schema
func (db *VectorDatabase) Describe() (string, int, []managed.TensorParams) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.summaryLocked(), db.length, managed.CloneTensors(db.meta.Tensors)
}

func (db *VectorDatabase) summaryLocked() string {
	var b strings.Builder

	names := make([]string, len(db.specs))
	for i, spec := range db.specs {
		names[i] = "'" + spec.Name + "'"
	}
	fmt.Fprintf(&b, "Dataset(path='%s', tensors=[%s])\n\n", db.path, strings.Join(names, ", "))

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "tensor\thtype\tshape\tdtype\tcompression")
	fmt.Fprintln(w, "-------\t-------\t-------\t-------\t-------")
	for _, spec := range db.specs {
		compression := spec.Compression
		if compression == "" {
			compression = "None"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", spec.Name, spec.Htype, db.shapeOf(spec), spec.DefaultDtype(), compression)
	}
	w.Flush()

	return b.String()
}

func (db *VectorDatabase) shapeOf(spec common.TensorSpec) string {
	if spec.Htype != common.HtypeEmbedding {
		return fmt.Sprintf("(%d, 1)", db.length)
	}
	if db.meta.Params.Dim == 0 {
		return fmt.Sprintf("(%d, None)", db.length)
	}
	return fmt.Sprintf("(%d, %d)", db.length, db.meta.Params.Dim)
}

func (db *VectorDatabase) Path() string { return db.path }

func (db *VectorDatabase) Length() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.length
}

func (db *VectorDatabase) Params() common.StoreParams {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.meta.Params
}

// Close releases the index, the WAL and the scalar storage
func (db *VectorDatabase) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	if db.vectorIndex != nil {
		db.vectorIndex.Close()
	}
	return errors.Join(db.wal.Close(), db.scalarStorage.Close())
}
