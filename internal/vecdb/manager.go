package vecdb

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"vectorstore-go/internal/common"
	"vectorstore-go/pkg/managed"
)

// ManagerConfig holds the defaults applied to stores created without explicit parameters
type ManagerConfig struct {
	RootDir    string
	MetricType common.MetricType
	IndexType  common.IndexType
	HnswParams *common.HnswIndexOption
	WALFormat  string
}

var DefaultHnswParams = common.HnswIndexOption{EFConstruction: 200, M: 16}

// Manager serves the managed operations for every store under a root directory.
// Stores are opened on first use and stay open until Close.
type Manager struct {
	cfg    ManagerConfig
	mu     sync.Mutex
	stores map[string]*VectorDatabase
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("root directory must be set")
	}
	if cfg.MetricType == "" {
		cfg.MetricType = common.MetricTypeL2
	}
	if cfg.IndexType == "" {
		cfg.IndexType = common.IndexTypeFlat
	}
	if err := os.MkdirAll(cfg.RootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &Manager{
		cfg:    cfg,
		stores: make(map[string]*VectorDatabase),
	}, nil
}

// CleanStorePath normalizes a store path. Paths are relative and slash separated;
// absolute paths and segments starting with a dot are rejected.
func CleanStorePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) || strings.Contains(p, `\`) {
		return "", fmt.Errorf("%w: %q must be relative", ErrInvalidPath, p)
	}

	cleaned := path.Clean(p)
	for _, segment := range strings.Split(cleaned, "/") {
		if strings.HasPrefix(segment, ".") {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q escapes the root", ErrInvalidPath, p)
		}
	}

	return cleaned, nil
}

func (m *Manager) storeDir(storePath string) string {
	return filepath.Join(m.cfg.RootDir, filepath.FromSlash(storePath))
}

// openLocked returns the cached store or opens it from disk; m.mu must be held
func (m *Manager) openLocked(storePath string) (*VectorDatabase, error) {
	if db, ok := m.stores[storePath]; ok {
		return db, nil
	}

	db, err := Open(m.storeDir(storePath), storePath)
	if err != nil {
		return nil, err
	}
	m.stores[storePath] = db
	return db, nil
}

func (m *Manager) store(rawPath string) (*VectorDatabase, error) {
	storePath, err := CleanStorePath(rawPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(storePath)
}

func (m *Manager) storeParams(req managed.InitRequest) common.StoreParams {
	params := common.StoreParams{
		MetricType: m.cfg.MetricType,
		IndexType:  m.cfg.IndexType,
		Version:    StoreVersion,
	}
	if m.cfg.HnswParams != nil {
		hnsw := *m.cfg.HnswParams
		params.HnswParams = &hnsw
	}

	if req.MetricType != "" {
		params.MetricType = common.MetricType(strings.ToLower(req.MetricType))
	}
	if req.IndexType != "" {
		params.IndexType = common.IndexType(strings.ToLower(req.IndexType))
	}
	if req.HnswParams != nil {
		params.HnswParams = &common.HnswIndexOption{
			EFConstruction: req.HnswParams.EFConstruction,
			M:              req.HnswParams.M,
		}
	}
	if params.IndexType == common.IndexTypeHnsw && params.HnswParams == nil {
		hnsw := DefaultHnswParams
		params.HnswParams = &hnsw
	}

	return params
}

// Init creates the store at req.Path, or reuses it when it exists and Overwrite is not set
func (m *Manager) Init(req managed.InitRequest) (managed.InitResponse, error) {
	storePath, err := CleanStorePath(req.Path)
	if err != nil {
		return managed.InitResponse{}, err
	}

	tensors := req.TensorParams
	if len(tensors) == 0 {
		tensors = managed.DefaultTensorParams()
	}
	params := m.storeParams(req)

	m.mu.Lock()
	defer m.mu.Unlock()

	db, err := m.openLocked(storePath)
	switch {
	case err == nil && !req.Overwrite:
		summary, length, current := db.Describe()
		return managed.InitResponse{
			StatusCode: http.StatusOK,
			Path:       storePath,
			Summary:    summary,
			Length:     length,
			Tensors:    current,
			Exists:     true,
		}, nil
	case err != nil && !errors.Is(err, ErrStoreNotFound):
		return managed.InitResponse{}, err
	}

	// a rejected schema must not cost the existing store
	if _, _, err := ValidateSchema(params, tensors); err != nil {
		return managed.InitResponse{}, err
	}

	if db != nil {
		if err := m.removeLocked(storePath, db); err != nil {
			return managed.InitResponse{}, err
		}
	}

	db, err = Create(m.storeDir(storePath), storePath, params, tensors, Options{WALFormat: m.cfg.WALFormat})
	if err != nil {
		return managed.InitResponse{}, err
	}
	m.stores[storePath] = db

	summary, length, current := db.Describe()
	return managed.InitResponse{
		StatusCode: http.StatusOK,
		Path:       storePath,
		Summary:    summary,
		Length:     length,
		Tensors:    current,
		Exists:     false,
	}, nil
}

func (m *Manager) removeLocked(storePath string, db *VectorDatabase) error {
	if err := db.Close(); err != nil {
		slog.Warn("Failed to close store before overwrite", "path", storePath, "error", err)
	}
	delete(m.stores, storePath)

	if err := os.RemoveAll(dataDir(m.storeDir(storePath))); err != nil {
		return fmt.Errorf("failed to remove store %s: %w", storePath, err)
	}
	slog.Info("Removed store for overwrite", "path", storePath)
	return nil
}

// Summary describes the store at storePath
func (m *Manager) Summary(storePath string) (managed.SummaryResponse, error) {
	db, err := m.store(storePath)
	if err != nil {
		return managed.SummaryResponse{}, err
	}

	summary, length, tensors := db.Describe()
	return managed.SummaryResponse{
		StatusCode: http.StatusOK,
		Summary:    summary,
		Length:     length,
		Tensors:    tensors,
	}, nil
}

// Search runs a similarity search against the store at req.Path
func (m *Manager) Search(req managed.SearchRequest) (managed.SearchResponse, error) {
	db, err := m.store(req.Path)
	if err != nil {
		return managed.SearchResponse{}, err
	}

	filters := make([]common.IntFilterInput, len(req.Filter))
	for i, f := range req.Filter {
		filters[i] = common.IntFilterInput{Field: f.Field, Op: f.Op, Target: f.Target}
	}

	result, err := db.Search(SearchArgs{
		Embedding:     req.Embedding,
		K:             req.TopK(),
		Filters:       filters,
		ReturnTensors: req.ReturnTensors,
		EfSearch:      req.EfSearch,
	})
	if err != nil {
		return managed.SearchResponse{}, err
	}

	return managed.SearchResponse{
		StatusCode: http.StatusOK,
		Length:     result.Length,
		Data:       result.Data,
	}, nil
}

// Add appends rows to the store at req.Path
func (m *Manager) Add(req managed.AddRequest) (managed.AddResponse, error) {
	db, err := m.store(req.Path)
	if err != nil {
		return managed.AddResponse{}, err
	}

	ids, err := db.Add(req.Data)
	if err != nil {
		return managed.AddResponse{}, err
	}

	return managed.AddResponse{
		StatusCode: http.StatusCreated,
		IDs:        ids,
	}, nil
}

// OpenStores returns the number of stores currently held open
func (m *Manager) OpenStores() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// Close closes every open store
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for storePath, db := range m.stores {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store %s: %w", storePath, err))
		}
		delete(m.stores, storePath)
	}
	return errors.Join(errs...)
}
