package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"vectorstore-go/internal/common"
	commonMath "vectorstore-go/internal/common/math"
	"vectorstore-go/internal/filter"
	"vectorstore-go/internal/index"
	"vectorstore-go/internal/scalar"
	"vectorstore-go/pkg/managed"
)

// WALVersion tags every record written by this package
const WALVersion = "v1"

// walFileMode is used when the WAL file is created
const walFileMode = 0o644

// Persistence is the write-ahead log of one store. Records are appended with WriteOnly,
// made durable with Flush and applied to the store with Sync.
type Persistence struct {
	mu        sync.Mutex
	filePath  string
	file      *os.File
	buf       *bufio.Writer
	encoder   WALEncoder
	version   string
	lastLogID atomic.Uint64
	// pending holds records written since the last Sync, in write order
	pending []WALRecord
}

type WALOperation int

const (
	Insert WALOperation = iota
	Delete
)

// WALRecord is one logged row mutation. VectorID is the row key in scalar storage and the
// label in the vector index.
type WALRecord struct {
	LogID      uint64
	Version    string
	Operation  WALOperation
	VectorID   uint64
	Vector     []float32
	Columns    map[string]managed.Value
	Attributes map[string]int64
}

// Row returns the stored form of an insert record
func (r *WALRecord) Row() common.Row {
	return common.Row{
		ID:         r.VectorID,
		Vector:     r.Vector,
		Columns:    r.Columns,
		Attributes: r.Attributes,
	}
}

// NewPersistence opens the WAL at filePath with the binary encoder
func NewPersistence(filePath string) (*Persistence, error) {
	return NewPersistenceWithEncoder(filePath, NewBinaryWALEncoder(WALVersion))
}

// NewPersistenceWithEncoder opens or creates the WAL at filePath. Log ids continue after the
// highest id already in the file.
func NewPersistenceWithEncoder(filePath string, encoder WALEncoder) (*Persistence, error) {
	p := &Persistence{filePath: filePath, encoder: encoder, version: WALVersion}
	if err := p.openFile(); err != nil {
		return nil, err
	}

	if err := p.initCounter(); err != nil {
		p.file.Close()
		return nil, fmt.Errorf("failed to initialize log ids: %w", err)
	}
	return p, nil
}

func (p *Persistence) openFile() error {
	file, err := os.OpenFile(p.filePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, walFileMode)
	if err != nil {
		return fmt.Errorf("failed to open WAL file: %w", err)
	}
	p.file = file
	p.buf = bufio.NewWriter(file)
	return nil
}

// Path returns the WAL file location
func (p *Persistence) Path() string {
	return p.filePath
}

// EncoderName returns the name of the record encoder in use
func (p *Persistence) EncoderName() string {
	return p.encoder.Name()
}

func (p *Persistence) initCounter() error {
	records, err := p.readAll()
	if err != nil {
		return err
	}

	var last uint64
	for i := range records {
		last = max(last, records[i].LogID)
	}
	p.lastLogID.Store(last)
	if last > 0 {
		slog.Info("Found existing WAL records", "path", p.filePath, "records", len(records), "lastLogID", last, "encoder", p.encoder.Name())
	}
	return nil
}

// readAll decodes the records on disk, stopping at the first corrupted one
func (p *Persistence) readAll() ([]WALRecord, error) {
	stat, err := p.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat WAL file: %w", err)
	}
	if stat.Size() == 0 {
		return nil, nil
	}

	reader, err := os.Open(p.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL for reading: %w", err)
	}
	defer reader.Close()

	return ReadRecords(bufio.NewReader(reader), p.encoder), nil
}

// ReadRecords decodes records until the end of input or the first corrupted record
func ReadRecords(reader *bufio.Reader, encoder WALEncoder) []WALRecord {
	records := make([]WALRecord, 0)
	for {
		record, err := encoder.DecodeRecord(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			// records after a torn or corrupt one cannot be trusted
			slog.Warn("Skipping corrupted WAL record", "error", err, "position", len(records))
			break
		}
		records = append(records, *record)
	}
	return records
}

// WriteOnly buffers an insert record; it reaches disk on the next Flush or Sync
func (p *Persistence) WriteOnly(vectorID uint64, vector []float32, columns map[string]managed.Value, attributes map[string]int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	record := WALRecord{
		LogID:      p.lastLogID.Add(1),
		Version:    p.version,
		Operation:  Insert,
		VectorID:   vectorID,
		Vector:     vector,
		Columns:    columns,
		Attributes: attributes,
	}
	if err := p.encoder.EncodeRecord(p.buf, &record); err != nil {
		return fmt.Errorf("failed to encode WAL record %d: %w", record.LogID, err)
	}

	p.pending = append(p.pending, record)
	return nil
}

// Write is WriteOnly followed by Flush
func (p *Persistence) Write(vectorID uint64, vector []float32, columns map[string]managed.Value, attributes map[string]int64) error {
	if err := p.WriteOnly(vectorID, vector, columns, attributes); err != nil {
		return err
	}
	return p.Flush()
}

// Flush writes buffered records and fsyncs the WAL file
func (p *Persistence) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

func (p *Persistence) flushLocked() error {
	if err := p.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL buffer: %w", err)
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("failed to fsync WAL file: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the file. Pending records stay in the WAL and are
// replayed by the next Restore.
func (p *Persistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	flushErr := p.buf.Flush()
	closeErr := p.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush WAL buffer: %w", flushErr)
	}
	return closeErr
}

// Sync applies all pending records to scalar storage, then the filter index, then the vector
// index, and truncates the WAL. vectorIndex may be nil only when no pending record carries a
// vector. When a phase fails the earlier phases are rolled back and the pending records are
// discarded along with the WAL contents, so a rejected batch is never replayed.
func (p *Persistence) Sync(
	scalarStorage scalar.ScalarStorage,
	filterIndex *filter.IntFilterIndex,
	vectorIndex index.Index,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.syncLocked(scalarStorage, filterIndex, vectorIndex)
	if err != nil {
		slog.Warn("Discarding rolled back WAL records", "count", len(p.pending), "error", err)
		p.pending = nil
		p.buf.Reset(p.file)
		if truncErr := p.truncateWAL(); truncErr != nil {
			slog.Error("Failed to truncate WAL after rollback", "error", truncErr)
		}
	}
	return err
}

func (p *Persistence) syncLocked(
	scalarStorage scalar.ScalarStorage,
	filterIndex *filter.IntFilterIndex,
	vectorIndex index.Index,
) error {
	if len(p.pending) == 0 {
		return nil
	}

	slog.Debug("Syncing WAL records", "count", len(p.pending))

	if err := p.flushLocked(); err != nil {
		return err
	}

	inserts := make([]WALRecord, 0, len(p.pending))
	for _, record := range p.pending {
		if record.Operation == Insert {
			inserts = append(inserts, record)
		}
	}

	appliedScalar := make([]uint64, 0, len(inserts))
	appliedFilter := make([]WALRecord, 0, len(inserts))
	rollback := func() {
		p.rollbackScalar(scalarStorage, appliedScalar)
		p.rollbackFilter(filterIndex, appliedFilter)
	}

	for _, record := range inserts {
		rowBytes, err := json.Marshal(record.Row())
		if err != nil {
			rollback()
			return fmt.Errorf("failed to marshal row %d: %w", record.VectorID, err)
		}

		if err := scalarStorage.Put(scalar.NamespaceDocs, scalar.EncodeID(record.VectorID), rowBytes); err != nil {
			rollback()
			return fmt.Errorf("failed to insert scalar data for row %d: %w", record.VectorID, err)
		}

		appliedScalar = append(appliedScalar, record.VectorID)
	}

	for _, record := range inserts {
		for key, value := range record.Attributes {
			filterIndex.Upsert(key, value, record.VectorID)
		}
		appliedFilter = append(appliedFilter, record)
	}

	// the vector index cannot be rolled back, so it goes last
	vectors := make([][]float32, 0, len(inserts))
	labels := make([]int64, 0, len(inserts))
	for _, record := range inserts {
		if len(record.Vector) == 0 {
			continue
		}
		vectors = append(vectors, record.Vector)
		labels = append(labels, int64(record.VectorID))
	}

	if len(vectors) > 0 {
		if vectorIndex == nil {
			rollback()
			return fmt.Errorf("no vector index to apply %d vectors to", len(vectors))
		}

		mat, err := commonMath.NewMatrix32FromRows(vectors)
		if err != nil {
			rollback()
			return fmt.Errorf("failed to build vector batch: %w", err)
		}

		if err := vectorIndex.Insert(index.NewInsertParams(mat, labels)); err != nil {
			rollback()
			return fmt.Errorf("failed to insert vectors: %w", err)
		}
	}

	p.pending = nil
	if err := p.truncateWAL(); err != nil {
		slog.Warn("Failed to truncate WAL after sync", "error", err)
	}

	slog.Debug("Successfully synced WAL records", "count", len(inserts))
	return nil
}

// rollbackScalar removes scalar storage entries
func (p *Persistence) rollbackScalar(scalarStorage scalar.ScalarStorage, ids []uint64) {
	if len(ids) == 0 {
		return
	}
	slog.Warn("Rolling back scalar storage changes", "count", len(ids))
	for _, id := range ids {
		if err := scalarStorage.Delete(scalar.NamespaceDocs, scalar.EncodeID(id)); err != nil {
			slog.Error("Failed to roll back scalar row", "id", id, "error", err)
		}
	}
}

// rollbackFilter removes filter index entries
func (p *Persistence) rollbackFilter(filterIndex *filter.IntFilterIndex, records []WALRecord) {
	if len(records) == 0 {
		return
	}
	slog.Warn("Rolling back filter index changes", "count", len(records))
	for _, record := range records {
		for key, value := range record.Attributes {
			filterIndex.Remove(key, value, record.VectorID)
		}
	}
}

// Restore replays WAL records that never reached scalar storage and returns how many were applied.
// Records whose row is already stored were synced before the WAL was truncated and are skipped.
func (p *Persistence) Restore(
	scalarStorage scalar.ScalarStorage,
	filterIndex *filter.IntFilterIndex,
	vectorIndex index.Index,
) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	records, err := p.readAll()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	slog.Info("Restoring from WAL", "file", p.filePath, "records", len(records))

	pending := make([]WALRecord, 0, len(records))
	for _, record := range records {
		row, err := scalarStorage.GetRow(scalar.NamespaceDocs, record.VectorID)
		if err != nil {
			return 0, fmt.Errorf("failed to check row %d: %w", record.VectorID, err)
		}
		if row != nil {
			continue
		}
		pending = append(pending, record)
	}

	if len(pending) == 0 {
		if err := p.truncateWAL(); err != nil {
			slog.Warn("Failed to truncate WAL after restore", "error", err)
		}
		return 0, nil
	}

	// a failed replay keeps the WAL so the records survive for the next open
	p.pending = pending
	if err := p.syncLocked(scalarStorage, filterIndex, vectorIndex); err != nil {
		p.pending = nil
		return 0, fmt.Errorf("failed to apply WAL records during restore: %w", err)
	}

	slog.Info("Successfully restored from WAL", "records", len(pending))
	return len(pending), nil
}

// truncateWAL empties the WAL file once its records are applied; mu must be held
func (p *Persistence) truncateWAL() error {
	if err := p.buf.Flush(); err != nil {
		return err
	}
	if err := p.file.Close(); err != nil {
		return err
	}
	if err := os.Truncate(p.filePath, 0); err != nil {
		return err
	}
	return p.openFile()
}

// Discard drops the pending records and empties the WAL. It is used when a batch is
// abandoned before Sync.
func (p *Persistence) Discard() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) > 0 {
		slog.Warn("Discarding unsynced WAL records", "count", len(p.pending))
	}
	p.pending = nil
	p.buf.Reset(p.file)
	return p.truncateWAL()
}

// GetPendingCount returns the number of pending WAL records
func (p *Persistence) GetPendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
