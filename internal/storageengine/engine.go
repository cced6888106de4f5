// Package storageengine is the top-level facade composing PageManager and
// IndexManager: table lifecycle, row mutation with index mirroring, and
// metadata persistence.
package storageengine

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	atomicx "go.uber.org/atomic"

	"github.com/novadb/novadb/internal/dberr"
	"github.com/novadb/novadb/internal/heap"
	"github.com/novadb/novadb/internal/index"
	"github.com/novadb/novadb/internal/storage"
	"github.com/novadb/novadb/internal/value"
)

const (
	DatabaseFileName = "database.db"
	MetadataFileName = "metadata.meta"
	IndexesFileName  = "indexes.meta"
)

// Engine is the top-level facade: tables, indexes, and metadata
// persistence, composing one shared PageManager (the whole engine's pages
// live in a single backing file) and one IndexManager.
type Engine struct {
	mu      sync.RWMutex
	dataDir string
	pm      *storage.PageManager
	idx     *index.Manager
	tables  map[string]*heap.Table
	closed  atomicx.Bool
	logger  *slog.Logger
}

// Open creates or reopens a database rooted at dataDir.
func Open(dataDir string, bufferCapacity int, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pm, err := storage.NewPageManager(filepath.Join(dataDir, DatabaseFileName), bufferCapacity, logger)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		dataDir: dataDir,
		pm:      pm,
		idx:     index.NewManager(logger),
		tables:  make(map[string]*heap.Table),
		logger:  logger,
	}
	if err := e.Load(); err != nil {
		logger.Debug("no prior metadata to load", "err", err)
	}
	return e, nil
}

func (e *Engine) ensureOpen() error {
	if e.closed.Load() {
		return fmt.Errorf("storageengine: engine is closed")
	}
	return nil
}

// CreateTable registers a new table; if schema declares a primary-key
// column, a unique index named pk_<table>_<col> is created automatically.
func (e *Engine) CreateTable(name string, schema value.Schema) error {
	if err := e.ensureOpen(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tables[name]; exists {
		return dberr.NewSemanticError(dberr.TableAlreadyExists, "table %s already exists", name)
	}
	seen := make(map[string]bool)
	pkCount := 0
	for _, c := range schema.Columns {
		if seen[c.Name] {
			return dberr.NewSemanticError(dberr.DuplicateColumnName, "duplicate column %s", c.Name)
		}
		seen[c.Name] = true
		if c.PrimaryKey {
			pkCount++
		}
	}
	if pkCount > 1 {
		return dberr.NewSemanticError(dberr.DuplicatePrimaryKey, "table %s declares more than one primary key", name)
	}
	e.tables[name] = heap.NewTable(name, schema, e.pm, e.logger)

	if pk := schema.PrimaryKeyIndex(); pk >= 0 {
		col := schema.Columns[pk].Name
		_ = e.idx.Create(index.PrimaryKeyIndexName(name, col), name, col, true)
	}
	return nil
}

// DropTable removes a table and every index owned by it.
func (e *Engine) DropTable(name string) error {
	if err := e.ensureOpen(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[name]
	if !ok {
		return dberr.NewSemanticError(dberr.TableNotExists, "table %s does not exist", name)
	}
	e.idx.DropTable(name)
	delete(e.tables, name)
	return t.Close()
}

// Table returns the named table.
func (e *Engine) Table(name string) (*heap.Table, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[name]
	return t, ok
}

// TableNames implements catalog.Provider.
func (e *Engine) TableNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.tables))
	for n := range e.tables {
		out = append(out, n)
	}
	return out
}

// TableSchema implements catalog.Provider.
func (e *Engine) TableSchema(name string) (value.Schema, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[name]
	if !ok {
		return value.Schema{}, false
	}
	return t.Schema, true
}

// IndexesForTable implements catalog.Provider.
func (e *Engine) IndexesForTable(table string) []index.Info { return e.idx.IndexesFor(table) }

// Indexes exposes the index manager for index scans and DDL.
func (e *Engine) Indexes() *index.Manager { return e.idx }

func colValueMap(schema value.Schema, row value.Row) map[string]value.Value {
	out := make(map[string]value.Value, len(schema.Columns))
	for i, c := range schema.Columns {
		if i < len(row.Values) {
			out[c.Name] = row.Values[i]
		}
	}
	return out
}

// InsertRow validates and inserts row into table, then mirrors it into
// every index on that table (all-or-nothing for unique violations,
// preflighted before the row or any index is touched).
func (e *Engine) InsertRow(table string, row value.Row) (uint32, error) {
	if err := e.ensureOpen(); err != nil {
		return 0, err
	}
	e.mu.RLock()
	t, ok := e.tables[table]
	e.mu.RUnlock()
	if !ok {
		return 0, dberr.NewStorageError(dberr.TableNotFound, "table %s not found", table)
	}

	if err := e.checkUniqueViolation(t, row, nil); err != nil {
		return 0, err
	}

	rid, err := t.Insert(row)
	if err != nil {
		return 0, err
	}
	if err := e.idx.InsertRecord(table, colValueMap(t.Schema, row), rid); err != nil {
		t.Delete(rid)
		return 0, err
	}
	return rid, nil
}

// checkUniqueViolation probes every unique index (in particular the
// primary key) before a row is written, so a duplicate key never touches
// storage at all. excludeRid lets UpdateRow re-check without tripping on
// the row's own previous value.
func (e *Engine) checkUniqueViolation(t *heap.Table, row value.Row, excludeRid *uint32) error {
	colValues := colValueMap(t.Schema, row)
	for _, info := range e.idx.IndexesFor(t.Name) {
		if !info.Unique {
			continue
		}
		key, ok := colValues[info.Column]
		if !ok {
			continue
		}
		rids := e.idx.Search(info.Name, key)
		for _, rid := range rids {
			if excludeRid != nil && rid == *excludeRid {
				continue
			}
			return dberr.NewIndexError(dberr.UniqueViolation, "unique constraint %s violated by value %s", info.Name, key.String())
		}
	}
	return nil
}

// DeleteRow deletes rid from table and mirrors the deletion into its
// indexes (best-effort).
func (e *Engine) DeleteRow(table string, rid uint32) error {
	if err := e.ensureOpen(); err != nil {
		return err
	}
	e.mu.RLock()
	t, ok := e.tables[table]
	e.mu.RUnlock()
	if !ok {
		return dberr.NewStorageError(dberr.TableNotFound, "table %s not found", table)
	}
	row, found := t.Get(rid)
	if !found {
		return nil
	}
	if !t.Delete(rid) {
		return nil
	}
	if err := e.idx.DeleteRecord(table, colValueMap(t.Schema, row), rid); err != nil {
		e.logger.Warn("index delete mirror", "err", err)
	}
	return nil
}

// UpdateRow replaces rid's row with newRow and mirrors the change into
// indexes, pre-checking unique-index violations against the new value.
func (e *Engine) UpdateRow(table string, rid uint32, newRow value.Row) error {
	if err := e.ensureOpen(); err != nil {
		return err
	}
	e.mu.RLock()
	t, ok := e.tables[table]
	e.mu.RUnlock()
	if !ok {
		return dberr.NewStorageError(dberr.TableNotFound, "table %s not found", table)
	}
	oldRow, found := t.Get(rid)
	if !found {
		return dberr.NewStorageError(dberr.TableNotFound, "record %d not found in %s", rid, table)
	}
	if err := e.checkUniqueViolation(t, newRow, &rid); err != nil {
		return err
	}
	if _, err := t.Update(rid, newRow); err != nil {
		return err
	}
	return e.idx.UpdateRecord(table, colValueMap(t.Schema, oldRow), colValueMap(t.Schema, newRow), rid)
}

// CreateIndex builds a new index and backfills it from the table's current
// rows.
func (e *Engine) CreateIndex(name, table, column string, unique bool) error {
	e.mu.RLock()
	t, ok := e.tables[table]
	e.mu.RUnlock()
	if !ok {
		return dberr.NewSemanticError(dberr.TableNotExists, "table %s does not exist", table)
	}
	if t.Schema.IndexOf(column) < 0 {
		return dberr.NewSemanticError(dberr.ColumnNotExists, "column %s not in table %s", column, table)
	}
	if err := e.idx.Create(name, table, column, unique); err != nil {
		return err
	}
	_, tree, _ := e.idx.Lookup(name)
	colIdx := t.Schema.IndexOf(column)
	for _, rid := range t.AllRecordIDs() {
		row, _ := t.Get(rid)
		tree.Insert(row.Values[colIdx], rid)
	}
	return nil
}

// DropIndex removes a named index.
func (e *Engine) DropIndex(name string) error { return e.idx.Drop(name) }

// RebuildIndexes replays a table's current rows into its indexes, the
// contract FastInsert/bulk-load callers must honor before serving queries.
func (e *Engine) RebuildIndexes(table string) {
	e.mu.RLock()
	t, ok := e.tables[table]
	e.mu.RUnlock()
	if !ok {
		return
	}
	e.idx.RebuildIndexes(table, func(yield func(rid uint32, colValues map[string]value.Value)) {
		for _, rid := range t.AllRecordIDs() {
			row, _ := t.Get(rid)
			yield(rid, colValueMap(t.Schema, row))
		}
	})
}

// Close flushes everything and closes the backing file.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if err := e.Save(); err != nil {
		e.logger.Warn("save on close failed", "err", err)
	}
	for _, t := range e.tables {
		if err := t.Close(); err != nil {
			e.logger.Warn("table close failed", "table", t.Name, "err", err)
		}
	}
	return e.pm.Close()
}

// FlushAll writes back every dirty page across every table.
func (e *Engine) FlushAll() error { return e.pm.FlushAll() }
