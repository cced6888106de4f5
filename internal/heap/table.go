// Package heap implements the table heap file: a schema, an ordered set of
// pages, and the recordId -> (pageId, slot) mapping that lets records move
// without invalidating indexes.
package heap

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	atomicx "go.uber.org/atomic"

	"github.com/novadb/novadb/internal/dberr"
	"github.com/novadb/novadb/internal/storage"
	"github.com/novadb/novadb/internal/value"
)

// RecordLocation is the physical address of a logical RecordId.
type RecordLocation struct {
	PageID uint32
	Slot   uint16
}

// Table is a heap-organized collection of rows under one schema.
type Table struct {
	mu           sync.RWMutex
	Name         string
	Schema       value.Schema
	pm           *storage.PageManager
	pages        []uint32
	locations    map[uint32]RecordLocation
	nextRecordID uint32
	closed       atomicx.Bool
	logger       *slog.Logger
}

// NewTable constructs an empty table backed by pm.
func NewTable(name string, schema value.Schema, pm *storage.PageManager, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		Name:         name,
		Schema:       schema,
		pm:           pm,
		locations:    make(map[uint32]RecordLocation),
		nextRecordID: 1,
		logger:       logger,
	}
}

// Pages exposes the table's page ids, in allocation order (used for
// persistence snapshots and rebuild-from-scratch paths).
func (t *Table) Pages() []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]uint32, len(t.pages))
	copy(out, t.pages)
	return out
}

// AdoptPage registers an already-allocated page as belonging to this table,
// used when reloading from disk.
func (t *Table) AdoptPage(pageID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pages = append(t.pages, pageID)
}

// AdoptLocation registers a recordId -> location mapping directly, used
// when reloading from disk; it also advances nextRecordID past rid.
func (t *Table) AdoptLocation(rid uint32, loc RecordLocation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locations[rid] = loc
	if rid >= t.nextRecordID {
		t.nextRecordID = rid + 1
	}
}

func (t *Table) validateRow(row value.Row) error {
	if len(row.Values) != len(t.Schema.Columns) {
		return dberr.NewSemanticError(dberr.ColumnCountMismatch,
			"table %s expects %d columns, got %d", t.Name, len(t.Schema.Columns), len(row.Values))
	}
	for i, col := range t.Schema.Columns {
		if col.NotNull && row.Values[i].IsNull() {
			return dberr.NewSemanticError(dberr.InvalidValue, "column %s.%s is NOT NULL", t.Name, col.Name)
		}
	}
	return nil
}

// Insert validates row (arity, NOT NULL) and appends it, returning the
// newly allocated RecordId. Primary-key uniqueness is the caller's
// responsibility (StorageEngine probes the pk index before calling Insert).
func (t *Table) Insert(row value.Row) (uint32, error) {
	if err := t.ensureOpen(); err != nil {
		return 0, err
	}
	if err := t.validateRow(row); err != nil {
		return 0, err
	}
	return t.insertRaw(row)
}

// FastInsert skips validation entirely; it is the bulk-load path. The
// caller must invoke IndexManager.RebuildIndexes on this table before
// relying on index lookups again.
func (t *Table) FastInsert(row value.Row) (uint32, error) {
	return t.insertRaw(row)
}

func (t *Table) insertRaw(row value.Row) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := row.Serialize()
	for _, pid := range t.pages {
		page, err := t.pm.Read(pid)
		if err != nil {
			return 0, err
		}
		slot, ok := page.InsertRecord(data)
		if !ok {
			t.pm.Unpin(pid, false)
			continue
		}
		t.pm.Unpin(pid, true)
		rid := t.nextRecordID
		t.nextRecordID++
		t.locations[rid] = RecordLocation{PageID: pid, Slot: slot}
		return rid, nil
	}

	pid, err := t.pm.Allocate(storage.DataPage)
	if err != nil {
		return 0, err
	}
	page, err := t.pm.Read(pid)
	if err != nil {
		return 0, err
	}
	slot, ok := page.InsertRecord(data)
	if !ok {
		t.pm.Unpin(pid, false)
		return 0, dberr.NewStorageError(dberr.PageAllocationFailed, "row of %d bytes does not fit in an empty page", len(data))
	}
	t.pm.Unpin(pid, true)
	t.pages = append(t.pages, pid)
	rid := t.nextRecordID
	t.nextRecordID++
	t.locations[rid] = RecordLocation{PageID: pid, Slot: slot}
	return rid, nil
}

// Get returns the row stored at rid.
func (t *Table) Get(rid uint32) (value.Row, bool) {
	t.mu.RLock()
	loc, ok := t.locations[rid]
	t.mu.RUnlock()
	if !ok {
		return value.Row{}, false
	}
	page, err := t.pm.Read(loc.PageID)
	if err != nil {
		return value.Row{}, false
	}
	defer t.pm.Unpin(loc.PageID, false)
	data, ok := page.GetRecord(loc.Slot)
	if !ok {
		return value.Row{}, false
	}
	row, err := value.DeserializeRow(data)
	if err != nil {
		return value.Row{}, false
	}
	return row, true
}

// Delete removes rid, clearing its slot and its location mapping.
func (t *Table) Delete(rid uint32) bool {
	t.mu.Lock()
	loc, ok := t.locations[rid]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.locations, rid)
	t.mu.Unlock()

	page, err := t.pm.Read(loc.PageID)
	if err != nil {
		return false
	}
	defer t.pm.Unpin(loc.PageID, true)
	return page.DeleteRecord(loc.Slot)
}

// Update replaces the row at rid with a new value, preserving rid. If the
// new serialization no longer fits the current page, the record is
// relocated to wherever Insert would place it and the location map is
// repointed; rid itself never changes.
func (t *Table) Update(rid uint32, row value.Row) (bool, error) {
	if err := t.ensureOpen(); err != nil {
		return false, err
	}
	if err := t.validateRow(row); err != nil {
		return false, err
	}
	t.mu.Lock()
	loc, ok := t.locations[rid]
	t.mu.Unlock()
	if !ok {
		return false, nil
	}

	data := row.Serialize()
	page, err := t.pm.Read(loc.PageID)
	if err != nil {
		return false, err
	}
	if page.UpdateRecord(loc.Slot, data) {
		t.pm.Unpin(loc.PageID, true)
		return true, nil
	}
	t.pm.Unpin(loc.PageID, false)

	// Doesn't fit in place: delete then reinsert elsewhere, keeping rid.
	if !t.Delete(rid) {
		return false, fmt.Errorf("heap: update: record %d vanished mid-update", rid)
	}
	newRid, err := t.insertRaw(row)
	if err != nil {
		return false, err
	}
	t.mu.Lock()
	loc = t.locations[newRid]
	delete(t.locations, newRid)
	t.locations[rid] = loc
	t.mu.Unlock()
	return true, nil
}

// Close flushes the table's pages and marks it closed; after that, Insert
// and Update return errors instead of touching storage. Delete, FastInsert
// and AdoptRow do not check the closed flag.
func (t *Table) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.Flush()
}

func (t *Table) ensureOpen() error {
	if t.closed.Load() {
		return fmt.Errorf("heap: table %s is closed", t.Name)
	}
	return nil
}

// AllRecordIDs returns every live RecordId in ascending order, which is the
// order SeqScan must emit rows in.
func (t *Table) AllRecordIDs() []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]uint32, 0, len(t.locations))
	for rid := range t.locations {
		out = append(out, rid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RowCount returns the number of live rows.
func (t *Table) RowCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.locations)
}

// Flush forces every page this table owns to be written back.
func (t *Table) Flush() error {
	t.mu.RLock()
	pages := append([]uint32(nil), t.pages...)
	t.mu.RUnlock()
	for _, pid := range pages {
		if err := t.pm.Flush(pid); err != nil {
			return err
		}
	}
	return nil
}

// AdoptRow inserts row under an already-known rid, used when reloading a
// table snapshot from disk. It bypasses validation and advances
// nextRecordID past rid the same way AdoptLocation does.
func (t *Table) AdoptRow(rid uint32, row value.Row) error {
	newRid, err := t.insertRaw(row)
	if err != nil {
		return err
	}
	t.mu.Lock()
	loc := t.locations[newRid]
	delete(t.locations, newRid)
	t.locations[rid] = loc
	if rid >= t.nextRecordID {
		t.nextRecordID = rid + 1
	}
	t.mu.Unlock()
	return nil
}

// Location returns the physical address of rid, used by persistence.
func (t *Table) Location(rid uint32) (RecordLocation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	loc, ok := t.locations[rid]
	return loc, ok
}
