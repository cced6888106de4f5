// Package index implements the named B+ tree index registry and mirrors
// table mutations into the right trees.
package index

import (
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/multierr"

	"github.com/novadb/novadb/internal/btree"
	"github.com/novadb/novadb/internal/dberr"
	"github.com/novadb/novadb/internal/value"
)

// Info describes one named index.
type Info struct {
	Name     string
	Table    string
	Column   string
	Unique   bool
	CreatedAt int64
}

// PrimaryKeyIndexName returns the canonical name CREATE TABLE assigns to a
// primary key's automatic index.
func PrimaryKeyIndexName(table, col string) string { return fmt.Sprintf("pk_%s_%s", table, col) }

// Manager owns every index across every table and mirrors row mutations
// into them.
type Manager struct {
	mu      sync.RWMutex
	indexes map[string]*btree.Tree
	infos   map[string]Info
	byTable map[string][]string // table -> index names
	logger  *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		indexes: make(map[string]*btree.Tree),
		infos:   make(map[string]Info),
		byTable: make(map[string][]string),
		logger:  logger,
	}
}

// Create registers a new named index on table(column).
func (m *Manager) Create(name, table, column string, unique bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.indexes[name]; exists {
		return dberr.NewIndexError(dberr.IndexAlreadyExists, "index %s already exists", name)
	}
	m.indexes[name] = btree.New(btree.DefaultOrder, m.logger)
	m.infos[name] = Info{Name: name, Table: table, Column: column, Unique: unique}
	m.byTable[table] = append(m.byTable[table], name)
	return nil
}

// Drop removes a named index.
func (m *Manager) Drop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.infos[name]
	if !ok {
		return dberr.NewIndexError(dberr.IndexNotFound, "index %s not found", name)
	}
	delete(m.indexes, name)
	delete(m.infos, name)
	names := m.byTable[info.Table]
	for i, n := range names {
		if n == name {
			m.byTable[info.Table] = append(names[:i], names[i+1:]...)
			break
		}
	}
	return nil
}

// DropTable removes every index owned by table (an index is owned by its
// table's lifetime).
func (m *Manager) DropTable(table string) {
	m.mu.Lock()
	names := append([]string(nil), m.byTable[table]...)
	m.mu.Unlock()
	for _, n := range names {
		_ = m.Drop(n)
	}
}

// IndexesFor returns every index defined on table.
func (m *Manager) IndexesFor(table string) []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Info
	for _, n := range m.byTable[table] {
		out = append(out, m.infos[n])
	}
	return out
}

// Lookup finds a named index's Info and tree.
func (m *Manager) Lookup(name string) (Info, *btree.Tree, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.infos[name]
	if !ok {
		return Info{}, nil, false
	}
	return info, m.indexes[name], true
}

// HasIndex reports whether name is a registered index.
func (m *Manager) HasIndex(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.infos[name]
	return ok
}

// InsertRecord mirrors an inserted row into every index on table. It is
// all-or-nothing for uniqueness: every unique index on table is checked for
// a colliding key before any index is modified.
func (m *Manager) InsertRecord(table string, colValues map[string]value.Value, rid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := m.byTable[table]

	for _, n := range names {
		info := m.infos[n]
		if !info.Unique {
			continue
		}
		key, ok := colValues[info.Column]
		if !ok {
			continue
		}
		if existing := m.indexes[n].Search(key); len(existing) > 0 {
			return dberr.NewIndexError(dberr.UniqueViolation, "unique index %s: value %s already present", n, key.String())
		}
	}

	for _, n := range names {
		info := m.infos[n]
		key, ok := colValues[info.Column]
		if !ok {
			continue
		}
		m.indexes[n].Insert(key, rid)
	}
	return nil
}

// DeleteRecord mirrors a deleted row out of every index on table. It is
// best-effort: one index's failure is logged but does not block the rest,
// because the row itself is already gone.
func (m *Manager) DeleteRecord(table string, colValues map[string]value.Value, rid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var combined error
	for _, n := range m.byTable[table] {
		info := m.infos[n]
		key, ok := colValues[info.Column]
		if !ok {
			continue
		}
		if !m.indexes[n].Remove(key, rid) {
			err := fmt.Errorf("index %s: record %d (key %s) not found during delete mirror", n, rid, key.String())
			combined = multierr.Append(combined, err)
			m.logger.Warn("index delete mirror failed", "index", n, "record", rid, "err", err)
		}
	}
	return combined
}

// UpdateRecord mirrors a row mutation: indexes whose column value is
// unchanged are skipped; for changed indexes the old key/rid pair is
// removed and the new one inserted. If an insertion fails (unique
// violation), it rolls back by reinserting the old key/rid everywhere that
// already succeeded.
func (m *Manager) UpdateRecord(table string, old, new map[string]value.Value, rid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := m.byTable[table]

	type change struct {
		name     string
		column   string
		oldKey   value.Value
		newKey   value.Value
		unique   bool
	}
	var changes []change
	for _, n := range names {
		info := m.infos[n]
		ov, oOk := old[info.Column]
		nv, nOk := new[info.Column]
		if !oOk || !nOk {
			continue
		}
		if value.Equal(ov, nv) {
			continue
		}
		changes = append(changes, change{n, info.Column, ov, nv, info.Unique})
	}

	for i, c := range changes {
		if c.unique {
			if existing := m.indexes[c.name].Search(c.newKey); len(existing) > 0 {
				// roll back everything applied so far
				for _, applied := range changes[:i] {
					m.indexes[applied.name].Remove(applied.newKey, rid)
					m.indexes[applied.name].Insert(applied.oldKey, rid)
				}
				return dberr.NewIndexError(dberr.UniqueViolation, "unique index %s: value %s already present", c.name, c.newKey.String())
			}
		}
		m.indexes[c.name].Remove(c.oldKey, rid)
		m.indexes[c.name].Insert(c.newKey, rid)
	}
	return nil
}

// Search returns the record ids stored under key in the named index.
func (m *Manager) Search(name string, key value.Value) []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.indexes[name]
	if !ok {
		return nil
	}
	return t.Search(key)
}

// Range returns the record ids in [start, end] in the named index.
func (m *Manager) Range(name string, start, end value.Value) []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.indexes[name]
	if !ok {
		return nil
	}
	return t.Range(start, end)
}

// RebuildIndexes drops and recreates every index on table from scratch by
// replaying rows, the contract FastInsert callers must honor.
func (m *Manager) RebuildIndexes(table string, rows func(yield func(rid uint32, colValues map[string]value.Value))) {
	m.mu.Lock()
	names := append([]string(nil), m.byTable[table]...)
	for _, n := range names {
		m.indexes[n] = btree.New(btree.DefaultOrder, m.logger)
	}
	m.mu.Unlock()

	rows(func(rid uint32, colValues map[string]value.Value) {
		m.mu.Lock()
		for _, n := range names {
			info := m.infos[n]
			if key, ok := colValues[info.Column]; ok {
				m.indexes[n].Insert(key, rid)
			}
		}
		m.mu.Unlock()
	})
}
