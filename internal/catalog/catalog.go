// Package catalog provides a read-only schema view for semantic analysis
// and the optimizer. It holds no state of its own; every query reads
// through to the StorageEngine via the Provider interface, which avoids
// the catalog-drift failure mode of keeping a second, independently
// maintained copy of table metadata.
package catalog

import (
	"github.com/novadb/novadb/internal/index"
	"github.com/novadb/novadb/internal/value"
)

// Provider is the subset of StorageEngine the catalog needs. StorageEngine
// satisfies this interface; Catalog never imports it directly.
type Provider interface {
	TableSchema(name string) (value.Schema, bool)
	TableNames() []string
	IndexesForTable(table string) []index.Info
}

// Catalog is a thin, always-fresh projection over a Provider.
type Catalog struct {
	provider Provider
}

func New(provider Provider) *Catalog { return &Catalog{provider: provider} }

func (c *Catalog) TableExists(name string) bool {
	_, ok := c.provider.TableSchema(name)
	return ok
}

func (c *Catalog) TableSchema(name string) (value.Schema, bool) {
	return c.provider.TableSchema(name)
}

func (c *Catalog) TableNames() []string { return c.provider.TableNames() }

func (c *Catalog) IndexesFor(table string) []index.Info {
	return c.provider.IndexesForTable(table)
}

// FindIndexFor implements the optimizer's canonical-name lookup policy: a
// primary-key index named pk_<table>_<col>, then idx_<col>, then
// <table>_<col>_idx.
func (c *Catalog) FindIndexFor(table, column string) (index.Info, bool) {
	candidates := []string{
		index.PrimaryKeyIndexName(table, column),
		"idx_" + column,
		table + "_" + column + "_idx",
	}
	byName := make(map[string]index.Info)
	for _, info := range c.provider.IndexesForTable(table) {
		byName[info.Name] = info
	}
	for _, name := range candidates {
		if info, ok := byName[name]; ok {
			return info, true
		}
	}
	return index.Info{}, false
}
