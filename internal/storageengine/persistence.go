package storageengine

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/novadb/novadb/internal/heap"
	"github.com/novadb/novadb/internal/value"
)

// Save writes metadata.meta (table schemas), indexes.meta (index catalog),
// and one <table>.tbl snapshot per table. Together these are the restart
// path: database.db holds the live paged heap while the engine runs, but
// reopening rebuilds every table and index from these flat snapshots
// rather than re-deriving page-directory state from the heap file.
func (e *Engine) Save() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.saveMetadata(); err != nil {
		return err
	}
	if err := e.saveIndexes(); err != nil {
		return err
	}
	for name, t := range e.tables {
		if err := e.saveTable(name, t); err != nil {
			return err
		}
	}
	return e.pm.FlushAll()
}

func (e *Engine) saveMetadata() error {
	f, err := os.Create(filepath.Join(e.dataDir, MetadataFileName))
	if err != nil {
		return fmt.Errorf("storageengine: create metadata: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, len(e.tables))
	for name, t := range e.tables {
		writeSchema(w, name, t.Schema)
	}
	return w.Flush()
}

func writeSchema(w *bufio.Writer, name string, schema value.Schema) {
	fmt.Fprintln(w, name)
	fmt.Fprintln(w, len(schema.Columns))
	for _, c := range schema.Columns {
		fmt.Fprintf(w, "%s|%d|%t|%t\n", c.Name, c.Type, c.NotNull, c.PrimaryKey)
	}
}

func readSchema(r *bufio.Reader) (string, value.Schema, error) {
	name, err := readLine(r)
	if err != nil {
		return "", value.Schema{}, err
	}
	n, err := readInt(r)
	if err != nil {
		return "", value.Schema{}, err
	}
	cols := make([]value.ColumnInfo, 0, n)
	for i := 0; i < n; i++ {
		line, err := readLine(r)
		if err != nil {
			return "", value.Schema{}, err
		}
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			return "", value.Schema{}, fmt.Errorf("storageengine: malformed column line %q", line)
		}
		kind, err := strconv.Atoi(parts[1])
		if err != nil {
			return "", value.Schema{}, err
		}
		cols = append(cols, value.ColumnInfo{
			Name:       parts[0],
			Type:       value.ColumnType(kind),
			NotNull:    parts[2] == "true",
			PrimaryKey: parts[3] == "true",
		})
	}
	return name, value.Schema{Columns: cols}, nil
}

func (e *Engine) saveIndexes() error {
	f, err := os.Create(filepath.Join(e.dataDir, IndexesFileName))
	if err != nil {
		return fmt.Errorf("storageengine: create indexes meta: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	var all []struct{ name, table, col string; unique bool }
	for _, tableName := range e.TableNames() {
		for _, info := range e.idx.IndexesFor(tableName) {
			all = append(all, struct {
				name, table, col string
				unique           bool
			}{info.Name, info.Table, info.Column, info.Unique})
		}
	}
	fmt.Fprintln(w, len(all))
	for _, ix := range all {
		fmt.Fprintf(w, "%s|%s|%s|%t\n", ix.name, ix.table, ix.col, ix.unique)
	}
	return w.Flush()
}

func (e *Engine) saveTable(name string, t *heap.Table) error {
	f, err := os.Create(filepath.Join(e.dataDir, name+".tbl"))
	if err != nil {
		return fmt.Errorf("storageengine: create table snapshot %s: %w", name, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	ids := t.AllRecordIDs()
	fmt.Fprintln(w, len(ids))
	for _, rid := range ids {
		row, ok := t.Get(rid)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%d %s\n", rid, hex.EncodeToString(row.Serialize()))
	}
	return w.Flush()
}

// Load reconstructs tables, rows, and indexes from the flat snapshots
// written by Save. It is a no-op (returning an error) if metadata.meta
// does not exist yet, which Open treats as "empty database."
func (e *Engine) Load() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	mf, err := os.Open(filepath.Join(e.dataDir, MetadataFileName))
	if err != nil {
		return err
	}
	defer mf.Close()
	r := bufio.NewReader(mf)
	count, err := readInt(r)
	if err != nil {
		return err
	}
	schemas := make(map[string]value.Schema, count)
	order := make([]string, 0, count)
	for i := 0; i < count; i++ {
		name, schema, err := readSchema(r)
		if err != nil {
			return err
		}
		schemas[name] = schema
		order = append(order, name)
	}

	for _, name := range order {
		e.tables[name] = heap.NewTable(name, schemas[name], e.pm, e.logger)
	}

	if err := e.loadIndexMeta(); err != nil {
		e.logger.Debug("no prior index metadata", "err", err)
	}

	for _, name := range order {
		if err := e.loadTableRows(name, e.tables[name]); err != nil {
			e.logger.Warn("loading table snapshot", "table", name, "err", err)
		}
	}

	for _, name := range order {
		t := e.tables[name]
		e.idx.RebuildIndexes(name, func(yield func(rid uint32, colValues map[string]value.Value)) {
			for _, rid := range t.AllRecordIDs() {
				row, _ := t.Get(rid)
				yield(rid, colValueMap(t.Schema, row))
			}
		})
	}
	return nil
}

func (e *Engine) loadIndexMeta() error {
	f, err := os.Open(filepath.Join(e.dataDir, IndexesFileName))
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	n, err := readInt(r)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		line, err := readLine(r)
		if err != nil {
			return err
		}
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}
		_ = e.idx.Create(parts[0], parts[1], parts[2], parts[3] == "true")
	}
	return nil
}

func (e *Engine) loadTableRows(name string, t *heap.Table) error {
	f, err := os.Open(filepath.Join(e.dataDir, name+".tbl"))
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	n, err := readInt(r)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		line, err := readLine(r)
		if err != nil {
			return err
		}
		sp := strings.SplitN(line, " ", 2)
		if len(sp) != 2 {
			continue
		}
		rid, err := strconv.ParseUint(sp[0], 10, 32)
		if err != nil {
			return err
		}
		raw, err := hex.DecodeString(sp[1])
		if err != nil {
			return err
		}
		row, err := value.DeserializeRow(raw)
		if err != nil {
			return err
		}
		if err := t.AdoptRow(uint32(rid), row); err != nil {
			return err
		}
	}
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readInt(r *bufio.Reader) (int, error) {
	line, err := readLine(r)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(line))
}
