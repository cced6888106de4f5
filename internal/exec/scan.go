package exec

import (
	"io"
	"sort"

	"github.com/novadb/novadb/internal/heap"
	"github.com/novadb/novadb/internal/index"
	"github.com/novadb/novadb/internal/value"
)

// SeqScan emits every live row of a table in record-id order.
type SeqScan struct {
	Table *heap.Table
	ids   []uint32
	pos   int
}

func NewSeqScan(table *heap.Table) *SeqScan { return &SeqScan{Table: table} }

func (s *SeqScan) Init() error {
	s.ids = s.Table.AllRecordIDs()
	s.pos = 0
	return nil
}

func (s *SeqScan) Next() (value.Row, error) {
	for s.pos < len(s.ids) {
		rid := s.ids[s.pos]
		s.pos++
		if row, ok := s.Table.Get(rid); ok {
			return row, nil
		}
	}
	return value.Row{}, io.EOF
}

func (s *SeqScan) OutputSchema() value.Schema { return s.Table.Schema }
func (s *SeqScan) Children() []Executor       { return nil }

// IndexScan emits the rows addressed by an index lookup, either a single
// key or a closed [start,end] range.
type IndexScan struct {
	Table     *heap.Table
	Indexes   *index.Manager
	IndexName string
	Key       value.Value
	RangeMode bool
	Start     value.Value
	End       value.Value

	ids []uint32
	pos int
}

func NewIndexScanKey(table *heap.Table, indexes *index.Manager, indexName string, key value.Value) *IndexScan {
	return &IndexScan{Table: table, Indexes: indexes, IndexName: indexName, Key: key}
}

func NewIndexScanRange(table *heap.Table, indexes *index.Manager, indexName string, start, end value.Value) *IndexScan {
	return &IndexScan{Table: table, Indexes: indexes, IndexName: indexName, RangeMode: true, Start: start, End: end}
}

func (s *IndexScan) Init() error {
	if s.RangeMode {
		s.ids = s.Indexes.Range(s.IndexName, s.Start, s.End)
	} else {
		s.ids = s.Indexes.Search(s.IndexName, s.Key)
	}
	sort.Slice(s.ids, func(i, j int) bool { return s.ids[i] < s.ids[j] })
	s.pos = 0
	return nil
}

func (s *IndexScan) Next() (value.Row, error) {
	for s.pos < len(s.ids) {
		rid := s.ids[s.pos]
		s.pos++
		if row, ok := s.Table.Get(rid); ok {
			return row, nil
		}
	}
	return value.Row{}, io.EOF
}

func (s *IndexScan) OutputSchema() value.Schema { return s.Table.Schema }
func (s *IndexScan) Children() []Executor       { return nil }
