// Package optimizer implements the rule-based rewrite pass between plan
// construction and execution: IndexSelection actually rewrites the tree;
// PredicatePushdown and RedundantOperationElimination are analysis-only,
// per the operator interface's current owning-child shape (see the
// reimplementation notes on a scan-accepts-predicate redesign).
package optimizer

import (
	"log/slog"

	"github.com/novadb/novadb/internal/catalog"
	"github.com/novadb/novadb/internal/exec"
	"github.com/novadb/novadb/internal/index"
	"github.com/novadb/novadb/internal/sql/ast"
	"github.com/novadb/novadb/internal/value"
)

const maxIterations = 10

// Rule is one rewrite or analysis step, applied in descending Priority order.
type Rule interface {
	Name() string
	Priority() int
	// Apply returns a possibly-rewritten tree and whether it changed
	// anything (triggering another fixpoint iteration).
	Apply(root exec.Executor) (exec.Executor, bool)
}

// Stats accumulates how many times each rule fired across a run.
type Stats struct {
	Firings map[string]int
}

// Optimizer applies its rule set to a plan until a fixpoint or maxIterations.
type Optimizer struct {
	rules  []Rule
	logger *slog.Logger
}

func New(cat *catalog.Catalog, indexes *index.Manager, logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Optimizer{logger: logger}
	o.rules = []Rule{
		&IndexSelectionRule{Catalog: cat, Indexes: indexes},
		&PredicatePushdownRule{},
		&RedundantOperationEliminationRule{},
	}
	return o
}

// Optimize applies every rule in priority order, restarting the loop
// whenever a rule fires, bounded by maxIterations.
func (o *Optimizer) Optimize(root exec.Executor) (exec.Executor, Stats) {
	stats := Stats{Firings: make(map[string]int)}
	sorted := append([]Rule(nil), o.rules...)
	sortByPriorityDesc(sorted)

	for i := 0; i < maxIterations; i++ {
		changed := false
		for _, r := range sorted {
			var fired bool
			root, fired = r.Apply(root)
			if fired {
				stats.Firings[r.Name()]++
				changed = true
				o.logger.Debug("optimizer rule fired", "rule", r.Name(), "iteration", i)
			}
		}
		if !changed {
			break
		}
	}
	return root, stats
}

func sortByPriorityDesc(rules []Rule) {
	for i := 1; i < len(rules); i++ {
		for j := i; j > 0 && rules[j].Priority() > rules[j-1].Priority(); j-- {
			rules[j], rules[j-1] = rules[j-1], rules[j]
		}
	}
}

// IndexSelectionRule rewrites Filter(SeqScan(t), col OP literal) into an
// IndexScan when a matching index exists, dropping the Filter. Priority 10.
type IndexSelectionRule struct {
	Catalog *catalog.Catalog
	Indexes *index.Manager
}

func (r *IndexSelectionRule) Name() string { return "IndexSelection" }
func (r *IndexSelectionRule) Priority() int { return 10 }

func (r *IndexSelectionRule) Apply(root exec.Executor) (exec.Executor, bool) {
	return r.rewrite(root)
}

func (r *IndexSelectionRule) rewrite(node exec.Executor) (exec.Executor, bool) {
	if f, ok := node.(*exec.Filter); ok {
		if scan, ok := f.Child.(*exec.SeqScan); ok {
			if rewritten, ok := r.tryIndexScan(scan, f.Pred); ok {
				return rewritten, true
			}
		}
		child, changed := r.rewrite(f.Child)
		if changed {
			f.Child = child
			return f, true
		}
		return f, false
	}

	switch n := node.(type) {
	case *exec.Project:
		child, changed := r.rewrite(n.Child)
		if changed {
			n.Child = child
		}
		return n, changed
	case *exec.OrderBy:
		child, changed := r.rewrite(n.Child)
		if changed {
			n.Child = child
		}
		return n, changed
	case *exec.GroupBy:
		child, changed := r.rewrite(n.Child)
		if changed {
			n.Child = child
		}
		return n, changed
	case *exec.NestedLoopJoin:
		left, lc := r.rewrite(n.Left)
		right, rc := r.rewrite(n.Right)
		if lc {
			n.Left = left
		}
		if rc {
			n.Right = right
		}
		return n, lc || rc
	default:
		return node, false
	}
}

func (r *IndexSelectionRule) tryIndexScan(scan *exec.SeqScan, pred ast.Expr) (exec.Executor, bool) {
	be, ok := pred.(ast.BinaryExpr)
	if !ok || !be.Op.IsComparison() {
		return nil, false
	}
	ident, ok := be.Left.(ast.Identifier)
	if !ok {
		return nil, false
	}
	lit, ok := be.Right.(ast.Literal)
	if !ok {
		return nil, false
	}
	info, ok := r.Catalog.FindIndexFor(scan.Table.Name, ident.Name)
	if !ok {
		return nil, false
	}

	switch be.Op {
	case ast.OpEq:
		return exec.NewIndexScanKey(scan.Table, r.Indexes, info.Name, lit.Value), true
	case ast.OpGt:
		return exec.NewIndexScanRange(scan.Table, r.Indexes, info.Name, stepBound(lit.Value, true), maxBound(lit.Value)), true
	case ast.OpGte:
		return exec.NewIndexScanRange(scan.Table, r.Indexes, info.Name, lit.Value, maxBound(lit.Value)), true
	case ast.OpLt:
		return exec.NewIndexScanRange(scan.Table, r.Indexes, info.Name, minBound(lit.Value), stepBound(lit.Value, false)), true
	case ast.OpLte:
		return exec.NewIndexScanRange(scan.Table, r.Indexes, info.Name, minBound(lit.Value), lit.Value), true
	default:
		return nil, false
	}
}

// stepBound implements the numeric boundary policy: strict inequalities on
// integer keys step by one; on floating-point keys step by Epsilon.
func stepBound(v value.Value, up bool) value.Value {
	switch v.Kind {
	case value.KindInt:
		return value.StepInt(v, up)
	case value.KindDouble:
		return value.StepDouble(v, up)
	default:
		return v
	}
}

func maxBound(v value.Value) value.Value {
	switch v.Kind {
	case value.KindInt:
		return value.Int(1<<62 - 1)
	case value.KindDouble:
		return value.Double(1e308)
	default:
		return v
	}
}

func minBound(v value.Value) value.Value {
	switch v.Kind {
	case value.KindInt:
		return value.Int(-(1<<62 - 1))
	case value.KindDouble:
		return value.Double(-1e308)
	default:
		return v
	}
}

// PredicatePushdownRule recognizes Project->Filter->SeqScan and
// Filter->Project shapes and reports the opportunity without rewriting:
// the current operator interface has no hook for a scan to accept an
// optional predicate, so a safe rewrite isn't possible here (see
// the scan-accepts-predicate redesign note). Priority 5.
type PredicatePushdownRule struct{ lastReport string }

func (r *PredicatePushdownRule) Name() string  { return "PredicatePushdown" }
func (r *PredicatePushdownRule) Priority() int { return 5 }

func (r *PredicatePushdownRule) Apply(root exec.Executor) (exec.Executor, bool) {
	r.scan(root)
	return root, false
}

func (r *PredicatePushdownRule) scan(node exec.Executor) {
	switch n := node.(type) {
	case *exec.Project:
		if f, ok := n.Child.(*exec.Filter); ok {
			if _, ok := f.Child.(*exec.SeqScan); ok {
				r.lastReport = "Project->Filter->SeqScan: predicate could push into the scan"
			}
		}
	case *exec.Filter:
		if _, ok := n.Child.(*exec.Project); ok {
			r.lastReport = "Filter->Project: predicate could push below the projection"
		}
	}
	for _, c := range node.Children() {
		r.scan(c)
	}
}

// RedundantOperationEliminationRule detects stacked Project(Project(x))
// and reports the opportunity: merging would require moving an owned
// child out of its parent, which the current interface doesn't expose
// safely. Priority 3.
type RedundantOperationEliminationRule struct{ lastReport string }

func (r *RedundantOperationEliminationRule) Name() string  { return "RedundantOperationElimination" }
func (r *RedundantOperationEliminationRule) Priority() int { return 3 }

func (r *RedundantOperationEliminationRule) Apply(root exec.Executor) (exec.Executor, bool) {
	r.scan(root)
	return root, false
}

func (r *RedundantOperationEliminationRule) scan(node exec.Executor) {
	if p, ok := node.(*exec.Project); ok {
		if _, ok := p.Child.(*exec.Project); ok {
			r.lastReport = "Project(Project(x)): stacked projections could merge"
		}
	}
	for _, c := range node.Children() {
		r.scan(c)
	}
}
