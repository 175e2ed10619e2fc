package ptree

import (
	"fmt"
	"math"

	"github.com/evophylo/ptu/bio"
	"github.com/gonum/matrix/mat64"
)

const (
	// BranchEps is the convergence threshold of the branch-length
	// optimizer.
	BranchEps = 1e-6
	// MinBranchLength is the floor applied to optimized lengths so
	// transition matrices stay non-singular.
	MinBranchLength = 1e-9
)

var (
	// InvalidCost marks a cost cell as not yet evaluated. It is a
	// finite sentinel so the marker survives arithmetic inspection
	// and compares with ==.
	InvalidCost = 1e308
	// MaxCostExp is the largest finite cost magnitude allowed inside
	// exponentials during scaled dot products.
	MaxCostExp = math.Log(math.MaxFloat64) / 2
)

// dotProductScaledVec computes -log(sum_i p[i] * exp(-v[i])) with
// rescaling when every component of v is large, so that deep trees
// do not underflow to zero likelihood.
func dotProductScaledVec(p, v []float64) float64 {
	scale := costScale(v)
	var sum float64
	for i := range p {
		sum += p[i] * math.Exp(-v[i]+scale)
	}
	return -math.Log(sum) + scale
}

// dotProductScaled computes y[i] = -log(sum_j m[i][j] * exp(-v[j]))
// for a 4 x 4 transition matrix m, with the same rescaling rule.
func dotProductScaled(m *mat64.Dense, v []float64) []float64 {
	scale := costScale(v)
	y := make([]float64, bio.NBase)
	for i := 0; i < bio.NBase; i++ {
		var sum float64
		for j := 0; j < bio.NBase; j++ {
			sum += m.At(i, j) * math.Exp(-v[j]+scale)
		}
		y[i] = -math.Log(sum) + scale
	}
	return y
}

// costScale returns the shift to subtract inside exponentials. It is
// nonzero only when the smallest finite cost already exceeds
// MaxCostExp.
func costScale(v []float64) float64 {
	min := math.Inf(1)
	for _, c := range v {
		if c < min {
			min = c
		}
	}
	if !math.IsInf(min, 0) && min > MaxCostExp {
		return min - MaxCostExp
	}
	return 0
}

// costKey maps a directed edge to its cache key. The root has no
// parent, so its outgoing message is stored under the self key.
func costKey(u, v *Node) (*Node, *Node) {
	if v == nil {
		return u, u
	}
	return u, v
}

func (t *Tree) costMatrix(u, v *Node) *mat64.Dense {
	a, b := costKey(u, v)
	return t.costs[a][b]
}

func (t *Tree) ensureCost(u, v *Node) *mat64.Dense {
	a, b := costKey(u, v)
	if m := t.costs[a][b]; m != nil {
		return m
	}
	m := newInvalidCost(t.csLen)
	if t.costs[a] == nil {
		t.costs[a] = make(map[*Node]*mat64.Dense)
	}
	t.costs[a][b] = m
	return m
}

func newInvalidCost(csLen int) *mat64.Dense {
	m := mat64.NewDense(bio.NBase, csLen, nil)
	for i := 0; i < bio.NBase; i++ {
		for j := 0; j < csLen; j++ {
			m.Set(i, j, InvalidCost)
		}
	}
	return m
}

// InitInCost allocates an invalid cost matrix for every directed edge
// plus the root self edge. LoadMSA and SetModel must have been called.
func (t *Tree) InitInCost() error {
	if t.csLen == 0 {
		return fmt.Errorf("%w: no alignment loaded", ErrInvalidArgument)
	}
	for _, u := range t.id2node {
		for _, v := range u.neighbors {
			t.ensureCost(u, v)
		}
	}
	t.ensureCost(t.root, nil)
	return nil
}

/// InitLeafCost builds the 4 x 5 observation cost table: matching
// bases cost zero, mismatches are infinite, and the gap column is
// all zero so gaps are uninformative.
func (t *Tree) InitLeafCost() {
	t.leafCost = mat64.NewDense(bio.NBase, bio.NSymbol, nil)
	for b := 0; b < bio.NBase; b++ {
		for s := 0; s < bio.NBase; s++ {
			if b != s {
				t.leafCost.Set(b, s, math.Inf(1))
			}
		}
	}
}

// resetCost marks an existing cached matrix for u->v invalid. Missing
// matrices stay missing.
func (t *Tree) resetCost(u, v *Node) {
	m := t.costMatrix(u, v)
	if m == nil {
		return
	}
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, InvalidCost)
		}
	}
}

func (t *Tree) resetCostBoth(u, v *Node) {
	t.resetCost(u, v)
	t.resetCost(v, u)
}

// ResetCost marks every cached message invalid.
func (t *Tree) ResetCost() {
	for u, inner := range t.costs {
		for v := range inner {
			t.resetCost(u, v)
		}
	}
}

// invalidateToRoot invalidates both directions of every edge on the
// path from node to the current root, plus the root self message.
// This is conservative but never stale.
func (t *Tree) invalidateToRoot(node *Node) {
	for n := node; n != nil && n.parent != nil; n = n.parent {
		t.resetCostBoth(n, n.parent)
	}
	t.resetCost(t.root, nil)
}

// IsEvaluated tests whether the message u->v is cached and fully
// evaluated over all sites.
func (t *Tree) IsEvaluated(u, v *Node) bool {
	m := t.costMatrix(u, v)
	if m == nil {
		return false
	}
	r, c := m.Dims()
	if c != t.csLen {
		return false
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) == InvalidCost {
				return false
			}
		}
	}
	return true
}

// IsEvaluatedAt tests whether column j of the message u->v is
// evaluated.
func (t *Tree) IsEvaluatedAt(u, v *Node, j int) bool {
	m := t.costMatrix(u, v)
	if m == nil {
		return false
	}
	for i := 0; i < bio.NBase; i++ {
		if m.At(i, j) == InvalidCost {
			return false
		}
	}
	return true
}

// Evaluate evaluates every message oriented toward the current root,
// for all alignment sites.
func (t *Tree) Evaluate() {
	t.EvaluateNode(t.root)
}

// EvaluateNode evaluates the message from node toward its parent
// (the self message for the root), recursing into unevaluated
// children first.
func (t *Tree) EvaluateNode(node *Node) {
	if t.IsEvaluated(node, node.parent) {
		return
	}
	for _, c := range node.Children() {
		t.EvaluateNode(c)
	}
	prs := t.childTransitions(node)
	m := t.ensureCost(node, node.parent)
	for j := 0; j < t.csLen; j++ {
		if t.IsEvaluatedAt(node, node.parent, j) {
			continue
		}
		col := t.columnCost(node, j, prs)
		for i := 0; i < bio.NBase; i++ {
			m.Set(i, j, col[i])
		}
	}
}

// EvaluateAt evaluates column j of the message from node toward its
// parent, recursing into children as needed.
func (t *Tree) EvaluateAt(node *Node, j int) {
	if t.IsEvaluatedAt(node, node.parent, j) {
		return
	}
	for _, c := range node.Children() {
		t.EvaluateAt(c, j)
	}
	col := t.columnCost(node, j, t.childTransitions(node))
	m := t.ensureCost(node, node.parent)
	for i := 0; i < bio.NBase; i++ {
		m.Set(i, j, col[i])
	}
}

// childTransitions precomputes Pr(length) for every child branch.
func (t *Tree) childTransitions(node *Node) map[*Node]*mat64.Dense {
	prs := make(map[*Node]*mat64.Dense)
	for _, c := range node.Children() {
		prs[c] = t.model.Pr(t.lengths[c][node])
	}
	return prs
}

// columnCost computes the outgoing message column of node at site j
// from the already-evaluated child messages plus the node's own
// observation, if any.
func (t *Tree) columnCost(node *Node, j int, prs map[*Node]*mat64.Dense) []float64 {
	col := make([]float64, bio.NBase)
	for _, c := range node.Children() {
		cm := t.costMatrix(c, node)
		v := make([]float64, bio.NBase)
		for i := 0; i < bio.NBase; i++ {
			v[i] = cm.At(i, j)
		}
		g := dotProductScaled(prs[c], v)
		for i := 0; i < bio.NBase; i++ {
			col[i] += g[i]
		}
	}
	if j < node.Seq.Len() {
		s := node.Seq.Codes[j]
		if !bio.IsGap(s) {
			for i := 0; i < bio.NBase; i++ {
				col[i] += t.leafCost.At(i, int(s))
			}
		}
	}
	return col
}

// Cost returns the evaluated message matrix from node toward its
// parent. The matrix is owned by the tree.
func (t *Tree) Cost(node *Node) *mat64.Dense {
	t.EvaluateNode(node)
	return t.costMatrix(node, node.parent)
}

// CostAt returns a copy of column j of the message from node toward
// its parent.
func (t *Tree) CostAt(node *Node, j int) []float64 {
	t.EvaluateAt(node, j)
	m := t.costMatrix(node, node.parent)
	col := make([]float64, bio.NBase)
	for i := 0; i < bio.NBase; i++ {
		col[i] = m.At(i, j)
	}
	return col
}

// TreeCostAt returns the total observation cost of site j, mixing the
// root message with the model's stationary distribution.
func (t *Tree) TreeCostAt(j int) float64 {
	return dotProductScaledVec(t.model.Pi(), t.CostAt(t.root, j))
}

// TreeCostRange sums the site costs over the closed range
// [start, end].
func (t *Tree) TreeCostRange(start, end int) float64 {
	var sum float64
	for j := start; j <= end; j++ {
		sum += t.TreeCostAt(j)
	}
	return sum
}

// TreeCost returns the total observation cost over all sites.
func (t *Tree) TreeCost() float64 {
	return t.TreeCostRange(0, t.csLen-1)
}
