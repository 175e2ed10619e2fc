package ptree

import (
	"fmt"

	"github.com/evophylo/ptu/bio"
	"github.com/gonum/matrix/mat64"
)

// PlaceSeq grafts an aligned sequence onto edge {u, v}: the edge is
// split at a new internal node r, the sequence becomes a new leaf n
// pendant from r with initial length d0, the tree is re-rooted at r
// and the pendant length is optimized over the closed site range
// [start, end]. It returns the new leaf; its parent is r. The
// mutation is not transactional.
func (t *Tree) PlaceSeq(seq bio.DigitalSeq, u, v *Node, start, end int, d0 float64) (*Node, error) {
	if seq.Len() != t.csLen {
		return nil, fmt.Errorf("%w: sequence %q has %d sites, alignment has %d", ErrInvalidArgument, seq.Name, seq.Len(), t.csLen)
	}
	if !t.hasEdge(u, v) {
		return nil, fmt.Errorf("%w: no edge between node %d and node %d", ErrInvalidArgument, u.ID, v.ID)
	}
	if d0 < 0 {
		return nil, fmt.Errorf("%w: negative pendant length %g", ErrInvalidArgument, d0)
	}
	if start < 0 || end >= t.csLen || start > end {
		return nil, fmt.Errorf("%w: bad site range [%d, %d]", ErrInvalidArgument, start, end)
	}

	length := t.lengths[u][v]
	r := t.newNode("")
	n := t.newNode(seq.Name)
	n.Seq = seq.Copy()

	if !u.replaceNeighbor(v, r) || !v.replaceNeighbor(u, r) {
		return nil, fmt.Errorf("%w: nodes %d and %d are not mutual neighbors", ErrInconsistent, u.ID, v.ID)
	}
	r.neighbors = []*Node{u, v, n}
	n.neighbors = []*Node{r}

	delete(t.lengths[u], v)
	delete(t.lengths[v], u)
	t.deleteCostBoth(u, v)
	t.setLength(u, r, length/2)
	t.setLength(v, r, length/2)
	t.setLength(n, r, d0)

	// splice r into the current arborescence before re-rooting
	switch {
	case v.parent == u:
		v.parent = r
		r.parent = u
	case u.parent == v:
		u.parent = r
		r.parent = v
	default:
		return nil, fmt.Errorf("%w: edge %d-%d is not oriented toward the root", ErrInconsistent, u.ID, v.ID)
	}
	n.parent = r
	t.SetRoot(r)

	t.ensureCost(u, r)
	t.ensureCost(r, u)
	t.ensureCost(v, r)
	t.ensureCost(r, v)
	t.ensureCost(n, r)
	t.ensureCost(r, n)
	t.ensureCost(r, nil)

	// messages below u and v are still cached, so this is cheap
	t.EvaluateNode(u)
	t.EvaluateNode(v)
	t.EvaluateNode(n)

	if _, err := t.OptimizeBranchLength(n, r, start, end); err != nil {
		return n, err
	}
	log.Debugf("placed %q on edge %d-%d with pendant length %g",
		seq.Name, u.ID, v.ID, t.GetBranchLength(n, r))
	return n, nil
}

// PlaceSeqFull grafts a sequence onto edge {u, v} optimizing the
// pendant branch over the whole alignment.
func (t *Tree) PlaceSeqFull(seq bio.DigitalSeq, u, v *Node, d0 float64) (*Node, error) {
	return t.PlaceSeq(seq, u, v, 0, t.csLen-1, d0)
}

func (t *Tree) deleteCostBoth(u, v *Node) {
	delete(t.costs[u], v)
	delete(t.costs[v], u)
}

// CopySubTree snapshots edge {u, v} as a two-node tree rooted at v,
// keeping the branch length and both cached messages. The copy shares
// the substitution model and observation table with the original.
func (t *Tree) CopySubTree(u, v *Node) (*Tree, error) {
	if !t.hasEdge(u, v) {
		return nil, fmt.Errorf("%w: no edge between node %d and node %d", ErrInvalidArgument, u.ID, v.ID)
	}
	nt := &Tree{
		csLen:    t.csLen,
		lengths:  make(map[*Node]map[*Node]float64),
		costs:    make(map[*Node]map[*Node]*mat64.Dense),
		leafCost: t.leafCost,
		model:    t.model,
	}
	cu := &Node{ID: 0, Name: u.Name, Seq: u.Seq.Copy(), Anno: u.Anno, AnnoDist: u.AnnoDist}
	cv := &Node{ID: 1, Name: v.Name, Seq: v.Seq.Copy(), Anno: v.Anno, AnnoDist: v.AnnoDist}
	nt.id2node = []*Node{cu, cv}
	nt.addEdge(cu, cv, t.lengths[u][v])
	cu.parent = cv
	nt.root = cv
	if m := t.costMatrix(u, v); m != nil {
		nt.costs[cu] = map[*Node]*mat64.Dense{cv: mat64.DenseCopyOf(m)}
	}
	if m := t.costMatrix(v, u); m != nil {
		nt.costs[cv] = map[*Node]*mat64.Dense{cu: mat64.DenseCopyOf(m)}
	}
	return nt, nil
}
