// Package ptree implements a phylogenetic tree over the digital DNA
// alphabet with lazy, cached evaluation of observation costs
// (negative log-likelihoods) by Felsenstein's pruning algorithm.
//
// The tree is unrooted; a current root only orients evaluation and can
// be moved with SetRoot without changing the total cost. For every
// directed edge u->v the tree caches a 4 x L cost matrix conditional
// on the base at u, before conjugation through the transition
// probabilities of the branch.
package ptree

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/evolbioinfo/gotree/io/newick"
	gotree "github.com/evolbioinfo/gotree/tree"
	"github.com/evophylo/ptu/bio"
	"github.com/evophylo/ptu/dnamodel"
	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("ptree")

// Tree is an unrooted phylogenetic tree with per-edge cost caches.
type Tree struct {
	csLen   int
	root    *Node
	id2node []*Node

	lengths map[*Node]map[*Node]float64
	costs   map[*Node]map[*Node]*mat64.Dense

	leafCost *mat64.Dense
	model    dnamodel.Model
}

// New builds a tree from a parsed newick topology. Node ids are
// assigned densely in post-order; missing branch lengths become zero.
func New(gt *gotree.Tree) (*Tree, error) {
	if gt == nil || gt.Root() == nil {
		return nil, fmt.Errorf("%w: empty tree", ErrInvalidArgument)
	}
	t := &Tree{
		lengths: make(map[*Node]map[*Node]float64),
		costs:   make(map[*Node]map[*Node]*mat64.Dense),
	}
	old2new := make(map[*gotree.Node]*Node)
	intern := func(gn *gotree.Node) *Node {
		if n := old2new[gn]; n != nil {
			return n
		}
		n := t.newNode(gn.Name())
		old2new[gn] = n
		return n
	}
	gt.PostOrder(func(cur, prev *gotree.Node, e *gotree.Edge) bool {
		n := intern(cur)
		if prev != nil {
			p := intern(prev)
			l := e.Length()
			if l < 0 {
				l = 0
			}
			t.addEdge(n, p, l)
			n.parent = p
		}
		return true
	})
	t.root = old2new[gt.Root()]
	log.Debugf("constructed tree with %d nodes, %d edges, %d leaves",
		t.NumNodes(), t.NumEdges(), t.NumLeaves())
	return t, nil
}

// ReadNewick parses a newick stream and builds a tree from it.
func ReadNewick(rd io.Reader) (*Tree, error) {
	gt, err := newick.NewParser(rd).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return New(gt)
}

func (t *Tree) newNode(name string) *Node {
	n := &Node{ID: len(t.id2node), Name: name}
	t.id2node = append(t.id2node, n)
	return n
}

func (t *Tree) addEdge(u, v *Node, length float64) {
	u.neighbors = append(u.neighbors, v)
	v.neighbors = append(v.neighbors, u)
	t.setLength(u, v, length)
}

func (t *Tree) setLength(u, v *Node, length float64) {
	if t.lengths[u] == nil {
		t.lengths[u] = make(map[*Node]float64)
	}
	if t.lengths[v] == nil {
		t.lengths[v] = make(map[*Node]float64)
	}
	t.lengths[u][v] = length
	t.lengths[v][u] = length
}

// hasEdge tests whether {u, v} is an edge of the tree.
func (t *Tree) hasEdge(u, v *Node) bool {
	if u == nil || v == nil {
		return false
	}
	_, ok := t.lengths[u][v]
	return ok
}

// NumNodes returns the number of nodes.
func (t *Tree) NumNodes() int {
	return len(t.id2node)
}

// NumEdges returns the number of undirected edges.
func (t *Tree) NumEdges() int {
	n := 0
	for _, node := range t.id2node {
		n += len(node.neighbors)
	}
	return n / 2
}

// NumLeaves returns the number of degree-one nodes.
func (t *Tree) NumLeaves() int {
	n := 0
	for _, node := range t.id2node {
		if node.IsLeaf() {
			n++
		}
	}
	return n
}

// NumAlignSites returns the alignment length, zero before LoadMSA.
func (t *Tree) NumAlignSites() int {
	return t.csLen
}

// Root returns the current evaluation root.
func (t *Tree) Root() *Node {
	return t.root
}

// GetNode returns the node with the given dense id.
func (t *Tree) GetNode(id int) *Node {
	if id < 0 || id >= len(t.id2node) {
		return nil
	}
	return t.id2node[id]
}

// GetNodes returns all nodes in id order. The slice is owned by the tree.
func (t *Tree) GetNodes() []*Node {
	return t.id2node
}

// GetNodeByName returns the first node with the given name, nil if none.
func (t *Tree) GetNodeByName(name string) *Node {
	for _, n := range t.id2node {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// GetBranchLength returns the length of edge {u, v}, -1 if the edge
// does not exist.
func (t *Tree) GetBranchLength(u, v *Node) float64 {
	if l, ok := t.lengths[u][v]; ok {
		return l
	}
	return -1
}

// GetBranchCost returns a copy of the cached cost matrix for the
// directed edge u->v, nil if no matrix is cached.
func (t *Tree) GetBranchCost(u, v *Node) *mat64.Dense {
	m := t.costMatrix(u, v)
	if m == nil {
		return nil
	}
	return mat64.DenseCopyOf(m)
}

// SetBranchLength updates the length of edge {u, v} and invalidates
// every cached message the change can affect.
func (t *Tree) SetBranchLength(u, v *Node, length float64) error {
	if !t.hasEdge(u, v) {
		return fmt.Errorf("%w: no edge between node %d and node %d", ErrInvalidArgument, u.ID, v.ID)
	}
	if length < 0 {
		return fmt.Errorf("%w: negative branch length %g", ErrInvalidArgument, length)
	}
	t.setLength(u, v, length)
	t.resetCostBoth(u, v)
	t.invalidateToRoot(u)
	t.invalidateToRoot(v)
	return nil
}

// Model returns the substitution model, nil before SetModel.
func (t *Tree) Model() dnamodel.Model {
	return t.model
}

// SetModel installs a substitution model and resets all cached costs,
// since every message depends on the model parameters.
func (t *Tree) SetModel(m dnamodel.Model) {
	t.model = m
	t.ResetCost()
	if t.csLen > 0 {
		t.InitLeafCost()
	}
}

// LoadMSA attaches aligned sequences to named nodes and returns the
// number of sequences assigned. Every leaf must be matched. Every
// cached message may depend on the replaced sequences, so the whole
// cost cache is invalidated; matrices of a stale shape are dropped.
func (t *Tree) LoadMSA(msa *bio.MSA) (int, error) {
	if msa.NumAlignSites() == 0 {
		return 0, fmt.Errorf("%w: empty alignment", ErrInvalidArgument)
	}
	for _, n := range t.id2node {
		if n.IsLeaf() && n.Name != "" {
			if _, ok := msa.Get(n.Name); !ok {
				return 0, fmt.Errorf("%w: leaf %q has no sequence in the alignment", ErrInvalidArgument, n.Name)
			}
		}
	}
	assigned := 0
	for _, n := range t.id2node {
		if n.Name == "" {
			continue
		}
		seq, ok := msa.Get(n.Name)
		if !ok {
			continue
		}
		n.Seq = seq.Copy()
		assigned++
	}
	if t.csLen != msa.NumAlignSites() {
		t.costs = make(map[*Node]map[*Node]*mat64.Dense)
	} else {
		t.ResetCost()
	}
	t.csLen = msa.NumAlignSites()
	if t.model != nil {
		t.InitLeafCost()
	}
	log.Debugf("assigned %d sequences of length %d", assigned, t.csLen)
	return assigned, nil
}

// LeafNames returns the sorted names of all leaves.
func (t *Tree) LeafNames() []string {
	var names []string
	for _, n := range t.id2node {
		if n.IsLeaf() && n.Name != "" {
			names = append(names, n.Name)
		}
	}
	sort.Strings(names)
	return names
}

// WriteTree writes the topology in the given format. Only "newick"
// (case-insensitive) is supported.
func (t *Tree) WriteTree(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "newick":
		if err := t.writeNewickNode(w, t.root); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		if _, err := io.WriteString(w, ";\n"); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported tree format %q", ErrInvalidArgument, format)
	}
}

func (t *Tree) writeNewickNode(w io.Writer, n *Node) error {
	children := n.Children()
	if len(children) > 0 {
		if _, err := io.WriteString(w, "("); err != nil {
			return err
		}
		for i, c := range children {
			if i > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			if err := t.writeNewickNode(w, c); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, ")"); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, n.Name); err != nil {
		return err
	}
	if n.parent != nil {
		if _, err := fmt.Fprintf(w, ":%g", t.lengths[n][n.parent]); err != nil {
			return err
		}
	}
	return nil
}
