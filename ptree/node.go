package ptree

import (
	"math/rand"

	"github.com/evophylo/ptu/bio"
)

// Node is a vertex of an unrooted phylogenetic tree. Leaves carry
// a digital sequence from the alignment; internal nodes carry the
// all-gap sequence and contribute nothing to observation costs.
type Node struct {
	ID       int
	Name     string
	Seq      bio.DigitalSeq
	Anno     string
	AnnoDist float64

	neighbors []*Node
	parent    *Node
}

// IsLeaf tests whether this node has exactly one neighbor.
func (n *Node) IsLeaf() bool {
	return len(n.neighbors) == 1
}

// IsInternal tests whether this node has more than one neighbor.
func (n *Node) IsInternal() bool {
	return len(n.neighbors) > 1
}

// IsRoot tests whether this node is the current evaluation root.
func (n *Node) IsRoot() bool {
	return n.parent == nil
}

// IsTip tests whether this node is internal and none of its
// children is internal.
func (n *Node) IsTip() bool {
	if !n.IsInternal() {
		return false
	}
	for _, c := range n.Children() {
		if c.IsInternal() {
			return false
		}
	}
	return true
}

// Parent returns the parent under the current root, nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Neighbors returns the adjacent nodes. The slice is owned by the tree.
func (n *Node) Neighbors() []*Node {
	return n.neighbors
}

// NumNeighbors returns the degree of this node.
func (n *Node) NumNeighbors() int {
	return len(n.neighbors)
}

// Children returns the neighbors other than the parent.
func (n *Node) Children() []*Node {
	children := make([]*Node, 0, len(n.neighbors))
	for _, v := range n.neighbors {
		if v != n.parent {
			children = append(children, v)
		}
	}
	return children
}

// FirstChild returns the first non-parent neighbor, nil if none.
func (n *Node) FirstChild() *Node {
	for _, v := range n.neighbors {
		if v != n.parent {
			return v
		}
	}
	return nil
}

// LastChild returns the last non-parent neighbor, nil if none.
func (n *Node) LastChild() *Node {
	for i := len(n.neighbors) - 1; i >= 0; i-- {
		if n.neighbors[i] != n.parent {
			return n.neighbors[i]
		}
	}
	return nil
}

// FirstLeaf descends through first children until a leaf is reached.
func (n *Node) FirstLeaf() *Node {
	cur := n
	for !cur.IsLeaf() {
		c := cur.FirstChild()
		if c == nil {
			return cur
		}
		cur = c
	}
	return cur
}

// LastLeaf descends through last children until a leaf is reached.
func (n *Node) LastLeaf() *Node {
	cur := n
	for !cur.IsLeaf() {
		c := cur.LastChild()
		if c == nil {
			return cur
		}
		cur = c
	}
	return cur
}

// RandomLeaf descends through uniformly chosen children until a leaf
// is reached. It uses the process-wide PRNG.
func (n *Node) RandomLeaf() *Node {
	cur := n
	for !cur.IsLeaf() {
		children := cur.Children()
		if len(children) == 0 {
			return cur
		}
		cur = children[rand.Intn(len(children))]
	}
	return cur
}

// replaceNeighbor rewires the adjacency entry for old to point to new.
func (n *Node) replaceNeighbor(old, new *Node) bool {
	for i, v := range n.neighbors {
		if v == old {
			n.neighbors[i] = new
			return true
		}
	}
	return false
}
