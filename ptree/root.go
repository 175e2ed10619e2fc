package ptree

// SetRoot moves the evaluation root to newRoot and returns the old
// root. Parent pointers along the path between the two roots are
// reversed and every message on that path is invalidated in both
// directions; messages off the path stay cached, so the total cost is
// unchanged by re-rooting.
func (t *Tree) SetRoot(newRoot *Node) *Node {
	oldRoot := t.root
	if newRoot == oldRoot {
		return oldRoot
	}
	for n := newRoot; n.parent != nil; n = n.parent {
		t.resetCostBoth(n, n.parent)
	}
	t.resetCost(oldRoot, nil)
	t.resetCost(newRoot, newRoot)

	var prev *Node
	for cur := newRoot; cur != nil; {
		next := cur.parent
		cur.parent = prev
		prev = cur
		cur = next
	}
	t.root = newRoot
	return oldRoot
}

// SetRootID moves the evaluation root to the node with the given id
// and returns the old root, nil if the id is out of range.
func (t *Tree) SetRootID(id int) *Node {
	n := t.GetNode(id)
	if n == nil {
		return nil
	}
	return t.SetRoot(n)
}
