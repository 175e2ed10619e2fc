package ptree

import (
	"math"
	"testing"

	"github.com/evophylo/ptu/bio"
	"github.com/evophylo/ptu/dnamodel"
	"github.com/gonum/matrix/mat64"
)

func TestTwoLeafCost(tst *testing.T) {
	// with uniform frequencies the two-leaf likelihood collapses to
	// pi * Pr(t1+t2) between the observed bases
	t := buildTree(tst,
		"(a:0.06,b:0.04);",
		map[string]string{"a": "AA", "b": "AC"},
		dnamodel.NewJC69())

	tt := 0.06 + 0.04
	pSame := (1 + 3*math.Exp(-4*tt/3)) / 4
	pDiff := (1 - math.Exp(-4*tt/3)) / 4
	want0 := -math.Log(0.25 * pSame)
	want1 := -math.Log(0.25 * pDiff)

	if got := t.TreeCostAt(0); math.Abs(got-want0) > smallDiff {
		tst.Errorf("site 0 cost=%v, want %v", got, want0)
	}
	if got := t.TreeCostAt(1); math.Abs(got-want1) > smallDiff {
		tst.Errorf("site 1 cost=%v, want %v", got, want1)
	}
	if got := t.TreeCost(); math.Abs(got-(want0+want1)) > smallDiff {
		tst.Errorf("tree cost=%v, want %v", got, want0+want1)
	}
}

func TestZeroBranchStar(tst *testing.T) {
	// identical sequences on zero-length branches cost -log(1/4) per
	// non-gap site; an all-gap column costs nothing
	t := buildTree(tst,
		"(a:0.0,b:0.0,c:0.0);",
		map[string]string{"a": "ACG-", "b": "ACG-", "c": "ACG-"},
		dnamodel.NewJC69())

	perSite := math.Log(4)
	for j := 0; j < 3; j++ {
		if got := t.TreeCostAt(j); math.Abs(got-perSite) > smallDiff {
			tst.Errorf("site %d cost=%v, want %v", j, got, perSite)
		}
	}
	if got := t.TreeCostAt(3); math.Abs(got) > smallDiff {
		tst.Errorf("gap column cost=%v, want 0", got)
	}
}

func TestOneLeafCost(tst *testing.T) {
	// a single observed base costs exactly -log pi[b]
	t := &Tree{
		lengths: make(map[*Node]map[*Node]float64),
		costs:   make(map[*Node]map[*Node]*mat64.Dense),
	}
	n := t.newNode("a")
	n.Seq = bio.NewDigitalSeq("a", "G")
	t.root = n
	t.csLen = 1
	t.SetModel(dnamodel.NewJC69())
	if err := t.InitInCost(); err != nil {
		tst.Fatal(err)
	}
	if got, want := t.TreeCostAt(0), math.Log(4); math.Abs(got-want) > smallDiff {
		tst.Errorf("one-leaf cost=%v, want %v", got, want)
	}
}

func TestLeafMessage(tst *testing.T) {
	t := fiveLeafTree(tst)
	a := t.GetNodeByName("a")
	col := t.CostAt(a, 0) // observed base is A
	for b := 0; b < 4; b++ {
		if b == 0 {
			if col[b] != 0 {
				tst.Errorf("leaf message[%d]=%v, want 0", b, col[b])
			}
		} else if !math.IsInf(col[b], 1) {
			tst.Errorf("leaf message[%d]=%v, want +Inf", b, col[b])
		}
	}
}

func TestRerootInvariance(tst *testing.T) {
	t := fiveLeafTree(tst)
	want := t.TreeCost()
	for id := 0; id < t.NumNodes(); id++ {
		old := t.SetRootID(id)
		if old == nil {
			tst.Fatalf("SetRootID(%d) failed", id)
		}
		if got := t.TreeCost(); math.Abs(got-want) > smallDiff {
			tst.Errorf("cost at root %d is %v, want %v", id, got, want)
		}
	}
}

func TestIsEvaluated(tst *testing.T) {
	t := fiveLeafTree(tst)
	a := t.GetNodeByName("a")
	if t.IsEvaluated(a, a.Parent()) {
		tst.Errorf("message should start invalid")
	}
	t.EvaluateAt(a, 2)
	if !t.IsEvaluatedAt(a, a.Parent(), 2) {
		tst.Errorf("site 2 should be evaluated")
	}
	if t.IsEvaluated(a, a.Parent()) {
		tst.Errorf("other sites should still be invalid")
	}
	t.Evaluate()
	if !t.IsEvaluated(t.Root(), nil) {
		tst.Errorf("root message should be evaluated after Evaluate")
	}
}

func TestBranchChangeInvalidation(tst *testing.T) {
	t1 := fiveLeafTree(tst)
	t2 := fiveLeafTree(tst)

	a1 := t1.GetNodeByName("a")
	u1, v1 := a1.Parent(), a1.Parent().Parent()
	a2 := t2.GetNodeByName("a")
	u2, v2 := a2.Parent(), a2.Parent().Parent()

	// t1 evaluates before the mutation, t2 never does; the cached
	// state must not leak into the result
	_ = t1.TreeCost()
	if err := t1.SetBranchLength(u1, v1, 0.42); err != nil {
		tst.Fatal(err)
	}
	if t1.IsEvaluated(u1, v1) || t1.IsEvaluated(v1, u1) {
		tst.Errorf("mutated edge still evaluated")
	}
	if t1.IsEvaluated(t1.Root(), nil) {
		tst.Errorf("root message still evaluated after mutation below it")
	}
	if err := t2.SetBranchLength(u2, v2, 0.42); err != nil {
		tst.Fatal(err)
	}
	if got, want := t1.TreeCost(), t2.TreeCost(); math.Abs(got-want) > smallDiff {
		tst.Errorf("stale cache: cost %v after mutation, fresh tree gives %v", got, want)
	}

	if err := t1.SetBranchLength(a1, t1.GetNodeByName("e"), 0.1); err == nil {
		tst.Errorf("SetBranchLength on a non-edge should fail")
	}
}

func TestLoadMSAReloadInvalidation(tst *testing.T) {
	const nwk = "(a:0.06,b:0.04);"
	t := buildTree(tst, nwk, map[string]string{"a": "AA", "b": "AA"}, dnamodel.NewJC69())
	_ = t.TreeCost()

	// replacing the alignment must drop every cached message, not
	// just the leaf observations
	reload := bio.NewMSA()
	for name, s := range map[string]string{"a": "AC", "b": "GT"} {
		if err := reload.Add(bio.NewDigitalSeq(name, s)); err != nil {
			tst.Fatalf("adding %q: %v", name, err)
		}
	}
	if _, err := t.LoadMSA(reload); err != nil {
		tst.Fatal(err)
	}
	fresh := buildTree(tst, nwk, map[string]string{"a": "AC", "b": "GT"}, dnamodel.NewJC69())
	if got, want := t.TreeCost(), fresh.TreeCost(); math.Abs(got-want) > smallDiff {
		tst.Errorf("stale cache: cost %v after reloading the alignment, fresh tree gives %v", got, want)
	}

	// a longer alignment invalidates the matrix shapes as well
	longer := bio.NewMSA()
	for name, s := range map[string]string{"a": "ACGT", "b": "ACGA"} {
		if err := longer.Add(bio.NewDigitalSeq(name, s)); err != nil {
			tst.Fatalf("adding %q: %v", name, err)
		}
	}
	if _, err := t.LoadMSA(longer); err != nil {
		tst.Fatal(err)
	}
	if got, want := t.NumAlignSites(), 4; got != want {
		tst.Errorf("NumAlignSites=%d after reload, want %d", got, want)
	}
	fresh = buildTree(tst, nwk, map[string]string{"a": "ACGT", "b": "ACGA"}, dnamodel.NewJC69())
	if got, want := t.TreeCost(), fresh.TreeCost(); math.Abs(got-want) > smallDiff {
		tst.Errorf("cost %v after reloading a longer alignment, fresh tree gives %v", got, want)
	}
}

func TestOptimizeBranchLength(tst *testing.T) {
	t := fiveLeafTree(tst)
	before := t.TreeCost()

	a := t.GetNodeByName("a")
	u, v := a.Parent(), a.Parent().Parent()
	length, err := t.OptimizeBranchLength(u, v, 0, t.NumAlignSites()-1)
	if err != nil {
		tst.Fatalf("optimization failed: %v", err)
	}
	if length < MinBranchLength {
		tst.Errorf("optimized length %v below floor", length)
	}
	if got := t.GetBranchLength(u, v); got != length {
		tst.Errorf("branch length %v not applied, tree has %v", length, got)
	}
	after := t.TreeCost()
	if after > before+smallDiff {
		tst.Errorf("optimization increased cost from %v to %v", before, after)
	}
}

func TestOptimizeBranchLengthBadArgs(tst *testing.T) {
	t := fiveLeafTree(tst)
	a, e := t.GetNodeByName("a"), t.GetNodeByName("e")
	if _, err := t.OptimizeBranchLength(a, e, 0, 7); err == nil {
		tst.Errorf("optimizing a non-edge should fail")
	}
	if _, err := t.OptimizeBranchLength(a, a.Parent(), 5, 2); err == nil {
		tst.Errorf("inverted site range should fail")
	}
	if _, err := t.OptimizeBranchLength(a, a.Parent(), 0, 100); err == nil {
		tst.Errorf("out-of-range sites should fail")
	}
}

func TestPlaceSeqDuplicate(tst *testing.T) {
	t := fiveLeafTree(tst)
	nodesBefore, edgesBefore := t.NumNodes(), t.NumEdges()

	// a copy of an existing leaf sequence should sit essentially on
	// the tree, with a near-zero pendant branch
	a := t.GetNodeByName("a")
	ab := a.Parent()
	origLen := t.GetBranchLength(a, ab)
	seq := a.Seq.Copy()
	seq.Name = "a2"
	leaf, err := t.PlaceSeqFull(seq, a, ab, 0.1)
	if err != nil {
		tst.Fatalf("placement failed: %v", err)
	}
	if leaf.Name != "a2" || !leaf.IsLeaf() {
		tst.Errorf("unexpected pendant node %q", leaf.Name)
	}
	r := leaf.Parent()
	if r != t.Root() {
		tst.Errorf("tree should be rooted at the attachment node")
	}
	if t.NumNodes() != nodesBefore+2 || t.NumEdges() != edgesBefore+2 {
		tst.Errorf("placement changed counts to %d nodes %d edges",
			t.NumNodes(), t.NumEdges())
	}
	if leaf.ID != nodesBefore+1 || r.ID != nodesBefore {
		tst.Errorf("new nodes should get fresh ids at the end, got %d and %d",
			r.ID, leaf.ID)
	}
	if pendant := t.GetBranchLength(leaf, r); pendant >= 1e-3 {
		tst.Errorf("pendant length %v, want < 1e-3", pendant)
	}
	// the halves of the split edge keep the original total
	if got := t.GetBranchLength(a, r) + t.GetBranchLength(r, ab); math.Abs(got-origLen) > smallDiff {
		tst.Errorf("split halves sum to %v, want %v", got, origLen)
	}
}

func TestPlaceSeqBadArgs(tst *testing.T) {
	t := fiveLeafTree(tst)
	a, e := t.GetNodeByName("a"), t.GetNodeByName("e")
	short := a.Seq.Copy()
	short.Codes = short.Codes[:4]
	if _, err := t.PlaceSeq(short, a, a.Parent(), 0, 7, 0.1); err == nil {
		tst.Errorf("mismatched sequence length should fail")
	}
	if _, err := t.PlaceSeq(a.Seq.Copy(), a, e, 0, 7, 0.1); err == nil {
		tst.Errorf("placement on a non-edge should fail")
	}
	if _, err := t.PlaceSeq(a.Seq.Copy(), a, a.Parent(), 0, 7, -0.1); err == nil {
		tst.Errorf("negative pendant length should fail")
	}
}

func TestCopySubTree(tst *testing.T) {
	t := fiveLeafTree(tst)
	_ = t.TreeCost()
	a := t.GetNodeByName("a")
	sub, err := t.CopySubTree(a, a.Parent())
	if err != nil {
		tst.Fatal(err)
	}
	if sub.NumNodes() != 2 || sub.NumEdges() != 1 {
		tst.Fatalf("subtree has %d nodes %d edges", sub.NumNodes(), sub.NumEdges())
	}
	if sub.GetBranchLength(sub.GetNode(0), sub.GetNode(1)) != t.GetBranchLength(a, a.Parent()) {
		tst.Errorf("subtree branch length differs")
	}
	if m := sub.GetBranchCost(sub.GetNode(0), sub.GetNode(1)); m == nil {
		tst.Errorf("subtree should keep the cached message")
	}
}
