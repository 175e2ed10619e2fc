package ptree

import (
	"fmt"
	"strings"

	"github.com/evophylo/ptu/bio"
	"github.com/gonum/matrix/mat64"
)

// ModelTransitionSet extracts observed base transition counts for
// model training. Method "gojobori" pairs the first two leaf children
// of every tip node; "goldman" pairs every two leaf children of every
// tip node. Each pair yields one 4 x 4 count matrix, symmetric by
// construction, counting sites where both sequences are non-gap.
func (t *Tree) ModelTransitionSet(method string) ([]*mat64.Dense, error) {
	switch strings.ToLower(method) {
	case "gojobori":
		return t.transitionSet(true), nil
	case "goldman":
		return t.transitionSet(false), nil
	default:
		return nil, fmt.Errorf("%w: unknown training method %q", ErrInvalidArgument, method)
	}
}

func (t *Tree) transitionSet(firstPairOnly bool) []*mat64.Dense {
	var set []*mat64.Dense
	for _, n := range t.id2node {
		if !n.IsTip() {
			continue
		}
		var leaves []*Node
		for _, c := range n.Children() {
			if c.IsLeaf() {
				leaves = append(leaves, c)
			}
		}
		if firstPairOnly {
			if len(leaves) >= 2 {
				set = append(set, observedDiff(leaves[0].Seq, leaves[1].Seq))
			}
			continue
		}
		for i := 0; i < len(leaves); i++ {
			for j := i + 1; j < len(leaves); j++ {
				set = append(set, observedDiff(leaves[i].Seq, leaves[j].Seq))
			}
		}
	}
	return set
}

// observedDiff counts base pairings between two aligned sequences at
// sites where both are non-gap, symmetrized so the direction of the
// comparison does not matter.
func observedDiff(a, b bio.DigitalSeq) *mat64.Dense {
	d := mat64.NewDense(bio.NBase, bio.NBase, nil)
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	for j := 0; j < n; j++ {
		ca, cb := a.Codes[j], b.Codes[j]
		if bio.IsGap(ca) || bio.IsGap(cb) {
			continue
		}
		d.Set(int(ca), int(cb), d.At(int(ca), int(cb))+0.5)
		d.Set(int(cb), int(ca), d.At(int(cb), int(ca))+0.5)
	}
	return d
}

// ModelFreqEst estimates the stationary base frequencies by pooling
// non-gap symbols over every leaf sequence.
func (t *Tree) ModelFreqEst() []float64 {
	counts := make([]float64, bio.NBase)
	for _, n := range t.id2node {
		if !n.IsLeaf() {
			continue
		}
		for _, c := range n.Seq.Codes {
			if !bio.IsGap(c) {
				counts[c]++
			}
		}
	}
	var total float64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		// degenerate alignment, fall back to uniform
		for i := range counts {
			counts[i] = 1.0 / float64(bio.NBase)
		}
		return counts
	}
	for i := range counts {
		counts[i] /= total
	}
	return counts
}
