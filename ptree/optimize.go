package ptree

import (
	"fmt"
	"math"

	"github.com/evophylo/ptu/bio"
)

// maxBranchIter caps the EM iterations of OptimizeBranchLength.
const maxBranchIter = 100

// OptimizeBranchLength fits the length of edge {u, v} by expectation
// maximization over the closed site range [start, end]: each
// iteration computes the posterior probability of the bases at u and
// v for every site and sets the length to the mean posterior
// off-diagonal mass. The tree is re-rooted at v. On non-convergence
// or a vanishing posterior the last safe estimate is kept and
// returned together with ErrNumeric.
func (t *Tree) OptimizeBranchLength(u, v *Node, start, end int) (float64, error) {
	if !t.hasEdge(u, v) {
		return 0, fmt.Errorf("%w: no edge between node %d and node %d", ErrInvalidArgument, u.ID, v.ID)
	}
	if start < 0 || end >= t.csLen || start > end {
		return 0, fmt.Errorf("%w: bad site range [%d, %d]", ErrInvalidArgument, start, end)
	}
	t.SetRoot(v)
	t.EvaluateNode(u)
	for _, c := range v.Children() {
		if c != u {
			t.EvaluateNode(c)
		}
	}

	// uCost[j] is the message from the u side; vCost[j] aggregates
	// everything at v except the branch being optimized.
	nSites := end - start + 1
	uCost := make([][]float64, nSites)
	vCost := make([][]float64, nSites)
	um := t.costMatrix(u, v)
	prs := t.childTransitions(v)
	for j := start; j <= end; j++ {
		uc := make([]float64, bio.NBase)
		for i := 0; i < bio.NBase; i++ {
			uc[i] = um.At(i, j)
		}
		uCost[j-start] = uc

		vc := make([]float64, bio.NBase)
		for _, c := range v.Children() {
			if c == u {
				continue
			}
			cm := t.costMatrix(c, v)
			w := make([]float64, bio.NBase)
			for i := 0; i < bio.NBase; i++ {
				w[i] = cm.At(i, j)
			}
			g := dotProductScaled(prs[c], w)
			for i := 0; i < bio.NBase; i++ {
				vc[i] += g[i]
			}
		}
		if j < v.Seq.Len() {
			if s := v.Seq.Codes[j]; !bio.IsGap(s) {
				for i := 0; i < bio.NBase; i++ {
					vc[i] += t.leafCost.At(i, int(s))
				}
			}
		}
		vCost[j-start] = vc
	}

	pi := t.model.Pi()
	length := t.GetBranchLength(u, v)
	if length < MinBranchLength {
		length = MinBranchLength
	}
	var optErr error
	converged := false
	for iter := 0; iter < maxBranchIter; iter++ {
		p := t.model.Pr(length)
		var sumSub float64
		for j := 0; j < nSites; j++ {
			// shift costs so the posterior weights stay representable
			scale := math.Inf(1)
			for bv := 0; bv < bio.NBase; bv++ {
				for bu := 0; bu < bio.NBase; bu++ {
					if c := vCost[j][bv] + uCost[j][bu]; c < scale {
						scale = c
					}
				}
			}
			if math.IsInf(scale, 0) {
				scale = 0
			}
			var z, sub float64
			for bv := 0; bv < bio.NBase; bv++ {
				for bu := 0; bu < bio.NBase; bu++ {
					w := pi[bv] * p.At(bv, bu) * math.Exp(-(vCost[j][bv] + uCost[j][bu] - scale))
					z += w
					if bv != bu {
						sub += w
					}
				}
			}
			if z <= 0 || math.IsNaN(z) {
				optErr = fmt.Errorf("%w: vanishing posterior at site %d while optimizing branch %d-%d", ErrNumeric, start+j, u.ID, v.ID)
				break
			}
			sumSub += sub / z
		}
		if optErr != nil {
			break
		}
		next := sumSub / float64(nSites)
		if next < MinBranchLength {
			next = MinBranchLength
		}
		if math.Abs(next-length) < BranchEps {
			length = next
			converged = true
			break
		}
		length = next
	}
	if optErr == nil && !converged {
		optErr = fmt.Errorf("%w: branch %d-%d not converged after %d iterations", ErrNumeric, u.ID, v.ID, maxBranchIter)
	}

	t.setLength(u, v, length)
	t.resetCostBoth(u, v)
	t.invalidateToRoot(u)
	t.invalidateToRoot(v)
	log.Debugf("optimized branch %d-%d to %g", u.ID, v.ID, length)
	return length, optErr
}
