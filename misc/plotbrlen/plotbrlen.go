// plotbrlen creates a plot of the tree cost profile along one branch.
package main

import (
	"flag"
	"fmt"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/evophylo/ptu/bio"
	"github.com/evophylo/ptu/dnamodel"
	"github.com/evophylo/ptu/ptree"
)

func main() {
	treeFN := flag.String("tree", "", "reference tree")
	aliFN := flag.String("ali", "", "reference alignment")
	nodeID := flag.Int("node", 1, "child node id of the branch to profile")
	minLen := flag.Float64("min", 1e-3, "smallest branch length")
	maxLen := flag.Float64("max", 2, "largest branch length")
	k := flag.Int("k", 100, "number of points")
	modelType := flag.String("model", "jc69", "substitution model")
	outFN := flag.String("out", "points.png", "output file")
	flag.Parse()

	treeFile, err := os.Open(*treeFN)
	if err != nil {
		panic(err)
	}
	t, err := ptree.ReadNewick(treeFile)
	treeFile.Close()
	if err != nil {
		panic(err)
	}

	aliFile, err := os.Open(*aliFN)
	if err != nil {
		panic(err)
	}
	msa, err := bio.ReadMSAFasta(aliFile)
	aliFile.Close()
	if err != nil {
		panic(err)
	}
	if _, err := t.LoadMSA(msa); err != nil {
		panic(err)
	}
	model, err := dnamodel.New(*modelType)
	if err != nil {
		panic(err)
	}
	t.SetModel(model)
	if err := t.InitInCost(); err != nil {
		panic(err)
	}

	u := t.GetNode(*nodeID)
	if u == nil || u.Parent() == nil {
		panic(fmt.Sprintf("node %d has no parent branch", *nodeID))
	}
	v := u.Parent()

	pts := make(plotter.XYs, *k)
	step := (*maxLen - *minLen) / float64(*k-1)
	for i := 0; i < *k; i++ {
		l := *minLen + float64(i)*step
		if err := t.SetBranchLength(u, v, l); err != nil {
			panic(err)
		}
		pts[i].X = l
		pts[i].Y = t.TreeCost()
	}
	fmt.Println(pts)

	p, err := plot.New()
	if err != nil {
		panic(err)
	}
	p.X.Label.Text = "branch length"
	p.Y.Label.Text = "tree cost"

	err = plotutil.AddLinePoints(p,
		fmt.Sprintf("branch %d-%d", u.ID, v.ID), pts)
	if err != nil {
		panic(err)
	}

	if err := p.Save(4*vg.Inch, 4*vg.Inch, *outFN); err != nil {
		panic(err)
	}
}
