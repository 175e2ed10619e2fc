/*

Ptuplace places aligned query sequences onto a reference phylogenetic
tree by maximum likelihood. Every branch of the reference tree is
tried as an attachment point; the branch with the smallest total tree
cost wins and the pendant branch length is optimized.

The basic usage looks like this:

	ptuplace tree.nwk reference.fst queries.fst

Queries must be aligned to the reference alignment, i.e. have the
same number of columns.

To see all the options run:

	ptuplace -h

*/
package main

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"github.com/evophylo/ptu/bio"
	"github.com/evophylo/ptu/checkpoint"
	"github.com/evophylo/ptu/dnamodel"
	"github.com/evophylo/ptu/ptree"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("ptuplace")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("ptuplace", "maximum likelihood phylogenetic placement").Version(version)

	// input tree and alignments
	treeFileName  = app.Arg("tree", "reference phylogenetic tree").Required().ExistingFile()
	refFileName   = app.Arg("reference", "reference multiple alignment").Required().ExistingFile()
	queryFileName = app.Arg("queries", "aligned query sequences").Required().ExistingFile()

	// model parameters
	modelType     = app.Flag("model", "substitution model (jc69 or gtr)").Default("jc69").Enum("jc69", "gtr", "JC69", "GTR")
	modelFileName = app.Flag("modelfile", "trained model parameters file (overrides -model type defaults)").ExistingFile()
	pendant       = app.Flag("pendant", "initial pendant branch length").Default("0.1").Float64()

	// checkpoint parameters
	checkpointFileName = app.Flag("checkpoint", "checkpoint database filename").String()
	checkpointSeconds  = app.Flag("checkpointtime", "checkpoint every N seconds").Default("30").Float64()

	// technical
	nThreads = app.Flag("nt", "number of threads to use").Int()
	seed     = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	outF     = app.Flag("out", "write placement table to a file").String()
	outTreeF = app.Flag("tree-out", "write the tree with placed queries to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
)

// cloneTree deep-copies a tree through its binary representation.
func cloneTree(t *ptree.Tree) (*ptree.Tree, error) {
	var buf bytes.Buffer
	if err := t.Save(&buf); err != nil {
		return nil, err
	}
	var c ptree.Tree
	if err := c.Load(&buf); err != nil {
		return nil, err
	}
	return &c, nil
}

// candidateEdges lists every branch as a (child, parent) id pair
// under the current root.
func candidateEdges(t *ptree.Tree) [][2]int {
	var edges [][2]int
	for _, n := range t.GetNodes() {
		if n.Parent() != nil {
			edges = append(edges, [2]int{n.ID, n.Parent().ID})
		}
	}
	return edges
}

// placeQuery tries the query on every branch of the tree and returns
// the placement with the smallest total cost. The best placement so
// far is checkpointed whenever the last save is old enough, so an
// interrupted search resumes with its progress recorded.
func placeQuery(t *ptree.Tree, seq bio.DigitalSeq, ckp *checkpoint.CheckpointIO) (*checkpoint.PlacementData, error) {
	edges := candidateEdges(t)
	best := &checkpoint.PlacementData{Name: seq.Name}
	bestCost := 0.0
	found := false
	for _, e := range edges {
		trial, err := cloneTree(t)
		if err != nil {
			return nil, err
		}
		u, v := trial.GetNode(e[0]), trial.GetNode(e[1])
		leaf, err := trial.PlaceSeq(seq, u, v, 0, trial.NumAlignSites()-1, *pendant)
		if err != nil {
			log.Debugf("skipping branch %d-%d for %q: %v", e[0], e[1], seq.Name, err)
			continue
		}
		cost := trial.TreeCost()
		if !found || cost < bestCost {
			found = true
			bestCost = cost
			best.EdgeU = e[0]
			best.EdgeV = e[1]
			best.PendantLength = trial.GetBranchLength(leaf, leaf.Parent())
			best.TreeCost = cost
		}
		if found && ckp.Old() {
			if err := ckp.Save(best); err != nil {
				return nil, err
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("no valid placement for %q", seq.Name)
	}
	best.Final = true
	return best, nil
}

// applyPlacement grafts a query onto the working tree at the chosen
// branch.
func applyPlacement(t *ptree.Tree, seq bio.DigitalSeq, p *checkpoint.PlacementData) error {
	u, v := t.GetNode(p.EdgeU), t.GetNode(p.EdgeV)
	if u == nil || v == nil {
		return fmt.Errorf("placement of %q references unknown branch %d-%d", p.Name, p.EdgeU, p.EdgeV)
	}
	_, err := t.PlaceSeq(seq, u, v, 0, t.NumAlignSites()-1, p.PendantLength)
	return err
}

func run() error {
	startTime := time.Now()

	treeFile, err := os.Open(*treeFileName)
	if err != nil {
		return err
	}
	defer treeFile.Close()
	t, err := ptree.ReadNewick(treeFile)
	if err != nil {
		return err
	}
	log.Noticef("Read tree with %d leaves, %d edges", t.NumLeaves(), t.NumEdges())

	refFile, err := os.Open(*refFileName)
	if err != nil {
		return err
	}
	defer refFile.Close()
	ref, err := bio.ReadMSAFasta(refFile)
	if err != nil {
		return err
	}
	n, err := t.LoadMSA(ref)
	if err != nil {
		return err
	}
	log.Noticef("Assigned %d sequences of %d alignment columns", n, ref.NumAlignSites())

	model, err := dnamodel.New(*modelType)
	if err != nil {
		return err
	}
	if *modelFileName != "" {
		f, err := os.Open(*modelFileName)
		if err != nil {
			return err
		}
		err = model.Read(f)
		f.Close()
		if err != nil {
			return err
		}
		log.Noticef("Read %s model parameters from %s", model.Type(), *modelFileName)
	}
	t.SetModel(model)
	if err := t.InitInCost(); err != nil {
		return err
	}
	log.Noticef("Reference tree cost: %v", t.TreeCost())

	queryFile, err := os.Open(*queryFileName)
	if err != nil {
		return err
	}
	defer queryFile.Close()
	queries, err := bio.ReadMSAFasta(queryFile)
	if err != nil {
		return err
	}
	if queries.NumAlignSites() != t.NumAlignSites() {
		return fmt.Errorf("queries have %d columns, reference has %d",
			queries.NumAlignSites(), t.NumAlignSites())
	}
	log.Noticef("Read %d query sequences", queries.NumSeqs())

	var db *bolt.DB
	if *checkpointFileName != "" {
		db, err = bolt.Open(*checkpointFileName, 0666, nil)
		if err != nil {
			return err
		}
		defer db.Close()
	}
	ckp := checkpoint.NewCheckpointIO(db, *checkpointSeconds)

	var out *os.File
	if *outF != "" {
		out, err = os.Create(*outF)
		if err != nil {
			return err
		}
		defer out.Close()
	} else {
		out = os.Stdout
	}
	fmt.Fprintln(out, "query\tedge_u\tedge_v\tpendant\ttree_cost")

	for _, name := range queries.Names() {
		seq, _ := queries.Get(name)

		p, err := ckp.GetPlacement(name)
		if err != nil {
			return err
		}
		if p == nil || !p.Final {
			p, err = placeQuery(t, seq, ckp)
			if err != nil {
				log.Errorf("Placement of %q failed: %v", name, err)
				continue
			}
			if err := ckp.Save(p); err != nil {
				return err
			}
		}
		if err := applyPlacement(t, seq, p); err != nil {
			return err
		}
		log.Noticef("Placed %q on branch %d-%d, pendant %v, cost %v",
			name, p.EdgeU, p.EdgeV, p.PendantLength, p.TreeCost)
		fmt.Fprintf(out, "%s\t%d\t%d\t%g\t%g\n",
			p.Name, p.EdgeU, p.EdgeV, p.PendantLength, p.TreeCost)
	}

	if *outTreeF != "" {
		f, err := os.Create(*outTreeF)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := t.WriteTree(f, "newick"); err != nil {
			return err
		}
	}

	log.Noticef("Running time: %v", time.Since(startTime))
	return nil
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(level, "ptuplace")
	logging.SetLevel(level, "ptree")
	logging.SetLevel(level, "checkpoint")

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	rand.Seed(*seed)
	if *nThreads > 0 {
		runtime.GOMAXPROCS(*nThreads)
	}
	log.Infof("Using threads: %d.\n", runtime.GOMAXPROCS(0))

	if err := run(); err != nil {
		log.Fatal(err)
	}
}
