/*

Ptutrain estimates substitution model parameters from a reference
phylogenetic tree and its multiple alignment. Transition counts are
extracted from pairs of sibling leaves and base frequencies from the
pooled alignment, the model is trained on them and written to a
parameter file usable by ptuplace.

The basic usage looks like this:

	ptutrain -model gtr -out gtr.params tree.nwk reference.fst

To see all the options run:

	ptutrain -h

*/
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	"github.com/evophylo/ptu/bio"
	"github.com/evophylo/ptu/dist"
	"github.com/evophylo/ptu/dnamodel"
	"github.com/evophylo/ptu/ptree"
	"github.com/gonum/matrix/mat64"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("ptutrain")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("ptutrain", "substitution model training from a reference tree").Version(version)

	// input tree and alignment
	treeFileName = app.Arg("tree", "reference phylogenetic tree").Required().ExistingFile()
	refFileName  = app.Arg("reference", "reference multiple alignment").Required().ExistingFile()

	// training parameters
	modelType = app.Flag("model", "substitution model (jc69 or gtr)").Default("gtr").Enum("jc69", "gtr", "JC69", "GTR")
	method    = app.Flag("method", "transition counting method "+
		"(gojobori: first two leaf children per tip, "+
		"goldman: every leaf pair per tip)").Default("goldman").String()
	ncat = app.Flag("ncat", "report a discrete gamma rate approximation with N categories "+
		"fitted to the pairwise distances (no report by default)").Default("0").Int()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	outF     = app.Flag("out", "write model parameters to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
)

// pairDistances converts transition count matrices to model corrected
// distances, dropping saturated pairs.
func pairDistances(model dnamodel.Model, set []*mat64.Dense) []float64 {
	var ds []float64
	for _, d := range set {
		n := mat64.Sum(d)
		if n == 0 {
			continue
		}
		pd, err := model.SubDist(d, n)
		if err != nil {
			log.Debugf("skipping saturated pair: %v", err)
			continue
		}
		if pd > 0 {
			ds = append(ds, pd)
		}
	}
	return ds
}

// reportGammaRates fits a gamma shape to the mean-one scaled
// distances and prints the discrete category rates.
func reportGammaRates(ds []float64, ncat int) {
	if len(ds) < 2 {
		log.Warning("Not enough distance pairs for a gamma fit")
		return
	}
	var mean float64
	for _, d := range ds {
		mean += d
	}
	mean /= float64(len(ds))
	scaled := make([]float64, len(ds))
	for i, d := range ds {
		scaled[i] = d / mean
	}
	alpha, err := dist.FitGammaShape(scaled)
	if err != nil {
		log.Errorf("Gamma fit failed: %v", err)
		return
	}
	log.Noticef("Fitted gamma shape alpha=%v over %d pairs", alpha, len(ds))
	// beta = alpha keeps the mean rate at one
	rates := dist.DiscreteGamma(alpha, alpha, ncat, false, nil, nil)
	for i, r := range rates {
		log.Noticef("Rate category %d: %v", i, r)
	}
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

	set, err := t.ModelTransitionSet(*method)
	if err != nil {
		return err
	}
	log.Noticef("Extracted %d transition count matrices with method %q", len(set), *method)
	if len(set) == 0 {
		return fmt.Errorf("no leaf pairs found for training")
	}
	freq := t.ModelFreqEst()
	log.Noticef("Base frequencies: %v", freq)

	model, err := dnamodel.New(*modelType)
	if err != nil {
		return err
	}
	if err := model.TrainParams(set, freq); err != nil {
		return err
	}
	log.Noticef("Trained %s model", model.Type())

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
	if err := model.Write(out); err != nil {
		return err
	}

	ds := pairDistances(model, set)
	log.Noticef("Corrected pairwise distances (%d usable pairs): %v", len(ds), ds)
	if *ncat > 0 {
		reportGammaRates(ds, *ncat)
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
	logging.SetLevel(level, "ptutrain")
	logging.SetLevel(level, "ptree")
	logging.SetLevel(level, "dist")

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if err := run(); err != nil {
		log.Fatal(err)
	}
}
