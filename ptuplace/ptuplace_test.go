package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"github.com/evophylo/ptu/bio"
	"github.com/evophylo/ptu/checkpoint"
	"github.com/evophylo/ptu/dnamodel"
	"github.com/evophylo/ptu/ptree"
)

func init() {
	logging.SetLevel(logging.ERROR, "ptuplace")
	logging.SetLevel(logging.ERROR, "ptree")
	logging.SetLevel(logging.ERROR, "checkpoint")
}

func referenceTree(tst *testing.T) *ptree.Tree {
	tst.Helper()
	t, err := ptree.ReadNewick(strings.NewReader(
		"((a:0.12,b:0.07):0.05,(c:0.09,d:0.11):0.08,e:0.1);"))
	if err != nil {
		tst.Fatal(err)
	}
	msa := bio.NewMSA()
	for name, s := range map[string]string{
		"a": "ACGTACGT",
		"b": "ACGTACCT",
		"c": "ACGAACGT",
		"d": "ACGTACGT",
		"e": "TCGTACGA",
	} {
		if err := msa.Add(bio.NewDigitalSeq(name, s)); err != nil {
			tst.Fatal(err)
		}
	}
	if _, err := t.LoadMSA(msa); err != nil {
		tst.Fatal(err)
	}
	t.SetModel(dnamodel.NewJC69())
	if err := t.InitInCost(); err != nil {
		tst.Fatal(err)
	}
	return t
}

func openTestDB(tst *testing.T) *bolt.DB {
	tst.Helper()
	db, err := bolt.Open(filepath.Join(tst.TempDir(), "ckp.db"), 0600, nil)
	if err != nil {
		tst.Fatal(err)
	}
	return db
}

func TestPlaceQueryCheckpoints(tst *testing.T) {
	*pendant = 0.1
	t := referenceTree(tst)
	query := bio.NewDigitalSeq("q1", "ACGTACGT")

	// a zero interval makes every save overdue, so the best placement
	// so far must land in the database before the search finishes
	db := openTestDB(tst)
	defer db.Close()
	ckp := checkpoint.NewCheckpointIO(db, 0)
	p, err := placeQuery(t, query, ckp)
	if err != nil {
		tst.Fatal(err)
	}
	if !p.Final {
		tst.Errorf("returned placement should be final")
	}
	stored, err := ckp.GetPlacement("q1")
	if err != nil {
		tst.Fatal(err)
	}
	if stored == nil {
		tst.Fatalf("no intermediate checkpoint written")
	}
	if stored.Final {
		tst.Errorf("intermediate checkpoint marked final")
	}
	if stored.TreeCost != p.TreeCost {
		tst.Errorf("checkpointed cost=%v, best is %v", stored.TreeCost, p.TreeCost)
	}

	// with a long interval and a fresh timestamp nothing is saved
	db2 := openTestDB(tst)
	defer db2.Close()
	ckp2 := checkpoint.NewCheckpointIO(db2, 3600)
	ckp2.SetNow()
	if _, err := placeQuery(t, query, ckp2); err != nil {
		tst.Fatal(err)
	}
	stored2, err := ckp2.GetPlacement("q1")
	if err != nil {
		tst.Fatal(err)
	}
	if stored2 != nil {
		tst.Errorf("checkpoint written before the interval elapsed")
	}
}
