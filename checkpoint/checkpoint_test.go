package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"
)

func init() {
	logging.SetLevel(logging.ERROR, "checkpoint")
}

func TestPlacementRoundTrip(tst *testing.T) {
	path := filepath.Join(tst.TempDir(), "checkpoint.db")
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		tst.Fatal(err)
	}
	defer db.Close()

	s := NewCheckpointIO(db, 1)
	in := &PlacementData{
		Name:          "q1",
		EdgeU:         3,
		EdgeV:         4,
		PendantLength: 0.012,
		TreeCost:      123.45,
		Final:         true,
	}
	if err := s.Save(in); err != nil {
		tst.Fatal(err)
	}

	out, err := s.GetPlacement("q1")
	if err != nil {
		tst.Fatal(err)
	}
	if out == nil {
		tst.Fatal("placement not found after save")
	}
	if *out != *in {
		tst.Errorf("round trip gave %+v, want %+v", out, in)
	}

	missing, err := s.GetPlacement("nosuch")
	if err != nil {
		tst.Fatal(err)
	}
	if missing != nil {
		tst.Errorf("unexpected placement %+v", missing)
	}
}

func TestNilDB(tst *testing.T) {
	s := NewCheckpointIO(nil, 1)
	if err := s.Save(&PlacementData{Name: "q"}); err != nil {
		tst.Errorf("save without database should be a no-op, got %v", err)
	}
	if data, err := s.GetPlacement("q"); err != nil || data != nil {
		tst.Errorf("load without database should give nothing, got %+v, %v", data, err)
	}
}

func TestOld(tst *testing.T) {
	s := NewCheckpointIO(nil, 0.001)
	s.SetNow()
	if s.Old() {
		tst.Errorf("checkpoint should be fresh right after SetNow")
	}
	time.Sleep(5 * time.Millisecond)
	if !s.Old() {
		tst.Errorf("checkpoint should be old after the interval passed")
	}
}
