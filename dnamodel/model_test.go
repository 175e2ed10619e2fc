package dnamodel

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/gonum/matrix/mat64"
)

const smallDiff = 1e-6

func isIdentity(p *mat64.Dense, eps float64) bool {
	for i := 0; i < NBase; i++ {
		for j := 0; j < NBase; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(p.At(i, j)-want) > eps {
				return false
			}
		}
	}
	return true
}

func checkStochastic(tst *testing.T, m Model, t float64) {
	p := m.Pr(t)
	for i := 0; i < NBase; i++ {
		sum := 0.0
		for j := 0; j < NBase; j++ {
			v := p.At(i, j)
			if v < 0 || v > 1 {
				tst.Errorf("Pr(%v)[%d][%d]=%v out of [0,1]", t, i, j, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > smallDiff {
			tst.Errorf("Pr(%v) row %d sums to %v", t, i, sum)
		}
	}
}

func checkStationary(tst *testing.T, m Model, t float64) {
	p := m.Pr(t)
	pi := m.Pi()
	for j := 0; j < NBase; j++ {
		s := 0.0
		for i := 0; i < NBase; i++ {
			s += pi[i] * p.At(i, j)
		}
		if math.Abs(s-pi[j]) > smallDiff {
			tst.Errorf("pi*Pr(%v) column %d: %v != %v", t, j, s, pi[j])
		}
	}
}

func TestJC69PrLaws(tst *testing.T) {
	m := NewJC69()
	if !isIdentity(m.Pr(0), smallDiff) {
		tst.Error("Pr(0) is not the identity")
	}

	for _, t := range []float64{0.01, 0.1, 0.5, 2} {
		checkStochastic(tst, m, t)
		checkStationary(tst, m, t)
	}

	// Chapman-Kolmogorov: Pr(s)*Pr(t) = Pr(s+t)
	s, t := 0.137, 0.42
	var prod mat64.Dense
	prod.Mul(m.Pr(s), m.Pr(t))
	pst := m.Pr(s + t)
	for i := 0; i < NBase; i++ {
		for j := 0; j < NBase; j++ {
			if math.Abs(prod.At(i, j)-pst.At(i, j)) > smallDiff {
				tst.Fatalf("Pr(s)Pr(t) != Pr(s+t) at [%d][%d]", i, j)
			}
		}
	}
}

func TestJC69SubDistRoundTrip(tst *testing.T) {
	m := NewJC69()
	trueT := 0.3
	p := m.Pr(trueT)
	rnd := rand.New(rand.NewSource(42))

	n := 200000
	d := mat64.NewDense(NBase, NBase, nil)
	for k := 0; k < n; k++ {
		i := rnd.Intn(NBase)
		r := rnd.Float64()
		j := 0
		for acc := p.At(i, 0); r > acc && j < NBase-1; {
			j++
			acc += p.At(i, j)
		}
		d.Set(i, j, d.At(i, j)+1)
	}

	est, err := m.SubDist(d, float64(n))
	if err != nil {
		tst.Fatal("SubDist failed:", err)
	}
	if math.Abs(est-trueT) > 0.02 {
		tst.Errorf("Expected t near %v, got %v", trueT, est)
	}
}

func TestJC69Saturation(tst *testing.T) {
	m := NewJC69()
	// All pairs differ: p-distance = 1 >= 3/4.
	d := mat64.NewDense(NBase, NBase, nil)
	d.Set(0, 1, 100)
	_, err := m.SubDist(d, 100)
	if !errors.Is(err, ErrNumeric) {
		tst.Error("Expected ErrNumeric on saturation, got", err)
	}
	// Empty counts are distance zero by contract.
	v, err := m.SubDist(mat64.NewDense(NBase, NBase, nil), 0)
	if err != nil || v != 0 {
		tst.Error("Expected 0 for N=0, got", v, err)
	}
}

func TestGTRTrainAndLaws(tst *testing.T) {
	m := NewGTR()
	if !isIdentity(m.Pr(0), smallDiff) {
		tst.Error("Pr(0) is not the identity")
	}

	// Biased counts: transitions more common than transversions.
	d := mat64.NewDense(NBase, NBase, []float64{
		300, 10, 60, 10,
		10, 250, 10, 70,
		60, 10, 280, 10,
		10, 70, 10, 260,
	})
	freq := []float64{0.3, 0.2, 0.3, 0.2}
	if err := m.TrainParams([]*mat64.Dense{d}, freq); err != nil {
		tst.Fatal("TrainParams failed:", err)
	}

	pi := m.Pi()
	sum := 0.0
	for _, v := range pi {
		sum += v
	}
	if math.Abs(sum-1) > smallDiff {
		tst.Error("pi does not sum to 1:", sum)
	}
	for _, t := range []float64{0.05, 0.3, 1.5} {
		checkStochastic(tst, m, t)
		checkStationary(tst, m, t)
	}
}

func TestModelReadWrite(tst *testing.T) {
	m := NewGTR()
	d := mat64.NewDense(NBase, NBase, []float64{
		100, 5, 30, 5,
		5, 90, 5, 35,
		30, 5, 95, 5,
		5, 35, 5, 85,
	})
	if err := m.TrainParams([]*mat64.Dense{d}, []float64{0.28, 0.22, 0.27, 0.23}); err != nil {
		tst.Fatal(err)
	}

	var buf bytes.Buffer
	if err := m.Write(&buf); err != nil {
		tst.Fatal("Write failed:", err)
	}
	m2 := NewGTR()
	if err := m2.Read(&buf); err != nil {
		tst.Fatal("Read failed:", err)
	}
	pi1, pi2 := m.Pi(), m2.Pi()
	for i := range pi1 {
		if pi1[i] != pi2[i] {
			tst.Error("pi not round-tripped:", pi1, pi2)
		}
	}
	p1, p2 := m.Pr(0.2), m2.Pr(0.2)
	if !mat64.EqualApprox(p1, p2, 1e-12) {
		tst.Error("Pr not round-tripped")
	}
}

func TestNewModel(tst *testing.T) {
	for _, typ := range []string{"JC69", "jc69", "GTR", "gtr"} {
		if _, err := New(typ); err != nil {
			tst.Error("Expected model for type", typ, ", got error:", err)
		}
	}
	if _, err := New("HKY2000"); err == nil {
		tst.Error("Expected error for unknown model type")
	}
}

func TestClone(tst *testing.T) {
	m := NewGTR()
	c := m.Clone().(*GTR)
	c.pi[0] = 0.9
	if m.pi[0] == 0.9 {
		tst.Error("Clone aliases pi")
	}
}
