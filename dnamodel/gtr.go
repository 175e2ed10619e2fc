package dnamodel

import (
	"fmt"
	"io"
	"math"

	"github.com/gonum/matrix/mat64"
)

// GTR is the general time-reversible model: arbitrary stationary base
// frequencies and symmetric exchangeabilities. Parameters are fitted
// from observed transition counts by the method of moments; no
// maximum-likelihood fitting is performed.
type GTR struct {
	pi    []float64
	rates *mat64.Dense // symmetric exchangeabilities, zero diagonal
	q     *mat64.Dense // rate matrix, scaled to one substitution per unit time
}

// NewGTR creates a GTR model with uniform frequencies and equal
// exchangeabilities (equivalent to JC69 until trained).
func NewGTR() *GTR {
	m := &GTR{
		pi:    []float64{0.25, 0.25, 0.25, 0.25},
		rates: mat64.NewDense(NBase, NBase, nil),
	}
	for i := 0; i < NBase; i++ {
		for j := 0; j < NBase; j++ {
			if i != j {
				m.rates.Set(i, j, 1)
			}
		}
	}
	m.buildQ()
	return m
}

// Type returns the model name.
func (m *GTR) Type() string {
	return "GTR"
}

// Pi returns the stationary distribution.
func (m *GTR) Pi() []float64 {
	pi := make([]float64, NBase)
	copy(pi, m.pi)
	return pi
}

// buildQ assembles the rate matrix Q[i][j] = rates[i][j]*pi[j] with the
// diagonal set to minus the row sum, scaled so the expected number of
// substitutions per unit time is one.
func (m *GTR) buildQ() {
	q := mat64.NewDense(NBase, NBase, nil)
	for i := 0; i < NBase; i++ {
		rowSum := 0.0
		for j := 0; j < NBase; j++ {
			if i == j {
				continue
			}
			v := m.rates.At(i, j) * m.pi[j]
			q.Set(i, j, v)
			rowSum += v
		}
		q.Set(i, i, -rowSum)
	}
	scale := 0.0
	for i := 0; i < NBase; i++ {
		scale += -m.pi[i] * q.At(i, i)
	}
	if scale > 0 {
		q.Scale(1/scale, q)
	}
	m.q = q
}

// Pr returns the transition probability matrix e^(Qt).
func (m *GTR) Pr(t float64) *mat64.Dense {
	var qt mat64.Dense
	qt.Scale(t, m.q)
	p := mat64.NewDense(NBase, NBase, nil)
	p.Exp(&qt)
	// Exp may leave tiny negative values from round-off.
	p.Apply(func(r, c int, v float64) float64 {
		return math.Max(0, v)
	}, p)
	return p
}

// SubDist converts observed base differences into substitutions per
// site using the Tajima-Nei correction on the model's stationary
// distribution.
func (m *GTR) SubDist(d *mat64.Dense, n float64) (float64, error) {
	if n == 0 {
		return 0, nil
	}
	p := pDistance(d, n)
	b := 1.0
	for i := 0; i < NBase; i++ {
		b -= m.pi[i] * m.pi[i]
	}
	if p >= b {
		return 0, fmt.Errorf("%w: GTR saturated at p-distance %g", ErrNumeric, p)
	}
	return -b * math.Log(1-p/b), nil
}

// TrainParams estimates pi and the exchangeabilities from observed
// transition count matrices and base frequency counts.
func (m *GTR) TrainParams(trans []*mat64.Dense, freq []float64) error {
	total := 0.0
	for _, f := range freq {
		total += f
	}
	if total <= 0 {
		return fmt.Errorf("%w: empty base frequency counts", ErrNumeric)
	}
	pi := make([]float64, NBase)
	for i := 0; i < NBase; i++ {
		pi[i] = freq[i] / total
		if pi[i] <= 0 {
			return fmt.Errorf("%w: zero frequency for base %d", ErrNumeric, i)
		}
	}

	// Pool and symmetrize the observed counts.
	s := mat64.NewDense(NBase, NBase, nil)
	for _, d := range trans {
		s.Add(s, d)
	}
	nPairs := mat64.Sum(s)
	if nPairs <= 0 {
		return fmt.Errorf("%w: empty transition counts", ErrNumeric)
	}
	rates := mat64.NewDense(NBase, NBase, nil)
	for i := 0; i < NBase; i++ {
		for j := i + 1; j < NBase; j++ {
			obs := (s.At(i, j) + s.At(j, i)) / nPairs
			r := obs / (pi[i] * pi[j])
			rates.Set(i, j, r)
			rates.Set(j, i, r)
		}
	}

	m.pi = pi
	m.rates = rates
	m.buildQ()
	return nil
}

// Write serializes pi and the upper-triangle exchangeabilities.
func (m *GTR) Write(out io.Writer) error {
	for i := 0; i < NBase; i++ {
		if _, err := fmt.Fprintf(out, "%.16g ", m.pi[i]); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(out); err != nil {
		return err
	}
	for i := 0; i < NBase; i++ {
		for j := i + 1; j < NBase; j++ {
			if _, err := fmt.Fprintf(out, "%.16g ", m.rates.At(i, j)); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(out)
	return err
}

// Read restores parameters written by Write.
func (m *GTR) Read(in io.Reader) error {
	pi := make([]float64, NBase)
	for i := 0; i < NBase; i++ {
		if _, err := fmt.Fscan(in, &pi[i]); err != nil {
			return err
		}
	}
	rates := mat64.NewDense(NBase, NBase, nil)
	for i := 0; i < NBase; i++ {
		for j := i + 1; j < NBase; j++ {
			var r float64
			if _, err := fmt.Fscan(in, &r); err != nil {
				return err
			}
			rates.Set(i, j, r)
			rates.Set(j, i, r)
		}
	}
	m.pi = pi
	m.rates = rates
	m.buildQ()
	return nil
}

// Clone returns an independent copy.
func (m *GTR) Clone() Model {
	newM := &GTR{
		pi:    make([]float64, NBase),
		rates: mat64.NewDense(NBase, NBase, nil),
	}
	copy(newM.pi, m.pi)
	newM.rates.Copy(m.rates)
	newM.buildQ()
	return newM
}
