package dnamodel

import (
	"fmt"
	"io"
	"math"

	"github.com/gonum/matrix/mat64"
)

// JC69 is the Jukes-Cantor 1969 model: uniform base frequencies and a
// single substitution rate. It has no trainable parameters.
type JC69 struct{}

var jc69Pi = []float64{0.25, 0.25, 0.25, 0.25}

// NewJC69 creates a JC69 model.
func NewJC69() *JC69 {
	return &JC69{}
}

// Type returns the model name.
func (m *JC69) Type() string {
	return "JC69"
}

// Pi returns the uniform stationary distribution.
func (m *JC69) Pi() []float64 {
	pi := make([]float64, NBase)
	copy(pi, jc69Pi)
	return pi
}

// Pr returns the transition probability matrix for branch length t.
func (m *JC69) Pr(t float64) *mat64.Dense {
	e := math.Exp(-4 * t / 3)
	off := (1 - e) / 4
	diag := (1 + 3*e) / 4
	p := mat64.NewDense(NBase, NBase, nil)
	for i := 0; i < NBase; i++ {
		for j := 0; j < NBase; j++ {
			if i == j {
				p.Set(i, j, diag)
			} else {
				p.Set(i, j, off)
			}
		}
	}
	return p
}

// SubDist converts observed base differences into substitutions per
// site using the Jukes-Cantor correction. It fails once the p-distance
// reaches the saturation point 3/4.
func (m *JC69) SubDist(d *mat64.Dense, n float64) (float64, error) {
	if n == 0 {
		return 0, nil
	}
	p := pDistance(d, n)
	if p >= 3.0/4.0 {
		return 0, fmt.Errorf("%w: JC69 saturated at p-distance %g", ErrNumeric, p)
	}
	return -3.0 / 4.0 * math.Log(1-4.0/3.0*p), nil
}

// TrainParams does nothing; JC69 is parameter-free.
func (m *JC69) TrainParams(trans []*mat64.Dense, freq []float64) error {
	return nil
}

// Read restores the model; JC69 stores no parameters.
func (m *JC69) Read(in io.Reader) error {
	return nil
}

// Write serializes the model; JC69 stores no parameters.
func (m *JC69) Write(out io.Writer) error {
	return nil
}

// Clone returns an independent copy.
func (m *JC69) Clone() Model {
	return &JC69{}
}
