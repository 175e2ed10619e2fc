// Package dnamodel provides DNA substitution models for likelihood
// evaluation on phylogenetic trees.
package dnamodel

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gonum/matrix/mat64"
)

// NBase is the number of DNA bases.
const NBase = 4

// ErrNumeric is returned when a model computation leaves its numerical
// domain (e.g. Jukes-Cantor saturation).
var ErrNumeric = errors.New("numeric error")

// Model is the capability set every DNA substitution model provides.
// A model is time-reversible against its stationary distribution, so
// the total tree likelihood does not depend on the root choice.
type Model interface {
	// Type returns the model name used for (de)serialization.
	Type() string
	// Pi returns the stationary base distribution (4 entries, sum 1).
	Pi() []float64
	// Pr returns the 4x4 row-stochastic transition probability
	// matrix for a branch of length t; Pr(0) is the identity.
	Pr(t float64) *mat64.Dense
	// SubDist converts a 4x4 observed base-pair count matrix with
	// total count N into an expected number of substitutions per
	// site.
	SubDist(d *mat64.Dense, n float64) (float64, error)
	// TrainParams fits the model parameters from a set of observed
	// transition count matrices and base frequency counts. It is a
	// no-op for parameter-free models.
	TrainParams(trans []*mat64.Dense, freq []float64) error
	// Read restores all trainable parameters written by Write.
	Read(in io.Reader) error
	// Write serializes all trainable parameters.
	Write(out io.Writer) error
	// Clone returns an independent copy of the model.
	Clone() Model
}

// New creates a fresh model of the given type.
func New(modelType string) (Model, error) {
	switch strings.ToUpper(modelType) {
	case "JC69":
		return NewJC69(), nil
	case "GTR":
		return NewGTR(), nil
	}
	return nil, fmt.Errorf("unknown DNA substitution model type '%s'", modelType)
}

// pDistance returns the off-diagonal fraction of a count matrix.
func pDistance(d *mat64.Dense, n float64) float64 {
	return (mat64.Sum(d) - mat64.Trace(d)) / n
}
