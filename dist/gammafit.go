package dist

import (
	"errors"
	"fmt"
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

const (
	// finite difference step for the gradient
	gammaFitDH = 1e-6
	// bounds on the shape parameter
	minShape = 1e-2
	maxShape = 1e2
)

// gammaShapeObjective is the negative log-likelihood of a mean-one
// gamma distribution (beta = alpha) over positive observations.
type gammaShapeObjective struct {
	xs []float64
}

func (o *gammaShapeObjective) EvaluateFunction(x []float64) float64 {
	alpha := x[0]
	if alpha < minShape || alpha > maxShape {
		return math.Inf(+1)
	}
	lg, _ := math.Lgamma(alpha)
	lnL := 0.0
	for _, v := range o.xs {
		lnL += alpha*math.Log(alpha) - lg + (alpha-1)*math.Log(v) - alpha*v
	}
	return -lnL
}

func (o *gammaShapeObjective) EvaluateGradient(x []float64) []float64 {
	f1 := o.EvaluateFunction([]float64{x[0] - gammaFitDH})
	f2 := o.EvaluateFunction([]float64{x[0] + gammaFitDH})
	return []float64{(f2 - f1) / 2 / gammaFitDH}
}

// FitGammaShape fits the shape parameter of a mean-one gamma
// distribution to positive observations by bounded maximum likelihood.
func FitGammaShape(xs []float64) (float64, error) {
	obs := make([]float64, 0, len(xs))
	for _, v := range xs {
		if v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			obs = append(obs, v)
		}
	}
	if len(obs) < 2 {
		return 0, errors.New("not enough positive observations to fit a gamma shape")
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-9)
	opt.SetGTolerance(1e-9)
	opt.SetBounds([][2]float64{{minShape, maxShape}})

	min, exitStatus := opt.Minimize(&gammaShapeObjective{xs: obs}, []float64{1})
	switch exitStatus.Code {
	case lbfgsb.SUCCESS, lbfgsb.APPROXIMATE:
	default:
		return 0, fmt.Errorf("gamma shape fit failed: %v", exitStatus)
	}
	return min.X[0], nil
}
