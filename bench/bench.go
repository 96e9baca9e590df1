// Package bench provides standard target densities with known moments for
// exercising samplers: a multivariate Gaussian, a uniform box, and a 2-D
// ring.  A sampler that is correct recovers each target's mean and
// covariance from a sufficiently long chain.
package bench

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"

	"github.com/Tibbersx/emcee3"
)

// Target is a test density whose first moment is known analytically.
type Target interface {
	emcee3.Model
	Mean() []float64
	Name() string
}

// Gaussian is a multivariate normal density parameterized by its mean and
// precision (inverse covariance) matrix.  The density is unnormalized; only
// the quadratic form matters for sampling.
type Gaussian struct {
	mean []float64
	prec *mat64.Dense
}

func NewGaussian(mean []float64, prec *mat64.Dense) *Gaussian {
	r, c := prec.Dims()
	if r != c || r != len(mean) {
		panic(fmt.Sprintf("bench: %vx%v precision matrix incompatible with %v-dim mean", r, c, len(mean)))
	}
	cmean := make([]float64, len(mean))
	copy(cmean, mean)
	return &Gaussian{mean: cmean, prec: mat64.DenseCopyOf(prec)}
}

// NewIsoGaussian returns a zero-mean Gaussian with independent dimensions of
// inverse variance ivar.
func NewIsoGaussian(ndim int, ivar float64) *Gaussian {
	prec := mat64.NewDense(ndim, ndim, nil)
	for i := 0; i < ndim; i++ {
		prec.Set(i, i, ivar)
	}
	return NewGaussian(make([]float64, ndim), prec)
}

func (g *Gaussian) Name() string { return fmt.Sprintf("Gaussian_%vD", len(g.mean)) }

func (g *Gaussian) Mean() []float64 {
	mean := make([]float64, len(g.mean))
	copy(mean, g.mean)
	return mean
}

// LogProb returns -0.5*(x-mu)' P (x-mu) as the log-likelihood with a flat
// prior.
func (g *Gaussian) LogProb(x []float64) (float64, float64, error) {
	if len(x) != len(g.mean) {
		return 0, 0, fmt.Errorf("bench: point has %v dims, expected %v", len(x), len(g.mean))
	}

	d := make([]float64, len(x))
	for i := range d {
		d[i] = x[i] - g.mean[i]
	}
	v := mat64.NewDense(len(d), 1, d)
	pv := &mat64.Dense{}
	pv.Mul(g.prec, v)

	q := 0.0
	for i := range d {
		q += d[i] * pv.At(i, 0)
	}
	return 0, -0.5 * q, nil
}

// Uniform is a flat density on the box low <= x <= up.  Points outside the
// box have a -Inf log-prior, exercising the prior short-circuit.
type Uniform struct {
	Low []float64
	Up  []float64
}

func (u Uniform) Name() string { return fmt.Sprintf("Uniform_%vD", len(u.Low)) }

func (u Uniform) Mean() []float64 {
	mean := make([]float64, len(u.Low))
	for i := range mean {
		mean[i] = 0.5 * (u.Low[i] + u.Up[i])
	}
	return mean
}

func (u Uniform) LogProb(x []float64) (float64, float64, error) {
	for i := range x {
		if x[i] < u.Low[i] || x[i] > u.Up[i] {
			return math.Inf(-1), 0, nil
		}
	}
	return 0, 0, nil
}

// Ring is a 2-D density concentrated on a circle of the given radius: the
// log-likelihood is -0.5*((|x|-Radius)/Width)^2.  It is strongly
// non-Gaussian and curved, which makes it a useful stress target for
// affine-invariant moves.
type Ring struct {
	Radius float64
	Width  float64
}

func (r Ring) Name() string { return "Ring" }

// Mean is the origin by symmetry.
func (r Ring) Mean() []float64 { return []float64{0, 0} }

func (r Ring) LogProb(x []float64) (float64, float64, error) {
	if len(x) != 2 {
		return 0, 0, fmt.Errorf("bench: ring is 2-D, point has %v dims", len(x))
	}
	d := (math.Hypot(x[0], x[1]) - r.Radius) / r.Width
	return 0, -0.5 * d * d, nil
}
