// Package stretch implements the affine-invariant stretch move of
// Goodman & Weare:
//
//	Goodman, J. and Weare, J. "Ensemble samplers with affine invariance,"
//	Comm. Appl. Math. Comput. Sci., vol. 5, no. 1, pp. 65-80, 2010.
//
// Each walker in the updating half is moved along the line through itself
// and a randomly chosen partner from the complementary half, scaled by a
// stretch factor z drawn from g(z) ~ 1/sqrt(z) on [1/a, a].  The z^(D-1)
// factor in the acceptance rule is the Jacobian correction required for
// detailed balance under this non-symmetric proposal.
package stretch

import (
	"context"
	"errors"
	"math"

	"github.com/Tibbersx/emcee3"
)

// ErrScale is returned for scale parameters outside the valid range.
var ErrScale = errors.New("stretch: scale parameter must be greater than 1")

// DefaultScale is the conventional stretch scale a = 2.
const DefaultScale = 2.0

type Option func(*Move)

// Scale sets the stretch scale parameter a.  Larger values propose more
// aggressive moves; a must be greater than 1.
func Scale(a float64) Option {
	return func(mv *Move) { mv.a = a }
}

// Move is a stateless stretch proposal strategy.
type Move struct {
	a float64
}

func New(opts ...Option) (*Move, error) {
	mv := &Move{a: DefaultScale}
	for _, opt := range opts {
		opt(mv)
	}
	if mv.a <= 1 {
		return nil, ErrScale
	}
	return mv, nil
}

// stretch draws z from g(z) ~ 1/sqrt(z) on [1/a, a] by inverse transform:
// z = ((a-1)u + 1)^2 / a for u uniform on [0,1).
func (mv *Move) stretch(rng emcee3.Rng) float64 {
	g := (mv.a-1)*rng.Float64() + 1
	return g * g / mv.a
}

// lnAccept returns the log of the acceptance probability (uncapped)
// ln(z^(D-1) * exp(dlnp)) for a stretch factor z in D dimensions with
// log-probability difference dlnp = lnprob(y) - lnprob(x).
func lnAccept(z float64, ndim int, dlnp float64) float64 {
	return float64(ndim-1)*math.Log(z) + dlnp
}

// Update performs one half-update: every walker in half h is proposed
// against a random partner from the complementary half, the proposals are
// evaluated as one batch through ev, and accepted walkers are committed back
// into e.
//
// All random draws - partner indices, stretch factors, and acceptance
// thresholds - happen sequentially before the batch is dispatched, so a
// fixed seed reproduces an identical walk no matter how ev schedules the
// evaluations.
func (mv *Move) Update(ctx context.Context, e *emcee3.Ensemble, h int, m emcee3.Model, ev emcee3.Evaler) (naccept, nfail int, err error) {
	rng := e.Rng
	half := e.Half(h)
	comp := e.Complement(h)
	ndim := e.Dim()

	zs := make([]float64, len(half))
	rs := make([]float64, len(half))
	ys := make([][]float64, len(half))
	for i, w := range half {
		partner := comp[rng.Intn(len(comp))]
		z := mv.stretch(rng)

		y := make([]float64, ndim)
		for k := range y {
			y[k] = partner.At(k) + z*(w.At(k)-partner.At(k))
		}
		ys[i], zs[i], rs[i] = y, z, rng.Float64()
	}

	results, nfail, err := ev.Eval(ctx, m, ys)
	if err != nil {
		return 0, nfail, err
	}

	for i, w := range half {
		if math.Log(rs[i]) < lnAccept(zs[i], ndim, results[i].LnProb()-w.LnProb()) {
			half[i] = emcee3.NewWalker(ys[i], results[i].LnPrior, results[i].LnLike)
			naccept++
		}
	}
	if err := e.Commit(h, half); err != nil {
		return naccept, nfail, err
	}
	return naccept, nfail, nil
}
