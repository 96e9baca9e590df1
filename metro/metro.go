// Package metro implements a plain Metropolis-Hastings move with an
// isotropic Gaussian proposal.  It is not affine invariant - the proposal
// width must be tuned to the target's scale - but it conforms to the same
// Mover contract as the stretch move and is useful as a baseline.
package metro

import (
	"context"
	"errors"
	"math"

	"github.com/Tibbersx/emcee3"
)

var ErrWidth = errors.New("metro: proposal width must be positive")

type Option func(*Move)

// Width sets the per-dimension standard deviation of the Gaussian proposal.
func Width(sigma float64) Option {
	return func(mv *Move) { mv.sigma = sigma }
}

// Move proposes y = x + sigma*N(0, I).  The proposal is symmetric, so the
// acceptance rule carries no Jacobian factor.
type Move struct {
	sigma float64
}

func New(opts ...Option) (*Move, error) {
	mv := &Move{sigma: 1}
	for _, opt := range opts {
		opt(mv)
	}
	if mv.sigma <= 0 {
		return nil, ErrWidth
	}
	return mv, nil
}

// Update performs one half-update.  The complementary half plays no role in
// this proposal; it exists only to satisfy the two-phase step structure.
// Random draws happen before dispatch, same as the stretch move.
func (mv *Move) Update(ctx context.Context, e *emcee3.Ensemble, h int, m emcee3.Model, ev emcee3.Evaler) (naccept, nfail int, err error) {
	rng := e.Rng
	half := e.Half(h)
	ndim := e.Dim()

	rs := make([]float64, len(half))
	ys := make([][]float64, len(half))
	for i, w := range half {
		y := make([]float64, ndim)
		for k := range y {
			y[k] = w.At(k) + mv.sigma*rng.NormFloat64()
		}
		ys[i], rs[i] = y, rng.Float64()
	}

	results, nfail, err := ev.Eval(ctx, m, ys)
	if err != nil {
		return 0, nfail, err
	}

	for i, w := range half {
		if math.Log(rs[i]) < results[i].LnProb()-w.LnProb() {
			half[i] = emcee3.NewWalker(ys[i], results[i].LnPrior, results[i].LnLike)
			naccept++
		}
	}
	if err := e.Commit(h, half); err != nil {
		return naccept, nfail, err
	}
	return naccept, nfail, nil
}
