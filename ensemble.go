// Package emcee3 implements an affine-invariant ensemble MCMC sampler.  It
// draws samples from an arbitrary, unnormalized probability density over a
// continuous parameter vector using only point-wise evaluations of the
// density - no gradients are required.  A population of coupled walkers is
// advanced by stretch-move proposals that are invariant under affine
// reparameterizations of the coordinate space.
package emcee3

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var (
	ErrOddWalkers = errors.New("emcee3: number of walkers must be even")
	ErrFewWalkers = errors.New("emcee3: need at least twice as many walkers as dimensions")
	ErrBadInit    = errors.New("emcee3: initial coordinates have non-finite log-probability")
)

// Rng is the source of randomness consumed by moves.  It must be advanced
// sequentially so that a fixed seed reproduces an identical walk regardless
// of how evaluations are scheduled.  *math/rand.Rand satisfies Rng.
type Rng interface {
	Float64() float64
	NormFloat64() float64
	Intn(n int) int
}

// Walker is one member of the ensemble: a coordinate vector plus the
// log-prior and log-likelihood evaluated at those coordinates.  Walkers are
// immutable - accepting a proposal replaces the whole walker - so the cached
// values always correspond to the current coordinates.
type Walker struct {
	pos     []float64
	LnPrior float64
	LnLike  float64
}

func NewWalker(pos []float64, lnprior, lnlike float64) Walker {
	cpos := make([]float64, len(pos))
	copy(cpos, pos)
	return Walker{pos: cpos, LnPrior: lnprior, LnLike: lnlike}
}

func (w Walker) At(i int) float64 { return w.pos[i] }

func (w Walker) Len() int { return len(w.pos) }

func (w Walker) Pos() []float64 {
	pos := make([]float64, len(w.pos))
	copy(pos, w.pos)
	return pos
}

func (w Walker) LnProb() float64 { return w.LnPrior + w.LnLike }

// Ensemble is the population of walkers advanced jointly by a Sampler.  It
// is partitioned into two fixed complementary halves; moves update one half
// at a time using the other half as partners.  Splitting (Half, Complement)
// and Commit are the only ways walker state enters or leaves the ensemble.
type Ensemble struct {
	// Rng is the random number source shared by all moves operating on
	// this ensemble.
	Rng Rng

	walkers []Walker
	ndim    int
}

// NewEnsemble validates the initial coordinate set and eagerly evaluates m
// at every walker position using ev (SerialEvaler if ev is nil).  The number
// of walkers must be even and at least twice the dimension count, and every
// initial position must have a finite log-probability.  If rng is nil a
// fixed-seed source is used.
func NewEnsemble(ctx context.Context, m Model, ev Evaler, coords [][]float64, rng Rng) (*Ensemble, error) {
	k := len(coords)
	if k == 0 {
		return nil, fmt.Errorf("emcee3: empty initial coordinate set")
	}
	ndim := len(coords[0])
	if k%2 != 0 {
		return nil, ErrOddWalkers
	}
	if k < 2*ndim {
		return nil, ErrFewWalkers
	}
	for i, x := range coords {
		if len(x) != ndim {
			return nil, fmt.Errorf("emcee3: walker %v has %v dims, expected %v", i, len(x), ndim)
		}
	}

	if ev == nil {
		ev = SerialEvaler{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}

	results, _, err := ev.Eval(ctx, m, coords)
	if err != nil {
		return nil, err
	}

	e := &Ensemble{Rng: rng, ndim: ndim, walkers: make([]Walker, k)}
	for i, r := range results {
		if math.IsInf(r.LnProb(), 0) || math.IsNaN(r.LnProb()) {
			return nil, ErrBadInit
		}
		e.walkers[i] = NewWalker(coords[i], r.LnPrior, r.LnLike)
	}
	return e, nil
}

// Len returns the number of walkers K.
func (e *Ensemble) Len() int { return len(e.walkers) }

// Dim returns the coordinate dimension D.
func (e *Ensemble) Dim() int { return e.ndim }

func (e *Ensemble) Walker(i int) Walker { return e.walkers[i] }

func (e *Ensemble) bounds(h int) (lo, hi int) {
	half := len(e.walkers) / 2
	if h == 0 {
		return 0, half
	}
	return half, len(e.walkers)
}

// Half returns a copy of the walkers in half h (0 or 1).  The partitioning
// is fixed for the ensemble's lifetime: half 0 is the first K/2 walkers.
func (e *Ensemble) Half(h int) []Walker {
	lo, hi := e.bounds(h)
	ws := make([]Walker, hi-lo)
	copy(ws, e.walkers[lo:hi])
	return ws
}

// Complement returns a copy of the walkers in the half opposite h.
func (e *Ensemble) Complement(h int) []Walker { return e.Half(1 - h) }

// Commit writes ws positionally back into half h.  It is the only mutation
// path into the ensemble.
func (e *Ensemble) Commit(h int, ws []Walker) error {
	lo, hi := e.bounds(h)
	if len(ws) != hi-lo {
		return fmt.Errorf("emcee3: commit of %v walkers into half of size %v", len(ws), hi-lo)
	}
	for i, w := range ws {
		if w.Len() != e.ndim {
			return fmt.Errorf("emcee3: walker %v has %v dims, expected %v", lo+i, w.Len(), e.ndim)
		}
	}
	copy(e.walkers[lo:hi], ws)
	return nil
}

// Coords returns a copy of the current [walker][dim] coordinate matrix.
func (e *Ensemble) Coords() [][]float64 {
	xs := make([][]float64, len(e.walkers))
	for i, w := range e.walkers {
		xs[i] = w.Pos()
	}
	return xs
}

func (e *Ensemble) LnPriors() []float64 {
	vals := make([]float64, len(e.walkers))
	for i, w := range e.walkers {
		vals[i] = w.LnPrior
	}
	return vals
}

func (e *Ensemble) LnLikes() []float64 {
	vals := make([]float64, len(e.walkers))
	for i, w := range e.walkers {
		vals[i] = w.LnLike
	}
	return vals
}

func (e *Ensemble) LnProbs() []float64 {
	vals := make([]float64, len(e.walkers))
	for i, w := range e.walkers {
		vals[i] = w.LnProb()
	}
	return vals
}
