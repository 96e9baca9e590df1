// Package chain provides append-only backends for storing the walk history
// of an ensemble sampler: an in-memory chain and a durable SQLite chain.
// Both store one [walker][dim] coordinate snapshot plus the matching
// log-priors and log-likelihoods per committed iteration, and support
// read-back with burn-in discard, thinning, and flattening across walkers.
package chain

import (
	"fmt"
	"sync"

	"github.com/Tibbersx/emcee3"
)

// nsel returns how many of n stored iterations survive a read with the
// given discard and thin parameters: floor((n-discard)/thin).
func nsel(n, discard, thin int) int {
	if thin < 1 {
		thin = 1
	}
	if discard < 0 {
		discard = 0
	}
	if n <= discard {
		return 0
	}
	return (n - discard) / thin
}

// selIdx maps the i'th surviving iteration back to its stored index.
func selIdx(i, discard, thin int) int {
	if thin < 1 {
		thin = 1
	}
	if discard < 0 {
		discard = 0
	}
	return discard + thin - 1 + i*thin
}

// Mem is an in-memory append-only chain.  Appends are atomic with respect to
// concurrent readers: a reader never observes a partially written iteration.
type Mem struct {
	mu       sync.RWMutex
	nwalkers int
	ndim     int
	coords   [][][]float64
	lnprior  [][]float64
	lnlike   [][]float64
}

func NewMem() *Mem { return &Mem{} }

// Append commits the full current state of e as one iteration.
func (c *Mem) Append(e *emcee3.Ensemble) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nwalkers == 0 {
		c.nwalkers, c.ndim = e.Len(), e.Dim()
	}
	if c.nwalkers != e.Len() || c.ndim != e.Dim() {
		return fmt.Errorf("chain: ensemble is %vx%v, chain is %vx%v", e.Len(), e.Dim(), c.nwalkers, c.ndim)
	}

	c.coords = append(c.coords, e.Coords())
	c.lnprior = append(c.lnprior, e.LnPriors())
	c.lnlike = append(c.lnlike, e.LnLikes())
	return nil
}

// Len returns the number of committed iterations.
func (c *Mem) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.coords)
}

// Coords returns the stored [iteration][walker][dim] coordinate tensor,
// dropping the first discard iterations and keeping every thin'th of the
// rest.
func (c *Mem) Coords(discard, thin int) [][][]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := nsel(len(c.coords), discard, thin)
	out := make([][][]float64, n)
	for i := 0; i < n; i++ {
		src := c.coords[selIdx(i, discard, thin)]
		iter := make([][]float64, len(src))
		for w := range src {
			iter[w] = append([]float64{}, src[w]...)
		}
		out[i] = iter
	}
	return out
}

// FlatCoords is Coords with the walker axis collapsed, iteration-major and
// walker-minor.
func (c *Mem) FlatCoords(discard, thin int) [][]float64 {
	iters := c.Coords(discard, thin)
	var out [][]float64
	for _, iter := range iters {
		out = append(out, iter...)
	}
	return out
}

// LnProbs returns the [iteration][walker] log-probability tensor under the
// same discard/thin parameters as Coords.
func (c *Mem) LnProbs(discard, thin int) [][]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := nsel(len(c.coords), discard, thin)
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		j := selIdx(i, discard, thin)
		vals := make([]float64, c.nwalkers)
		for w := 0; w < c.nwalkers; w++ {
			vals[w] = c.lnprior[j][w] + c.lnlike[j][w]
		}
		out[i] = vals
	}
	return out
}

// FlatLnProbs is LnProbs with the walker axis collapsed.
func (c *Mem) FlatLnProbs(discard, thin int) []float64 {
	iters := c.LnProbs(discard, thin)
	var out []float64
	for _, iter := range iters {
		out = append(out, iter...)
	}
	return out
}
