package emcee3

import (
	"context"
	"fmt"
	"math"

	"github.com/petar/GoLLRB/llrb"
)

// Ball returns n coordinate vectors normally scattered around center with
// per-dimension standard deviation scatter.  This is the usual way to
// initialize an ensemble from a single starting guess.
func Ball(rng Rng, center, scatter []float64, n int) [][]float64 {
	if len(center) != len(scatter) {
		panic("emcee3: center and scatter vectors are not same length")
	}

	coords := make([][]float64, n)
	for i := 0; i < n; i++ {
		pos := make([]float64, len(center))
		for j := range pos {
			pos[j] = center[j] + scatter[j]*rng.NormFloat64()
		}
		coords[i] = pos
	}
	return coords
}

type candidate struct {
	pos    []float64
	howbad float64
}

func (c1 candidate) Less(than llrb.Item) bool {
	c2 := than.(candidate)
	return c1.howbad < c2.howbad
}

// BallValid tries to generate n coordinate vectors scattered around center
// that all have a finite log-probability under m.  It draws candidates like
// Ball and keeps the finite ones.  It queues up the least unfavorable
// non-finite candidates, ranked by squared distance from center, in case n
// finite ones cannot be found within maxiter draws; nbad reports how many of
// the returned vectors came from that queue.
func BallValid(ctx context.Context, m Model, rng Rng, center, scatter []float64, n, maxiter int) (coords [][]float64, nbad int, err error) {
	violaters := llrb.New()
	coords = make([][]float64, 0, n)
	for i := 0; i < maxiter; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		pos := Ball(rng, center, scatter, 1)[0]
		r, _ := evalOne(m, pos)

		if !math.IsInf(r.LnProb(), 0) && !math.IsNaN(r.LnProb()) {
			coords = append(coords, pos)
			if len(coords) == n {
				return coords, 0, nil
			}
		} else {
			// Non-finite log-probabilities carry no magnitude to rank by,
			// so badness is the candidate's squared distance from the
			// starting guess.
			howbad := 0.0
			for j := range pos {
				d := pos[j] - center[j]
				howbad += d * d
			}
			violaters.InsertNoReplace(candidate{pos, howbad})
			for violaters.Len() > n-len(coords) {
				violaters.DeleteMax()
			}
		}
	}

	nbad = n - len(coords)
	if violaters.Len() < nbad {
		return nil, nbad, fmt.Errorf("emcee3: found only %v of %v walker positions in %v draws", len(coords), n, maxiter)
	}
	for len(coords) < n {
		coords = append(coords, violaters.DeleteMin().(candidate).pos)
	}
	return coords, nbad, nil
}
