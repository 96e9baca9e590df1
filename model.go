package emcee3

import "math"

// Model evaluates the target density at a coordinate vector, returning the
// log-prior and log-likelihood up to a constant.  Out-of-support points are
// reported as a -Inf log-prior.  A non-nil error marks the evaluation as
// failed; the engine treats failed proposals as automatic rejections rather
// than aborting the run.
type Model interface {
	LogProb(x []float64) (lnprior, lnlike float64, err error)
}

// Func adapts a plain combined log-probability function to the Model
// interface.  The prior is taken to be constant.
type Func func(x []float64) float64

func (f Func) LogProb(x []float64) (float64, float64, error) { return 0, f(x), nil }

// Split is a Model assembled from separate log-prior and log-likelihood
// functions.  The likelihood is never called for points the prior rules out.
type Split struct {
	Prior func(x []float64) float64
	Like  func(x []float64) float64
}

func (s Split) LogProb(x []float64) (float64, float64, error) {
	lp := s.Prior(x)
	if math.IsInf(lp, -1) {
		return lp, 0, nil
	}
	return lp, s.Like(x), nil
}
