package emcee3

import "errors"

// ErrShortChain is returned when a chain is too short to estimate its
// integrated autocorrelation time reliably.
var ErrShortChain = errors.New("emcee3: chain is too short to estimate autocorrelation time")

// IntegratedTime estimates the integrated autocorrelation time of the scalar
// chain x using Sokal's automated windowing procedure: the window m is the
// smallest lag satisfying m >= c*tau(m).  A value of c <= 0 selects the
// conventional c = 5.  The estimate answers "how many steps apart are
// effectively independent samples" and is the standard convergence
// diagnostic for ensemble chains.
func IntegratedTime(x []float64, c float64) (float64, error) {
	if c <= 0 {
		c = 5
	}
	n := len(x)
	if n < 2 {
		return 0, ErrShortChain
	}

	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(n)

	var0 := 0.0
	for _, v := range x {
		var0 += (v - mean) * (v - mean)
	}
	var0 /= float64(n)
	if var0 == 0 {
		return 0, ErrShortChain
	}

	tau := 1.0
	for m := 1; m < n; m++ {
		acov := 0.0
		for i := 0; i < n-m; i++ {
			acov += (x[i] - mean) * (x[i+m] - mean)
		}
		acov /= float64(n)
		tau += 2 * acov / var0

		if float64(m) >= c*tau {
			return tau, nil
		}
	}
	return tau, ErrShortChain
}
