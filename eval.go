package emcee3

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrAllEvalsFailed is returned when every evaluation in a batch failed.  A
// run must not silently continue producing -Inf chains, so this is fatal to
// the caller rather than folded into per-point auto-rejects.
var ErrAllEvalsFailed = errors.New("emcee3: every evaluation in the batch failed")

// Result holds the outcome of one density evaluation.
type Result struct {
	LnPrior float64
	LnLike  float64
}

func (r Result) LnProb() float64 { return r.LnPrior + r.LnLike }

// Evaler evaluates a batch of coordinate vectors against a Model.  Results
// align positionally with xs; evaluation order across the batch is
// unspecified and may be fully parallel.  Failed evaluations come back as
// -Inf results with nfail incremented.  If the whole batch fails, err is
// ErrAllEvalsFailed.  Cancellation of ctx abandons the batch and returns
// ctx.Err(); no partial results are returned.
type Evaler interface {
	Eval(ctx context.Context, m Model, xs [][]float64) (results []Result, nfail int, err error)
}

// evalOne maps a single model evaluation onto a Result.  Errors and NaNs
// auto-reject: the walker gets a -Inf log-probability for this proposal.
func evalOne(m Model, x []float64) (Result, bool) {
	lp, ll, err := m.LogProb(x)
	if err != nil || math.IsNaN(lp) || math.IsNaN(ll) {
		return Result{LnPrior: math.Inf(-1), LnLike: math.Inf(-1)}, true
	}
	return Result{LnPrior: lp, LnLike: ll}, false
}

// SerialEvaler evaluates a batch sequentially on the calling goroutine.
type SerialEvaler struct{}

func (SerialEvaler) Eval(ctx context.Context, m Model, xs [][]float64) ([]Result, int, error) {
	results := make([]Result, len(xs))
	nfail := 0
	for i, x := range xs {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		r, failed := evalOne(m, x)
		results[i] = r
		if failed {
			nfail++
		}
	}
	if nfail == len(xs) && len(xs) > 0 {
		return results, nfail, ErrAllEvalsFailed
	}
	return results, nfail, nil
}

type task struct {
	ctx   context.Context
	m     Model
	x     []float64
	i     int
	res   []Result
	nfail *int64
	done  *sync.WaitGroup
}

// PoolEvaler distributes batches across a fixed set of long-lived worker
// goroutines.  The pool is a scoped resource: Close must be called on every
// exit path to release the workers.
type PoolEvaler struct {
	tasks chan task
	wg    sync.WaitGroup
}

// NewPool starts a pool with n workers, or runtime.NumCPU() workers if
// n <= 0.
func NewPool(n int) *PoolEvaler {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &PoolEvaler{tasks: make(chan task)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *PoolEvaler) work() {
	defer p.wg.Done()
	for t := range p.tasks {
		if t.ctx.Err() != nil {
			// Batch was abandoned; drain without evaluating.
			t.done.Done()
			continue
		}
		r, failed := evalOne(t.m, t.x)
		t.res[t.i] = r
		if failed {
			atomic.AddInt64(t.nfail, 1)
		}
		t.done.Done()
	}
}

// Eval dispatches the batch to the pool and blocks until every dispatched
// point has been processed or skipped.  Each result slot is written by
// exactly one worker, so reassembly needs no locking.  On cancellation the
// undispatched remainder is dropped, in-flight work finishes or is skipped,
// and ctx.Err() is returned.
func (p *PoolEvaler) Eval(ctx context.Context, m Model, xs [][]float64) ([]Result, int, error) {
	results := make([]Result, len(xs))
	var nfail int64
	var done sync.WaitGroup
	done.Add(len(xs))

	canceled := false
	for i := range xs {
		t := task{ctx: ctx, m: m, x: xs[i], i: i, res: results, nfail: &nfail, done: &done}
		select {
		case p.tasks <- t:
		case <-ctx.Done():
			done.Add(i - len(xs)) // un-count the tasks never dispatched
			canceled = true
		}
		if canceled {
			break
		}
	}
	done.Wait()

	if err := ctx.Err(); err != nil {
		return nil, int(nfail), err
	}
	if int(nfail) == len(xs) && len(xs) > 0 {
		return results, int(nfail), ErrAllEvalsFailed
	}
	return results, int(nfail), nil
}

// Close shuts the pool down and waits for all workers to exit.  The pool
// must not be used after Close.
func (p *PoolEvaler) Close() {
	close(p.tasks)
	p.wg.Wait()
}
