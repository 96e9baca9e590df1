package emcee3

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

// errAfter fails every evaluation from the nth call on.
type errAfter struct {
	n     int
	count int
}

func (m *errAfter) LogProb(x []float64) (float64, float64, error) {
	m.count++
	if m.count >= m.n {
		return 0, 0, errors.New("fake error")
	}
	return 0, -x[0], nil
}

func batch(n int) [][]float64 {
	xs := make([][]float64, n)
	for i := range xs {
		xs[i] = []float64{float64(i)}
	}
	return xs
}

func TestSerialEvalerFailures(t *testing.T) {
	m := &errAfter{n: 4}
	results, nfail, err := SerialEvaler{}.Eval(context.Background(), m, batch(5))
	if err != nil {
		t.Fatalf("per-point failures must not error the batch: %v", err)
	}
	if nfail != 2 {
		t.Errorf("nfail = %v, expected 2", nfail)
	}
	for i := 0; i < 3; i++ {
		if results[i].LnProb() != -float64(i) {
			t.Errorf("result %v lnprob = %v, expected %v", i, results[i].LnProb(), -float64(i))
		}
	}
	for i := 3; i < 5; i++ {
		if !math.IsInf(results[i].LnProb(), -1) {
			t.Errorf("failed result %v lnprob = %v, expected -Inf", i, results[i].LnProb())
		}
	}
}

func TestSerialEvalerAllFailed(t *testing.T) {
	m := &errAfter{n: 0}
	_, nfail, err := SerialEvaler{}.Eval(context.Background(), m, batch(5))
	if !errors.Is(err, ErrAllEvalsFailed) {
		t.Errorf("expected ErrAllEvalsFailed, got %v", err)
	}
	if nfail != 5 {
		t.Errorf("nfail = %v, expected 5", nfail)
	}
}

func TestSerialEvalerNaN(t *testing.T) {
	m := Func(func(x []float64) float64 { return math.NaN() })
	results, nfail, err := SerialEvaler{}.Eval(context.Background(), m, batch(2))
	if !errors.Is(err, ErrAllEvalsFailed) {
		t.Errorf("expected ErrAllEvalsFailed for NaN batch, got %v", err)
	}
	if nfail != 2 || !math.IsInf(results[0].LnProb(), -1) {
		t.Errorf("NaN evaluations must auto-reject: nfail=%v results=%v", nfail, results)
	}
}

func TestPoolEvalerOrder(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	m := Func(func(x []float64) float64 { return 2 * x[0] })
	results, nfail, err := p.Eval(context.Background(), m, batch(33))
	if err != nil {
		t.Fatal(err)
	}
	if nfail != 0 {
		t.Errorf("nfail = %v, expected 0", nfail)
	}
	for i, r := range results {
		if r.LnProb() != 2*float64(i) {
			t.Errorf("result %v out of order: lnprob = %v, expected %v", i, r.LnProb(), 2*float64(i))
		}
	}
}

func TestPoolEvalerAllFailed(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	m := &errAfter{n: 0}
	_, nfail, err := p.Eval(context.Background(), m, batch(6))
	if !errors.Is(err, ErrAllEvalsFailed) {
		t.Errorf("expected ErrAllEvalsFailed, got %v", err)
	}
	if nfail != 6 {
		t.Errorf("nfail = %v, expected 6", nfail)
	}
}

func TestPoolEvalerCancel(t *testing.T) {
	block := make(chan struct{})
	m := Func(func(x []float64) float64 {
		<-block
		return 0
	})

	p := NewPool(2)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, _, err := p.Eval(ctx, m, batch(10))
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	close(block) // let in-flight evaluations finish

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled Eval did not return")
	}

	// the pool must still shut down cleanly after a cancelled batch
	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not release pool workers")
	}
}

func TestSplitShortCircuit(t *testing.T) {
	called := false
	m := Split{
		Prior: func(x []float64) float64 { return math.Inf(-1) },
		Like: func(x []float64) float64 {
			called = true
			return 0
		},
	}
	lp, _, err := m.LogProb([]float64{0})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(lp, -1) {
		t.Errorf("lnprior = %v, expected -Inf", lp)
	}
	if called {
		t.Errorf("likelihood was evaluated for a point the prior rules out")
	}
}
