package emcee3_test

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/Tibbersx/emcee3"
	"github.com/Tibbersx/emcee3/chain"
	"github.com/Tibbersx/emcee3/stretch"
)

const seed = 7

func gauss1d(x []float64) float64 { return -0.5 * x[0] * x[0] }

func newsampler(t *testing.T, m emcee3.Model, ev emcee3.Evaler, nwalkers int, seed int64) (*emcee3.Sampler, *chain.Mem) {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	coords := emcee3.Ball(rng, []float64{0}, []float64{0.1}, nwalkers)
	e, err := emcee3.NewEnsemble(context.Background(), m, ev, coords, rng)
	if err != nil {
		t.Fatal(err)
	}
	mv, err := stretch.New()
	if err != nil {
		t.Fatal(err)
	}

	c := chain.NewMem()
	return &emcee3.Sampler{Ens: e, Move: mv, Model: m, Ev: ev, Chain: c}, c
}

func TestSamplerReproducible(t *testing.T) {
	run := func(ev emcee3.Evaler) [][]float64 {
		s, c := newsampler(t, emcee3.Func(gauss1d), ev, 10, seed)
		if err := s.Run(context.Background(), 50); err != nil {
			t.Fatal(err)
		}
		return c.FlatCoords(0, 1)
	}

	a := run(nil)
	b := run(nil)

	pool := emcee3.NewPool(4)
	defer pool.Close()
	p := run(pool)

	if len(a) != 50*10 {
		t.Fatalf("chain has %v samples, expected 500", len(a))
	}
	for i := range a {
		if a[i][0] != b[i][0] {
			t.Fatalf("serial runs with identical seeds diverged at sample %v: %v != %v", i, a[i][0], b[i][0])
		}
		if a[i][0] != p[i][0] {
			t.Fatalf("pool run diverged from serial run at sample %v: %v != %v", i, a[i][0], p[i][0])
		}
	}
}

func TestSamplerStoreEveryAndProgress(t *testing.T) {
	s, c := newsampler(t, emcee3.Func(gauss1d), nil, 10, seed)
	s.StoreEvery = 3

	ncalls := 0
	var last emcee3.Status
	s.Progress = func(st emcee3.Status) {
		ncalls++
		last = st
	}

	if err := s.Run(context.Background(), 10); err != nil {
		t.Fatal(err)
	}

	if s.Niter() != 10 {
		t.Errorf("Niter = %v, expected 10", s.Niter())
	}
	if c.Len() != 3 {
		t.Errorf("chain has %v iterations with StoreEvery=3 over 10 steps, expected 3", c.Len())
	}
	if ncalls != 10 {
		t.Errorf("progress callback ran %v times, expected 10", ncalls)
	}
	if last.Iter != 10 || last.Nprop != 100 {
		t.Errorf("final status = %+v, expected Iter=10 Nprop=100", last)
	}
	if got := s.AcceptFrac(); got <= 0 || got > 1 {
		t.Errorf("acceptance fraction %v outside (0, 1]", got)
	}
}

func TestSamplerCancelNoPartialCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var count int32
	m := emcee3.Func(func(x []float64) float64 {
		// 10 init evals + 10 for step one; cancel midway through step two.
		if atomic.AddInt32(&count, 1) == 25 {
			cancel()
		}
		return gauss1d(x)
	})

	s, c := newsampler(t, m, nil, 10, seed)
	err := s.Run(ctx, 100)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Niter() != 1 {
		t.Errorf("Niter = %v, expected 1 completed step before cancellation", s.Niter())
	}
	if c.Len() != 1 {
		t.Errorf("chain has %v iterations, expected 1: partial steps must not be committed", c.Len())
	}
}

func TestSamplerAllFailedFatal(t *testing.T) {
	var healthy int32 = 1
	m := modelFunc(func(x []float64) (float64, float64, error) {
		if atomic.LoadInt32(&healthy) == 1 {
			return 0, gauss1d(x), nil
		}
		return 0, 0, errors.New("worker wedged")
	})

	s, c := newsampler(t, m, nil, 10, seed)
	if err := s.Run(context.Background(), 2); err != nil {
		t.Fatal(err)
	}

	atomic.StoreInt32(&healthy, 0)
	err := s.Run(context.Background(), 5)
	if !errors.Is(err, emcee3.ErrAllEvalsFailed) {
		t.Fatalf("expected ErrAllEvalsFailed, got %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("chain has %v iterations, expected the 2 healthy steps only", c.Len())
	}
	if s.Nfail() == 0 {
		t.Errorf("failure counter not incremented")
	}
}

func TestSamplerNoMove(t *testing.T) {
	s, _ := newsampler(t, emcee3.Func(gauss1d), nil, 10, seed)
	s.Move = nil
	if err := s.Step(context.Background()); !errors.Is(err, emcee3.ErrNoMove) {
		t.Errorf("expected ErrNoMove, got %v", err)
	}
}

type modelFunc func(x []float64) (float64, float64, error)

func (f modelFunc) LogProb(x []float64) (float64, float64, error) { return f(x) }
