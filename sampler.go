package emcee3

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoMove     = errors.New("emcee3: sampler has no move")
	ErrFailStreak = errors.New("emcee3: too many consecutive steps with failing evaluations and no accepted proposals")
)

// Mover is a proposal strategy.  Update proposes new coordinates for the
// walkers in half h of e using the complementary half as partners, evaluates
// the proposals with ev against m, applies the acceptance rule, and commits
// accepted walkers back into e.  It reports the number of accepted proposals
// and the number of failed evaluations.  Movers hold no walker-specific
// state between calls.
type Mover interface {
	Update(ctx context.Context, e *Ensemble, h int, m Model, ev Evaler) (naccept, nfail int, err error)
}

// Backend is an append-only store of the walk history.  Append commits one
// full-ensemble iteration; it must be atomic with respect to readers.
type Backend interface {
	Append(e *Ensemble) error
	Len() int
}

// Status is passed to a Sampler's Progress callback once per committed step.
type Status struct {
	// Iter is the number of completed full steps.
	Iter int
	// Naccept and Nprop count accepted and total proposals so far.
	Naccept uint64
	Nprop   uint64
	// Nfail counts failed model evaluations so far.
	Nfail uint64
}

// AcceptFrac returns the running acceptance fraction.
func (st Status) AcceptFrac() float64 {
	if st.Nprop == 0 {
		return 0
	}
	return float64(st.Naccept) / float64(st.Nprop)
}

// Sampler drives the two-phase ensemble walk: each full step updates half A
// against half B, then half B against the already-updated half A, and
// appends the resulting ensemble state to the chain.  Zero values of the
// optional fields give a serial, unstored run.
type Sampler struct {
	Ens   *Ensemble
	Move  Mover
	Model Model
	// Ev evaluates proposal batches.  Nil means SerialEvaler.
	Ev Evaler
	// Chain receives one full-ensemble snapshot per committed step.  Nil
	// means the walk history is not stored.
	Chain Backend
	// StoreEvery > 1 commits only every nth step to Chain.
	StoreEvery int
	// Progress, if non-nil, is invoked once per committed step.
	Progress func(st Status)
	// MaxFailStreak > 0 aborts the run with ErrFailStreak after that many
	// consecutive steps in which at least one evaluation failed and no
	// proposal anywhere in the ensemble was accepted.  Zero disables the
	// check; a batch in which every evaluation fails is always fatal.
	MaxFailStreak int

	niter      int
	naccept    uint64
	nprop      uint64
	nfail      uint64
	failstreak int
}

// Step advances the ensemble by one full step (both half-updates).  On error
// - cancellation or systemic evaluation failure - nothing is appended to the
// chain for this step: the backend never holds a partial iteration.
func (s *Sampler) Step(ctx context.Context) error {
	if s.Move == nil {
		return ErrNoMove
	}
	ev := s.Ev
	if ev == nil {
		ev = SerialEvaler{}
	}

	var stepaccept, stepfail int
	for h := 0; h < 2; h++ {
		na, nf, err := s.Move.Update(ctx, s.Ens, h, s.Model, ev)
		s.nfail += uint64(nf)
		stepfail += nf
		if err != nil {
			return err
		}
		s.naccept += uint64(na)
		s.nprop += uint64(s.Ens.Len() / 2)
		stepaccept += na
	}
	s.niter++

	if s.Chain != nil && (s.StoreEvery <= 1 || s.niter%s.StoreEvery == 0) {
		if err := s.Chain.Append(s.Ens); err != nil {
			return fmt.Errorf("emcee3: chain append at step %v: %w", s.niter, err)
		}
	}

	if stepfail > 0 && stepaccept == 0 {
		s.failstreak++
	} else {
		s.failstreak = 0
	}
	if s.MaxFailStreak > 0 && s.failstreak >= s.MaxFailStreak {
		return ErrFailStreak
	}

	if s.Progress != nil {
		s.Progress(s.Status())
	}
	return nil
}

// Run advances the ensemble by nsteps full steps, stopping at the first
// error.  Callers wanting a lazy walk - checkpointing, monitoring, early
// stopping - call Step in their own loop instead.
func (s *Sampler) Run(ctx context.Context, nsteps int) error {
	for i := 0; i < nsteps; i++ {
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Niter returns the number of completed full steps.
func (s *Sampler) Niter() int { return s.niter }

// Nfail returns the number of failed model evaluations observed so far.
// Per-point failures are invisible except through this counter and a
// degraded acceptance rate.
func (s *Sampler) Nfail() uint64 { return s.nfail }

// AcceptFrac returns the fraction of proposals accepted so far.
func (s *Sampler) AcceptFrac() float64 { return s.Status().AcceptFrac() }

func (s *Sampler) Status() Status {
	return Status{Iter: s.niter, Naccept: s.naccept, Nprop: s.nprop, Nfail: s.nfail}
}
