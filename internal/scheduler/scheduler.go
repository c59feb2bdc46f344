// Package scheduler drives the discrete-time simulation loop (spec
// §4.5): each time step runs Build, Tick, Exchange, Tock, and
// Decommission in that fixed order, advancing the clock only after
// every phase completes or is safely recovered from.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/aristath/simkernel/internal/agent"
	simctx "github.com/aristath/simkernel/internal/context"
	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/rs/zerolog"
)

// Exchange is the Dynamic Resource Exchange capability the scheduler
// invokes once per step during the Exchange phase. Implemented by
// internal/exchange.Market; named here as a narrow interface so
// scheduler does not depend on exchange's matching internals.
type Exchange interface {
	Run(traders map[agent.ID]agent.Tradable) error
}

// Scheduler runs the fixed Build->Tick->Exchange->Tock->Decommission
// phase order once per time step (spec §4.5).
type Scheduler struct {
	ctx      *simctx.Context
	exchange Exchange
	log      zerolog.Logger

	builds  *eventQueue
	decoms  *eventQueue

	mu      sync.Mutex
	stopped bool
}

// New constructs a Scheduler bound to ctx. exchange may be nil for
// pure build/tick/decommission tests (the Exchange phase is then a
// no-op).
func New(ctx *simctx.Context, exchange Exchange, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		ctx:      ctx,
		exchange: exchange,
		log:      log.With().Str("component", "scheduler").Logger(),
		builds:   newEventQueue(),
		decoms:   newEventQueue(),
	}
}

// SchedBuild registers fn to run during the Build phase of time t or
// the next step at or after t if t has already passed (spec §4.2).
func (s *Scheduler) SchedBuild(t int, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds.schedule(t, fn)
}

// SchedDecom registers fn to run during the Decommission phase of time
// t (spec §4.2).
func (s *Scheduler) SchedDecom(t int, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoms.schedule(t, fn)
}

// Stop requests the run loop halt before its next time step. Safe to
// call from another goroutine (e.g. the HTTP introspection API).
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *Scheduler) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Run executes the simulation from the current clock through Duration,
// in DT-sized steps, until Stop is called or time is exhausted (spec
// §4.1, §4.5).
func (s *Scheduler) Run() error {
	for s.ctx.Now() < s.ctx.Duration() {
		if s.stopRequested() {
			s.log.Info().Int("time", s.ctx.Now()).Msg("stop requested, halting before next step")
			break
		}
		if err := s.step(); err != nil {
			return err
		}
		s.ctx.Advance()
	}
	return nil
}

func (s *Scheduler) step() error {
	now := s.ctx.Now()
	log := s.log.With().Int("time", now).Logger()

	if err := s.runPhase("build", func() error { return s.runBuild(now) }); err != nil {
		return err
	}
	if err := s.runPhase("tick", func() error { return s.runTick() }); err != nil {
		return err
	}
	if err := s.runPhase("exchange", func() error { return s.runExchange() }); err != nil {
		return err
	}
	if err := s.runPhase("tock", func() error { return s.runTock() }); err != nil {
		return err
	}
	if err := s.runPhase("decommission", func() error { return s.runDecommission(now) }); err != nil {
		return err
	}

	log.Debug().Msg("step complete")
	return nil
}

// runPhase recovers a panicking agent hook into a StateError instead of
// crashing the whole run, matching the teacher's job-processor
// isolation and spec §7's failure-containment model.
func (s *Scheduler) runPhase(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = kernerr.Newf(kernerr.StateError, "panic in %s phase: %v", name, r)
			s.log.Error().Interface("panic", r).Str("phase", name).Msg("recovered from panic")
		}
	}()
	if ferr := fn(); ferr != nil {
		s.log.Error().Err(ferr).Str("phase", name).Msg("phase returned an error")
		return fmt.Errorf("%s phase: %w", name, ferr)
	}
	return nil
}

func (s *Scheduler) runBuild(now int) error {
	s.mu.Lock()
	due := s.builds.due(now)
	s.mu.Unlock()
	for _, e := range due {
		if err := e.fn(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) runTick() error {
	for _, a := range s.ctx.Tree.Alive() {
		t, ok := a.(agent.Tickable)
		if !ok {
			continue
		}
		if err := t.Tick(); err != nil {
			return fmt.Errorf("agent %d tick: %w", a.Base().ID(), err)
		}
	}
	return nil
}

func (s *Scheduler) runExchange() error {
	if s.exchange == nil {
		return nil
	}
	return s.exchange.Run(s.ctx.Traders())
}

func (s *Scheduler) runTock() error {
	for _, a := range s.ctx.Tree.Alive() {
		p, ok := a.(agent.Producer)
		if !ok {
			continue
		}
		if err := p.Tock(); err != nil {
			return fmt.Errorf("agent %d tock: %w", a.Base().ID(), err)
		}
	}
	return nil
}

func (s *Scheduler) runDecommission(now int) error {
	s.mu.Lock()
	due := s.decoms.due(now)
	s.mu.Unlock()
	for _, e := range due {
		if err := e.fn(); err != nil {
			return err
		}
	}
	return nil
}
