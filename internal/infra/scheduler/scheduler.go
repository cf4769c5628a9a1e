package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"social-pipeline/internal/infra/metrics"
)

// Cycle is one unit of scheduled work.
type Cycle interface {
	RunCycle(ctx context.Context) error
}

// Scheduler runs a Cycle immediately and then every interval until the
// process asks for shutdown. A running cycle is never interrupted; the
// shutdown request is honored between cycles.
type Scheduler struct {
	interval time.Duration
	cycle    Cycle
	proc     *Process
	log      *zerolog.Logger
}

// NewScheduler constructs a scheduler. If interval <= 0 it defaults to 60 minutes.
func NewScheduler(interval time.Duration, cycle Cycle, proc *Process, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Minute
	}
	l := logger.With().Str("component", "Scheduler").Logger()
	return &Scheduler{interval: interval, cycle: cycle, proc: proc, log: &l}
}

// Run blocks until shutdown, then closes the process resources. ctx is
// handed to each cycle; cancelling it also stops the loop after the
// current cycle.
func (s *Scheduler) Run(ctx context.Context) error {
	defer func() {
		if err := s.proc.Close(); err != nil {
			s.log.Warn().Err(err).Msg("errors while closing resources")
		}
	}()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")

loop:
	for cycle := 1; !s.stopping(ctx); cycle++ {
		s.runOnce(ctx, cycle)
		if s.stopping(ctx) {
			break
		}

		wait := time.NewTimer(s.interval)
		select {
		case <-wait.C:
		case <-s.proc.Done():
			wait.Stop()
			s.log.Info().Msg("shutdown requested during wait")
			break loop
		case <-ctx.Done():
			wait.Stop()
			break loop
		}
	}
	s.log.Info().Msg("scheduler stopped")
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context, n int) {
	log := s.log.With().Int("cycle", n).Logger()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.IncCycleError()
			log.Error().Interface("panic", r).Msg("cycle panicked")
		}
	}()
	if err := s.cycle.RunCycle(ctx); err != nil {
		metrics.IncCycleError()
		log.Error().Err(err).Msg("cycle failed")
		return
	}
	log.Info().Dur("duration", time.Since(start)).Msg("cycle finished")
}

func (s *Scheduler) stopping(ctx context.Context) bool {
	return s.proc.ShuttingDown() || ctx.Err() != nil
}

type closer struct {
	name string
	fn   func() error
}

// Process carries the shutdown signal and the resources to release on
// exit.
type Process struct {
	shutdown chan struct{}
	once     sync.Once

	mu      sync.Mutex
	closers []closer
	closed  bool
	log     *zerolog.Logger
}

func NewProcess(logger *zerolog.Logger) *Process {
	l := logger.With().Str("component", "Process").Logger()
	return &Process{shutdown: make(chan struct{}), log: &l}
}

// Shutdown requests a graceful stop. Safe to call more than once.
func (p *Process) Shutdown(reason string) {
	p.once.Do(func() {
		p.log.Info().Str("reason", reason).Msg("shutdown requested")
		close(p.shutdown)
	})
}

func (p *Process) Done() <-chan struct{} { return p.shutdown }

func (p *Process) ShuttingDown() bool {
	select {
	case <-p.shutdown:
		return true
	default:
		return false
	}
}

// OnClose registers fn to run at Close. Closers run in reverse order.
func (p *Process) OnClose(name string, fn func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

// Close runs every registered closer once and joins their errors.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cs := p.closers
	p.mu.Unlock()

	var errs []error
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].fn(); err != nil {
			p.log.Warn().Err(err).Str("resource", cs[i].name).Msg("close failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
