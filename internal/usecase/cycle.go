package usecase

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Pipeline is one scheduler cycle: a workflow run followed by a follow-up
// dispatch. It keeps the last run summary for the ops surface.
type Pipeline struct {
	engine    *Engine
	followups *FollowupDispatcher

	mu   sync.RWMutex
	last *RunSummary
	log  *zerolog.Logger
}

// NewPipeline wires a cycle. followups may be nil.
func NewPipeline(engine *Engine, followups *FollowupDispatcher, logger *zerolog.Logger) *Pipeline {
	l := logger.With().Str("component", "Pipeline").Logger()
	return &Pipeline{engine: engine, followups: followups, log: &l}
}

// RunCycle never fails on business errors; those are in the summary. The
// returned error reports infrastructure failures of the follow-up step.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	st := p.engine.Run(ctx)
	sum := Summary(st, p.engine.now())

	var err error
	if p.followups != nil {
		sum.Followups, err = p.followups.Dispatch(ctx)
		if err != nil {
			p.log.Error().Err(err).Msg("follow-up dispatch failed")
		}
	}
	sum.FinishedAt = p.engine.now()

	p.mu.Lock()
	p.last = &sum
	p.mu.Unlock()
	return err
}

// LastRun returns the most recent summary, if any cycle has finished.
func (p *Pipeline) LastRun() (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return RunSummary{}, false
	}
	return *p.last, true
}
