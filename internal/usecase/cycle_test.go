//go:build !integration

package usecase

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-pipeline/internal/domain/ports/adapter"
)

func TestPipeline_RunCycleRecordsSummary(t *testing.T) {
	h := newHarness(t, [][]string{
		row(map[string]string{"id": "1", "url": "https://example.com/a"}),
	}, nil)
	logger := zerolog.New(nil)
	d := NewFollowupDispatcher(h.posts, []adapter.Publisher{h.twitter}, 10, &logger)
	p := NewPipeline(h.engine, d, &logger)

	_, ok := p.LastRun()
	assert.False(t, ok)

	require.NoError(t, p.RunCycle(context.Background()))

	sum, ok := p.LastRun()
	require.True(t, ok)
	assert.Equal(t, "content", sum.Mode)
	assert.Equal(t, 1, sum.Items)
	assert.Equal(t, 0, sum.Failures)
	assert.True(t, sum.Engaged)
	// follow-ups are scheduled hours ahead, so none are due yet
	assert.Equal(t, 0, sum.Followups)
	assert.Equal(t, testNow, sum.FinishedAt)
}

func TestPipeline_WithoutFollowups(t *testing.T) {
	h := newHarness(t, nil, nil)
	logger := zerolog.New(nil)
	p := NewPipeline(h.engine, nil, &logger)

	require.NoError(t, p.RunCycle(context.Background()))
	sum, ok := p.LastRun()
	require.True(t, ok)
	assert.Equal(t, "engagement", sum.Mode)
}
