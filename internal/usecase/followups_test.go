//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/domain/ports/adapter"
	"social-pipeline/internal/infra/memstore"
)

func TestFollowupDispatcher_Dispatch(t *testing.T) {
	ctx := context.Background()
	repo := memstore.NewPostRepo()
	due := testNow.Add(-time.Minute)
	later := testNow.Add(time.Hour)
	require.NoError(t, repo.SaveAll(ctx, []*model.Post{
		{ID: "tw", Row: 2, Platform: model.PlatformTwitter, Kind: model.PostKindFollowup, Text: "more", State: model.PostStatePending, ScheduledAt: &due},
		{ID: "li", Row: 2, Platform: model.PlatformLinkedIn, Kind: model.PostKindFollowup, Text: "more", State: model.PostStatePending, ScheduledAt: &due},
		{ID: "later", Row: 2, Platform: model.PlatformTwitter, Kind: model.PostKindFollowup, Text: "later", State: model.PostStatePending, ScheduledAt: &later},
	}))

	pub := &fakePublisher{platform: model.PlatformTwitter}
	logger := zerolog.New(nil)
	d := NewFollowupDispatcher(repo, []adapter.Publisher{pub}, 10, &logger)
	d.now = func() time.Time { return testNow }

	n, err := d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"more"}, pub.Published())

	byID := map[string]*model.Post{}
	for _, p := range repo.All() {
		byID[p.ID] = p
	}
	assert.Equal(t, model.PostStatePublished, byID["tw"].State)
	assert.Equal(t, "twitter-1", byID["tw"].RemoteID)
	assert.Equal(t, model.PostStateFailed, byID["li"].State)
	assert.Contains(t, byID["li"].LastError, "no publisher")
	assert.Equal(t, model.PostStatePending, byID["later"].State)
}

func TestFollowupDispatcher_PublishFailureMarksPost(t *testing.T) {
	ctx := context.Background()
	repo := memstore.NewPostRepo()
	due := testNow.Add(-time.Minute)
	require.NoError(t, repo.Save(ctx, nil, &model.Post{ID: "a", Platform: model.PlatformBluesky, Kind: model.PostKindFollowup, State: model.PostStatePending, ScheduledAt: &due}))

	pub := &fakePublisher{platform: model.PlatformBluesky, FailAt: 1, Err: errors.New("rate limited")}
	logger := zerolog.New(nil)
	d := NewFollowupDispatcher(repo, []adapter.Publisher{pub}, 0, &logger)
	d.now = func() time.Time { return testNow }

	n, err := d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	got := repo.All()
	require.Len(t, got, 1)
	assert.Equal(t, model.PostStateFailed, got[0].State)
	assert.Equal(t, "rate limited", got[0].LastError)
	assert.Equal(t, 1, got[0].Attempts)
}
