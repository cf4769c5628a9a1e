package adapter

import (
	"context"

	"social-pipeline/internal/domain/model"
)

// Publisher posts a piece of text on one platform.
type Publisher interface {
	Platform() model.Platform
	Limit() int
	Publish(ctx context.Context, text string) (model.PublishResult, error)
}

// EngageResult summarizes one engagement pass on a platform.
type EngageResult struct {
	Liked    int
	Attempts int
	Failures int
}

// Engager searches a platform and likes matching posts. Failures of
// individual searches or likes are reported in EngageResult, not as errors.
type Engager interface {
	Platform() model.Platform
	Engage(ctx context.Context, max int) (EngageResult, error)
}

// Announcer posts an article announcement to a channel.
type Announcer interface {
	Announce(ctx context.Context, title, body, link string) (string, error)
}

// Sharer shares a link with commentary on a professional network.
type Sharer interface {
	Share(ctx context.Context, commentary, link string) (string, error)
}

// ContentExtractor returns the main text of the page at url. An empty
// Article means nothing qualified.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (model.Article, error)
}

// SessionStatus reports login state per account.
type SessionStatus interface {
	Status() map[string]bool
}
