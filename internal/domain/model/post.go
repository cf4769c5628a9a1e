package model

import "time"

type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformBluesky  Platform = "bsky"
	PlatformLinkedIn Platform = "linkedin"
	PlatformTelegram Platform = "telegram"
)

type PostKind string

const (
	PostKindOriginal PostKind = "original"
	PostKindFollowup PostKind = "followup"
)

type PostState string

const (
	PostStatePending    PostState = "pending"
	PostStatePublishing PostState = "publishing"
	PostStatePublished  PostState = "published"
	PostStateFailed     PostState = "failed"
)

// Post is a ledger entry for one piece of text bound for one platform.
type Post struct {
	ID          string
	Row         int
	URL         string
	TweetIndex  int
	Platform    Platform
	Kind        PostKind
	Text        string
	State       PostState
	ScheduledAt *time.Time
	PublishedAt *time.Time
	RemoteID    string
	RemoteCID   string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *Post) MarkPublished(res PublishResult, at time.Time) {
	p.State = PostStatePublished
	p.RemoteID = res.ID
	p.RemoteCID = res.CID
	p.PublishedAt = &at
	p.Attempts++
	p.LastError = ""
	p.UpdatedAt = at
}

func (p *Post) MarkFailed(err error, at time.Time) {
	p.State = PostStateFailed
	p.Attempts++
	if err != nil {
		p.LastError = err.Error()
	}
	p.UpdatedAt = at
}

// PublishResult identifies a published post on the remote platform.
type PublishResult struct {
	ID  string
	CID string
	URL string
}
