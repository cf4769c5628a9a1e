package usecase

import (
	"time"

	"social-pipeline/internal/domain/model"
)

// State is threaded through the stages of one workflow run.
type State struct {
	RunID     string
	StartedAt time.Time

	Rows    []*model.WorkItem
	Current *model.WorkItem
	Article model.Article
	Tweets  []model.Tweet
	Posts   []*model.Post

	Error       string
	FailedStage model.Stage

	Posted             bool
	PostedToBsky       bool
	PostedToLinkedIn   bool
	PostedToTelegram   bool
	Stored             bool
	Engaged            bool
	EngagementOnly     bool
	FollowupsScheduled bool
	Done               bool

	ItemsProcessed int
	Failures       int

	engagementDone bool
}

func newState(runID string, at time.Time) *State {
	return &State{RunID: runID, StartedAt: at}
}

func (s *State) fail(stage model.Stage, err error) {
	s.Error = err.Error()
	s.FailedStage = stage
}

// nextItem clears per-item fields before the next claimed row is processed.
func (s *State) nextItem() {
	s.Current = nil
	s.Article = model.Article{}
	s.Tweets = nil
	s.Posts = nil
	s.Error = ""
	s.FailedStage = ""
	s.Posted, s.PostedToBsky, s.PostedToLinkedIn, s.PostedToTelegram = false, false, false, false
	s.Stored, s.FollowupsScheduled, s.Done = false, false, false
}

// Mode is "engagement" for runs that found nothing to claim.
func (s *State) Mode() string {
	if s.EngagementOnly {
		return "engagement"
	}
	return "content"
}

// RunSummary is the externally visible outcome of a run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Items      int       `json:"items"`
	Failures   int       `json:"failures"`
	Engaged    bool      `json:"engaged"`
	LastError  string    `json:"last_error,omitempty"`
	Followups  int       `json:"followups_published"`
}
