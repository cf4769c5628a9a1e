package model

import (
	"strconv"
	"strings"
	"time"
)

type Stage string

const (
	StageBatchRetrieval    Stage = "batch_retrieval"
	StageExtractContent    Stage = "extract_content"
	StagePostTelegram      Stage = "post_to_telegram"
	StageGenerateTweets    Stage = "generate_tweets"
	StageStoreTweets       Stage = "store_tweets"
	StagePostTwitter       Stage = "post_to_twitter"
	StagePostBluesky       Stage = "post_to_bsky"
	StagePostLinkedIn      Stage = "post_to_linkedin"
	StageEngagePosts       Stage = "engage_posts"
	StageScheduleFollowups Stage = "schedule_followups"
	StageCompletion        Stage = "completion"
)

// Sheet column headers.
const (
	ColID           = "id"
	ColURL          = "url"
	ColStatus       = "status"
	ColError        = "error"
	ColTweets       = "tweets"
	ColLastUpdateTS = "last_update_ts"
	ColProcessingTS = "processing_ts"
)

type stageColumns struct {
	ts    string
	retry string
}

var columnsByStage = map[Stage]stageColumns{
	StageBatchRetrieval:    {ts: ColProcessingTS},
	StageExtractContent:    {ts: "content_ts", retry: "retry_count_content"},
	StagePostTelegram:      {ts: "telegram_ts", retry: "retry_count_telegram"},
	StageGenerateTweets:    {ts: "generate_ts", retry: "retry_count_generate"},
	StageStoreTweets:       {ts: "store_ts", retry: "retry_count_store"},
	StagePostTwitter:       {ts: "post_ts", retry: "retry_count_post"},
	StagePostBluesky:       {ts: "bsky_ts", retry: "retry_count_bsky"},
	StagePostLinkedIn:      {ts: "linkedin_ts", retry: "retry_count_linkedin"},
	StageEngagePosts:       {ts: "engagement_ts", retry: "retry_count_engagement"},
	StageScheduleFollowups: {ts: "followup_scheduled_ts", retry: "retry_count_followup"},
	StageCompletion:        {ts: ColLastUpdateTS},
}

// TimestampColumn returns the column recording when s last touched a row.
func (s Stage) TimestampColumn() string { return columnsByStage[s].ts }

// RetryColumn returns the retry counter column of s, or "" when s keeps none.
func (s Stage) RetryColumn() string { return columnsByStage[s].retry }

// ResultColumn returns the column a publishing stage writes its outcome to.
func (p Platform) ResultColumn() string { return string(p) + "_result" }

// WorkItem is one spreadsheet row.
type WorkItem struct {
	Row    int // 1-based sheet row; the header occupies row 1
	URL    string
	Status Status
	Cells  map[string]string
}

// NewWorkItem builds a WorkItem from a header-keyed record read at row.
func NewWorkItem(row int, cells map[string]string) (*WorkItem, error) {
	st, err := ParseStatus(cells[ColStatus], cells[ColError])
	if err != nil {
		return nil, err
	}
	item := &WorkItem{
		Row:    row,
		URL:    strings.TrimSpace(cells[ColURL]),
		Status: st,
		Cells:  cells,
	}
	if st.IsError() {
		item.Status.RetryCount = item.MaxRetries()
	}
	return item, nil
}

// Eligible reports whether the row can be claimed by batch retrieval.
func (w *WorkItem) Eligible() bool {
	return w.Status.IsPending() && w.URL != ""
}

// Retries returns the retry counter of stage. Empty or non-numeric
// counters read as 0.
func (w *WorkItem) Retries(stage Stage) int {
	col := stage.RetryColumn()
	if col == "" || w.Cells == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(w.Cells[col]))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// MaxRetries returns the highest retry counter over all stages.
func (w *WorkItem) MaxRetries() int {
	max := 0
	for s := range columnsByStage {
		if n := w.Retries(s); n > max {
			max = n
		}
	}
	return max
}

// Apply mirrors a written update into the in-memory cells.
func (w *WorkItem) Apply(u RowUpdate) {
	if w.Cells == nil {
		w.Cells = make(map[string]string, len(u))
	}
	for k, v := range u {
		w.Cells[k] = v
	}
	if raw, ok := u[ColStatus]; ok {
		if st, err := ParseStatus(raw, u[ColError]); err == nil {
			if st.IsError() {
				st.RetryCount = w.MaxRetries()
			}
			w.Status = st
		}
	}
}

// RowUpdate maps column headers to new cell values.
type RowUpdate map[string]string

// SetStatus writes the status column and keeps the error column in step.
func (u RowUpdate) SetStatus(s Status) RowUpdate {
	u[ColStatus] = s.String()
	if s.IsError() {
		u[ColError] = s.Reason
	} else {
		u[ColError] = ""
	}
	return u
}

// Touch writes the timestamp column of stage.
func (u RowUpdate) Touch(stage Stage, at time.Time) RowUpdate {
	if col := stage.TimestampColumn(); col != "" {
		u[col] = FormatTimestamp(at)
	}
	return u
}

// SetRetries writes the retry counter of stage.
func (u RowUpdate) SetRetries(stage Stage, n int) RowUpdate {
	if col := stage.RetryColumn(); col != "" {
		u[col] = strconv.Itoa(n)
	}
	return u
}

// FormatTimestamp renders timestamps the way the sheet stores them.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
