package model

import (
	"fmt"
	"strings"

	"social-pipeline/internal/domain"
)

type StatusKind int

const (
	StatusPending StatusKind = iota
	StatusInProgress
	StatusComplete
	StatusError
)

// Status is the lifecycle state of a WorkItem. Only Error carries a reason
// and the retry count of the stage that failed.
type Status struct {
	Kind       StatusKind
	Reason     string
	RetryCount int
}

func Pending() Status    { return Status{Kind: StatusPending} }
func InProgress() Status { return Status{Kind: StatusInProgress} }
func Complete() Status   { return Status{Kind: StatusComplete} }

func Failed(reason string, retryCount int) Status {
	return Status{Kind: StatusError, Reason: reason, RetryCount: retryCount}
}

func (s Status) IsPending() bool { return s.Kind == StatusPending }
func (s Status) IsError() bool   { return s.Kind == StatusError }

// String returns the value written to the status column.
func (s Status) String() string {
	switch s.Kind {
	case StatusInProgress:
		return "in_progress"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// ParseStatus converts a status cell into a Status. reason is the content
// of the error column and only used for the Error variant.
func ParseStatus(raw, reason string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pending":
		return Pending(), nil
	case "in_progress", "processing", "tweets_stored":
		return InProgress(), nil
	case "complete", "completed", "posted":
		return Complete(), nil
	case "error":
		return Failed(strings.TrimSpace(reason), 0), nil
	}
	return Status{}, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, raw)
}

// IsStatusWord reports whether s is one of the values the status column uses.
func IsStatusWord(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "in_progress", "complete", "error":
		return true
	}
	return false
}
