package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidURL         = errors.New("invalid url")
	ErrInvalidStatus      = errors.New("invalid status value")
	ErrNoContent          = errors.New("no content extracted")
	ErrNoTweets           = errors.New("no tweets generated")
	ErrLockBusy           = errors.New("lock is held by another process")
	ErrNotLoggedIn        = errors.New("session is not logged in")
	ErrSelectorNotFound   = errors.New("no selector strategy matched")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrPublishFailed      = errors.New("publish failed")
	ErrNoPublisher        = errors.New("no publisher for platform")
	ErrUnknownProvider    = errors.New("unknown llm provider")
	ErrInvalidExecContext = errors.New("invalid db execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
