package session

import "errors"

var (
	// ErrNotFound is returned when a session id has no matching row.
	ErrNotFound = errors.New("session: not found")
	// ErrAlreadyCompleted is returned by operations on a completed session.
	ErrAlreadyCompleted = errors.New("session: already completed")
	// ErrInvalidGrade is returned when a submitted grade is outside [0,3].
	ErrInvalidGrade = errors.New("session: invalid grade")
	// ErrInvalidItem is returned when the submitted node has no unanswered
	// item in the session's plan, or when an ad-hoc queue is exhausted.
	ErrInvalidItem = errors.New("session: invalid item")
)
