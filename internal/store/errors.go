package store

import "errors"

// Sentinel errors for store lookups. Callers use errors.Is.
// A missing record at a point where it is required indicates a
// data-integrity problem and is surfaced, never silently retried.
var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrModelNotFound   = errors.New("model not found")
	ErrUserNotFound    = errors.New("user not found")
)
