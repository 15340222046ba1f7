// Package stream implements the durable, resumable output stream.
//
// A stream is an append-only sequence of wire frames keyed by an opaque
// stream id, with a status that moves pending -> streaming -> one of the
// terminal states (done, error, timeout). Once terminal, appends are
// rejected; any number of readers can replay what was published and then
// follow live output without affecting the writer.
package stream

import "errors"

// Status is the lifecycle state of a durable stream.
type Status string

// Stream statuses. Done, error, and timeout are terminal.
const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
)

// Terminal reports whether the status permits no further appends.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusError, StatusTimeout:
		return true
	case StatusPending, StatusStreaming:
		return false
	default:
		return false
	}
}

// Sentinel errors for stream operations.
var (
	// ErrFinished indicates an append or finish against a stream whose
	// status is already terminal. Published content is unaffected.
	ErrFinished = errors.New("stream already finished")

	// ErrNotFound indicates the stream id has never been created.
	ErrNotFound = errors.New("stream not found")
)
