package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wingleeio/chat-zeron/internal/event"
	"github.com/wingleeio/chat-zeron/internal/stream"
)

// followStream serves a durable stream over SSE: it replays everything
// already published, then follows live output until the stream reaches a
// terminal status or the client disconnects. Any number of clients can
// follow the same stream; reading never re-triggers generation.
func (h *handler) followStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "stream id is required")
		return
	}

	if _, err := h.streams.Status(r.Context(), id); err != nil {
		if errors.Is(err, stream.ErrNotFound) {
			writeError(w, http.StatusNotFound, "stream not found")
			return
		}
		h.logger.Error("reading stream status", "stream", id, "error", err)
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	frames, err := h.streams.Follow(r.Context(), id)
	if err != nil {
		h.logger.Error("following stream", "stream", id, "error", err)
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frame := range frames {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", frame.Encode()); err != nil {
			return
		}
		flusher.Flush()
	}

	// The terminal control frame is synthesized from the stream's final
	// status; it is never part of the durable stream itself.
	status, err := h.streams.Status(r.Context(), id)
	if err != nil {
		return
	}
	if reason, terminal := finishReason(status); terminal {
		frame := event.NewFinishFrame(reason, event.Usage{})
		fmt.Fprintf(w, "data: %s\n\n", frame.Encode())
		flusher.Flush()
	}
}

func finishReason(s stream.Status) (string, bool) {
	switch s {
	case stream.StatusDone:
		return "stop", true
	case stream.StatusError:
		return "error", true
	case stream.StatusTimeout:
		return "timeout", true
	default:
		return "", false
	}
}
