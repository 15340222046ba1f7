package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wingleeio/chat-zeron/internal/store"
	"github.com/wingleeio/chat-zeron/internal/turn"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError maps domain sentinels onto HTTP statuses. Anything
// unrecognized is a 500 with a generic body; the cause is logged by the
// caller, never leaked.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrChatNotFound),
		errors.Is(err, store.ErrMessageNotFound),
		errors.Is(err, store.ErrModelNotFound),
		errors.Is(err, store.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, turn.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, turn.ErrChatBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, turn.ErrPremiumModel), errors.Is(err, turn.ErrNoModel):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
