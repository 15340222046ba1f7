package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wingleeio/chat-zeron/internal/log"
	"github.com/wingleeio/chat-zeron/internal/store"
	"github.com/wingleeio/chat-zeron/internal/turn"
)

const defaultChatListLimit = 50

type handler struct {
	turns   Turns
	streams Streams
	store   Chats
	logger  log.Logger
}

type sendRequest struct {
	ChatID  *uuid.UUID `json:"chatId"`
	Prompt  string     `json:"prompt"`
	ModelID *uuid.UUID `json:"modelId"`
	Tool    *string    `json:"tool"`
	Files   []string   `json:"files"`
}

type sendResponse struct {
	ChatID    uuid.UUID `json:"chatId"`
	MessageID uuid.UUID `json:"messageId"`
	StreamID  uuid.UUID `json:"streamId"`
}

// sendPrompt submits a prompt and returns the identifiers a client needs
// to follow the generation.
func (h *handler) sendPrompt(w http.ResponseWriter, r *http.Request) {
	callerID, ok := userID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	msg, err := h.turns.SendPrompt(r.Context(), turn.SendParams{
		UserID:  callerID,
		ChatID:  req.ChatID,
		Prompt:  req.Prompt,
		ModelID: req.ModelID,
		Tool:    req.Tool,
		Files:   req.Files,
	})
	if err != nil {
		h.logger.Warn("send prompt failed", "user", callerID, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sendResponse{
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		StreamID:  msg.StreamID,
	})
}

func (h *handler) stopChat(w http.ResponseWriter, r *http.Request) {
	callerID, ok := userID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	chatID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	if err := h.turns.Stop(r.Context(), callerID, chatID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type branchRequest struct {
	MessageID uuid.UUID `json:"messageId"`
}

func (h *handler) branchChat(w http.ResponseWriter, r *http.Request) {
	callerID, ok := userID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	chatID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	var req branchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "message id is required")
		return
	}
	branch, err := h.turns.Branch(r.Context(), callerID, chatID, req.MessageID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChatResponse(branch))
}

type chatResponse struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Public        bool       `json:"public"`
	Status        string     `json:"status"`
	ParentChatID  *uuid.UUID `json:"parentChatId,omitempty"`
	LastMessageAt time.Time  `json:"lastMessageAt"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func toChatResponse(c *store.Chat) chatResponse {
	return chatResponse{
		ID:            c.ID,
		Title:         c.Title,
		Public:        c.Public,
		Status:        string(c.Status),
		ParentChatID:  c.ParentChatID,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}

func (h *handler) listChats(w http.ResponseWriter, r *http.Request) {
	callerID, ok := userID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	chats, err := h.store.ListChats(r.Context(), callerID, defaultChatListLimit)
	if err != nil {
		h.logger.Error("listing chats", "user", callerID, "error", err)
		writeDomainError(w, err)
		return
	}
	out := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		out = append(out, toChatResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

type messageResponse struct {
	ID        uuid.UUID       `json:"id"`
	Prompt    string          `json:"prompt"`
	Tool      *string         `json:"tool,omitempty"`
	Files     []string        `json:"files,omitempty"`
	StreamID  uuid.UUID       `json:"streamId"`
	Parts     json.RawMessage `json:"parts,omitempty"`
	Content   *string         `json:"content,omitempty"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type chatDetailResponse struct {
	chatResponse
	Messages []messageResponse `json:"messages"`
}

// getChat returns a chat with its messages. Owners see their own chats;
// anyone can read a public chat.
func (h *handler) getChat(w http.ResponseWriter, r *http.Request) {
	callerID, ok := userID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	chatID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	chatRec, err := h.store.GetChat(r.Context(), chatID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if chatRec.OwnerID != callerID && !chatRec.Public {
		// Indistinguishable from absent, so private chat ids leak nothing.
		writeError(w, http.StatusNotFound, store.ErrChatNotFound.Error())
		return
	}
	msgs, err := h.store.ListChatMessages(r.Context(), chatID)
	if err != nil {
		h.logger.Error("listing messages", "chat", chatID, "error", err)
		writeDomainError(w, err)
		return
	}
	detail := chatDetailResponse{chatResponse: toChatResponse(chatRec)}
	for _, m := range msgs {
		detail.Messages = append(detail.Messages, messageResponse{
			ID:        m.ID,
			Prompt:    m.Prompt,
			Tool:      m.Tool,
			Files:     m.Files,
			StreamID:  m.StreamID,
			Parts:     json.RawMessage(m.Parts),
			Content:   m.Content,
			Error:     m.Error,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handler) deleteChat(w http.ResponseWriter, r *http.Request) {
	callerID, ok := userID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	chatID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	chatRec, err := h.store.GetChat(r.Context(), chatID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if chatRec.OwnerID != callerID {
		writeError(w, http.StatusNotFound, store.ErrChatNotFound.Error())
		return
	}
	if err := h.store.DeleteChat(r.Context(), chatID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type modelResponse struct {
	ID           uuid.UUID `json:"id"`
	Slug         string    `json:"slug"`
	DisplayName  string    `json:"displayName"`
	Capabilities []string  `json:"capabilities"`
	Premium      bool      `json:"premium"`
}

func (h *handler) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.store.ListModels(r.Context())
	if err != nil {
		h.logger.Error("listing models", "error", err)
		writeDomainError(w, err)
		return
	}
	out := make([]modelResponse, 0, len(models))
	for _, m := range models {
		out = append(out, modelResponse{
			ID:           m.ID,
			Slug:         m.Slug,
			DisplayName:  m.DisplayName,
			Capabilities: m.Capabilities,
			Premium:      m.Premium,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
