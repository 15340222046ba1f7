// Package chat turns persisted conversation turns into the role-tagged
// history a model call consumes, and builds the per-turn system prompt.
package chat

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/wingleeio/chat-zeron/internal/event"
	"github.com/wingleeio/chat-zeron/internal/log"
	"github.com/wingleeio/chat-zeron/internal/store"
)

// MediaResolver maps a stored attachment key to a fetchable URL. A nil
// resolver means attachments are not replayed (the model lacks vision or
// no blob store is wired).
type MediaResolver func(key string) (string, error)

// Reconstruct rebuilds the flat message history for a model call from
// persisted turns, oldest first.
//
// Each turn yields one user entry, then at most one assistant entry, then
// at most one tool entry, so role order is always user, assistant, tool.
// The user entry carries the prompt plus any resolvable attachments; the
// assistant entry carries the turn's collected text followed by its
// tool calls in encounter order; the tool entry carries all results. A
// turn whose part sequence fails to parse degrades to its finalized plain
// text; the failure is logged, never fatal.
func Reconstruct(turns []*store.Message, media MediaResolver, logger log.Logger) []*ai.Message {
	history := make([]*ai.Message, 0, len(turns)*2)
	for _, turn := range turns {
		history = append(history, userEntry(turn, media, logger))

		assistant, tool, ok := rebuildResponse(turn, logger)
		if !ok {
			if turn.Content != nil && *turn.Content != "" {
				history = append(history, ai.NewModelTextMessage(*turn.Content))
			}
			continue
		}
		if assistant != nil {
			history = append(history, assistant)
		}
		if tool != nil {
			history = append(history, tool)
		}
	}
	return history
}

// userEntry builds a turn's user message: the prompt text plus one media
// part per attachment the resolver can produce a URL for. An attachment
// that fails to resolve is logged and skipped; the text always survives.
func userEntry(turn *store.Message, media MediaResolver, logger log.Logger) *ai.Message {
	if media == nil || len(turn.Files) == 0 {
		return ai.NewUserTextMessage(turn.Prompt)
	}
	content := []*ai.Part{ai.NewTextPart(turn.Prompt)}
	for _, key := range turn.Files {
		url, err := media(key)
		if err != nil {
			logger.Warn("attachment unresolvable, omitting from history",
				"message_id", turn.ID, "key", key, "error", err)
			continue
		}
		content = append(content, ai.NewMediaPart(mediaContentType(key), url))
	}
	return &ai.Message{Role: ai.RoleUser, Content: content}
}

// mediaContentType guesses a content type from the attachment key's
// extension. Unknown extensions are left blank for the provider to sniff.
func mediaContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	default:
		return ""
	}
}

// rebuildResponse reassembles a turn's assistant and tool entries from
// its persisted part sequence. ok is false when the turn has no parts or
// they fail to parse, signalling the plain-text fallback.
func rebuildResponse(turn *store.Message, logger log.Logger) (assistant, tool *ai.Message, ok bool) {
	if len(turn.Parts) == 0 {
		return nil, nil, false
	}
	parts, err := event.ParseParts(turn.Parts)
	if err != nil {
		logger.Warn("message parts unparseable, falling back to plain content",
			"message_id", turn.ID, "error", err)
		return nil, nil, false
	}

	var text string
	var calls, results []*ai.Part
	for _, p := range parts {
		switch p.Type {
		case event.PartText:
			text += p.Text
		case event.PartToolInvocation:
			inv := p.ToolInvocation
			calls = append(calls, ai.NewToolRequestPart(&ai.ToolRequest{
				Ref:   inv.ToolCallID,
				Name:  inv.ToolName,
				Input: rawToAny(inv.Args),
			}))
			if inv.State == event.ToolStateResult {
				results = append(results, ai.NewToolResponsePart(&ai.ToolResponse{
					Ref:    inv.ToolCallID,
					Name:   inv.ToolName,
					Output: rawToAny(inv.Result),
				}))
			}
		case event.PartReasoning:
			// Reasoning is display-only and not replayed to the model.
		}
	}

	var content []*ai.Part
	if text != "" {
		content = append(content, ai.NewTextPart(text))
	}
	content = append(content, calls...)
	if len(content) > 0 {
		assistant = &ai.Message{Role: ai.RoleModel, Content: content}
	}
	if len(results) > 0 {
		tool = &ai.Message{Role: ai.RoleTool, Content: results}
	}
	return assistant, tool, assistant != nil || tool != nil
}

// rawToAny decodes a stored JSON value for the model protocol. Stored
// payloads were validated at append time; a decode failure degrades to nil.
func rawToAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
