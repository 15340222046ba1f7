package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/wingleeio/chat-zeron/internal/chat"
	"github.com/wingleeio/chat-zeron/internal/event"
	"github.com/wingleeio/chat-zeron/internal/llm"
	"github.com/wingleeio/chat-zeron/internal/log"
	"github.com/wingleeio/chat-zeron/internal/store"
	"github.com/wingleeio/chat-zeron/internal/stream"
	"github.com/wingleeio/chat-zeron/internal/tools"
)

// Internal driver signals, returned from the emit callback to abort the
// model call. Neither escapes the package.
var (
	errStopped     = errors.New("generation stopped by user")
	errChatDeleted = errors.New("chat deleted mid-generation")
)

// finalizeTimeout bounds the persistence work after a generation ends,
// including the case where the server itself is shutting down.
const finalizeTimeout = 10 * time.Second

// run drives one generation to completion on the controller's background
// context. It never returns an error; every outcome is persisted and
// logged here.
func (c *Controller) run(user *store.User, chatRec *store.Chat, msg *store.Message, model *store.Model, requested *tools.Kind, isNewChat bool) {
	ctx, cancel := context.WithCancel(c.bgCtx)
	defer cancel()

	logger := c.logger.With("chat", chatRec.ID, "message", msg.ID, "stream", msg.StreamID)
	streamID := msg.StreamID.String()

	if err := c.cfg.Store.UpdateChatStatus(ctx, chatRec.ID, store.StatusStreaming); err != nil {
		logger.Error("marking chat streaming", "error", err)
		c.failTurn(streamID, msg.ID, err, logger)
		return
	}

	history, err := c.buildHistory(ctx, chatRec.ID, model, logger)
	if err != nil {
		logger.Error("reconstructing history", "error", err)
		c.failTurn(streamID, msg.ID, err, logger)
		if err := c.cfg.Store.UpdateChatStatus(ctx, chatRec.ID, store.StatusReady); err != nil {
			logger.Error("marking chat ready after failure", "error", err)
		}
		return
	}

	acct := &tools.Accounting{}
	var forwarded []event.Frame

	emit := func(f event.Frame) error {
		// The terminal control frame ends forwarding without being
		// appended to the durable stream.
		if f.Terminal() {
			return nil
		}
		if err := c.cfg.Publisher.Append(ctx, streamID, f); err != nil {
			return fmt.Errorf("appending frame: %w", err)
		}
		forwarded = append(forwarded, f)
		if len(forwarded)%c.cfg.CancelPollFrames == 0 {
			if err := c.checkCancelled(ctx, chatRec.ID); err != nil {
				return err
			}
		}
		return nil
	}

	rt := &tools.Runtime{
		User:    user,
		Message: msg,
		Guard:   c.cfg.Guard,
		Acct:    acct,
		Emit: func(f event.Frame) error {
			if err := c.cfg.Publisher.Append(ctx, streamID, f); err != nil {
				return fmt.Errorf("appending annotation: %w", err)
			}
			return nil
		},
		Logger: logger,
	}
	ctx = tools.ContextWithRuntime(ctx, rt)

	result, genErr := c.cfg.Generator.Stream(ctx, llm.StreamRequest{
		ModelName:   model.Name(),
		System:      chat.SystemPrompt(user, time.Now()),
		Messages:    history,
		Tools:       c.cfg.Tools.ForModel(model, requested),
		Temperature: c.cfg.Temperature,
		MaxTurns:    c.cfg.MaxTurns,
	}, emit)

	// Finalization must complete even when cancellation or shutdown
	// killed the generation context.
	fctx, fcancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer fcancel()

	switch {
	case genErr == nil:
		c.finalize(fctx, user, msg, forwarded, result, acct, logger)
	case errors.Is(genErr, errStopped) || errors.Is(genErr, context.Canceled):
		logger.Info("generation stopped", "frames", len(forwarded))
		c.finalize(fctx, user, msg, forwarded, nil, acct, logger)
	case errors.Is(genErr, errChatDeleted):
		logger.Info("chat deleted mid-generation")
		if err := c.cfg.Publisher.Finish(fctx, streamID, stream.StatusError); err != nil && !errors.Is(err, stream.ErrFinished) {
			logger.Error("finishing stream", "error", err)
		}
		return
	default:
		logger.Error("generation failed", "error", genErr)
		c.failTurn(streamID, msg.ID, genErr, logger)
		if err := c.cfg.Store.UpdateChatStatus(fctx, chatRec.ID, store.StatusReady); err != nil {
			logger.Error("marking chat ready after failure", "error", err)
		}
		return
	}

	if err := c.cfg.Store.UpdateChatStatus(fctx, chatRec.ID, store.StatusReady); err != nil {
		logger.Error("marking chat ready", "error", err)
	}
	if isNewChat {
		c.generateTitle(fctx, chatRec.ID, msg.Prompt, logger)
	}
}

// buildHistory loads the chat's turns, oldest first, and reconstructs
// the model history. The freshly inserted turn has no response yet and
// contributes only its trailing user entry. Attachments are replayed
// only when the model can see them and a blob store is wired.
func (c *Controller) buildHistory(ctx context.Context, chatID uuid.UUID, model *store.Model, logger log.Logger) ([]*ai.Message, error) {
	turns, err := c.cfg.Store.ListChatMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	var media chat.MediaResolver
	if c.cfg.Blobs != nil && model.Supports(store.CapabilityVision) {
		media = func(key string) (string, error) {
			return c.cfg.Blobs.URL(ctx, key)
		}
	}
	return chat.Reconstruct(turns, media, logger), nil
}

// checkCancelled re-reads the chat's status. A chat reset to ready means
// the user pressed stop; a missing chat means it was deleted under us.
func (c *Controller) checkCancelled(ctx context.Context, chatID uuid.UUID) error {
	current, err := c.cfg.Store.GetChat(ctx, chatID)
	if errors.Is(err, store.ErrChatNotFound) {
		return errChatDeleted
	}
	if err != nil {
		// A transient read failure should not kill the generation.
		c.logger.Warn("cancellation poll failed", "chat", chatID, "error", err)
		return nil
	}
	if current.Status == store.StatusReady {
		return errStopped
	}
	return nil
}

// finalize persists the turn's outcome: structured parts re-parsed from
// the forwarded frames, the plain text kept independently, accumulated
// usage, and the stream's terminal status. A nil result means the
// generation was cancelled; the text forwarded so far stands.
func (c *Controller) finalize(ctx context.Context, user *store.User, msg *store.Message, frames []event.Frame, result *llm.Result, acct *tools.Accounting, logger log.Logger) {
	streamID := msg.StreamID.String()

	if parts, err := event.PartsFromFrames(frames); err != nil {
		logger.Error("re-parsing frames", "error", err)
	} else if raw, err := event.SerializeParts(parts); err != nil {
		logger.Error("serializing parts", "error", err)
	} else if err := c.cfg.Store.SetMessageParts(ctx, msg.ID, raw); err != nil {
		logger.Error("persisting parts", "error", err)
	}

	// Plain text is persisted independently of the structured parse so
	// history reconstruction has a fallback.
	text := event.TextFromFrames(frames)
	if result != nil && result.Text != "" {
		text = result.Text
	}
	if err := c.cfg.Store.SetMessageContent(ctx, msg.ID, text); err != nil {
		logger.Error("persisting content", "error", err)
	}

	usage, toolCost := acct.Totals()
	if result != nil {
		usage.Add(result.Usage)
	}
	if err := c.cfg.Store.SetMessageUsage(ctx, msg.ID, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, toolCost); err != nil {
		logger.Error("persisting usage", "error", err)
	}
	if toolCost > 0 {
		if err := c.cfg.Store.AddCreditsUsed(ctx, user.ID, toolCost); err != nil {
			logger.Error("incrementing credits used", "error", err)
		}
	}

	if err := c.cfg.Publisher.Finish(ctx, streamID, stream.StatusDone); err != nil && !errors.Is(err, stream.ErrFinished) {
		logger.Error("finishing stream", "error", err)
	}
}

// failTurn records a generation failure on the message and ends the
// stream with an error status.
func (c *Controller) failTurn(streamID string, msgID uuid.UUID, cause error, logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := c.cfg.Store.SetMessageError(ctx, msgID, cause.Error()); err != nil {
		logger.Error("persisting message error", "error", err)
	}
	frame := event.NewErrorFrame("Something went wrong while generating a response.")
	if err := c.cfg.Publisher.Append(ctx, streamID, frame); err != nil && !errors.Is(err, stream.ErrFinished) {
		logger.Error("appending error frame", "error", err)
	}
	if err := c.cfg.Publisher.Finish(ctx, streamID, stream.StatusError); err != nil && !errors.Is(err, stream.ErrFinished) {
		logger.Error("finishing stream", "error", err)
	}
}

// titleInputMaxRunes bounds the prompt excerpt sent for title generation.
const titleInputMaxRunes = 400

// generateTitle names a new chat after its first prompt. Failures fall
// back to a truncated prompt; a chat is never left untitled.
func (c *Controller) generateTitle(ctx context.Context, chatID uuid.UUID, prompt string, logger log.Logger) {
	input := prompt
	if runes := []rune(input); len(runes) > titleInputMaxRunes {
		input = string(runes[:titleInputMaxRunes]) + "..."
	}

	title := ""
	if c.cfg.TitleModel != "" {
		result, err := c.cfg.Generator.Stream(ctx, llm.StreamRequest{
			ModelName: c.cfg.TitleModel,
			System: "Write a concise title, at most six words, for a conversation " +
				"that starts with the user message below. Reply with the title only, " +
				"no quotes or punctuation around it.",
			Messages:    []*ai.Message{ai.NewUserTextMessage(input)},
			Temperature: 0.3,
			MaxTurns:    1,
		}, nil)
		if err != nil {
			logger.Debug("title generation failed, using truncated prompt", "error", err)
		} else {
			title = strings.TrimSpace(result.Text)
		}
	}
	if title == "" {
		title = fallbackTitle(prompt)
	}
	if err := c.cfg.Store.SetChatTitle(ctx, chatID, title); err != nil {
		logger.Error("setting chat title", "error", err)
	}
}

// fallbackTitle derives a title from the prompt's first line.
func fallbackTitle(prompt string) string {
	line := prompt
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	const maxRunes = 80
	if runes := []rune(line); len(runes) > maxRunes {
		line = string(runes[:maxRunes]) + "..."
	}
	if line == "" {
		line = "New chat"
	}
	return line
}
