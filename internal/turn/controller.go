// Package turn orchestrates one chat turn end to end: it validates the
// request, persists the message, drives the model, forwards frames into
// the durable stream, watches for stop requests, and finalizes chat and
// message state.
package turn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/wingleeio/chat-zeron/internal/event"
	"github.com/wingleeio/chat-zeron/internal/llm"
	"github.com/wingleeio/chat-zeron/internal/log"
	"github.com/wingleeio/chat-zeron/internal/store"
	"github.com/wingleeio/chat-zeron/internal/stream"
	"github.com/wingleeio/chat-zeron/internal/tools"
)

// Sentinel errors surfaced to the API layer.
var (
	// ErrChatBusy rejects a prompt while the chat already has an
	// in-flight generation.
	ErrChatBusy = errors.New("chat has a generation in flight")

	// ErrNotOwner rejects operations on a chat the caller does not own.
	ErrNotOwner = errors.New("chat not owned by caller")

	// ErrPremiumModel rejects a premium model selected by a free user.
	ErrPremiumModel = errors.New("model requires a premium plan")

	// ErrNoModel indicates neither the request nor the user's account
	// names a model.
	ErrNoModel = errors.New("no model selected")
)

// Storage is the persistence surface the controller consumes.
type Storage interface {
	GetUser(ctx context.Context, id uuid.UUID) (*store.User, error)
	AddCreditsUsed(ctx context.Context, id uuid.UUID, delta int) error

	GetModel(ctx context.Context, id uuid.UUID) (*store.Model, error)

	CreateChat(ctx context.Context, c *store.Chat) error
	GetChat(ctx context.Context, id uuid.UUID) (*store.Chat, error)
	UpdateChatStatus(ctx context.Context, id uuid.UUID, status store.ChatStatus) error
	SetChatTitle(ctx context.Context, id uuid.UUID, title string) error

	CreateMessage(ctx context.Context, m *store.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*store.Message, error)
	ListChatMessages(ctx context.Context, chatID uuid.UUID) ([]*store.Message, error)
	CopyMessagesUpTo(ctx context.Context, srcChatID, dstChatID, ownerID uuid.UUID, cutoff time.Time) (int64, error)
	SetMessageParts(ctx context.Context, id uuid.UUID, parts []byte) error
	SetMessageContent(ctx context.Context, id uuid.UUID, content string) error
	SetMessageError(ctx context.Context, id uuid.UUID, msg string) error
	SetMessageUsage(ctx context.Context, id uuid.UUID, promptTokens, completionTokens, totalTokens, toolCost int) error
}

// Publisher is the durable-stream surface the controller consumes.
type Publisher interface {
	Create(ctx context.Context, id string) error
	Append(ctx context.Context, id string, frame event.Frame) error
	Finish(ctx context.Context, id string, status stream.Status) error
}

// Generator runs one model generation. Satisfied by llm.Client.
type Generator interface {
	Stream(ctx context.Context, req llm.StreamRequest, emit llm.EmitFunc) (*llm.Result, error)
}

// ToolResolver resolves the tool set for a turn. Satisfied by
// tools.Registry.
type ToolResolver interface {
	ForModel(model *store.Model, requested *tools.Kind) []ai.ToolRef
}

// BlobResolver produces fetchable URLs for stored attachment keys.
// Satisfied by blob.Store implementations.
type BlobResolver interface {
	URL(ctx context.Context, key string) (string, error)
}

// Config holds the controller's dependencies and tuning.
type Config struct {
	Store     Storage
	Publisher Publisher
	Generator Generator
	Tools     ToolResolver
	Guard     *tools.CreditGuard

	// Blobs resolves message attachments for vision-capable models.
	// Optional; without it attachments are accepted but not replayed.
	Blobs BlobResolver

	// Temperature and MaxTurns configure chat generations.
	Temperature float64
	MaxTurns    int

	// TitleModel generates titles for new chats.
	TitleModel string

	// CancelPollFrames is how many forwarded frames pass between chat
	// status re-reads while streaming.
	CancelPollFrames int

	Logger log.Logger
}

func (cfg Config) validate() error {
	if cfg.Store == nil {
		return fmt.Errorf("store is required")
	}
	if cfg.Publisher == nil {
		return fmt.Errorf("publisher is required")
	}
	if cfg.Generator == nil {
		return fmt.Errorf("generator is required")
	}
	if cfg.Tools == nil {
		return fmt.Errorf("tool resolver is required")
	}
	if cfg.Guard == nil {
		return fmt.Errorf("credit guard is required")
	}
	if cfg.CancelPollFrames < 1 {
		return fmt.Errorf("cancel poll frames must be positive")
	}
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// Controller coordinates chat turns. Generations run on a background
// context owned by the controller so they outlive the submitting HTTP
// request; Close waits for them to drain.
type Controller struct {
	cfg    Config
	logger log.Logger

	bgCtx  context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a controller.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	bgCtx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "turn"),
		bgCtx:  bgCtx,
		cancel: cancel,
	}, nil
}

// Close aborts in-flight generations and waits for them to finalize.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

// SendParams describes one prompt submission.
type SendParams struct {
	UserID  uuid.UUID
	ChatID  *uuid.UUID
	Prompt  string
	ModelID *uuid.UUID
	Tool    *string

	// Files holds storage keys of attachments uploaded out of band.
	Files []string
}

// SendPrompt validates the submission, persists the message with a fresh
// stream id, and starts the generation in the background. The returned
// message carries the stream id clients follow.
func (c *Controller) SendPrompt(ctx context.Context, p SendParams) (*store.Message, error) {
	if p.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	var requested *tools.Kind
	if p.Tool != nil {
		kind, err := tools.ParseKind(*p.Tool)
		if err != nil {
			return nil, err
		}
		requested = &kind
	}

	user, err := c.cfg.Store.GetUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	model, err := c.resolveModel(ctx, user, p.ModelID)
	if err != nil {
		return nil, err
	}

	chat, isNew, err := c.resolveChat(ctx, user, p.ChatID)
	if err != nil {
		return nil, err
	}

	msg := &store.Message{
		ChatID:  chat.ID,
		OwnerID: user.ID,
		Prompt:  p.Prompt,
		ModelID: model.ID,
		Tool:    p.Tool,
		Files:   p.Files,
	}
	if err := c.cfg.Store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := c.cfg.Publisher.Create(ctx, msg.StreamID.String()); err != nil {
		return nil, fmt.Errorf("creating stream: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(user, chat, msg, model, requested, isNew)
	}()
	return msg, nil
}

// resolveModel picks the requested model or falls back to the user's
// default, enforcing the premium gate.
func (c *Controller) resolveModel(ctx context.Context, user *store.User, modelID *uuid.UUID) (*store.Model, error) {
	id := modelID
	if id == nil {
		id = user.DefaultModelID
	}
	if id == nil {
		return nil, ErrNoModel
	}
	model, err := c.cfg.Store.GetModel(ctx, *id)
	if err != nil {
		return nil, err
	}
	if !model.Enabled {
		return nil, store.ErrModelNotFound
	}
	if model.Premium && !user.Premium {
		return nil, ErrPremiumModel
	}
	return model, nil
}

// resolveChat loads an existing chat (owner-checked, must be idle) and
// marks it submitted, or creates a fresh one.
func (c *Controller) resolveChat(ctx context.Context, user *store.User, chatID *uuid.UUID) (*store.Chat, bool, error) {
	if chatID == nil {
		chat := &store.Chat{OwnerID: user.ID}
		if err := c.cfg.Store.CreateChat(ctx, chat); err != nil {
			return nil, false, err
		}
		return chat, true, nil
	}
	chat, err := c.cfg.Store.GetChat(ctx, *chatID)
	if err != nil {
		return nil, false, err
	}
	if chat.OwnerID != user.ID {
		return nil, false, ErrNotOwner
	}
	if chat.Status != store.StatusReady {
		return nil, false, ErrChatBusy
	}
	if err := c.cfg.Store.UpdateChatStatus(ctx, chat.ID, store.StatusSubmitted); err != nil {
		return nil, false, err
	}
	chat.Status = store.StatusSubmitted
	return chat, false, nil
}

// Stop requests cancellation of a chat's in-flight generation by
// resetting its status to ready; the driver observes the reset at its
// next poll. Stopping an already idle chat is a no-op.
func (c *Controller) Stop(ctx context.Context, userID, chatID uuid.UUID) error {
	chat, err := c.cfg.Store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.OwnerID != userID {
		return ErrNotOwner
	}
	if chat.Status == store.StatusReady {
		return nil
	}
	return c.cfg.Store.UpdateChatStatus(ctx, chatID, store.StatusReady)
}

// Branch forks a chat at a message: a new private chat owned by the
// caller containing every message created at or before the fork point.
// Branching requires ownership or a public source chat.
func (c *Controller) Branch(ctx context.Context, userID, chatID, messageID uuid.UUID) (*store.Chat, error) {
	chat, err := c.cfg.Store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.OwnerID != userID && !chat.Public {
		return nil, ErrNotOwner
	}
	msg, err := c.cfg.Store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ChatID != chatID {
		return nil, store.ErrMessageNotFound
	}

	branch := &store.Chat{
		OwnerID:         userID,
		Title:           chat.Title,
		Public:          false,
		Status:          store.StatusReady,
		ParentChatID:    &chatID,
		ParentMessageID: &messageID,
	}
	if err := c.cfg.Store.CreateChat(ctx, branch); err != nil {
		return nil, err
	}
	copied, err := c.cfg.Store.CopyMessagesUpTo(ctx, chatID, branch.ID, userID, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("branching chat %s: %w", chatID, err)
	}
	c.logger.Info("branched chat", "source", chatID, "branch", branch.ID, "messages", copied)
	return branch, nil
}
