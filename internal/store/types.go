// Package store persists chats, messages, models, and users in PostgreSQL.
//
// Every mutation targets a single row through an atomic statement; the
// design never needs multi-row transactions. Chat recency is maintained by
// a database trigger on message insert.
package store

import (
	"time"

	"github.com/google/uuid"
)

// ChatStatus is the lifecycle state of a chat.
// A chat is submitted or streaming for at most the duration of one
// in-flight generation and ready otherwise.
type ChatStatus string

// Chat lifecycle states. This set is closed.
const (
	StatusSubmitted ChatStatus = "submitted"
	StatusStreaming ChatStatus = "streaming"
	StatusReady     ChatStatus = "ready"
)

// Capability names a model feature advertised by the catalog.
type Capability string

// Known model capabilities.
const (
	CapabilityTools  Capability = "tools"
	CapabilityVision Capability = "vision"
)

// Chat is a conversation thread.
type Chat struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	Title           string
	Public          bool
	Status          ChatStatus
	ParentChatID    *uuid.UUID
	ParentMessageID *uuid.UUID
	LastMessageAt   time.Time
	CreatedAt       time.Time
}

// Message is one turn: a user prompt plus its eventual assistant response.
// Parts holds the serialized UI event sequence; Content is the finalized
// plain text kept independently as a fallback for history reconstruction.
type Message struct {
	ID               uuid.UUID
	ChatID           uuid.UUID
	OwnerID          uuid.UUID
	Prompt           string
	ModelID          uuid.UUID
	Tool             *string
	Files            []string
	StreamID         uuid.UUID
	Parts            []byte
	Content          *string
	Error            *string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ToolCost         int
	CreatedAt        time.Time
}

// Model is a catalog entry describing a selectable backend.
// Read-only from the core's perspective; maintained by seeding.
type Model struct {
	ID           uuid.UUID
	Slug         string
	DisplayName  string
	Provider     string
	ModelID      string
	Capabilities []string
	CostWeight   int
	Premium      bool
	Enabled      bool
}

// Supports reports whether the model advertises a capability.
func (m *Model) Supports(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == string(c) {
			return true
		}
	}
	return false
}

// Name returns the provider-qualified model name for generation calls.
func (m *Model) Name() string {
	return m.Provider + "/" + m.ModelID
}

// User is the slice of the account record the core consumes: identity,
// model preference, credit usage, and the preference text injected into
// the system prompt.
type User struct {
	ID             uuid.UUID
	Name           string
	Premium        bool
	CreditsUsed    int
	DefaultModelID *uuid.UUID
	Preferences    string
	CreatedAt      time.Time
}
