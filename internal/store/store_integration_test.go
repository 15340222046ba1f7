package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wingleeio/chat-zeron/internal/database"
	"github.com/wingleeio/chat-zeron/internal/store"
)

// setupStore starts a throwaway Postgres container, applies the embedded
// migrations, and returns a ready Store.
//
// Opt in with ZERON_TEST_CONTAINERS=1; testcontainers aborts hard on
// hosts without a Docker daemon, so these tests never reach for one
// unless asked.
func setupStore(t *testing.T) *store.Store {
	t.Helper()
	if os.Getenv("ZERON_TEST_CONTAINERS") == "" {
		t.Skip("ZERON_TEST_CONTAINERS not set - skipping integration test")
	}
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("zeron_test"),
		postgres.WithUsername("zeron_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	if err := database.Migrate(connStr); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	pool, err := database.Open(ctx, connStr)
	if err != nil {
		t.Fatalf("opening pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return store.New(pool, nil)
}

// seed inserts a user and a model every chat/message test needs.
func seed(t *testing.T, s *store.Store) (*store.User, *store.Model) {
	t.Helper()
	ctx := context.Background()

	model := &store.Model{
		Slug:         "flash",
		DisplayName:  "Gemini Flash",
		Provider:     "googleai",
		ModelID:      "gemini-2.5-flash",
		Capabilities: []string{"tools", "vision"},
		Enabled:      true,
	}
	if err := s.CreateModel(ctx, model); err != nil {
		t.Fatalf("creating model: %v", err)
	}
	user := &store.User{Name: "integration", DefaultModelID: &model.ID}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return user, model
}

func TestStoreRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	user, model := seed(t, s)

	got, err := s.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Name != "integration" || got.DefaultModelID == nil || *got.DefaultModelID != model.ID {
		t.Errorf("user round trip: %+v", got)
	}

	if err := s.AddCreditsUsed(ctx, user.ID, 3); err != nil {
		t.Fatalf("AddCreditsUsed: %v", err)
	}
	if err := s.AddCreditsUsed(ctx, user.ID, 2); err != nil {
		t.Fatalf("AddCreditsUsed: %v", err)
	}
	got, _ = s.GetUser(ctx, user.ID)
	if got.CreditsUsed != 5 {
		t.Errorf("credits used = %d, want 5", got.CreditsUsed)
	}

	bySlug, err := s.GetModelBySlug(ctx, "flash")
	if err != nil {
		t.Fatalf("GetModelBySlug: %v", err)
	}
	if !bySlug.Supports(store.CapabilityTools) || !bySlug.Supports(store.CapabilityVision) {
		t.Errorf("capabilities lost in round trip: %v", bySlug.Capabilities)
	}

	if _, err := s.GetUser(ctx, uuid.New()); err != store.ErrUserNotFound {
		t.Errorf("unknown user err = %v, want ErrUserNotFound", err)
	}
}

func TestChatRecencyFollowsMessageInserts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	user, model := seed(t, s)

	older := &store.Chat{OwnerID: user.ID, Title: "older", Status: store.StatusReady}
	newer := &store.Chat{OwnerID: user.ID, Title: "newer", Status: store.StatusReady}
	for _, c := range []*store.Chat{older, newer} {
		if err := s.CreateChat(ctx, c); err != nil {
			t.Fatalf("CreateChat: %v", err)
		}
	}

	// A message into the older chat bumps it to the top of the list.
	if err := s.CreateMessage(ctx, &store.Message{
		ChatID: older.ID, OwnerID: user.ID, Prompt: "bump", ModelID: model.ID,
	}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	chats, err := s.ListChats(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListChats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("listed %d chats, want 2", len(chats))
	}
	if chats[0].ID != older.ID {
		t.Errorf("first chat = %q, want the one just written to", chats[0].Title)
	}
}

func TestCopyMessagesUpTo(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	user, model := seed(t, s)

	src := &store.Chat{OwnerID: user.ID, Status: store.StatusReady}
	dst := &store.Chat{OwnerID: user.ID, Status: store.StatusReady}
	for _, c := range []*store.Chat{src, dst} {
		if err := s.CreateChat(ctx, c); err != nil {
			t.Fatalf("CreateChat: %v", err)
		}
	}

	var cutoff time.Time
	for i, prompt := range []string{"first", "second", "third"} {
		m := &store.Message{ChatID: src.ID, OwnerID: user.ID, Prompt: prompt, ModelID: model.ID}
		if err := s.CreateMessage(ctx, m); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
		if i == 1 {
			cutoff = m.CreatedAt
		}
		time.Sleep(5 * time.Millisecond)
	}

	copied, err := s.CopyMessagesUpTo(ctx, src.ID, dst.ID, user.ID, cutoff)
	if err != nil {
		t.Fatalf("CopyMessagesUpTo: %v", err)
	}
	if copied != 2 {
		t.Fatalf("copied %d messages, want 2", copied)
	}

	originals, _ := s.ListChatMessages(ctx, src.ID)
	copies, err := s.ListChatMessages(ctx, dst.ID)
	if err != nil {
		t.Fatalf("ListChatMessages: %v", err)
	}
	if len(copies) != 2 || copies[0].Prompt != "first" || copies[1].Prompt != "second" {
		t.Fatalf("copies = %+v", copies)
	}
	for i, cp := range copies {
		if cp.ID == originals[i].ID || cp.StreamID == originals[i].StreamID {
			t.Error("copy shares an id or stream id with its original")
		}
		if !cp.CreatedAt.Equal(originals[i].CreatedAt) {
			t.Error("copy did not preserve the original creation time")
		}
	}
}

func TestDeleteChatCascadesMessages(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	user, model := seed(t, s)

	chat := &store.Chat{OwnerID: user.ID, Status: store.StatusReady}
	if err := s.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	msg := &store.Message{ChatID: chat.ID, OwnerID: user.ID, Prompt: "p", ModelID: model.ID}
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	if err := s.DeleteChat(ctx, chat.ID); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}
	if _, err := s.GetChat(ctx, chat.ID); err != store.ErrChatNotFound {
		t.Errorf("deleted chat err = %v, want ErrChatNotFound", err)
	}
	if _, err := s.GetMessage(ctx, msg.ID); err != store.ErrMessageNotFound {
		t.Errorf("cascaded message err = %v, want ErrMessageNotFound", err)
	}
	if err := s.DeleteChat(ctx, chat.ID); err != store.ErrChatNotFound {
		t.Errorf("double delete err = %v, want ErrChatNotFound", err)
	}
}
