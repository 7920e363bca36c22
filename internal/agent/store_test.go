package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/eznannya/internal/agent"
)

func TestConversationStore_Interface(t *testing.T) {
	ctx := context.Background()
	store := agent.NewMemoryStore()

	id, err := store.CreateConversation(ctx, agent.Conversation{
		UserID:  "123",
		TopicID: "alg-7-1",
		State:   "tutoring",
	})
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if id == "" {
		t.Error("CreateConversation() returned empty ID")
	}

	if err := store.AddMessage(ctx, id, agent.StoredMessage{Role: "user", Content: "Що таке рівняння?"}); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	got, err := store.GetConversation(ctx, id)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].CreatedAt.IsZero() {
		t.Errorf("Messages = %+v, want one timestamped message", got.Messages)
	}
}

func TestConversationStore_RequiresUser(t *testing.T) {
	if _, err := agent.NewMemoryStore().CreateConversation(context.Background(), agent.Conversation{}); err == nil {
		t.Error("CreateConversation() should require a user id")
	}
}

func TestConversationStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := agent.NewMemoryStore()
	id, _ := store.CreateConversation(ctx, agent.Conversation{UserID: "123"})
	_ = store.AddMessage(ctx, id, agent.StoredMessage{Role: "user", Content: "a"})

	got, _ := store.GetConversation(ctx, id)
	got.Messages[0].Content = "mutated"
	got.Messages = append(got.Messages, agent.StoredMessage{Role: "user", Content: "b"})

	again, _ := store.GetConversation(ctx, id)
	if len(again.Messages) != 1 || again.Messages[0].Content != "a" {
		t.Errorf("stored messages changed through a returned copy: %+v", again.Messages)
	}
}

func TestConversationStore_ActivePerTopic(t *testing.T) {
	ctx := context.Background()
	store := agent.NewMemoryStore()

	algebra, _ := store.CreateConversation(ctx, agent.Conversation{UserID: "123", TopicID: "alg-7-1"})
	physics, _ := store.CreateConversation(ctx, agent.Conversation{UserID: "123", TopicID: "phys-7-4"})

	tests := []struct {
		userID, topicID string
		wantID          string
		wantFound       bool
	}{
		{"123", "alg-7-1", algebra, true},
		{"123", "phys-7-4", physics, true},
		{"123", "hist-5-1", "", false},
		{"456", "alg-7-1", "", false},
	}
	for _, tt := range tests {
		got, found := store.GetActiveConversation(ctx, tt.userID, tt.topicID)
		if found != tt.wantFound {
			t.Errorf("GetActiveConversation(%q, %q) found = %v, want %v", tt.userID, tt.topicID, found, tt.wantFound)
			continue
		}
		if found && got.ID != tt.wantID {
			t.Errorf("GetActiveConversation(%q, %q) = %s, want %s", tt.userID, tt.topicID, got.ID, tt.wantID)
		}
	}
}

func TestConversationStore_EndConversation(t *testing.T) {
	ctx := context.Background()
	store := agent.NewMemoryStore()
	id, _ := store.CreateConversation(ctx, agent.Conversation{UserID: "123", TopicID: "alg-7-1"})

	if err := store.EndConversation(ctx, id); err != nil {
		t.Fatalf("EndConversation() error = %v", err)
	}
	if _, found := store.GetActiveConversation(ctx, "123", "alg-7-1"); found {
		t.Error("GetActiveConversation() should not find ended conversation")
	}
}

func TestConversationStore_SetSummary(t *testing.T) {
	ctx := context.Background()
	store := agent.NewMemoryStore()
	id, _ := store.CreateConversation(ctx, agent.Conversation{UserID: "123"})

	if err := store.SetSummary(ctx, id, "Учень розібрав лінійні рівняння.", 10); err != nil {
		t.Fatalf("SetSummary() error = %v", err)
	}

	got, _ := store.GetConversation(ctx, id)
	if got.Summary != "Учень розібрав лінійні рівняння." || got.CompactedAt != 10 {
		t.Errorf("Summary = %q, CompactedAt = %d", got.Summary, got.CompactedAt)
	}
}

func TestConversationStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := agent.NewMemoryStore()

	tests := []struct {
		name string
		err  error
	}{
		{"get", func() error { _, err := store.GetConversation(ctx, "nope"); return err }()},
		{"add", store.AddMessage(ctx, "nope", agent.StoredMessage{Role: "user", Content: "Hello"})},
		{"summary", store.SetSummary(ctx, "nope", "summary", 5)},
		{"end", store.EndConversation(ctx, "nope")},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, agent.ErrConversationNotFound) {
			t.Errorf("%s: error = %v, want ErrConversationNotFound", tt.name, tt.err)
		}
	}
}
