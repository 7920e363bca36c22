package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/eznannya/internal/ai"
	"github.com/p-n-ai/eznannya/internal/tutor"
)

const (
	defaultCompactThreshold      = 20
	defaultCompactTokenThreshold = 20000 // ~20k tokens triggers compaction
	defaultKeepRecent            = 6
)

// ErrEmptyMessage is returned when a student sends a blank message.
var ErrEmptyMessage = errors.New("message is empty")

// EngineConfig holds dependencies for the agent engine.
type EngineConfig struct {
	AI                    ai.Completer
	Store                 ConversationStore
	Events                EventLogger
	CompactThreshold      int // messages before compaction triggers (default 20)
	CompactTokenThreshold int // estimated tokens before compaction triggers (default 20000)
	KeepRecent            int // recent messages to keep after compaction (default 6)
}

// Engine answers topic chat messages and keeps the history compact.
type Engine struct {
	ai                    ai.Completer
	store                 ConversationStore
	events                EventLogger
	compactThreshold      int
	compactTokenThreshold int
	keepRecent            int
}

// NewEngine creates a new agent engine.
func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	threshold := cfg.CompactThreshold
	if threshold == 0 {
		threshold = defaultCompactThreshold
	}
	tokenThreshold := cfg.CompactTokenThreshold
	if tokenThreshold == 0 {
		tokenThreshold = defaultCompactTokenThreshold
	}
	keepRecent := cfg.KeepRecent
	if keepRecent == 0 {
		keepRecent = defaultKeepRecent
	}
	return &Engine{
		ai:                    cfg.AI,
		store:                 store,
		events:                events,
		compactThreshold:      threshold,
		compactTokenThreshold: tokenThreshold,
		keepRecent:            keepRecent,
	}
}

// ChatInput is one student message in a topic chat.
type ChatInput struct {
	UserID  string
	TopicID string
	// Lesson describes the topic, e.g. "Алгебра, 7 клас: Лінійні рівняння".
	Lesson  string
	Message string
}

// Reply is the tutor's answer.
type Reply struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// Ask records the student's message and returns the tutor's answer. AI
// failures yield a fallback answer that is not stored.
func (e *Engine) Ask(ctx context.Context, in ChatInput) (Reply, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}

	slog.Info("processing chat message",
		"user_id", in.UserID,
		"topic_id", in.TopicID,
		"text_len", len(text),
	)

	conv, err := e.getOrCreateConversation(ctx, in.UserID, in.TopicID)
	if err != nil {
		return Reply{}, fmt.Errorf("open conversation: %w", err)
	}

	if err := e.store.AddMessage(ctx, conv.ID, StoredMessage{
		Role:    "user",
		Content: text,
	}); err != nil {
		return Reply{}, fmt.Errorf("store user message: %w", err)
	}

	// Refresh conversation to get latest messages.
	conv, err = e.store.GetConversation(ctx, conv.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("reload conversation: %w", err)
	}

	// Compact if needed (summarize older messages).
	e.maybeCompact(ctx, conv, in.UserID)

	messages := []ai.Message{{Role: "system", Content: tutor.ChatSystemPrompt(in.Lesson)}}
	messages = append(messages, e.buildContextMessages(conv)...)

	reply := Reply{ConversationID: conv.ID, Content: tutor.FallbackChat}
	if e.ai == nil {
		return reply, nil
	}
	resp, err := e.ai.Complete(ctx, ai.CompletionRequest{
		Messages:  messages,
		Task:      ai.TaskChat,
		MaxTokens: 1024,
		UserID:    in.UserID,
	})
	if err != nil {
		slog.Warn("AI completion failed, using fallback", "user_id", in.UserID, "error", err)
		return reply, nil
	}
	reply.Content = resp.Content

	// Record assistant response with token metadata.
	if err := e.store.AddMessage(ctx, conv.ID, StoredMessage{
		Role:         "assistant",
		Content:      resp.Content,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}); err != nil {
		slog.Error("failed to store assistant message", "error", err)
	}

	if err := e.events.LogEvent(ctx, Event{
		ConversationID: conv.ID,
		UserID:         in.UserID,
		EventType:      EventChatMessage,
		Data: map[string]any{
			"topic_id": in.TopicID,
			"tokens":   resp.TotalTokens(),
		},
	}); err != nil {
		slog.Warn("failed to log chat event", "user_id", in.UserID, "error", err)
	}

	return reply, nil
}

// History returns the messages of the open conversation for a topic.
func (e *Engine) History(ctx context.Context, userID, topicID string) []StoredMessage {
	conv, found := e.store.GetActiveConversation(ctx, userID, topicID)
	if !found {
		return []StoredMessage{}
	}
	return conv.Messages
}

// Reset ends the open conversation for a topic so the next message starts
// a fresh one.
func (e *Engine) Reset(ctx context.Context, userID, topicID string) error {
	conv, found := e.store.GetActiveConversation(ctx, userID, topicID)
	if !found {
		return nil
	}
	if err := e.store.EndConversation(ctx, conv.ID); err != nil {
		return fmt.Errorf("end conversation: %w", err)
	}
	return nil
}

// buildContextMessages returns the conversation messages for the AI prompt.
// If a summary exists, it prepends it and only includes messages after compaction point.
func (e *Engine) buildContextMessages(conv *Conversation) []ai.Message {
	var messages []ai.Message

	if conv.Summary != "" {
		messages = append(messages, ai.Message{
			Role:    "user",
			Content: "Короткий зміст попередньої розмови:\n" + conv.Summary,
		})
		messages = append(messages, ai.Message{
			Role:    "assistant",
			Content: "Зрозуміло, продовжимо з того місця.",
		})
		// Only include messages after the compaction point.
		for _, m := range conv.Messages[conv.CompactedAt:] {
			messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
		}
	} else {
		for _, m := range conv.Messages {
			messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
		}
	}

	return messages
}

// estimateTokens gives a rough token count for messages (1 token ≈ 4 chars).
func estimateTokens(messages []StoredMessage) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total
}

// maybeCompact checks if the conversation needs compaction and summarizes if so.
// Triggers when message count OR estimated token count exceeds thresholds.
// Only considers messages since the last compaction to avoid re-compressing.
func (e *Engine) maybeCompact(ctx context.Context, conv *Conversation, userID string) {
	if e.ai == nil {
		return
	}
	uncompacted := conv.Messages[conv.CompactedAt:]
	messagesSinceCompact := len(uncompacted)
	tokensSinceCompact := estimateTokens(uncompacted)

	if messagesSinceCompact <= e.compactThreshold && tokensSinceCompact <= e.compactTokenThreshold {
		return
	}

	// Summarize everything except the most recent messages.
	compactUpTo := len(conv.Messages) - e.keepRecent
	if compactUpTo <= conv.CompactedAt {
		return
	}

	toSummarize := conv.Messages[conv.CompactedAt:compactUpTo]

	var content strings.Builder
	if conv.Summary != "" {
		content.WriteString("Previous summary:\n")
		content.WriteString(conv.Summary)
		content.WriteString("\n\nNew messages to incorporate:\n")
	}
	for _, m := range toSummarize {
		role := "Student"
		if m.Role == "assistant" {
			role = "Tutor"
		}
		fmt.Fprintf(&content, "%s: %s\n", role, m.Content)
	}

	resp, err := e.ai.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: `Summarize this tutoring conversation concisely. Capture:
- Topics discussed and key concepts
- What the student understood or struggled with
- Any examples or problems worked through
Keep the summary under 150 words. Write in the same language used in the conversation.`},
			{Role: "user", Content: content.String()},
		},
		Task:      ai.TaskSummary,
		MaxTokens: 256,
		UserID:    userID,
	})
	if err != nil {
		slog.Warn("compaction failed, continuing without summary", "error", err)
		return
	}

	if err := e.store.SetSummary(ctx, conv.ID, resp.Content, compactUpTo); err != nil {
		slog.Warn("failed to save summary", "error", err)
		return
	}

	// Update the in-memory conv so buildContextMessages uses the new summary.
	conv.Summary = resp.Content
	conv.CompactedAt = compactUpTo

	slog.Info("conversation compacted",
		"conversation_id", conv.ID,
		"compacted_messages", compactUpTo,
		"remaining_messages", len(conv.Messages)-compactUpTo,
	)
}

func (e *Engine) getOrCreateConversation(ctx context.Context, userID, topicID string) (*Conversation, error) {
	conv, found := e.store.GetActiveConversation(ctx, userID, topicID)
	if found {
		return conv, nil
	}
	id, err := e.store.CreateConversation(ctx, Conversation{
		UserID:  userID,
		TopicID: topicID,
		State:   defaultState,
	})
	if err != nil {
		return nil, err
	}
	return e.store.GetConversation(ctx, id)
}
