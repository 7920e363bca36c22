// Package ai provides a provider-agnostic AI gateway with a fallback chain
// and per-user token budgets.
package ai

import (
	"context"
	"errors"
)

var (
	// ErrNoProvider is returned when no provider could serve a request.
	ErrNoProvider = errors.New("all AI providers failed")
	// ErrBudgetExceeded is returned when the user's daily token budget is spent.
	ErrBudgetExceeded = errors.New("daily AI token budget exceeded")
)

// TaskType names the request shape, used for logging and budgets.
type TaskType int

const (
	TaskExplain TaskType = iota
	TaskQuiz
	TaskGrading
	TaskHomework
	TaskStructured
	TaskDiagram
	TaskChat
	TaskSummary
)

func (t TaskType) String() string {
	switch t {
	case TaskExplain:
		return "explain"
	case TaskQuiz:
		return "quiz"
	case TaskGrading:
		return "grading"
	case TaskHomework:
		return "homework"
	case TaskStructured:
		return "structured"
	case TaskDiagram:
		return "diagram"
	case TaskChat:
		return "chat"
	case TaskSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// Message represents a chat message. Role is "system", "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
	// JSON asks the provider to answer with a JSON document only.
	JSON bool `json:"json,omitempty"`
	// UserID is charged for the tokens used. Empty skips budgeting.
	UserID string `json:"user_id,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	HealthCheck(ctx context.Context) error
}

// Completer is what callers of the gateway depend on.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
