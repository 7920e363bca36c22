package tutor_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/eznannya/internal/ai"
	"github.com/p-n-ai/eznannya/internal/curriculum"
	"github.com/p-n-ai/eznannya/internal/identity"
	"github.com/p-n-ai/eznannya/internal/tutor"
)

func failing() *ai.MockProvider {
	return &ai.MockProvider{Err: errors.New("unavailable")}
}

func TestExplain(t *testing.T) {
	mock := ai.NewMockProvider("**Рівняння** це рівність зі змінною.")
	tu := tutor.New(mock)

	got := tu.Explain(context.Background(), tutor.ExplainRequest{
		TopicTitle: "Лінійні рівняння",
		Subject:    "Алгебра",
		Grade:      7,
		Style:      identity.StyleAnalogy,
		Notes:      "Почни з терезів.",
		UserID:     "u1",
	})
	if got != "**Рівняння** це рівність зі змінною." {
		t.Errorf("Explain() = %q", got)
	}

	req := mock.LastRequest()
	if req.Task != ai.TaskExplain || req.UserID != "u1" || req.JSON {
		t.Errorf("request = %+v", req)
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{"Лінійні рівняння", "7 класу", "аналогії", "Почни з терезів."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestExplain_UnknownStyleUsesSchool(t *testing.T) {
	mock := ai.NewMockProvider("ok")
	tutor.New(mock).Explain(context.Background(), tutor.ExplainRequest{TopicTitle: "x", Style: "loud"})
	if !strings.Contains(mock.LastRequest().Messages[0].Content, "академічний") {
		t.Error("unknown style should fall back to the school persona")
	}
}

func TestFallbacks(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		tu   *tutor.Tutor
	}{
		{"provider error", tutor.New(failing())},
		{"no provider", tutor.New(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tu.Explain(ctx, tutor.ExplainRequest{}); got != tutor.FallbackExplanation {
				t.Errorf("Explain() = %q", got)
			}
			if got := tt.tu.Chat(ctx, tutor.ChatRequest{Message: "?"}); got != tutor.FallbackChat {
				t.Errorf("Chat() = %q", got)
			}
			if got := tt.tu.SolveStructuredTask(ctx, tutor.TaskRequest{Data: map[string]int{"x": 1}}); got != tutor.FallbackTaskReview {
				t.Errorf("SolveStructuredTask() = %q", got)
			}
			if got := tt.tu.GenerateDiagram(ctx, "трикутник", ""); got != "" {
				t.Errorf("GenerateDiagram() = %q, want empty", got)
			}
			if got := tt.tu.GenerateQuiz(ctx, tutor.QuizRequest{Count: 10}); got != nil {
				t.Errorf("GenerateQuiz() = %v, want nil", got)
			}
			if got := tt.tu.GradeSubmission(ctx, tutor.GradeRequest{Answer: "x"}); got != tutor.FallbackGrading() {
				t.Errorf("GradeSubmission() = %+v", got)
			}
			opts := tt.tu.GenerateHomeworkOptions(ctx, tutor.HomeworkRequest{})
			if len(opts) != 3 || opts[0].XPReward != 50 || opts[1].XPReward != 100 || opts[2].XPReward != 200 {
				t.Errorf("GenerateHomeworkOptions() = %+v", opts)
			}
		})
	}
}

func TestGenerateQuiz(t *testing.T) {
	mock := ai.NewMockProvider(`[
		{"question": "2x = 4, x = ?", "options": ["1", "2", "3", "4"], "correctAnswer": 1},
		{"question": "x + 1 = 1, x = ?", "options": ["0", "1", "2", "3"], "correctAnswer": 0}
	]`)
	clock := time.UnixMilli(1700000000000)
	tu := tutor.New(mock, tutor.WithClock(func() time.Time { return clock }))

	qs := tu.GenerateQuiz(context.Background(), tutor.QuizRequest{
		TopicTitle: "Лінійні рівняння",
		Subject:    "Алгебра",
		Grade:      7,
		Count:      10,
		Context:    "Рівняння виду ax = b",
	})
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2", len(qs))
	}
	want := curriculum.QuizQuestion{ID: "ai-q-1700000000000-1", Question: "x + 1 = 1, x = ?", Options: []string{"0", "1", "2", "3"}, CorrectAnswer: 0}
	if qs[1].ID != want.ID || qs[1].Question != want.Question || qs[1].CorrectAnswer != 0 || len(qs[1].Options) != 4 {
		t.Errorf("question = %+v, want %+v", qs[1], want)
	}

	req := mock.LastRequest()
	if !req.JSON || req.Task != ai.TaskQuiz {
		t.Errorf("request JSON=%v task=%v, want JSON quiz", req.JSON, req.Task)
	}
	if !strings.Contains(req.Messages[0].Content, "Рівняння виду ax = b") {
		t.Error("prompt should carry the topic context")
	}
}

func TestGenerateQuiz_RejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "Ось ваші питання"},
		{"three options", `[{"question": "q", "options": ["a", "b", "c"], "correctAnswer": 0}]`},
		{"answer out of range", `[{"question": "q", "options": ["a", "b", "c", "d"], "correctAnswer": 4}]`},
		{"missing answer", `[{"question": "q", "options": ["a", "b", "c", "d"]}]`},
		{"object", `{"question": "q"}`},
		{"empty", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tu := tutor.New(ai.NewMockProvider(tt.payload))
			if got := tu.GenerateQuiz(context.Background(), tutor.QuizRequest{Count: 1}); got != nil {
				t.Errorf("GenerateQuiz() = %+v, want nil", got)
			}
		})
	}
}

func TestGradeSubmission(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    tutor.Grading
	}{
		{
			name:    "valid",
			payload: `{"grade": 9, "feedback": "Добре!", "isCorrect": true}`,
			want:    tutor.Grading{Grade: 9, Feedback: "Добре!", IsCorrect: true},
		},
		{
			name:    "fenced and fractional",
			payload: "```json\n{\"grade\": 10.6, \"feedback\": \"Чудово\", \"isCorrect\": true}\n```",
			want:    tutor.Grading{Grade: 11, Feedback: "Чудово", IsCorrect: true},
		},
		{
			name:    "grade out of scale",
			payload: `{"grade": 15, "feedback": "?", "isCorrect": false}`,
			want:    tutor.FallbackGrading(),
		},
		{
			name:    "missing field",
			payload: `{"grade": 5}`,
			want:    tutor.FallbackGrading(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := ai.NewMockProvider(tt.payload)
			got := tutor.New(mock).GradeSubmission(context.Background(), tutor.GradeRequest{
				Subject: "Алгебра",
				Topic:   "Творчий звіт",
				Answer:  "x = 2",
				UserID:  "u1",
			})
			if got != tt.want {
				t.Errorf("GradeSubmission() = %+v, want %+v", got, tt.want)
			}
			if mock.LastRequest().UserID != "u1" {
				t.Error("user id should reach the gateway for budgeting")
			}
		})
	}
}

func TestGenerateHomeworkOptions(t *testing.T) {
	mock := ai.NewMockProvider(`[
		{"title": "Повторення", "description": "5 задач", "difficulty": "Легкий", "xpReward": 40},
		{"title": "Практика", "description": "10 задач", "difficulty": "Середній", "xpReward": 90},
		{"title": "Проєкт", "description": "Есе", "difficulty": "Складний", "xpReward": 180},
		{"title": "Зайве", "description": "-", "difficulty": "Складний", "xpReward": 1}
	]`)
	opts := tutor.New(mock).GenerateHomeworkOptions(context.Background(), tutor.HomeworkRequest{
		TopicTitle:  "Лінійні рівняння",
		Subject:     "Алгебра",
		Grade:       7,
		Performance: "Добре",
	})
	if len(opts) != 3 {
		t.Fatalf("got %d options, want 3", len(opts))
	}
	if opts[1].Title != "Практика" || opts[1].Difficulty != "Середній" || opts[1].XPReward != 90 {
		t.Errorf("option = %+v", opts[1])
	}
	if !strings.Contains(mock.LastRequest().Messages[0].Content, "Добре") {
		t.Error("prompt should carry the performance label")
	}
}

func TestGenerateHomeworkOptions_TooFewFallsBack(t *testing.T) {
	mock := ai.NewMockProvider(`[{"title": "t", "description": "d", "difficulty": "Легкий", "xpReward": 10}]`)
	opts := tutor.New(mock).GenerateHomeworkOptions(context.Background(), tutor.HomeworkRequest{})
	if len(opts) != 3 || opts[0].Title != "Базові вправи" {
		t.Errorf("GenerateHomeworkOptions() = %+v, want fallback", opts)
	}
}

func TestGenerateDiagram(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"bare", `<svg viewBox="0 0 10 10"></svg>`, `<svg viewBox="0 0 10 10"></svg>`},
		{"wrapped", "Here you go:\n```\n<svg>\n<line/>\n</svg>\n```", "<svg>\n<line/>\n</svg>"},
		{"first only", "<svg>a</svg><svg>b</svg>", "<svg>a</svg>"},
		{"none", "I cannot draw that.", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tutor.New(ai.NewMockProvider(tt.reply)).GenerateDiagram(context.Background(), "трикутник ABC", "")
			if got != tt.want {
				t.Errorf("GenerateDiagram() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSolveStructuredTask(t *testing.T) {
	mock := ai.NewMockProvider("Чудово! x = 3.")
	got := tutor.New(mock).SolveStructuredTask(context.Background(), tutor.TaskRequest{
		Subject: "Алгебра",
		Grade:   7,
		Engine:  curriculum.LabLinearEquation,
		Data:    map[string]any{"a": 2, "b": 6, "answer": 3},
	})
	if got != "Чудово! x = 3." {
		t.Errorf("SolveStructuredTask() = %q", got)
	}
	prompt := mock.LastRequest().Messages[0].Content
	if !strings.Contains(prompt, "LINEAR_EQUATION_LAB") || !strings.Contains(prompt, `"answer": 3`) {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestChat(t *testing.T) {
	mock := ai.NewMockProvider("А як ти думаєш?")
	got := tutor.New(mock).Chat(context.Background(), tutor.ChatRequest{
		Message: "Як розв'язати 2x = 6?",
		Context: "Алгебра, Лінійні рівняння",
		History: []ai.Message{
			{Role: "user", Content: "Привіт"},
			{Role: "assistant", Content: "Привіт!"},
		},
	})
	if got != "А як ти думаєш?" {
		t.Errorf("Chat() = %q", got)
	}

	msgs := mock.LastRequest().Messages
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want system + 2 history + question", len(msgs))
	}
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "Лінійні рівняння") {
		t.Errorf("system message = %+v", msgs[0])
	}
	if msgs[3].Content != "Як розв'язати 2x = 6?" {
		t.Errorf("last message = %+v", msgs[3])
	}
}
