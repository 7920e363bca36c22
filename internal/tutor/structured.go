package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/eznannya/internal/ai"
	"github.com/p-n-ai/eznannya/internal/curriculum"
)

// DefaultGrade is the grade awarded when grading fails.
const DefaultGrade = 8

var (
	quizSchema = mustSchema(map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{"type": "string", "minLength": 1},
				"options": map[string]any{
					"type":     "array",
					"items":    map[string]any{"type": "string"},
					"minItems": 4,
					"maxItems": 4,
				},
				"correctAnswer": map[string]any{"type": "integer", "minimum": 0, "maximum": 3},
			},
			"required": []string{"question", "options", "correctAnswer"},
		},
	})

	gradingSchema = mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"grade":     map[string]any{"type": "number", "minimum": 1, "maximum": 12},
			"feedback":  map[string]any{"type": "string"},
			"isCorrect": map[string]any{"type": "boolean"},
		},
		"required": []string{"grade", "feedback", "isCorrect"},
	})

	homeworkSchema = mustSchema(map[string]any{
		"type":     "array",
		"minItems": 3,
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":       map[string]any{"type": "string", "minLength": 1},
				"description": map[string]any{"type": "string"},
				"difficulty":  map[string]any{"type": "string"},
				"xpReward":    map[string]any{"type": "number", "minimum": 0},
			},
			"required": []string{"title", "description", "difficulty", "xpReward"},
		},
	})
)

func mustSchema(doc map[string]any) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return s
}

// errSchemaMismatch reports a payload that failed validation.
var errSchemaMismatch = errors.New("payload does not match schema")

// decode validates raw against schema and unmarshals it into v.
func decode(schema *gojsonschema.Schema, raw string, v any) error {
	raw = stripFence(raw)
	result, err := schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", errSchemaMismatch, strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// stripFence removes a Markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// structured runs a JSON-mode completion and decodes the validated payload.
func (t *Tutor) structured(ctx context.Context, req ai.CompletionRequest, schema *gojsonschema.Schema, v any) bool {
	req.JSON = true
	resp, err := t.complete(ctx, req)
	if err != nil {
		return false
	}
	if err := decode(schema, resp.Content, v); err != nil {
		slog.Warn("AI payload rejected, using fallback",
			"task", req.Task.String(),
			"user_id", req.UserID,
			"error", err,
		)
		return false
	}
	return true
}

// QuizRequest asks for multiple-choice questions on a topic.
type QuizRequest struct {
	TopicTitle string
	Subject    string
	Grade      int
	Count      int
	// Context is extra material about the topic, usually its description.
	Context string
	UserID  string
}

// GenerateQuiz returns AI-written questions, or nil when none could be
// produced. Callers fall back to curated questions.
func (t *Tutor) GenerateQuiz(ctx context.Context, req QuizRequest) []curriculum.QuizQuestion {
	prompt := fmt.Sprintf(`Ти — методист. Склади %d питань для тестування по темі %q (%s, %d клас).
Питання мають перевіряти розуміння, а не просто зазубрювання.
Формули в LaTeX ($...$).
Поверни JSON масив: [{"question", "options" (масив з 4 варіантів), "correctAnswer" (індекс 0-3)}].`,
		req.Count, req.TopicTitle, req.Subject, req.Grade)
	if c := strings.TrimSpace(req.Context); c != "" {
		prompt += "\n\nКонтекст теми: " + c
	}

	var items []struct {
		Question      string   `json:"question"`
		Options       []string `json:"options"`
		CorrectAnswer int      `json:"correctAnswer"`
	}
	ok := t.structured(ctx, ai.CompletionRequest{
		Messages:    []ai.Message{{Role: "user", Content: prompt}},
		Task:        ai.TaskQuiz,
		Temperature: 0.3,
		UserID:      req.UserID,
	}, quizSchema, &items)
	if !ok || len(items) == 0 {
		return nil
	}

	stamp := t.now().UnixMilli()
	questions := make([]curriculum.QuizQuestion, len(items))
	for i, it := range items {
		questions[i] = curriculum.QuizQuestion{
			ID:            fmt.Sprintf("ai-q-%d-%d", stamp, i),
			Question:      it.Question,
			Options:       it.Options,
			CorrectAnswer: it.CorrectAnswer,
		}
	}
	return questions
}

// GradeRequest is a homework answer to grade.
type GradeRequest struct {
	Subject     string
	Topic       string
	Description string
	Answer      string
	UserID      string
}

// Grading is the outcome of grading a homework answer.
type Grading struct {
	Grade     int    `json:"grade"` // 1-12
	Feedback  string `json:"feedback"`
	IsCorrect bool   `json:"isCorrect"`
}

// FallbackGrading is returned when the answer could not be graded.
func FallbackGrading() Grading {
	return Grading{Grade: DefaultGrade, Feedback: FallbackFeedback, IsCorrect: true}
}

// GradeSubmission grades an answer on the 12-point scale.
func (t *Tutor) GradeSubmission(ctx context.Context, req GradeRequest) Grading {
	prompt := fmt.Sprintf(`Ти — суворий, але справедливий вчитель %q.
Тема уроку: %q.
Завдання було: %q.

Відповідь учня: %q.

Оціни роботу за 12-бальною шкалою.

Формат відповіді JSON:
{
  "grade": число (1-12),
  "feedback": "Твій детальний коментар. Спочатку похвали, потім вкажи на помилки (якщо є), потім дай пораду. Звертайся до учня на 'Ти'.",
  "isCorrect": boolean
}`, req.Subject, req.Topic, req.Description, req.Answer)

	var raw struct {
		Grade     float64 `json:"grade"`
		Feedback  string  `json:"feedback"`
		IsCorrect bool    `json:"isCorrect"`
	}
	if !t.structured(ctx, ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: prompt}},
		Task:     ai.TaskGrading,
		UserID:   req.UserID,
	}, gradingSchema, &raw) {
		return FallbackGrading()
	}
	return Grading{
		Grade:     int(math.Round(raw.Grade)),
		Feedback:  raw.Feedback,
		IsCorrect: raw.IsCorrect,
	}
}

// HomeworkOption is one homework task offered after a quiz.
type HomeworkOption struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	// Difficulty is the label the model chose, e.g. "Легкий" or "Easy".
	Difficulty string `json:"difficulty"`
	XPReward   int    `json:"xpReward"`
}

// FallbackHomeworkOptions is the fixed three-tier offer.
func FallbackHomeworkOptions() []HomeworkOption {
	return []HomeworkOption{
		{Title: "Базові вправи", Description: "Розв'яжи 5 задач по темі", Difficulty: "Easy", XPReward: 50},
		{Title: "Творчий звіт", Description: "Склади короткий конспект", Difficulty: "Medium", XPReward: 100},
		{Title: "Міні-проєкт", Description: "Підготуй презентацію", Difficulty: "Hard", XPReward: 200},
	}
}

// HomeworkRequest asks for follow-up homework after a quiz.
type HomeworkRequest struct {
	TopicTitle string
	Subject    string
	Grade      int
	// Performance is the quiz performance label.
	Performance string
	UserID      string
}

// GenerateHomeworkOptions returns three homework options, easiest first.
func (t *Tutor) GenerateHomeworkOptions(ctx context.Context, req HomeworkRequest) []HomeworkOption {
	prompt := fmt.Sprintf(`Ти — вчитель. Учень щойно пройшов тест по темі %q (%s, %d клас).
Його результат: %s.

Запропонуй 3 варіанти домашнього завдання, щоб закріпити знання:
1. "Легкий" (для повторення бази).
2. "Середній" (стандартне шкільне завдання).
3. "Складний" (творче або поглиблене завдання).

Поверни JSON: [{"title", "description" (короткий інструктаж, що зробити), "difficulty", "xpReward"}].`,
		req.TopicTitle, req.Subject, req.Grade, req.Performance)

	var raw []struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Difficulty  string  `json:"difficulty"`
		XPReward    float64 `json:"xpReward"`
	}
	if !t.structured(ctx, ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: prompt}},
		Task:     ai.TaskHomework,
		UserID:   req.UserID,
	}, homeworkSchema, &raw) {
		return FallbackHomeworkOptions()
	}

	options := make([]HomeworkOption, 0, 3)
	for _, r := range raw[:3] {
		options = append(options, HomeworkOption{
			Title:       r.Title,
			Description: r.Description,
			Difficulty:  r.Difficulty,
			XPReward:    int(math.Round(r.XPReward)),
		})
	}
	return options
}
