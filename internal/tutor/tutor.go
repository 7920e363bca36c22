// Package tutor turns learning actions into prompts for the AI gateway.
//
// Every request shape degrades to static fallback content when the gateway
// fails or returns a payload that does not match its schema. No method
// returns an error and nothing is retried.
package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/p-n-ai/eznannya/internal/ai"
	"github.com/p-n-ai/eznannya/internal/curriculum"
	"github.com/p-n-ai/eznannya/internal/identity"
)

// Fallback texts returned when the gateway cannot answer.
const (
	FallbackExplanation = "Вибач, зараз маю проблеми зі зв'язком. Спробуй оновити сторінку пізніше."
	FallbackTaskReview  = "Не вдалося перевірити завдання. Спробуй пізніше."
	FallbackChat        = "Замислився... Спитай ще раз."
	FallbackFeedback    = "Дякую за старанність! На жаль, сталася технічна помилка при глибокому аналізі, але я зарахував це завдання."
)

var svgRegex = regexp.MustCompile(`<svg[\s\S]*?</svg>`)

// stylePrompts describes the teacher persona per learning style.
var stylePrompts = map[identity.LearningStyle]string{
	identity.StyleSchool:       "академічний, але доступний (як у найкращому підручнику)",
	identity.StyleSimplified:   "максимально простий, пояснюй як для новачка, використовуй прості речення",
	identity.StyleStorytelling: "розповідний, наводь приклади через історії або ситуації з життя",
	identity.StyleAnalogy:      "використовуй яскраві аналогії та порівняння для пояснення складного",
	identity.StyleMagical:      "захопливий, ніби ми досліджуємо магію цього предмета",
	identity.StyleUniversity:   "глибокий, науковий, з акцентом на причинно-наслідкові зв'язки",
}

// Tutor builds prompts and maps gateway failures to fallbacks.
type Tutor struct {
	ai  ai.Completer
	now func() time.Time
}

// Option configures a Tutor.
type Option func(*Tutor)

// WithClock sets the clock used for generated question ids.
func WithClock(now func() time.Time) Option {
	return func(t *Tutor) {
		t.now = now
	}
}

// New creates a Tutor. A nil completer yields fallback content only.
func New(c ai.Completer, opts ...Option) *Tutor {
	t := &Tutor{ai: c, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ExplainRequest asks for a lesson on one topic.
type ExplainRequest struct {
	TopicTitle string
	Subject    string
	Grade      int
	Style      identity.LearningStyle
	// Notes are optional teaching notes for the topic.
	Notes  string
	UserID string
}

// Explain returns a Markdown lesson for the topic.
func (t *Tutor) Explain(ctx context.Context, req ExplainRequest) string {
	style, ok := stylePrompts[req.Style]
	if !ok {
		style = stylePrompts[identity.StyleSchool]
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Ти — досвідчений, надихаючий український вчитель предмету %q для %d класу.\n", req.Subject, req.Grade)
	fmt.Fprintf(&prompt, "Твоє завдання: Пояснити тему %q.\n\n", req.TopicTitle)
	fmt.Fprintf(&prompt, "Стиль пояснення: %s.\n\n", style)
	prompt.WriteString(`ВАЖЛИВО:
1. Не починай зі слів "Ось пояснення" або "Привіт". Одразу переходь до суті, ніби ти ведеш урок.
2. Тон має бути живим, педагогічним, мотивуючим. Звертайся до учня (на "ти").
3. Структура відповіді:
   - **Вступ**: Чому це цікаво або важливо знати? (1-2 речення).
   - **Основна частина**: Розкрий тему чітко та послідовно. Використовуй списки для важливих пунктів.
   - **Приклади**: Наведи конкретний приклад.
   - **Ключовий висновок**: Одне речення, щоб запам'ятати суть.
4. Формули пиши виключно в LaTeX ($...$).
5. Використовуй форматування Markdown (жирний шрифт для термінів).
`)
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		prompt.WriteString("\nМетодичні нотатки до теми:\n")
		prompt.WriteString(notes)
		prompt.WriteString("\n")
	}

	text, err := t.text(ctx, ai.TaskExplain, req.UserID, []ai.Message{
		{Role: "user", Content: prompt.String()},
	})
	if err != nil || text == "" {
		return FallbackExplanation
	}
	return text
}

// TaskRequest carries a student's structured-task input.
type TaskRequest struct {
	Subject string
	Grade   int
	Engine  curriculum.EngineType
	Data    any
	UserID  string
}

// SolveStructuredTask reviews a structured task and returns feedback prose.
func (t *Tutor) SolveStructuredTask(ctx context.Context, req TaskRequest) string {
	data, err := json.MarshalIndent(req.Data, "", "  ")
	if err != nil {
		slog.Warn("encode task data", "engine", req.Engine, "error", err)
		return FallbackTaskReview
	}

	prompt := fmt.Sprintf(`Ти — уважний вчитель предмету %q (%d клас).
Учень надіслав тобі своє завдання на перевірку.

Тип завдання: %s.
Вхідні дані учня: %s

ТВОЯ РОЛЬ:
Не просто скажи "правильно" чи "неправильно". Навчи учня.

1. Якщо все вірно: Похвали ("Чудово", "Блискуче", "Так тримати"). Додай цікавий факт або коротке поглиблення теми.
2. Якщо є помилки: вкажи конкретно, де помилка. Не давай одразу повну відповідь, а поясни логіку, як її знайти. Підтримай учня.

Стиль: Дружній, професійний, українська мова. Формули в LaTeX ($...$).`,
		req.Subject, req.Grade, req.Engine, data)

	text, err := t.text(ctx, ai.TaskStructured, req.UserID, []ai.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil || text == "" {
		return FallbackTaskReview
	}
	return text
}

// GenerateDiagram returns SVG markup for a geometry problem, or "".
func (t *Tutor) GenerateDiagram(ctx context.Context, description, userID string) string {
	prompt := fmt.Sprintf(`Generate a CLEAN, high-contrast SVG code (only the <svg>...</svg> tag, no markdown) for this geometry problem: %q.

Requirements:
1. Use a white background rectangle (<rect width="100%%" height="100%%" fill="white" />).
2. Draw lines with stroke="black" stroke-width="2".
3. Use clear, large font-size for labels (e.g. A, B, C, angles).
4. Ensure the viewBox is set correctly so nothing is cut off (padding 20px).
5. NO artifacts, NO blurring, NO extraneous text outside the drawing.
6. Return ONLY the SVG string.`, description)

	text, err := t.text(ctx, ai.TaskDiagram, userID, []ai.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return ""
	}
	return svgRegex.FindString(text)
}

// ChatRequest is one student turn in a topic chat.
type ChatRequest struct {
	Message string
	// Context describes the lesson the chat belongs to.
	Context string
	// History holds earlier turns, oldest first.
	History []ai.Message
	UserID  string
}

// ChatSystemPrompt returns the tutor persona for a lesson context.
func ChatSystemPrompt(lesson string) string {
	return fmt.Sprintf(`Роль: Ти — ШІ-репетитор з України.
Контекст уроку: %s.

Інструкція:
1. Відповідай як живий вчитель: доброзичливо і по суті.
2. Якщо учень просить розв'язати задачу, не давай суху відповідь, а поясни хід думок.
3. Використовуй навідні питання ("А як ти думаєш?", "Згадай правило...").
4. Формули в LaTeX ($...$).`, lesson)
}

// Chat answers a student question within a lesson.
func (t *Tutor) Chat(ctx context.Context, req ChatRequest) string {
	messages := make([]ai.Message, 0, len(req.History)+2)
	messages = append(messages, ai.Message{Role: "system", Content: ChatSystemPrompt(req.Context)})
	messages = append(messages, req.History...)
	messages = append(messages, ai.Message{Role: "user", Content: req.Message})

	text, err := t.text(ctx, ai.TaskChat, req.UserID, messages)
	if err != nil || text == "" {
		return FallbackChat
	}
	return text
}

// text runs a free-text completion and logs failures.
func (t *Tutor) text(ctx context.Context, task ai.TaskType, userID string, messages []ai.Message) (string, error) {
	resp, err := t.complete(ctx, ai.CompletionRequest{
		Messages: messages,
		Task:     task,
		UserID:   userID,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func (t *Tutor) complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error) {
	if t.ai == nil {
		return ai.CompletionResponse{}, ai.ErrNoProvider
	}
	resp, err := t.ai.Complete(ctx, req)
	if err != nil {
		slog.Warn("AI request failed, using fallback",
			"task", req.Task.String(),
			"user_id", req.UserID,
			"error", err,
		)
		return ai.CompletionResponse{}, err
	}
	return resp, nil
}
