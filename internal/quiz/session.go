// Package quiz runs quiz attempts: question sequencing, scoring, review and
// the hand-off into homework selection.
package quiz

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/p-n-ai/eznannya/internal/curriculum"
	"github.com/p-n-ai/eznannya/internal/homework"
)

var (
	// ErrInvalidTransition is returned when an action does not apply to
	// the session's current state.
	ErrInvalidTransition = errors.New("invalid quiz transition")
	// ErrNoSelection is returned when checking without a selected option.
	ErrNoSelection = errors.New("no option selected")
	// ErrInvalidOption is returned for an option index out of range.
	ErrInvalidOption = errors.New("option out of range")
	// ErrNotAnswered is returned when moving on from an unchecked question.
	ErrNotAnswered = errors.New("question not checked yet")
	// ErrAnswered is returned when selecting after the answer was checked.
	ErrAnswered = errors.New("question already answered")
)

// State is a quiz session view mode.
type State string

const (
	StateLoading        State = "loading"
	StateQuiz           State = "quiz"
	StateResult         State = "result"
	StateReview         State = "review"
	StateHomeworkChoice State = "homework_choice"
	StateDone           State = "done"
)

// Performance labels passed to homework generation.
const (
	PerformanceExcellent = "Відмінно"
	PerformanceGood      = "Добре"
	PerformanceWeak      = "Потребує уваги"
)

// MaxGrade is the top of the 12-point scale.
const MaxGrade = 12

// FinalGrade maps a score onto the 12-point scale, rounding up. An empty
// quiz grades 0.
func FinalGrade(score, total int) int {
	if total <= 0 {
		return 0
	}
	return (score*MaxGrade + total - 1) / total
}

// Accuracy is the rounded percentage of correct answers.
func Accuracy(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(score) * 100 / float64(total)))
}

// XPForGrade is the experience a quiz grade earns; a perfect grade adds
// a bonus.
func XPForGrade(grade int) int {
	xp := grade * 20
	if grade == MaxGrade {
		xp += 100
	}
	return xp
}

// PerformanceLabel buckets a score for homework generation.
func PerformanceLabel(score, total int) string {
	switch {
	case score*10 > total*8:
		return PerformanceExcellent
	case score*10 > total*5:
		return PerformanceGood
	default:
		return PerformanceWeak
	}
}

// FormatDuration renders d as m:ss.
func FormatDuration(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Result summarizes a finished attempt.
type Result struct {
	Score       int    `json:"score"`
	Total       int    `json:"total"`
	Grade       int    `json:"grade"`
	Accuracy    int    `json:"accuracy"`
	XP          int    `json:"xp"`
	Performance string `json:"performance"`
	TimeSpent   int    `json:"timeSpent"` // seconds
	Duration    string `json:"duration"`
}

// ReviewItem compares the committed answer with the correct one.
type ReviewItem struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Correct  int      `json:"correct"`
	// Chosen is the committed option, or -1 when none was recorded.
	Chosen    int  `json:"chosen"`
	IsCorrect bool `json:"isCorrect"`
}

// Session is one quiz attempt. It is not safe for concurrent use.
type Session struct {
	ID          string
	UserID      string
	SchoolGrade int
	Subject     curriculum.Subject
	Topic       curriculum.Topic

	state     State
	questions []curriculum.QuizQuestion
	index     int
	selected  int
	answers   map[int]int
	score     int
	options   []homework.Option

	now        func() time.Time
	startedAt  time.Time
	finishedAt time.Time
}

// NewSession creates a session waiting for its questions.
func NewSession(id string, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		ID:       id,
		state:    StateLoading,
		selected: -1,
		answers:  make(map[int]int),
		now:      now,
	}
}

// State returns the current view mode.
func (s *Session) State() State { return s.state }

// Index returns the current question index.
func (s *Session) Index() int { return s.index }

// Score returns the number of correctly checked answers.
func (s *Session) Score() int { return s.score }

// Total returns the number of questions.
func (s *Session) Total() int { return len(s.questions) }

// Selected returns the pending selection for the current question, or -1.
func (s *Session) Selected() int { return s.selected }

// Answered reports whether the current question has been checked.
func (s *Session) Answered() bool {
	_, ok := s.answers[s.index]
	return ok
}

// Current returns the current question, or nil outside the quiz.
func (s *Session) Current() *curriculum.QuizQuestion {
	if s.state != StateQuiz || s.index >= len(s.questions) {
		return nil
	}
	q := s.questions[s.index]
	return &q
}

// Begin loads the questions and starts the timer. A session without
// questions completes at once.
func (s *Session) Begin(questions []curriculum.QuizQuestion) error {
	if s.state != StateLoading {
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, s.state)
	}
	s.questions = questions
	s.startedAt = s.now()
	s.state = StateQuiz
	if len(questions) == 0 {
		s.finish()
	}
	return nil
}

// Select records a pending choice for the current question. It may be
// changed freely until the question is checked.
func (s *Session) Select(option int) error {
	if s.state != StateQuiz {
		return fmt.Errorf("%w: select in %s", ErrInvalidTransition, s.state)
	}
	if s.Answered() {
		return ErrAnswered
	}
	if option < 0 || option >= len(s.questions[s.index].Options) {
		return ErrInvalidOption
	}
	s.selected = option
	return nil
}

// Check commits the pending choice and scores it. Checking an already
// answered question changes nothing and reports the committed outcome.
func (s *Session) Check() (bool, error) {
	if s.state != StateQuiz {
		return false, fmt.Errorf("%w: check in %s", ErrInvalidTransition, s.state)
	}
	q := s.questions[s.index]
	if committed, ok := s.answers[s.index]; ok {
		return committed == q.CorrectAnswer, nil
	}
	if s.selected < 0 {
		return false, ErrNoSelection
	}
	s.answers[s.index] = s.selected
	correct := s.selected == q.CorrectAnswer
	if correct {
		s.score++
	}
	return correct, nil
}

// Next moves to the following question, or to the result after the last.
// It reports whether the quiz finished.
func (s *Session) Next() (bool, error) {
	if s.state != StateQuiz {
		return false, fmt.Errorf("%w: next in %s", ErrInvalidTransition, s.state)
	}
	if !s.Answered() {
		return false, ErrNotAnswered
	}
	if s.index == len(s.questions)-1 {
		s.finish()
		return true, nil
	}
	s.index++
	s.selected = -1
	return false, nil
}

func (s *Session) finish() {
	s.finishedAt = s.now()
	s.state = StateResult
	s.selected = -1
}

// Elapsed is the time spent answering, in whole seconds. It stops when
// the result is reached.
func (s *Session) Elapsed() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	end := s.finishedAt
	if end.IsZero() {
		end = s.now()
	}
	return end.Sub(s.startedAt).Truncate(time.Second)
}

// Finished reports whether the attempt has a result.
func (s *Session) Finished() bool {
	return !s.finishedAt.IsZero()
}

// Result computes the attempt's outcome. It is meaningful once Finished.
func (s *Session) Result() Result {
	total := len(s.questions)
	grade := FinalGrade(s.score, total)
	elapsed := s.Elapsed()
	return Result{
		Score:       s.score,
		Total:       total,
		Grade:       grade,
		Accuracy:    Accuracy(s.score, total),
		XP:          XPForGrade(grade),
		Performance: PerformanceLabel(s.score, total),
		TimeSpent:   int(elapsed / time.Second),
		Duration:    FormatDuration(elapsed),
	}
}

// Review switches from the result to the answer review.
func (s *Session) Review() error {
	if s.state != StateResult {
		return fmt.Errorf("%w: review from %s", ErrInvalidTransition, s.state)
	}
	s.state = StateReview
	return nil
}

// BackToResult leaves the review.
func (s *Session) BackToResult() error {
	if s.state != StateReview {
		return fmt.Errorf("%w: back to result from %s", ErrInvalidTransition, s.state)
	}
	s.state = StateResult
	return nil
}

// ReviewItems lists every question with its committed and correct answer.
func (s *Session) ReviewItems() []ReviewItem {
	items := make([]ReviewItem, len(s.questions))
	for i, q := range s.questions {
		chosen, ok := s.answers[i]
		if !ok {
			chosen = -1
		}
		items[i] = ReviewItem{
			Question:  q.Question,
			Options:   q.Options,
			Correct:   q.CorrectAnswer,
			Chosen:    chosen,
			IsCorrect: ok && chosen == q.CorrectAnswer,
		}
	}
	return items
}

// RequestHomework enters homework selection from the result or review.
func (s *Session) RequestHomework() error {
	if s.state != StateResult && s.state != StateReview {
		return fmt.Errorf("%w: homework from %s", ErrInvalidTransition, s.state)
	}
	s.state = StateHomeworkChoice
	s.options = nil
	return nil
}

// SetOptions stores the offered homework options.
func (s *Session) SetOptions(options []homework.Option) error {
	if s.state != StateHomeworkChoice {
		return fmt.Errorf("%w: offer homework in %s", ErrInvalidTransition, s.state)
	}
	s.options = options
	return nil
}

// Options returns the offered homework options.
func (s *Session) Options() []homework.Option {
	return s.options
}

// ChooseHomework picks an offered option and ends the quiz flow.
func (s *Session) ChooseHomework(i int) (homework.Option, error) {
	if s.state != StateHomeworkChoice || len(s.options) == 0 {
		return homework.Option{}, fmt.Errorf("%w: choose homework in %s", ErrInvalidTransition, s.state)
	}
	if i < 0 || i >= len(s.options) {
		return homework.Option{}, ErrInvalidOption
	}
	s.state = StateDone
	return s.options[i], nil
}
