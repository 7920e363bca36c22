package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/eznannya/internal/agent"
	"github.com/p-n-ai/eznannya/internal/curriculum"
	"github.com/p-n-ai/eznannya/internal/homework"
	"github.com/p-n-ai/eznannya/internal/identity"
	"github.com/p-n-ai/eznannya/internal/tutor"
)

const defaultQuestionCount = 10

var (
	// ErrBusy is returned while an AI request for the same quiz is
	// outstanding.
	ErrBusy = errors.New("quiz is busy")
	// ErrNoQuiz is returned when the user has no active quiz.
	ErrNoQuiz = errors.New("no active quiz")
	// ErrTopicNotFound is returned by Start for an unknown topic.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrStale is returned when a response arrives for a quiz that was
	// abandoned or restarted meanwhile. The response is discarded.
	ErrStale = errors.New("quiz was replaced")
	// ErrSignedOut is returned when the session has no user.
	ErrSignedOut = errors.New("not signed in")
)

// Topics finds curriculum topics.
type Topics interface {
	FindTopic(ctx context.Context, grade int, topicID string) (*curriculum.Located, bool, error)
}

// Generator writes quiz questions and homework options.
type Generator interface {
	GenerateQuiz(ctx context.Context, req tutor.QuizRequest) []curriculum.QuizQuestion
	GenerateHomeworkOptions(ctx context.Context, req tutor.HomeworkRequest) []tutor.HomeworkOption
}

// Progress records finished attempts.
type Progress interface {
	CurrentUser(ctx context.Context, sess *identity.Session) (*identity.User, error)
	SaveQuizResult(ctx context.Context, sess *identity.Session, result identity.QuizResult) (*identity.User, error)
	AddXP(ctx context.Context, sess *identity.Session, amount int, topicID string) (*identity.User, error)
}

// Config holds the engine's collaborators.
type Config struct {
	Topics    Topics
	Generator Generator
	Progress  Progress
	Ledger    *homework.Ledger
	Events    agent.EventLogger
	// QuestionCount is how many questions to request (default 10).
	QuestionCount int
	Clock         func() time.Time
}

// active is one user's running quiz. ctx is cancelled when the quiz is
// abandoned or replaced. A finished attempt stays unrecorded until both
// its result and its XP are stored.
type active struct {
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64

	mu       sync.Mutex
	session  *Session
	busy     bool
	saved    bool
	recorded bool
}

// bind derives a request context that also ends with the quiz.
func (a *active) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(a.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Engine runs at most one quiz per user.
type Engine struct {
	topics    Topics
	generator Generator
	progress  Progress
	ledger    *homework.Ledger
	events    agent.EventLogger
	count     int
	now       func() time.Time

	mu     sync.Mutex
	active map[string]*active
	seq    uint64
}

// NewEngine creates a quiz engine.
func NewEngine(cfg Config) *Engine {
	count := cfg.QuestionCount
	if count <= 0 {
		count = defaultQuestionCount
	}
	events := cfg.Events
	if events == nil {
		events = agent.NopEventLogger{}
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		topics:    cfg.Topics,
		generator: cfg.Generator,
		progress:  cfg.Progress,
		ledger:    cfg.Ledger,
		events:    events,
		count:     count,
		now:       now,
		active:    make(map[string]*active),
	}
}

// QuestionView is a question as shown to the student.
type QuestionView struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// View is a snapshot of a quiz for the API.
type View struct {
	ID          string        `json:"id"`
	TopicID     string        `json:"topicId"`
	TopicTitle  string        `json:"topicTitle"`
	SubjectID   string        `json:"subjectId"`
	SubjectName string        `json:"subjectName"`
	State       State         `json:"state"`
	Index       int           `json:"index"`
	Total       int           `json:"total"`
	Score       int           `json:"score"`
	Question    *QuestionView `json:"question,omitempty"`
	Selected    int           `json:"selected"`
	Answered    bool          `json:"answered"`
	// CorrectAnswer is revealed once the current question is checked.
	CorrectAnswer *int              `json:"correctAnswer,omitempty"`
	Elapsed       string            `json:"elapsed"`
	Result        *Result           `json:"result,omitempty"`
	Review        []ReviewItem      `json:"review,omitempty"`
	Options       []homework.Option `json:"options,omitempty"`
	// User is set on the response that finished the quiz.
	User *identity.User `json:"user,omitempty"`
}

func viewOf(s *Session) View {
	v := View{
		ID:          s.ID,
		TopicID:     s.Topic.ID,
		TopicTitle:  s.Topic.Title,
		SubjectID:   s.Subject.ID,
		SubjectName: s.Subject.Name,
		State:       s.State(),
		Index:       s.Index(),
		Total:       s.Total(),
		Score:       s.Score(),
		Selected:    s.Selected(),
		Elapsed:     FormatDuration(s.Elapsed()),
	}
	if q := s.Current(); q != nil {
		v.Question = &QuestionView{ID: q.ID, Question: q.Question, Options: q.Options}
		if s.Answered() {
			v.Answered = true
			v.Selected = s.answers[s.index]
			correct := q.CorrectAnswer
			v.CorrectAnswer = &correct
		}
	}
	if s.Finished() {
		r := s.Result()
		v.Result = &r
	}
	switch s.State() {
	case StateReview:
		v.Review = s.ReviewItems()
	case StateHomeworkChoice:
		v.Options = s.Options()
	}
	return v
}

func (e *Engine) user(ctx context.Context, sess *identity.Session) (*identity.User, error) {
	u, err := e.progress.CurrentUser(ctx, sess)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrSignedOut
	}
	return u, nil
}

// Start opens a quiz on a topic of the user's grade, replacing any quiz
// the user already had running. Questions come from the AI generator and
// fall back to the topic's curated list.
func (e *Engine) Start(ctx context.Context, sess *identity.Session, topicID string) (View, error) {
	u, err := e.user(ctx, sess)
	if err != nil {
		return View{}, err
	}
	loc, ok, err := e.topics.FindTopic(ctx, u.Grade, topicID)
	if err != nil {
		return View{}, fmt.Errorf("start quiz: %w", err)
	}
	if !ok {
		return View{}, ErrTopicNotFound
	}

	s := NewSession(uuid.NewString(), e.now)
	s.UserID = u.ID
	s.SchoolGrade = u.Grade
	s.Subject = loc.Subject
	s.Topic = loc.Topic

	a := &active{session: s, busy: true}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	genCtx, release := a.bind(ctx)
	defer release()

	e.mu.Lock()
	if prev, ok := e.active[u.ID]; ok {
		prev.cancel()
	}
	e.seq++
	a.gen = e.seq
	e.active[u.ID] = a
	e.mu.Unlock()

	var questions []curriculum.QuizQuestion
	if e.generator != nil {
		questions = e.generator.GenerateQuiz(genCtx, tutor.QuizRequest{
			TopicTitle: loc.Topic.Title,
			Subject:    loc.Subject.Name,
			Grade:      u.Grade,
			Count:      e.count,
			Context:    loc.Topic.Description,
			UserID:     u.ID,
		})
	}
	source := "ai"
	if len(questions) == 0 {
		questions = loc.Topic.QuizQuestions
		source = "curated"
	}

	if !e.current(u.ID, a.gen) {
		slog.Info("discarding stale quiz questions", "user_id", u.ID, "topic_id", topicID)
		return View{}, ErrStale
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy = false
	if err := s.Begin(questions); err != nil {
		return View{}, err
	}
	slog.Info("quiz started",
		"user_id", u.ID,
		"topic_id", topicID,
		"questions", len(questions),
		"source", source,
	)

	v := viewOf(s)
	user, err := e.settle(ctx, sess, a)
	if err != nil {
		return v, err
	}
	v.User = user
	return v, nil
}

// Current returns the user's running quiz.
func (e *Engine) Current(ctx context.Context, sess *identity.Session) (View, error) {
	var v View
	err := e.with(ctx, sess, func(a *active) error {
		user, err := e.settle(ctx, sess, a)
		if err != nil {
			return err
		}
		v = viewOf(a.session)
		v.User = user
		return nil
	})
	return v, err
}

// Select records a pending choice for the current question.
func (e *Engine) Select(ctx context.Context, sess *identity.Session, option int) (View, error) {
	return e.step(ctx, sess, func(s *Session) error {
		return s.Select(option)
	})
}

// Check commits the pending choice.
func (e *Engine) Check(ctx context.Context, sess *identity.Session) (View, error) {
	return e.step(ctx, sess, func(s *Session) error {
		_, err := s.Check()
		return err
	})
}

// Next advances the quiz. Reaching the result records the attempt and
// awards its XP. If recording failed, Next retries it.
func (e *Engine) Next(ctx context.Context, sess *identity.Session) (View, error) {
	var v View
	err := e.with(ctx, sess, func(a *active) error {
		if !a.session.Finished() || a.recorded {
			if _, err := a.session.Next(); err != nil {
				return err
			}
		}
		user, err := e.settle(ctx, sess, a)
		if err != nil {
			return err
		}
		v = viewOf(a.session)
		v.User = user
		return nil
	})
	return v, err
}

// Review opens the answer review.
func (e *Engine) Review(ctx context.Context, sess *identity.Session) (View, error) {
	return e.step(ctx, sess, (*Session).Review)
}

// BackToResult closes the answer review.
func (e *Engine) BackToResult(ctx context.Context, sess *identity.Session) (View, error) {
	return e.step(ctx, sess, (*Session).BackToResult)
}

// HomeworkOptions moves to homework selection and offers three options.
// Only one request per quiz may be outstanding.
func (e *Engine) HomeworkOptions(ctx context.Context, sess *identity.Session) (View, error) {
	u, err := e.user(ctx, sess)
	if err != nil {
		return View{}, err
	}
	a, ok := e.lookup(u.ID)
	if !ok {
		return View{}, ErrNoQuiz
	}

	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		return View{}, ErrBusy
	}
	if _, err := e.settle(ctx, sess, a); err != nil {
		a.mu.Unlock()
		return View{}, err
	}
	s := a.session
	if s.State() == StateHomeworkChoice && len(s.Options()) > 0 {
		v := viewOf(s)
		a.mu.Unlock()
		return v, nil
	}
	if err := s.RequestHomework(); err != nil {
		a.mu.Unlock()
		return View{}, err
	}
	genCtx, release := a.bind(ctx)
	defer release()
	a.busy = true
	gen := a.gen
	req := tutor.HomeworkRequest{
		TopicTitle:  s.Topic.Title,
		Subject:     s.Subject.Name,
		Grade:       s.SchoolGrade,
		Performance: PerformanceLabel(s.Score(), s.Total()),
		UserID:      u.ID,
	}
	a.mu.Unlock()

	raw := tutor.FallbackHomeworkOptions()
	if e.generator != nil {
		raw = e.generator.GenerateHomeworkOptions(genCtx, req)
	}
	options := make([]homework.Option, len(raw))
	for i, o := range raw {
		options[i] = homework.OptionFrom(o)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy = false
	if !e.current(u.ID, gen) {
		slog.Info("discarding stale homework options", "user_id", u.ID)
		return View{}, ErrStale
	}
	if err := s.SetOptions(options); err != nil {
		return View{}, err
	}
	return viewOf(s), nil
}

// Choose turns an offered option into an assignment and ends the quiz.
func (e *Engine) Choose(ctx context.Context, sess *identity.Session, index int) (homework.Assignment, error) {
	var (
		out    homework.Assignment
		gen    uint64
		userID string
	)
	err := e.with(ctx, sess, func(a *active) error {
		gen = a.gen
		s := a.session
		userID = s.UserID
		if _, err := e.settle(ctx, sess, a); err != nil {
			return err
		}
		opt, err := s.ChooseHomework(index)
		if err != nil {
			return err
		}
		out, err = e.ledger.AddAssignment(ctx, homework.NewAssignment{
			UserID:      s.UserID,
			SchoolGrade: s.SchoolGrade,
			SubjectID:   s.Subject.ID,
			SubjectName: s.Subject.Name,
			TopicTitle:  s.Topic.Title,
		}, opt)
		if err != nil {
			s.state = StateHomeworkChoice
			return fmt.Errorf("choose homework: %w", err)
		}
		return nil
	})
	if err != nil {
		return homework.Assignment{}, err
	}
	e.drop(userID, gen)
	return out, nil
}

// Abandon discards the user's quiz and cancels any request in flight.
func (e *Engine) Abandon(ctx context.Context, sess *identity.Session) error {
	u, err := e.user(ctx, sess)
	if err != nil {
		return err
	}
	e.drop(u.ID, 0)
	return nil
}

// drop removes the user's quiz. A non-zero gen only removes that quiz.
func (e *Engine) drop(userID string, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.active[userID]; ok && (gen == 0 || a.gen == gen) {
		a.cancel()
		delete(e.active, userID)
	}
}

func (e *Engine) lookup(userID string) (*active, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.active[userID]
	return a, ok
}

func (e *Engine) current(userID string, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.active[userID]
	return ok && a.gen == gen
}

// with runs fn on the user's quiz under its lock.
func (e *Engine) with(ctx context.Context, sess *identity.Session, fn func(*active) error) error {
	u, err := e.user(ctx, sess)
	if err != nil {
		return err
	}
	a, ok := e.lookup(u.ID)
	if !ok {
		return ErrNoQuiz
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		return ErrBusy
	}
	return fn(a)
}

func (e *Engine) step(ctx context.Context, sess *identity.Session, fn func(*Session) error) (View, error) {
	var v View
	err := e.with(ctx, sess, func(a *active) error {
		user, err := e.settle(ctx, sess, a)
		if err != nil {
			return err
		}
		if err := fn(a.session); err != nil {
			return err
		}
		v = viewOf(a.session)
		v.User = user
		return nil
	})
	return v, err
}

// settle records a finished attempt that is not recorded yet. It returns
// nil when there is nothing to record. Called with a.mu held.
func (e *Engine) settle(ctx context.Context, sess *identity.Session, a *active) (*identity.User, error) {
	if a.recorded || !a.session.Finished() {
		return nil, nil
	}
	return e.finish(ctx, sess, a)
}

// finish records the attempt, awards its XP and logs the event. Steps that
// already succeeded are skipped on a retry.
func (e *Engine) finish(ctx context.Context, sess *identity.Session, a *active) (*identity.User, error) {
	s := a.session
	r := s.Result()
	if !a.saved {
		if _, err := e.progress.SaveQuizResult(ctx, sess, identity.QuizResult{
			TopicID:        s.Topic.ID,
			SubjectID:      s.Subject.ID,
			Score:          r.Score,
			TotalQuestions: r.Total,
			Grade:          r.Grade,
			Date:           s.finishedAt,
			TimeSpent:      r.TimeSpent,
		}); err != nil {
			return nil, fmt.Errorf("save quiz result: %w", err)
		}
		a.saved = true
	}
	user, err := e.progress.AddXP(ctx, sess, r.XP, s.Topic.ID)
	if err != nil {
		return nil, fmt.Errorf("award quiz xp: %w", err)
	}
	a.recorded = true

	if err := e.events.LogEvent(ctx, agent.Event{
		UserID:    s.UserID,
		EventType: agent.EventQuizCompleted,
		Data: map[string]any{
			"topic_id": s.Topic.ID,
			"score":    r.Score,
			"total":    r.Total,
			"grade":    r.Grade,
			"xp":       r.XP,
		},
	}); err != nil {
		slog.Warn("failed to log quiz event", "user_id", s.UserID, "error", err)
	}

	slog.Info("quiz finished",
		"user_id", s.UserID,
		"topic_id", s.Topic.ID,
		"score", r.Score,
		"total", r.Total,
		"grade", r.Grade,
	)
	return user, nil
}
