package homework

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/p-n-ai/eznannya/internal/agent"
	"github.com/p-n-ai/eznannya/internal/identity"
	"github.com/p-n-ai/eznannya/internal/tutor"
)

// MinRewardGrade is the lowest grade that still earns XP.
const MinRewardGrade = 6

// Progress is the part of the identity manager the grader needs.
type Progress interface {
	CurrentUser(ctx context.Context, sess *identity.Session) (*identity.User, error)
	AddXP(ctx context.Context, sess *identity.Session, amount int, topicID string) (*identity.User, error)
}

// Reviewer grades a homework answer.
type Reviewer interface {
	GradeSubmission(ctx context.Context, req tutor.GradeRequest) tutor.Grading
}

// Submission is the outcome of Grader.Submit.
type Submission struct {
	Assignment Assignment     `json:"assignment"`
	Grading    tutor.Grading  `json:"grading"`
	XPAwarded  int            `json:"xpAwarded"`
	User       *identity.User `json:"user,omitempty"`
}

// Grader runs the submit flow: grade the answer, record it and award XP.
type Grader struct {
	ledger   *Ledger
	reviewer Reviewer
	progress Progress
	events   agent.EventLogger

	mu   sync.Mutex
	busy map[string]struct{}
}

// NewGrader creates a Grader. A nil event logger discards events.
func NewGrader(ledger *Ledger, reviewer Reviewer, progress Progress, events agent.EventLogger) *Grader {
	if events == nil {
		events = agent.NopEventLogger{}
	}
	return &Grader{
		ledger:   ledger,
		reviewer: reviewer,
		progress: progress,
		events:   events,
		busy:     make(map[string]struct{}),
	}
}

// RewardFor returns the XP earned for a graded assignment.
func RewardFor(xpReward, grade int) int {
	if grade < MinRewardGrade {
		return 0
	}
	return xpReward + grade*5
}

// Submit grades answer for the session user's assignment. It returns nil
// without a session user and ErrBusy while the same assignment is already
// being graded.
func (g *Grader) Submit(ctx context.Context, sess *identity.Session, id, answer string) (*Submission, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, identity.ValidationError{Field: "answer", Message: "answer is required"}
	}

	user, err := g.progress.CurrentUser(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("submit homework: %w", err)
	}
	if user == nil {
		return nil, nil
	}

	if !g.acquire(id) {
		return nil, ErrBusy
	}
	defer g.release(id)

	a, err := g.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("submit homework: %w", err)
	}
	if a == nil || !a.visibleTo(user.ID) {
		return nil, ErrNotFound
	}
	if a.Completed() {
		if a.PendingXP == 0 {
			return nil, ErrCompleted
		}
		// Graded earlier but the reward was never added.
		grading := tutor.Grading{Grade: a.Grade, Feedback: a.TeacherFeedback, IsCorrect: a.Grade >= MinRewardGrade}
		return g.award(ctx, sess, user, a, grading)
	}

	grading := g.reviewer.GradeSubmission(ctx, tutor.GradeRequest{
		Subject:     a.SubjectName,
		Topic:       a.TopicTitle,
		Description: a.Description,
		Answer:      answer,
		UserID:      user.ID,
	})

	saved, err := g.ledger.complete(ctx, id, answer, grading.Grade, grading.Feedback, RewardFor(a.XPReward, grading.Grade))
	if err != nil {
		return nil, fmt.Errorf("submit homework: %w", err)
	}
	if saved == nil {
		return nil, ErrNotFound
	}
	return g.award(ctx, sess, user, saved, grading)
}

// award adds the assignment's owed XP and logs the submission. The reward
// stays owed if adding it fails, so a resubmit can retry it.
func (g *Grader) award(ctx context.Context, sess *identity.Session, user *identity.User, a *Assignment, grading tutor.Grading) (*Submission, error) {
	res := &Submission{Assignment: *a, Grading: grading, User: user}
	if xp := a.PendingXP; xp > 0 {
		updated, err := g.progress.AddXP(ctx, sess, xp, "")
		if err != nil {
			return nil, fmt.Errorf("award homework xp: %w", err)
		}
		res.XPAwarded = xp
		if updated != nil {
			res.User = updated
		}
		settled, err := g.ledger.settleReward(ctx, a.ID)
		if err != nil {
			slog.Warn("failed to settle homework reward", "assignment_id", a.ID, "error", err)
		} else if settled != nil {
			res.Assignment = *settled
		}
	}

	if err := g.events.LogEvent(ctx, agent.Event{
		UserID:    user.ID,
		EventType: agent.EventHomeworkSubmitted,
		Data: map[string]any{
			"assignment_id": a.ID,
			"grade":         grading.Grade,
			"xp":            res.XPAwarded,
		},
	}); err != nil {
		slog.Warn("failed to log homework event", "user_id", user.ID, "error", err)
	}

	return res, nil
}

func (g *Grader) acquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.busy[id]; ok {
		return false
	}
	g.busy[id] = struct{}{}
	return true
}

func (g *Grader) release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.busy, id)
}
