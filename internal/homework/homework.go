// Package homework keeps the homework ledger: assignments created from a
// quiz follow-up choice, submitted answers and their grades.
package homework

import (
	"errors"
	"strings"
	"time"

	"github.com/p-n-ai/eznannya/internal/tutor"
)

var (
	// ErrNotFound is returned when an assignment id is unknown to the caller.
	ErrNotFound = errors.New("homework assignment not found")
	// ErrCompleted is returned when an assignment was already graded.
	ErrCompleted = errors.New("homework assignment already completed")
	// ErrBusy is returned while a submission for the same assignment is
	// being graded.
	ErrBusy = errors.New("homework submission in progress")
	// ErrInvalidStatus is returned for status changes the ledger refuses.
	ErrInvalidStatus = errors.New("invalid homework status")
)

// Status is the lifecycle stage of an assignment.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
	StatusCompleted  Status = "COMPLETED"
)

// Difficulty tags an assignment's effort tier.
type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

// ParseDifficulty maps a model-chosen label onto a tier. Unknown labels
// are treated as Medium.
func ParseDifficulty(label string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "easy", "легкий", "легке", "легка":
		return Easy
	case "hard", "складний", "складне", "складна":
		return Hard
	default:
		return Medium
	}
}

// Option is a homework offer a student can pick.
type Option struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
	XPReward    int        `json:"xpReward"`
}

// OptionFrom converts a generated offer.
func OptionFrom(o tutor.HomeworkOption) Option {
	return Option{
		Title:       o.Title,
		Description: o.Description,
		Difficulty:  ParseDifficulty(o.Difficulty),
		XPReward:    o.XPReward,
	}
}

// Assignment is one unit of take-home work. Grade and TeacherFeedback are
// set exactly when Status is StatusCompleted.
type Assignment struct {
	ID     string `json:"id"`
	UserID string `json:"userId,omitempty"`
	// SchoolGrade is the owner's school grade when the assignment was made.
	SchoolGrade int    `json:"schoolGrade,omitempty"`
	SubjectID   string `json:"subjectId"`
	SubjectName string `json:"subjectName"`
	// TopicTitle is the display title, taken from the chosen option.
	TopicTitle string `json:"topicTitle"`
	// SourceTopic is the title of the quiz topic the assignment came from.
	SourceTopic     string     `json:"sourceTopic,omitempty"`
	Description     string     `json:"description,omitempty"`
	DueDate         string     `json:"dueDate"`
	Status          Status     `json:"status"`
	Difficulty      Difficulty `json:"difficulty"`
	XPReward        int        `json:"xpReward"`
	StudentAnswer   string     `json:"studentAnswer,omitempty"`
	TeacherFeedback string     `json:"teacherFeedback,omitempty"`
	Grade           int        `json:"grade,omitempty"` // 1-12
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	// PendingXP is a graded reward not yet added to the owner's XP.
	PendingXP int `json:"pendingXp,omitempty"`
}

// Completed reports whether the assignment has been graded.
func (a *Assignment) Completed() bool {
	return a.Status == StatusCompleted
}

func (a *Assignment) grade(answer string, grade int, feedback string, at time.Time) {
	a.Status = StatusCompleted
	a.StudentAnswer = answer
	a.Grade = grade
	a.TeacherFeedback = feedback
	a.CompletedAt = &at
}

// visibleTo reports whether the assignment belongs in userID's list.
// Records without an owner predate ownership and are shown to everyone.
func (a *Assignment) visibleTo(userID string) bool {
	return userID == "" || a.UserID == "" || a.UserID == userID
}

// inGrade applies the school grade filter. Zero matches everything.
func (a *Assignment) inGrade(grade int) bool {
	return grade == 0 || a.SchoolGrade == 0 || a.SchoolGrade == grade
}
