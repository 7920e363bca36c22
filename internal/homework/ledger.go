package homework

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/eznannya/internal/store"
)

// Ledger reads and writes the homework collection.
type Ledger struct {
	store store.Store
	now   func() time.Time
	loc   *time.Location
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithClock sets the ledger's clock.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLocation sets the time zone due dates are computed in.
func WithLocation(loc *time.Location) LedgerOption {
	return func(l *Ledger) {
		l.loc = loc
	}
}

// NewLedger creates a homework ledger over s.
func NewLedger(s store.Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{store: s, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListAssignments returns the user's assignments, most recent first.
// An empty userID lists every owner and grade 0 lists every school grade.
func (l *Ledger) ListAssignments(ctx context.Context, userID string, grade int) ([]Assignment, error) {
	all, _, err := store.Load[Assignment](ctx, l.store, store.Homework)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	out := make([]Assignment, 0, len(all))
	for _, a := range all {
		if a.visibleTo(userID) && a.inGrade(grade) {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetByID returns the assignment, or nil if there is none.
func (l *Ledger) GetByID(ctx context.Context, id string) (*Assignment, error) {
	all, _, err := store.Load[Assignment](ctx, l.store, store.Homework)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, nil
}

// NewAssignment names the owner and origin of a new assignment.
type NewAssignment struct {
	UserID      string
	SchoolGrade int
	SubjectID   string
	SubjectName string
	TopicTitle  string
}

// AddAssignment records the chosen option as a new assignment due
// tomorrow and puts it at the front of the list.
func (l *Ledger) AddAssignment(ctx context.Context, na NewAssignment, opt Option) (Assignment, error) {
	a := Assignment{
		ID:          "hw-" + uuid.NewString(),
		UserID:      na.UserID,
		SchoolGrade: na.SchoolGrade,
		SubjectID:   na.SubjectID,
		SubjectName: na.SubjectName,
		TopicTitle:  opt.Title,
		SourceTopic: na.TopicTitle,
		Description: opt.Description,
		DueDate:     l.now().In(l.loc).AddDate(0, 0, 1).Format(time.DateOnly),
		Status:      StatusNotStarted,
		Difficulty:  opt.Difficulty,
		XPReward:    opt.XPReward,
	}

	err := store.Update(ctx, l.store, store.Homework, func(all []Assignment) ([]Assignment, error) {
		return append([]Assignment{a}, all...), nil
	})
	if err != nil {
		return Assignment{}, fmt.Errorf("add assignment: %w", err)
	}
	return a, nil
}

// UpdateStatus moves an open assignment between the pre-grading stages.
// Completing an assignment goes through SaveSubmission. Unknown ids are a
// no-op and return nil.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, status Status) (*Assignment, error) {
	switch status {
	case StatusNotStarted, StatusInProgress, StatusSubmitted:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	return l.modify(ctx, id, func(a *Assignment) error {
		if a.Completed() {
			return ErrCompleted
		}
		a.Status = status
		return nil
	})
}

// SaveSubmission marks the assignment completed with its answer, grade
// and feedback. Unknown ids are a no-op and return nil.
func (l *Ledger) SaveSubmission(ctx context.Context, id, answer string, grade int, feedback string) (*Assignment, error) {
	completedAt := l.now()
	return l.modify(ctx, id, func(a *Assignment) error {
		a.grade(answer, grade, feedback, completedAt)
		return nil
	})
}

// complete is SaveSubmission for the grader. It books pendingXP as owed
// and fails with ErrCompleted if the assignment was graded meanwhile.
func (l *Ledger) complete(ctx context.Context, id, answer string, grade int, feedback string, pendingXP int) (*Assignment, error) {
	completedAt := l.now()
	return l.modify(ctx, id, func(a *Assignment) error {
		if a.Completed() {
			return ErrCompleted
		}
		a.grade(answer, grade, feedback, completedAt)
		a.PendingXP = pendingXP
		return nil
	})
}

// settleReward clears the owed reward once it has been awarded.
func (l *Ledger) settleReward(ctx context.Context, id string) (*Assignment, error) {
	return l.modify(ctx, id, func(a *Assignment) error {
		if a.PendingXP == 0 {
			return store.ErrNoChange
		}
		a.PendingXP = 0
		return nil
	})
}

func (l *Ledger) modify(ctx context.Context, id string, fn func(*Assignment) error) (*Assignment, error) {
	var updated *Assignment
	err := store.Update(ctx, l.store, store.Homework, func(all []Assignment) ([]Assignment, error) {
		updated = nil
		for i := range all {
			if all[i].ID != id {
				continue
			}
			if err := fn(&all[i]); err != nil {
				return nil, err
			}
			a := all[i]
			updated = &a
			return all, nil
		}
		return nil, store.ErrNoChange
	})
	if err != nil {
		return nil, fmt.Errorf("update assignment %s: %w", id, err)
	}
	return updated, nil
}
