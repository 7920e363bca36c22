// Package report exports a student's progress as an Excel workbook.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/eznannya/internal/curriculum"
	"github.com/p-n-ai/eznannya/internal/homework"
	"github.com/p-n-ai/eznannya/internal/identity"
	"github.com/p-n-ai/eznannya/internal/quiz"
)

// Sheet names.
const (
	SheetProfile  = "Профіль"
	SheetQuizzes  = "Тести"
	SheetHomework = "Домашні завдання"
)

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	quizHeader     = []any{"Дата", "Тема", "Бали", "Питань", "Оцінка", "Точність, %", "Час"}
	homeworkHeader = []any{"Предмет", "Завдання", "Тема", "Складність", "Статус", "Термін", "Оцінка", "XP"}
)

// Progress is everything the workbook shows.
type Progress struct {
	User        identity.User
	Assignments []homework.Assignment
	// TopicTitles maps topic ids to titles; unknown ids are shown as is.
	TopicTitles map[string]string
}

// Users reads the session user.
type Users interface {
	CurrentUser(ctx context.Context, sess *identity.Session) (*identity.User, error)
}

// Curricula reads a grade's curriculum.
type Curricula interface {
	GetCurriculum(ctx context.Context, grade int) (*curriculum.GradeLevel, bool, error)
}

// Reporter gathers progress data for the session user.
type Reporter struct {
	users     Users
	ledger    *homework.Ledger
	curricula Curricula
}

// NewReporter creates a Reporter.
func NewReporter(users Users, ledger *homework.Ledger, curricula Curricula) *Reporter {
	return &Reporter{users: users, ledger: ledger, curricula: curricula}
}

// Load collects the session user's progress. It returns nil when the
// session has no user.
func (r *Reporter) Load(ctx context.Context, sess *identity.Session) (*Progress, error) {
	u, err := r.users.CurrentUser(ctx, sess)
	if err != nil || u == nil {
		return nil, err
	}
	assignments, err := r.ledger.ListAssignments(ctx, u.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	titles := map[string]string{}
	if g, ok, err := r.curricula.GetCurriculum(ctx, u.Grade); err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	} else if ok {
		for _, s := range g.Subjects {
			for _, t := range s.Topics {
				titles[t.ID] = t.Title
			}
		}
	}
	return &Progress{User: *u, Assignments: assignments, TopicTitles: titles}, nil
}

// Write renders p as an xlsx workbook.
func Write(w io.Writer, p Progress) error {
	f, err := Workbook(p)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Workbook builds the workbook. The caller closes it.
func Workbook(p Progress) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := build(f, p); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func build(f *excelize.File, p Progress) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetProfile); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	u := p.User
	profile := [][]any{
		{"Ім'я", u.Username},
		{"Email", u.Email},
		{"Клас", u.Grade},
		{"Рівень", u.Level},
		{"XP", u.XP},
		{"Серія днів", u.Streak},
		{"Пройдені теми", len(u.CompletedTopics)},
		{"Тестів складено", len(u.QuizResults)},
	}
	if err := writeRows(f, SheetProfile, profile); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetProfile, "A1", fmt.Sprintf("A%d", len(profile)), bold); err != nil {
		return fmt.Errorf("style profile: %w", err)
	}

	quizzes := [][]any{quizHeader}
	for _, r := range u.QuizResults {
		title, ok := p.TopicTitles[r.TopicID]
		if !ok {
			title = r.TopicID
		}
		quizzes = append(quizzes, []any{
			r.Date.Format("2006-01-02 15:04"),
			title,
			r.Score,
			r.TotalQuestions,
			r.Grade,
			quiz.Accuracy(r.Score, r.TotalQuestions),
			quiz.FormatDuration(timeSpent(r)),
		})
	}
	if err := table(f, SheetQuizzes, quizzes, bold); err != nil {
		return err
	}

	hw := [][]any{homeworkHeader}
	for _, a := range p.Assignments {
		var grade any = ""
		if a.Completed() {
			grade = a.Grade
		}
		hw = append(hw, []any{
			a.SubjectName,
			a.TopicTitle,
			a.SourceTopic,
			string(a.Difficulty),
			string(a.Status),
			a.DueDate,
			grade,
			a.XPReward,
		})
	}
	if err := table(f, SheetHomework, hw, bold); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return nil
}

// table writes rows to a new sheet with a bold header row.
func table(f *excelize.File, sheet string, rows [][]any, header int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	if err := writeRows(f, sheet, rows); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, header); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	lastCol, _, err := excelize.SplitCellName(last)
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return fmt.Errorf("size %s columns: %w", sheet, err)
	}
	return nil
}

func timeSpent(r identity.QuizResult) time.Duration {
	return time.Duration(r.TimeSpent) * time.Second
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
