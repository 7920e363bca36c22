package curriculum

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/p-n-ai/eznannya/internal/store"
)

const customTopicContent = "### %s\n\nЦя тема була створена користувачем.\n" +
	"Використовуйте АІ-чат, щоб згенерувати повне пояснення або розв'язати задачі по цій темі."

// CustomTopic is a user-authored topic attached to a grade and subject.
type CustomTopic struct {
	Grade     int    `json:"grade"`
	SubjectID string `json:"subjectId"`
	Topic     Topic  `json:"topic"`
}

// Located is a topic together with the subject it belongs to.
type Located struct {
	Grade   int
	Subject Subject
	Topic   Topic
}

// Resolver merges the static curriculum with custom topics.
type Resolver struct {
	loader *Loader
	store  store.Store
	now    func() time.Time
}

// NewResolver creates a resolver over the loaded curriculum.
func NewResolver(loader *Loader, s store.Store) *Resolver {
	return &Resolver{loader: loader, store: s, now: time.Now}
}

// WithClock replaces the clock used to stamp custom topic ids.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Loader exposes the underlying static curriculum.
func (r *Resolver) Loader() *Loader {
	return r.loader
}

// GetCurriculum returns a private copy of a grade's curriculum with its
// custom topics appended to their subjects. The bool is false when the
// grade has no curriculum.
func (r *Resolver) GetCurriculum(ctx context.Context, grade int) (*GradeLevel, bool, error) {
	g, ok := r.loader.Grade(grade)
	if !ok {
		return nil, false, nil
	}

	custom, _, err := store.Load[CustomTopic](ctx, r.store, store.CustomTopics)
	if err != nil {
		return nil, false, err
	}
	for _, rec := range custom {
		if rec.Grade != grade {
			continue
		}
		if subj, ok := g.Subject(rec.SubjectID); ok {
			subj.Topics = append(subj.Topics, rec.Topic.clone())
		}
	}
	return &g, true, nil
}

// AddTopic records a custom topic with placeholder content and no curated
// questions.
func (r *Resolver) AddTopic(ctx context.Context, grade int, subjectID, title, description string) (Topic, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Topic{}, fmt.Errorf("add topic: title is required")
	}

	topic := Topic{
		ID:            fmt.Sprintf("custom-%d", r.now().UnixMilli()),
		Title:         title,
		Description:   strings.TrimSpace(description),
		Content:       fmt.Sprintf(customTopicContent, title),
		QuizQuestions: []QuizQuestion{},
	}

	err := store.Update(ctx, r.store, store.CustomTopics, func(recs []CustomTopic) ([]CustomTopic, error) {
		for _, rec := range recs {
			if rec.Topic.ID == topic.ID {
				topic.ID = fmt.Sprintf("%s-%d", topic.ID, len(recs))
				break
			}
		}
		return append(recs, CustomTopic{Grade: grade, SubjectID: subjectID, Topic: topic}), nil
	})
	if err != nil {
		return Topic{}, fmt.Errorf("add topic: %w", err)
	}

	slog.Info("custom topic added", "grade", grade, "subject_id", subjectID, "topic_id", topic.ID)
	return topic, nil
}

// FindTopic looks a topic up by id within a grade, custom topics included.
func (r *Resolver) FindTopic(ctx context.Context, grade int, topicID string) (*Located, bool, error) {
	g, ok, err := r.GetCurriculum(ctx, grade)
	if err != nil || !ok {
		return nil, false, err
	}
	for _, s := range g.Subjects {
		for _, t := range s.Topics {
			if t.ID == topicID {
				return &Located{Grade: grade, Subject: s, Topic: t}, true, nil
			}
		}
	}
	return nil, false, nil
}
