package curriculum_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/eznannya/internal/curriculum"
	"github.com/p-n-ai/eznannya/internal/store"
)

func newResolver(t *testing.T) *curriculum.Resolver {
	t.Helper()
	loader, err := curriculum.NewLoader("")
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	return curriculum.NewResolver(loader, store.NewMemoryStore()).WithClock(func() time.Time { return now })
}

func TestGetCurriculum_CustomTopicsAppended(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()

	base, ok, err := r.GetCurriculum(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("GetCurriculum(7) = %v, %v", ok, err)
	}
	subj, _ := base.Subject("phys-7")
	baseLen := len(subj.Topics)

	first, err := r.AddTopic(ctx, 7, "phys-7", "Архімедова сила", "Виштовхувальна сила")
	if err != nil {
		t.Fatalf("AddTopic() error = %v", err)
	}
	second, err := r.AddTopic(ctx, 7, "phys-7", "Плавання тіл", "")
	if err != nil {
		t.Fatalf("AddTopic() error = %v", err)
	}
	if first.ID == second.ID {
		t.Errorf("custom topics share id %q", first.ID)
	}
	if !strings.HasPrefix(first.ID, "custom-") {
		t.Errorf("custom topic id = %q, want custom- prefix", first.ID)
	}
	if len(first.QuizQuestions) != 0 || !strings.Contains(first.Content, "Архімедова сила") {
		t.Errorf("custom topic = %+v", first)
	}

	merged, _, err := r.GetCurriculum(ctx, 7)
	if err != nil {
		t.Fatalf("GetCurriculum() error = %v", err)
	}
	subj, _ = merged.Subject("phys-7")
	if len(subj.Topics) != baseLen+2 {
		t.Errorf("len(topics) = %d, want %d", len(subj.Topics), baseLen+2)
	}

	static, _ := r.Loader().Grade(7)
	staticSubj, _ := static.Subject("phys-7")
	if len(staticSubj.Topics) != baseLen {
		t.Errorf("static data mutated: %d topics, want %d", len(staticSubj.Topics), baseLen)
	}
}

func TestGetCurriculum_OtherGradeUnaffected(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()

	before, _, _ := r.GetCurriculum(ctx, 8)
	if _, err := r.AddTopic(ctx, 7, "alg-7", "Custom", ""); err != nil {
		t.Fatalf("AddTopic() error = %v", err)
	}
	after, _, _ := r.GetCurriculum(ctx, 8)

	for i := range before.Subjects {
		if len(before.Subjects[i].Topics) != len(after.Subjects[i].Topics) {
			t.Errorf("grade 8 subject %s changed", before.Subjects[i].ID)
		}
	}
}

func TestGetCurriculum_UnknownGrade(t *testing.T) {
	r := newResolver(t)
	g, ok, err := r.GetCurriculum(context.Background(), 3)
	if err != nil || ok || g != nil {
		t.Errorf("GetCurriculum(3) = %v, %v, %v; want nil, false, nil", g, ok, err)
	}
}

func TestGetCurriculum_MutationIsPrivate(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()

	g, _, _ := r.GetCurriculum(ctx, 5)
	g.Subjects[0].Topics = nil

	again, _, _ := r.GetCurriculum(ctx, 5)
	if len(again.Subjects[0].Topics) == 0 {
		t.Error("mutating a returned curriculum changed later reads")
	}
}

func TestAddTopic_RequiresTitle(t *testing.T) {
	r := newResolver(t)
	if _, err := r.AddTopic(context.Background(), 7, "alg-7", "  ", ""); err == nil {
		t.Error("AddTopic() should reject an empty title")
	}
}

func TestFindTopic(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()

	loc, ok, err := r.FindTopic(ctx, 7, "phys-7-4")
	if err != nil || !ok {
		t.Fatalf("FindTopic() = %v, %v", ok, err)
	}
	if loc.Subject.ID != "phys-7" || loc.Topic.Title == "" {
		t.Errorf("FindTopic() = %+v", loc)
	}

	custom, _ := r.AddTopic(ctx, 7, "alg-7", "Системи рівнянь", "")
	loc, ok, _ = r.FindTopic(ctx, 7, custom.ID)
	if !ok || loc.Subject.ID != "alg-7" {
		t.Errorf("FindTopic(custom) = %+v, %v", loc, ok)
	}

	if _, ok, _ := r.FindTopic(ctx, 7, "missing"); ok {
		t.Error("FindTopic(missing) should not be found")
	}
}

func TestEngineFor(t *testing.T) {
	tests := []struct {
		topicID string
		subject string
		want    curriculum.EngineType
	}{
		{"alg-7-1", "Алгебра", curriculum.LabLinearEquation},
		{"ukr-5-2", "Українська мова", curriculum.LabWordStructure},
		{"phys-7-4", "Фізика", curriculum.LabPressure},
		{"hist-5-1", "Історія України", curriculum.LabHistoryChronology},
		{"geo-6-2", "Географія", curriculum.LabMapScale},
		{"alg-7-2", "Алгебра", curriculum.EngineMath},
		{"geom-9-1", "Геометрія", curriculum.EngineMath},
		{"phys-11-1", "Фізика", curriculum.EnginePhysics},
		{"chem-8-1", "Хімія", curriculum.EngineChemistry},
		{"hist-8-1", "Історія України", curriculum.EngineHistory},
		{"eng-9-1", "Англійська мова", curriculum.EngineLanguage},
		{"bio-6-1", "Біологія", curriculum.EngineBiology},
		{"geo-6-1", "Географія", curriculum.EngineGeography},
		{"x", "Mathematics", curriculum.EngineMath},
		{"x", "Музичне мистецтво", curriculum.EngineLanguage},
	}
	for _, tt := range tests {
		t.Run(tt.topicID+"/"+tt.subject, func(t *testing.T) {
			if got := curriculum.EngineFor(tt.topicID, tt.subject); got != tt.want {
				t.Errorf("EngineFor(%q, %q) = %q, want %q", tt.topicID, tt.subject, got, tt.want)
			}
		})
	}

	if !curriculum.LabPressure.IsLab() || curriculum.EngineMath.IsLab() {
		t.Error("IsLab() misclassifies engines")
	}
}
