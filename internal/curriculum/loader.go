package curriculum

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data
var defaultData embed.FS

// Loader loads and caches the static curriculum.
type Loader struct {
	grades        map[int]GradeLevel
	teachingNotes map[string]string
	mu            sync.RWMutex
}

// NewLoader loads curriculum files from rootDir. An empty rootDir loads
// the built-in data set.
func NewLoader(rootDir string) (*Loader, error) {
	if rootDir == "" {
		sub, err := fs.Sub(defaultData, "data")
		if err != nil {
			return nil, fmt.Errorf("open built-in curriculum: %w", err)
		}
		return NewLoaderFS(sub)
	}
	return NewLoaderFS(os.DirFS(rootDir))
}

// NewLoaderFS loads curriculum files from fsys. Grade files are YAML
// documents with a top-level grade; <topic-id>.teaching.md files carry
// notes passed to the tutor as extra context.
func NewLoaderFS(fsys fs.FS) (*Loader, error) {
	l := &Loader{
		grades:        make(map[int]GradeLevel),
		teachingNotes: make(map[string]string),
	}

	if err := l.loadAll(fsys); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "grades", len(l.grades), "teaching_notes", len(l.teachingNotes))
	return l, nil
}

// Grade returns a deep copy of a grade's curriculum.
func (l *Loader) Grade(grade int) (GradeLevel, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.grades[grade]
	if !ok {
		return GradeLevel{}, false
	}
	return g.clone(), true
}

// Grades lists the loaded grades in ascending order.
func (l *Loader) Grades() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]int, 0, len(l.grades))
	for g := range l.grades {
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}

// GetTeachingNotes returns teaching notes for a topic ID.
func (l *Loader) GetTeachingNotes(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.teachingNotes[id]
	return n, ok
}

func (l *Loader) loadAll(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(p, ".teaching.md"):
			return l.loadTeachingNotes(fsys, p)
		case strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml"):
			return l.loadGrade(fsys, p)
		}
		return nil
	})
}

func (l *Loader) loadGrade(fsys fs.FS, p string) error {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return err
	}

	var grade GradeLevel
	if err := yaml.Unmarshal(data, &grade); err != nil {
		slog.Warn("skipping invalid curriculum YAML", "path", p, "error", err)
		return nil
	}
	if grade.Grade == 0 {
		return nil // Not a grade file
	}
	for i := range grade.Subjects {
		if grade.Subjects[i].Topics == nil {
			grade.Subjects[i].Topics = []Topic{}
		}
		for j := range grade.Subjects[i].Topics {
			if grade.Subjects[i].Topics[j].QuizQuestions == nil {
				grade.Subjects[i].Topics[j].QuizQuestions = []QuizQuestion{}
			}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.grades[grade.Grade]; ok {
		existing.Subjects = append(existing.Subjects, grade.Subjects...)
		l.grades[grade.Grade] = existing
		return nil
	}
	l.grades[grade.Grade] = grade
	return nil
}

func (l *Loader) loadTeachingNotes(fsys fs.FS, p string) error {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return err
	}
	id := strings.TrimSuffix(path.Base(p), ".teaching.md")

	l.mu.Lock()
	l.teachingNotes[id] = string(data)
	l.mu.Unlock()

	return nil
}
