package curriculum

// QuizQuestion is a curated multiple-choice question.
type QuizQuestion struct {
	ID            string   `yaml:"id" json:"id"`
	Question      string   `yaml:"question" json:"question"`
	Options       []string `yaml:"options" json:"options"`
	CorrectAnswer int      `yaml:"correct_answer" json:"correctAnswer"` // index into Options
}

// Topic is one lesson inside a subject.
type Topic struct {
	ID            string         `yaml:"id" json:"id"`
	Title         string         `yaml:"title" json:"title"`
	Description   string         `yaml:"description" json:"description"`
	Content       string         `yaml:"content" json:"content"` // Markdown
	QuizQuestions []QuizQuestion `yaml:"quiz_questions" json:"quizQuestions"`
}

// Subject groups the topics of one school subject in a grade.
type Subject struct {
	ID     string  `yaml:"id" json:"id"`
	Name   string  `yaml:"name" json:"name"`
	Icon   string  `yaml:"icon" json:"icon"`
	Topics []Topic `yaml:"topics" json:"topics"`
}

// GradeLevel is the curriculum of one school grade.
type GradeLevel struct {
	Grade    int       `yaml:"grade" json:"grade"`
	Subjects []Subject `yaml:"subjects" json:"subjects"`
}

// Subject returns the subject with the given id.
func (g *GradeLevel) Subject(id string) (*Subject, bool) {
	for i := range g.Subjects {
		if g.Subjects[i].ID == id {
			return &g.Subjects[i], true
		}
	}
	return nil, false
}

// clone returns a deep copy so callers can never reach the loaded data.
func (g GradeLevel) clone() GradeLevel {
	out := GradeLevel{Grade: g.Grade, Subjects: make([]Subject, len(g.Subjects))}
	for i, s := range g.Subjects {
		s.Topics = cloneTopics(s.Topics)
		out.Subjects[i] = s
	}
	return out
}

func cloneTopics(topics []Topic) []Topic {
	out := make([]Topic, len(topics))
	for i, t := range topics {
		out[i] = t.clone()
	}
	return out
}

func (t Topic) clone() Topic {
	qs := make([]QuizQuestion, len(t.QuizQuestions))
	for i, q := range t.QuizQuestions {
		q.Options = append([]string(nil), q.Options...)
		qs[i] = q
	}
	t.QuizQuestions = qs
	return t
}
