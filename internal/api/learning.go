package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/p-n-ai/eznannya/internal/agent"
	"github.com/p-n-ai/eznannya/internal/ai"
	"github.com/p-n-ai/eznannya/internal/curriculum"
	"github.com/p-n-ai/eznannya/internal/tutor"
)

func (s *Server) handleCurriculum(w http.ResponseWriter, r *http.Request) {
	grade, err := intParam(r, "grade", userFrom(r).Grade)
	if err != nil {
		fail(w, r, err)
		return
	}
	g, ok, err := s.Curriculum.GetCurriculum(r.Context(), grade)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !ok {
		fail(w, r, notFound(fmt.Sprintf("curriculum for grade %d", grade)))
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleAddTopic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectID   string `json:"subjectId"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		fail(w, r, badRequest("title", "is required"))
		return
	}
	grade := userFrom(r).Grade
	g, ok, err := s.Curriculum.GetCurriculum(r.Context(), grade)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !ok {
		fail(w, r, notFound(fmt.Sprintf("curriculum for grade %d", grade)))
		return
	}
	if _, ok := g.Subject(req.SubjectID); !ok {
		fail(w, r, badRequest("subjectId", "unknown subject"))
		return
	}
	topic, err := s.Curriculum.AddTopic(r.Context(), grade, req.SubjectID, req.Title, req.Description)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, topic)
}

// topic resolves the {id} path value within the user's grade.
func (s *Server) topic(r *http.Request) (*curriculum.Located, error) {
	loc, ok, err := s.Curriculum.FindTopic(r.Context(), userFrom(r).Grade, r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("topic")
	}
	return loc, nil
}

func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	loc, err := s.topic(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subjectId":   loc.Subject.ID,
		"subjectName": loc.Subject.Name,
		"engine":      curriculum.EngineFor(loc.Topic.ID, loc.Subject.Name),
		"topic":       loc.Topic,
	})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	loc, err := s.topic(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	u := userFrom(r)
	notes, _ := s.Curriculum.Loader().GetTeachingNotes(loc.Topic.ID)
	text := s.Tutor.Explain(r.Context(), tutor.ExplainRequest{
		TopicTitle: loc.Topic.Title,
		Subject:    loc.Subject.Name,
		Grade:      u.Grade,
		Style:      u.PreferredStyle,
		Notes:      notes,
		UserID:     u.ID,
	})
	writeJSON(w, http.StatusOK, map[string]string{"content": text})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	loc, err := s.topic(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Data json.RawMessage `json:"data"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if len(req.Data) == 0 {
		fail(w, r, badRequest("data", "is required"))
		return
	}
	u := userFrom(r)
	engine := curriculum.EngineFor(loc.Topic.ID, loc.Subject.Name)
	text := s.Tutor.SolveStructuredTask(r.Context(), tutor.TaskRequest{
		Subject: loc.Subject.Name,
		Grade:   u.Grade,
		Engine:  engine,
		Data:    req.Data,
		UserID:  u.ID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"engine": engine, "content": text})
}

func (s *Server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		fail(w, r, badRequest("description", "is required"))
		return
	}
	svg := s.Tutor.GenerateDiagram(r.Context(), req.Description, userFrom(r).ID)
	writeJSON(w, http.StatusOK, map[string]string{"svg": svg})
}

// handleChat answers one turn without keeping history on the server.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string       `json:"message"`
		Context string       `json:"context"`
		History []ai.Message `json:"history"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		fail(w, r, agent.ErrEmptyMessage)
		return
	}
	text := s.Tutor.Chat(r.Context(), tutor.ChatRequest{
		Message: req.Message,
		Context: req.Context,
		History: req.History,
		UserID:  userFrom(r).ID,
	})
	writeJSON(w, http.StatusOK, map[string]string{"content": text})
}

// lesson describes a topic for the chat persona.
func lesson(grade int, loc *curriculum.Located) string {
	return fmt.Sprintf("%s, %d клас: %s", loc.Subject.Name, grade, loc.Topic.Title)
}

func (s *Server) handleTopicChat(w http.ResponseWriter, r *http.Request) {
	loc, err := s.topic(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u := userFrom(r)
	reply, err := s.Agent.Ask(r.Context(), agent.ChatInput{
		UserID:  u.ID,
		TopicID: loc.Topic.ID,
		Lesson:  lesson(u.Grade, loc),
		Message: req.Message,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Agent.History(r.Context(), userFrom(r).ID, r.PathValue("id")))
}

func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	if err := s.Agent.Reset(r.Context(), userFrom(r).ID, r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
