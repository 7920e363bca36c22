package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/p-n-ai/eznannya/internal/identity"
	"github.com/p-n-ai/eznannya/internal/quiz"
)

type quizStep func(ctx context.Context, sess *identity.Session) (quiz.View, error)

// writeView answers with the quiz snapshot, hiding the password hash of
// the user attached to a finishing step.
func writeView(w http.ResponseWriter, r *http.Request, status int, v quiz.View, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	if v.User != nil {
		pub := v.User.Public()
		v.User = &pub
	}
	writeJSON(w, status, v)
}

func (s *Server) quizStep(step quizStep) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := step(r.Context(), sessionFrom(r))
		writeView(w, r, http.StatusOK, v, err)
	}
}

func (s *Server) handleQuizStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TopicID string `json:"topicId"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.TopicID) == "" {
		fail(w, r, badRequest("topicId", "is required"))
		return
	}
	v, err := s.Quiz.Start(r.Context(), sessionFrom(r), req.TopicID)
	writeView(w, r, http.StatusCreated, v, err)
}

func (s *Server) handleQuizCurrent(w http.ResponseWriter, r *http.Request) {
	s.quizStep(s.Quiz.Current)(w, r)
}

func (s *Server) handleQuizSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Option *int `json:"option"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Option == nil {
		fail(w, r, badRequest("option", "is required"))
		return
	}
	v, err := s.Quiz.Select(r.Context(), sessionFrom(r), *req.Option)
	writeView(w, r, http.StatusOK, v, err)
}

func (s *Server) handleQuizCheck(w http.ResponseWriter, r *http.Request) {
	s.quizStep(s.Quiz.Check)(w, r)
}

func (s *Server) handleQuizNext(w http.ResponseWriter, r *http.Request) {
	s.quizStep(s.Quiz.Next)(w, r)
}

func (s *Server) handleQuizReview(w http.ResponseWriter, r *http.Request) {
	s.quizStep(s.Quiz.Review)(w, r)
}

func (s *Server) handleQuizResult(w http.ResponseWriter, r *http.Request) {
	s.quizStep(s.Quiz.BackToResult)(w, r)
}

func (s *Server) handleQuizHomework(w http.ResponseWriter, r *http.Request) {
	s.quizStep(s.Quiz.HomeworkOptions)(w, r)
}

func (s *Server) handleQuizChoose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index *int `json:"index"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Index == nil {
		fail(w, r, badRequest("index", "is required"))
		return
	}
	a, err := s.Quiz.Choose(r.Context(), sessionFrom(r), *req.Index)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleQuizAbandon(w http.ResponseWriter, r *http.Request) {
	if err := s.Quiz.Abandon(r.Context(), sessionFrom(r)); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
