package api

import (
	"net/http"

	"github.com/p-n-ai/eznannya/internal/homework"
)

// handleListHomework lists the user's assignments across every grade, or
// for a single grade with ?grade=N.
func (s *Server) handleListHomework(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	grade, err := intParam(r, "grade", 0)
	if err != nil {
		fail(w, r, err)
		return
	}
	list, err := s.Ledger.ListAssignments(r.Context(), u.ID, grade)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// assignment loads the {id} assignment if the user may see it.
func (s *Server) assignment(r *http.Request) (*homework.Assignment, error) {
	a, err := s.Ledger.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if a == nil || (a.UserID != "" && a.UserID != userFrom(r).ID) {
		return nil, homework.ErrNotFound
	}
	return a, nil
}

func (s *Server) handleGetHomework(w http.ResponseWriter, r *http.Request) {
	a, err := s.assignment(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleHomeworkStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := s.assignment(r); err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Status homework.Status `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	a, err := s.Ledger.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		fail(w, r, err)
		return
	}
	if a == nil {
		fail(w, r, homework.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleSubmitHomework(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answer string `json:"answer"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sub, err := s.Grader.Submit(r.Context(), sessionFrom(r), r.PathValue("id"), req.Answer)
	if err != nil {
		fail(w, r, err)
		return
	}
	if sub == nil {
		fail(w, r, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Err: errSignedOut})
		return
	}
	if sub.User != nil {
		pub := sub.User.Public()
		sub.User = &pub
	}
	writeJSON(w, http.StatusOK, sub)
}
