package api

import (
	"net/http"
	"strings"
)

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Social.SearchUsers(r.Context(), sessionFrom(r), r.URL.Query().Get("q"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.Social.ListFriends(r.Context(), sessionFrom(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

func (s *Server) handleOnlineFriends(w http.ResponseWriter, r *http.Request) {
	n, err := s.Social.OnlineFriendCount(r.Context(), sessionFrom(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"online": n})
}

func (s *Server) handleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	if err := s.Social.RemoveFriend(r.Context(), sessionFrom(r), r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIncomingRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.Social.ListIncomingRequests(r.Context(), sessionFrom(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleOutgoingRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.Social.ListOutgoingRequests(r.Context(), sessionFrom(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// handleSendRequest answers 201 with the new request, or 200 with
// sent=false when the request was a duplicate or pointless.
func (s *Server) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		fail(w, r, badRequest("userId", "is required"))
		return
	}
	fr, err := s.Social.SendFriendRequest(r.Context(), sessionFrom(r), req.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if fr == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"sent": false})
		return
	}
	writeJSON(w, http.StatusCreated, fr)
}

func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	edge, err := s.Social.AcceptRequest(r.Context(), sessionFrom(r), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if edge == nil {
		fail(w, r, notFound("friend request"))
		return
	}
	writeJSON(w, http.StatusOK, edge)
}

func (s *Server) handleDeclineRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.Social.DeclineRequest(r.Context(), sessionFrom(r), r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
