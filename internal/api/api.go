// Package api exposes the learning platform over JSON HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/p-n-ai/eznannya/internal/agent"
	"github.com/p-n-ai/eznannya/internal/curriculum"
	"github.com/p-n-ai/eznannya/internal/homework"
	"github.com/p-n-ai/eznannya/internal/identity"
	"github.com/p-n-ai/eznannya/internal/platform/auth"
	"github.com/p-n-ai/eznannya/internal/presence"
	"github.com/p-n-ai/eznannya/internal/quiz"
	"github.com/p-n-ai/eznannya/internal/report"
	"github.com/p-n-ai/eznannya/internal/social"
	"github.com/p-n-ai/eznannya/internal/tutor"
)

const readyTimeout = 2 * time.Second

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Deps holds the services the API serves.
type Deps struct {
	Identity   *identity.Manager
	Social     *social.Manager
	Curriculum *curriculum.Resolver
	Tutor      *tutor.Tutor
	Agent      *agent.Engine
	Quiz       *quiz.Engine
	Ledger     *homework.Ledger
	Grader     *homework.Grader
	Reports    *report.Reporter
	Presence   *presence.Hub
	Tokens     *auth.Issuer
	Ready      []Check
}

// Server routes HTTP requests to the services.
type Server struct {
	Deps
}

// New creates an API server.
func New(deps Deps) *Server {
	return &Server{Deps: deps}
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("POST /api/auth/logout", s.authed(s.handleLogout))

	mux.Handle("GET /api/me", s.authed(s.handleMe))
	mux.Handle("PUT /api/me/profile", s.authed(s.handleUpdateProfile))
	mux.Handle("GET /api/leaderboard", s.authed(s.handleLeaderboard))

	mux.Handle("GET /api/users/search", s.authed(s.handleSearchUsers))
	mux.Handle("GET /api/friends", s.authed(s.handleListFriends))
	mux.Handle("GET /api/friends/online", s.authed(s.handleOnlineFriends))
	mux.Handle("DELETE /api/friends/{id}", s.authed(s.handleRemoveFriend))
	mux.Handle("GET /api/friend-requests", s.authed(s.handleIncomingRequests))
	mux.Handle("GET /api/friend-requests/outgoing", s.authed(s.handleOutgoingRequests))
	mux.Handle("POST /api/friend-requests", s.authed(s.handleSendRequest))
	mux.Handle("POST /api/friend-requests/{id}/accept", s.authed(s.handleAcceptRequest))
	mux.Handle("DELETE /api/friend-requests/{id}", s.authed(s.handleDeclineRequest))

	mux.Handle("GET /api/curriculum", s.authed(s.handleCurriculum))
	mux.Handle("POST /api/curriculum/topics", s.authed(s.handleAddTopic))
	mux.Handle("GET /api/topics/{id}", s.authed(s.handleTopic))
	mux.Handle("POST /api/topics/{id}/explain", s.authed(s.handleExplain))
	mux.Handle("POST /api/topics/{id}/task", s.authed(s.handleTask))
	mux.Handle("GET /api/topics/{id}/chat", s.authed(s.handleChatHistory))
	mux.Handle("POST /api/topics/{id}/chat", s.authed(s.handleTopicChat))
	mux.Handle("DELETE /api/topics/{id}/chat", s.authed(s.handleChatReset))
	mux.Handle("POST /api/ai/diagram", s.authed(s.handleDiagram))
	mux.Handle("POST /api/ai/chat", s.authed(s.handleChat))

	mux.Handle("POST /api/quiz", s.authed(s.handleQuizStart))
	mux.Handle("GET /api/quiz", s.authed(s.handleQuizCurrent))
	mux.Handle("DELETE /api/quiz", s.authed(s.handleQuizAbandon))
	mux.Handle("POST /api/quiz/select", s.authed(s.handleQuizSelect))
	mux.Handle("POST /api/quiz/check", s.authed(s.handleQuizCheck))
	mux.Handle("POST /api/quiz/next", s.authed(s.handleQuizNext))
	mux.Handle("POST /api/quiz/review", s.authed(s.handleQuizReview))
	mux.Handle("POST /api/quiz/result", s.authed(s.handleQuizResult))
	mux.Handle("POST /api/quiz/homework", s.authed(s.handleQuizHomework))
	mux.Handle("POST /api/quiz/homework/choose", s.authed(s.handleQuizChoose))

	mux.Handle("GET /api/homework", s.authed(s.handleListHomework))
	mux.Handle("GET /api/homework/{id}", s.authed(s.handleGetHomework))
	mux.Handle("PATCH /api/homework/{id}", s.authed(s.handleHomeworkStatus))
	mux.Handle("POST /api/homework/{id}/submit", s.authed(s.handleSubmitHomework))

	mux.Handle("GET /api/report", s.authed(s.handleReport))
	mux.Handle("GET /api/presence", s.authed(s.handlePresence))
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failed := map[string]string{}
	for _, c := range s.Ready {
		if err := c.Fn(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
