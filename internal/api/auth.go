package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/p-n-ai/eznannya/internal/identity"
	"github.com/p-n-ai/eznannya/internal/platform/auth"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	userKey
)

var errSignedOut = errors.New("session is signed out")

// bearer extracts the token from the Authorization header. Browsers cannot
// set headers on WebSocket upgrades, so the token query parameter is
// accepted too.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

// authed resolves the bearer token to a signed-in session.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" {
			fail(w, r, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Err: auth.ErrInvalidToken})
			return
		}
		claims, err := s.Tokens.Parse(token)
		if err != nil {
			fail(w, r, err)
			return
		}
		sess := &identity.Session{ID: claims.SessionID}
		u, err := s.Identity.CurrentUser(r.Context(), sess)
		if err != nil {
			fail(w, r, err)
			return
		}
		if u == nil {
			fail(w, r, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Err: errSignedOut})
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, sess)
		ctx = context.WithValue(ctx, userKey, u)
		next(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *identity.Session {
	sess, _ := r.Context().Value(sessionKey).(*identity.Session)
	return sess
}

func userFrom(r *http.Request) *identity.User {
	u, _ := r.Context().Value(userKey).(*identity.User)
	return u
}

type authResponse struct {
	Token string        `json:"token"`
	User  identity.User `json:"user"`
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request, status int, sess *identity.Session, u *identity.User) {
	token, err := s.Tokens.Issue(u.ID, sess.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: u.Public()})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Grade    int    `json:"grade"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sess := identity.NewSession()
	u, err := s.Identity.Register(r.Context(), sess, req.Username, req.Email, req.Grade, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.signIn(w, r, http.StatusCreated, sess, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sess := identity.NewSession()
	u, err := s.Identity.Login(r.Context(), sess, req.Email, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.signIn(w, r, http.StatusOK, sess, u)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if s.Quiz != nil {
		if err := s.Quiz.Abandon(r.Context(), sess); err != nil {
			fail(w, r, err)
			return
		}
	}
	if err := s.Identity.Logout(r.Context(), sess); err != nil {
		fail(w, r, err)
		return
	}
	if s.Presence != nil {
		s.Presence.Disconnect(sess.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r).Public())
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	cur := userFrom(r)
	var req struct {
		Username       *string                 `json:"username"`
		Grade          *int                    `json:"grade"`
		PreferredStyle *identity.LearningStyle `json:"preferredStyle"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	username, grade, style := cur.Username, cur.Grade, cur.PreferredStyle
	if req.Username != nil {
		username = *req.Username
	}
	if req.Grade != nil {
		grade = *req.Grade
	}
	if req.PreferredStyle != nil {
		style = *req.PreferredStyle
	}
	u, err := s.Identity.UpdateProfile(r.Context(), sessionFrom(r), username, grade, style)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u.Public())
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 10)
	if err != nil {
		fail(w, r, err)
		return
	}
	entries, err := s.Identity.Leaderboard(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// intParam reads an optional integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest(name, "must be an integer")
	}
	return n, nil
}
