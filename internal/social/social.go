// Package social manages friend requests, friendships and the derived
// online presence of friends.
package social

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/p-n-ai/eznannya/internal/identity"
	"github.com/p-n-ai/eznannya/internal/store"
)

const maxSearchResults = 10

// RequestStatus is the lifecycle tag of a friend request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
)

// PublicUser is the profile other users are allowed to see.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Grade    int    `json:"grade"`
	Level    int    `json:"level"`
	XP       int    `json:"xp"`
	Avatar   string `json:"avatar,omitempty"`
	IsOnline bool   `json:"isOnline"`
	LastSeen string `json:"lastSeen"`
}

// FriendRequest is a pending directed edge. Sender is frozen at send time
// and is never refreshed.
type FriendRequest struct {
	ID         string        `json:"id"`
	SenderID   string        `json:"senderId"`
	Sender     PublicUser    `json:"sender"`
	ReceiverID string        `json:"receiverId"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Friendship is an undirected edge; User1ID and User2ID carry no order.
type Friendship struct {
	ID        string    `json:"id"`
	User1ID   string    `json:"user1Id"`
	User2ID   string    `json:"user2Id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Connects reports whether the edge joins a and b in either orientation.
func (f Friendship) Connects(a, b string) bool {
	return (f.User1ID == a && f.User2ID == b) || (f.User1ID == b && f.User2ID == a)
}

// Other returns the id on the far side of the edge from userID, or "" if
// userID is not an endpoint.
func (f Friendship) Other(userID string) string {
	switch userID {
	case f.User1ID:
		return f.User2ID
	case f.User2ID:
		return f.User1ID
	}
	return ""
}

// Manager runs the friend-request lifecycle for the signed-in user.
type Manager struct {
	store    store.Store
	identity *identity.Manager
	window   time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithOnlineWindow overrides DefaultOnlineWindow.
func WithOnlineWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.window = d
		}
	}
}

// NewManager creates a social graph manager.
func NewManager(s store.Store, ident *identity.Manager, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		identity: ident,
		window:   DefaultOnlineWindow,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Public derives the public profile of u as of now.
func (m *Manager) Public(u identity.User, now time.Time) PublicUser {
	last := u.LastActive()
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Grade:    u.Grade,
		Level:    u.Level,
		XP:       u.XP,
		Avatar:   u.Avatar,
		IsOnline: IsOnline(now, last, m.window),
		LastSeen: LastSeen(now, last, m.window),
	}
}

// ListFriends returns the profiles of everyone the session user is
// friends with, in edge creation order.
func (m *Manager) ListFriends(ctx context.Context, sess *identity.Session) ([]PublicUser, error) {
	me, err := m.identity.CurrentUser(ctx, sess)
	if err != nil || me == nil {
		return []PublicUser{}, err
	}

	edges, _, err := store.Load[Friendship](ctx, m.store, store.Friendships)
	if err != nil {
		return nil, err
	}
	users, err := m.identity.Users(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]identity.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	now := m.identity.Now()
	seen := make(map[string]bool)
	friends := []PublicUser{}
	for _, e := range edges {
		other := e.Other(me.ID)
		if other == "" || seen[other] {
			continue
		}
		u, ok := byID[other]
		if !ok {
			continue
		}
		seen[other] = true
		friends = append(friends, m.Public(u, now))
	}
	return friends, nil
}

// OnlineFriendCount counts the session user's friends that are online.
func (m *Manager) OnlineFriendCount(ctx context.Context, sess *identity.Session) (int, error) {
	friends, err := m.ListFriends(ctx, sess)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range friends {
		if f.IsOnline {
			n++
		}
	}
	return n, nil
}

// SearchUsers returns up to ten users whose username contains query,
// ignoring case. The session user is never included.
func (m *Manager) SearchUsers(ctx context.Context, sess *identity.Session, query string) ([]PublicUser, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []PublicUser{}, nil
	}
	me, err := m.identity.CurrentUser(ctx, sess)
	if err != nil {
		return nil, err
	}
	users, err := m.identity.Users(ctx)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	needle := fold.String(query)
	now := m.identity.Now()

	results := []PublicUser{}
	for _, u := range users {
		if me != nil && u.ID == me.ID {
			continue
		}
		if !strings.Contains(fold.String(u.Username), needle) {
			continue
		}
		results = append(results, m.Public(u, now))
		if len(results) == maxSearchResults {
			break
		}
	}
	return results, nil
}

// SendFriendRequest creates a pending request from the session user to
// targetID. It returns nil without error when the request would be a
// duplicate, the two are already friends, or the target does not exist.
func (m *Manager) SendFriendRequest(ctx context.Context, sess *identity.Session, targetID string) (*FriendRequest, error) {
	me, err := m.identity.CurrentUser(ctx, sess)
	if err != nil || me == nil {
		return nil, err
	}
	if targetID == "" || targetID == me.ID {
		return nil, nil
	}
	target, err := m.identity.UserByID(ctx, targetID)
	if err != nil || target == nil {
		return nil, err
	}

	friends, err := m.areFriends(ctx, me.ID, targetID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, nil
	}

	now := m.identity.Now()
	req := FriendRequest{
		ID:         uuid.NewString(),
		SenderID:   me.ID,
		Sender:     m.Public(*me, now),
		ReceiverID: targetID,
		Status:     StatusPending,
		CreatedAt:  now,
	}

	created := false
	err = store.Update(ctx, m.store, store.FriendRequests, func(reqs []FriendRequest) ([]FriendRequest, error) {
		for _, r := range reqs {
			if r.SenderID == me.ID && r.ReceiverID == targetID && r.Status == StatusPending {
				return nil, store.ErrNoChange
			}
		}
		created = true
		return append(reqs, req), nil
	})
	if err != nil {
		return nil, fmt.Errorf("send friend request: %w", err)
	}
	if !created {
		return nil, nil
	}
	slog.Info("friend request sent", "sender_id", me.ID, "receiver_id", targetID)
	return &req, nil
}

// ListIncomingRequests returns pending requests addressed to the session user.
func (m *Manager) ListIncomingRequests(ctx context.Context, sess *identity.Session) ([]FriendRequest, error) {
	return m.listRequests(ctx, sess, func(r FriendRequest, me string) bool { return r.ReceiverID == me })
}

// ListOutgoingRequests returns pending requests sent by the session user.
func (m *Manager) ListOutgoingRequests(ctx context.Context, sess *identity.Session) ([]FriendRequest, error) {
	return m.listRequests(ctx, sess, func(r FriendRequest, me string) bool { return r.SenderID == me })
}

func (m *Manager) listRequests(ctx context.Context, sess *identity.Session, match func(FriendRequest, string) bool) ([]FriendRequest, error) {
	me, err := m.identity.CurrentUser(ctx, sess)
	if err != nil || me == nil {
		return []FriendRequest{}, err
	}
	reqs, _, err := store.Load[FriendRequest](ctx, m.store, store.FriendRequests)
	if err != nil {
		return nil, err
	}
	out := []FriendRequest{}
	for _, r := range reqs {
		if r.Status == StatusPending && match(r, me.ID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// AcceptRequest turns a request addressed to the session user into a
// friendship and deletes it, together with any pending request in the
// opposite direction. If the pair is already connected no second edge is
// created. Unknown ids are a no-op returning nil.
func (m *Manager) AcceptRequest(ctx context.Context, sess *identity.Session, requestID string) (*Friendship, error) {
	me, err := m.identity.CurrentUser(ctx, sess)
	if err != nil || me == nil {
		return nil, err
	}
	req, err := m.findRequest(ctx, requestID)
	if err != nil || req == nil || req.ReceiverID != me.ID {
		return nil, err
	}

	var edge Friendship
	err = store.Update(ctx, m.store, store.Friendships, func(edges []Friendship) ([]Friendship, error) {
		for _, e := range edges {
			if e.Connects(req.SenderID, req.ReceiverID) {
				edge = e
				return nil, store.ErrNoChange
			}
		}
		edge = Friendship{
			ID:        uuid.NewString(),
			User1ID:   req.SenderID,
			User2ID:   req.ReceiverID,
			CreatedAt: m.identity.Now(),
		}
		return append(edges, edge), nil
	})
	if err != nil {
		return nil, fmt.Errorf("accept friend request: %w", err)
	}

	err = store.Update(ctx, m.store, store.FriendRequests, func(reqs []FriendRequest) ([]FriendRequest, error) {
		kept := reqs[:0]
		for _, r := range reqs {
			reverse := r.SenderID == req.ReceiverID && r.ReceiverID == req.SenderID && r.Status == StatusPending
			if r.ID == requestID || reverse {
				continue
			}
			kept = append(kept, r)
		}
		return kept, nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove accepted request: %w", err)
	}

	slog.Info("friend request accepted", "user_id", me.ID, "friend_id", req.SenderID)
	return &edge, nil
}

// DeclineRequest deletes a request. Either party may delete it; the
// sender doing so withdraws it.
func (m *Manager) DeclineRequest(ctx context.Context, sess *identity.Session, requestID string) error {
	me, err := m.identity.CurrentUser(ctx, sess)
	if err != nil || me == nil {
		return err
	}
	err = store.Update(ctx, m.store, store.FriendRequests, func(reqs []FriendRequest) ([]FriendRequest, error) {
		for i, r := range reqs {
			if r.ID != requestID {
				continue
			}
			if r.ReceiverID != me.ID && r.SenderID != me.ID {
				return nil, store.ErrNoChange
			}
			return append(reqs[:i], reqs[i+1:]...), nil
		}
		return nil, store.ErrNoChange
	})
	if err != nil {
		return fmt.Errorf("decline friend request: %w", err)
	}
	return nil
}

// RemoveFriend deletes every edge between the session user and friendID.
func (m *Manager) RemoveFriend(ctx context.Context, sess *identity.Session, friendID string) error {
	me, err := m.identity.CurrentUser(ctx, sess)
	if err != nil || me == nil {
		return err
	}
	err = store.Update(ctx, m.store, store.Friendships, func(edges []Friendship) ([]Friendship, error) {
		kept := edges[:0]
		removed := false
		for _, e := range edges {
			if e.Connects(me.ID, friendID) {
				removed = true
				continue
			}
			kept = append(kept, e)
		}
		if !removed {
			return nil, store.ErrNoChange
		}
		return kept, nil
	})
	if err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	return nil
}

func (m *Manager) findRequest(ctx context.Context, id string) (*FriendRequest, error) {
	reqs, _, err := store.Load[FriendRequest](ctx, m.store, store.FriendRequests)
	if err != nil {
		return nil, err
	}
	for i := range reqs {
		if reqs[i].ID == id {
			return &reqs[i], nil
		}
	}
	return nil, nil
}

func (m *Manager) areFriends(ctx context.Context, a, b string) (bool, error) {
	edges, _, err := store.Load[Friendship](ctx, m.store, store.Friendships)
	if err != nil {
		return false, err
	}
	for _, e := range edges {
		if e.Connects(a, b) {
			return true, nil
		}
	}
	return false, nil
}
