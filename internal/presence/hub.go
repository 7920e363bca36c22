// Package presence streams the signed-in user's activity heartbeat and
// friends list over a WebSocket.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/eznannya/internal/identity"
	"github.com/p-n-ai/eznannya/internal/social"
)

const (
	defaultHeartbeat      = 10 * time.Second
	defaultFriendsRefresh = 5 * time.Second
	writeTimeout          = 5 * time.Second
)

// Message types.
const (
	TypeHeartbeat = "heartbeat"
	TypeFriends   = "friends"
)

// ErrSignedOut ends a stream whose session no longer has a user.
var ErrSignedOut = errors.New("session signed out")

// Activity refreshes the session user's last activity.
type Activity interface {
	UpdateActivity(ctx context.Context, sess *identity.Session) (*identity.User, error)
}

// Friends reads the session user's social graph.
type Friends interface {
	ListFriends(ctx context.Context, sess *identity.Session) ([]social.PublicUser, error)
	OnlineFriendCount(ctx context.Context, sess *identity.Session) (int, error)
	ListIncomingRequests(ctx context.Context, sess *identity.Session) ([]social.FriendRequest, error)
}

// Message is one poll result pushed to the client. Poll fields are always
// encoded so zero counts and empty lists reach the client.
type Message struct {
	Type          string                 `json:"type"`
	OnlineFriends int                    `json:"onlineFriends"`
	Friends       []social.PublicUser    `json:"friends"`
	Requests      []social.FriendRequest `json:"requests"`
	At            time.Time              `json:"at"`
}

// SendFunc delivers a message to the client.
type SendFunc func(ctx context.Context, msg Message) error

// Hub runs the poll loops for every connected session.
type Hub struct {
	activity  Activity
	friends   Friends
	heartbeat time.Duration
	refresh   time.Duration
	now       func() time.Time

	mu      sync.Mutex
	streams map[string]map[*stream]struct{} // by session id
}

type stream struct {
	cancel context.CancelFunc
}

// Option configures a Hub.
type Option func(*Hub)

// WithIntervals overrides the heartbeat and friends refresh periods.
// Non-positive values keep the defaults.
func WithIntervals(heartbeat, refresh time.Duration) Option {
	return func(h *Hub) {
		if heartbeat > 0 {
			h.heartbeat = heartbeat
		}
		if refresh > 0 {
			h.refresh = refresh
		}
	}
}

// WithClock sets the time source used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		h.now = now
	}
}

// NewHub creates a presence hub.
func NewHub(activity Activity, friends Friends, opts ...Option) *Hub {
	h := &Hub{
		activity:  activity,
		friends:   friends,
		heartbeat: defaultHeartbeat,
		refresh:   defaultFriendsRefresh,
		now:       time.Now,
		streams:   make(map[string]map[*stream]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run polls for sess until ctx ends, the session signs out, or send
// fails. Both loops fire once immediately. Poll errors are logged and
// retried on the next tick.
func (h *Hub) Run(ctx context.Context, sess *identity.Session, send SendFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	st := &stream{cancel: cancel}
	h.register(sess.ID, st)
	defer func() {
		h.unregister(sess.ID, st)
		cancel()
	}()

	var sendMu sync.Mutex
	deliver := func(ctx context.Context, msg Message) error {
		sendMu.Lock()
		defer sendMu.Unlock()
		msg.At = h.now()
		return send(ctx, msg)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return every(gctx, h.heartbeat, func() error {
			return h.beat(gctx, sess, deliver)
		})
	})
	g.Go(func() error {
		return every(gctx, h.refresh, func() error {
			return h.refreshFriends(gctx, sess, deliver)
		})
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func every(ctx context.Context, d time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) beat(ctx context.Context, sess *identity.Session, send SendFunc) error {
	u, err := h.activity.UpdateActivity(ctx, sess)
	if err != nil {
		slog.Warn("heartbeat failed", "session_id", sess.ID, "error", err)
		return nil
	}
	if u == nil {
		return ErrSignedOut
	}
	online, err := h.friends.OnlineFriendCount(ctx, sess)
	if err != nil {
		slog.Warn("online friend count failed", "user_id", u.ID, "error", err)
		return nil
	}
	return send(ctx, Message{Type: TypeHeartbeat, OnlineFriends: online})
}

func (h *Hub) refreshFriends(ctx context.Context, sess *identity.Session, send SendFunc) error {
	friends, err := h.friends.ListFriends(ctx, sess)
	if err != nil {
		slog.Warn("friends refresh failed", "session_id", sess.ID, "error", err)
		return nil
	}
	requests, err := h.friends.ListIncomingRequests(ctx, sess)
	if err != nil {
		slog.Warn("requests refresh failed", "session_id", sess.ID, "error", err)
		return nil
	}
	if friends == nil {
		friends = []social.PublicUser{}
	}
	if requests == nil {
		requests = []social.FriendRequest{}
	}
	return send(ctx, Message{Type: TypeFriends, Friends: friends, Requests: requests})
}

// ServeWS upgrades the request and streams poll results for sess until
// the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sess *identity.Session) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Client messages are not expected; reading only watches for close.
	ctx := conn.CloseRead(r.Context())

	slog.Info("presence stream opened", "session_id", sess.ID)
	err = h.Run(ctx, sess, func(ctx context.Context, msg Message) error {
		ctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			return fmt.Errorf("write %s message: %w", msg.Type, err)
		}
		return nil
	})

	switch {
	case errors.Is(err, ErrSignedOut):
		conn.Close(websocket.StatusPolicyViolation, "signed out")
	case err != nil:
		slog.Info("presence stream ended", "session_id", sess.ID, "reason", err)
		conn.Close(websocket.StatusInternalError, "")
	default:
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

// Disconnect stops every stream of a session, e.g. after logout.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for st := range h.streams[sessionID] {
		st.cancel()
	}
}

// Shutdown stops every stream.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.streams {
		for st := range set {
			st.cancel()
		}
	}
}

// Active returns the number of open streams.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.streams {
		n += len(set)
	}
	return n
}

func (h *Hub) register(sessionID string, st *stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.streams[sessionID]
	if !ok {
		set = make(map[*stream]struct{})
		h.streams[sessionID] = set
	}
	set[st] = struct{}{}
}

func (h *Hub) unregister(sessionID string, st *stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.streams[sessionID], st)
	if len(h.streams[sessionID]) == 0 {
		delete(h.streams, sessionID)
	}
}
