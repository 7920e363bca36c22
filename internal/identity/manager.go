package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/eznannya/internal/store"
)

const dateLayout = "2006-01-02"

var (
	// ErrEmailTaken is returned by Register for a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned by Login when no user matches.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNegativeXP rejects XP awards below zero.
	ErrNegativeXP = errors.New("xp amount must be non-negative")
)

// Manager owns the Users collection and the session slots.
type Manager struct {
	store    store.Store
	sessions SessionStore
	now      func() time.Time
	loc      *time.Location
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLocation sets the time zone calendar dates are computed in.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		m.loc = loc
	}
}

// NewManager creates an identity manager.
func NewManager(s store.Store, sessions SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		sessions: sessions,
		now:      time.Now,
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Users returns every user with defaults applied.
func (m *Manager) Users(ctx context.Context) ([]User, error) {
	users, _, err := store.Load[User](ctx, m.store, store.Users)
	if err != nil {
		return nil, err
	}
	for i := range users {
		applyDefaults(&users[i])
	}
	return users, nil
}

// UserByID returns the user with the given id, or nil if none exists.
func (m *Manager) UserByID(ctx context.Context, id string) (*User, error) {
	users, err := m.Users(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

// Register creates an account, stores it and signs it into sess.
func (m *Manager) Register(ctx context.Context, sess *Session, username, email string, grade int, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	if err := ValidateGrade(grade); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := m.now()
	user := User{
		ID:                  uuid.NewString(),
		Username:            username,
		Email:               email,
		Password:            hash,
		Grade:               grade,
		XP:                  0,
		Level:               1,
		Streak:              1,
		LastLoginDate:       m.date(now),
		LastActiveTimestamp: now.UnixMilli(),
		CompletedTopics:     []string{},
		QuizResults:         []QuizResult{},
		Badges:              []string{},
		PreferredStyle:      StyleSchool,
	}

	err = store.Update(ctx, m.store, store.Users, func(users []User) ([]User, error) {
		for _, u := range users {
			if u.Email == email {
				return nil, ErrEmailTaken
			}
		}
		return append(users, user), nil
	})
	if err != nil {
		return nil, err
	}

	if sess != nil {
		if err := m.sessions.Save(ctx, sess.ID, user); err != nil {
			return nil, err
		}
	}
	slog.Info("user registered", "user_id", user.ID, "grade", grade)
	return &user, nil
}

// Login signs a user into sess and advances the daily streak.
func (m *Manager) Login(ctx context.Context, sess *Session, email, password string) (*User, error) {
	users, err := m.Users(ctx)
	if err != nil {
		return nil, err
	}

	var found *User
	for i := range users {
		if users[i].Email == email && CheckPassword(password, users[i].Password) {
			found = &users[i]
			break
		}
	}
	if found == nil {
		return nil, ErrInvalidCredentials
	}

	var upgraded string
	if !isBcryptHash(found.Password) {
		if upgraded, err = HashPassword(password); err != nil {
			slog.Warn("keeping legacy password", "user_id", found.ID, "error", err)
			upgraded = ""
		}
	}

	now := m.now()
	today := m.date(now)
	yesterday := m.date(now.AddDate(0, 0, -1))

	user, err := m.updateUser(ctx, found.ID, *found, func(u *User) {
		if u.LastLoginDate != today {
			if u.LastLoginDate == yesterday {
				u.Streak++
			} else {
				u.Streak = 1
			}
			u.LastLoginDate = today
		}
		u.LastActiveTimestamp = now.UnixMilli()
		if upgraded != "" {
			u.Password = upgraded
		}
	})
	if err != nil {
		return nil, err
	}

	if sess != nil {
		if err := m.sessions.Save(ctx, sess.ID, *user); err != nil {
			return nil, err
		}
	}
	slog.Info("user logged in", "user_id", user.ID, "streak", user.Streak)
	return user, nil
}

// Logout clears the session slot. The user record is untouched.
func (m *Manager) Logout(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	return m.sessions.Clear(ctx, sess.ID)
}

// CurrentUser returns the session user, or nil when nobody is signed in.
// The snapshot is refreshed from the Users collection when the record exists.
func (m *Manager) CurrentUser(ctx context.Context, sess *Session) (*User, error) {
	if sess == nil {
		return nil, nil
	}
	snap, err := m.sessions.Load(ctx, sess.ID)
	if err != nil || snap == nil {
		return nil, err
	}

	stored, err := m.UserByID(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		applyDefaults(snap)
		return snap, nil
	}
	return stored, nil
}

// UpdateActivity refreshes the session user's last activity time.
func (m *Manager) UpdateActivity(ctx context.Context, sess *Session) (*User, error) {
	now := m.now()
	return m.mutateCurrent(ctx, sess, func(u *User) {
		u.LastActiveTimestamp = now.UnixMilli()
	})
}

// AddXP awards experience to the session user and marks topicID, if any,
// as completed.
func (m *Manager) AddXP(ctx context.Context, sess *Session, amount int, topicID string) (*User, error) {
	if amount < 0 {
		return nil, ErrNegativeXP
	}
	now := m.now()
	return m.mutateCurrent(ctx, sess, func(u *User) {
		u.XP += amount
		u.LastActiveTimestamp = now.UnixMilli()
		if topicID != "" && !u.HasCompleted(topicID) {
			u.CompletedTopics = append(u.CompletedTopics, topicID)
		}
	})
}

// SaveQuizResult appends a finished attempt to the session user's history.
func (m *Manager) SaveQuizResult(ctx context.Context, sess *Session, result QuizResult) (*User, error) {
	now := m.now()
	if result.Date.IsZero() {
		result.Date = now
	}
	return m.mutateCurrent(ctx, sess, func(u *User) {
		u.QuizResults = append(u.QuizResults, result)
		u.LastActiveTimestamp = now.UnixMilli()
	})
}

// UpdateProfile edits the session user's username, grade and style.
func (m *Manager) UpdateProfile(ctx context.Context, sess *Session, username string, grade int, style LearningStyle) (*User, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateGrade(grade); err != nil {
		return nil, err
	}
	if !style.Valid() {
		return nil, ValidationError{Field: "preferredStyle", Message: "unknown learning style"}
	}
	return m.mutateCurrent(ctx, sess, func(u *User) {
		u.Username = username
		u.Grade = grade
		u.PreferredStyle = style
	})
}

// SaveUser upserts a full user record, recomputing its level. When the
// user is the one signed into sess the session copy is refreshed too.
func (m *Manager) SaveUser(ctx context.Context, sess *Session, user User) (*User, error) {
	applyDefaults(&user)

	err := store.Update(ctx, m.store, store.Users, func(users []User) ([]User, error) {
		for i := range users {
			if users[i].ID == user.ID {
				users[i] = user
				return users, nil
			}
		}
		return append(users, user), nil
	})
	if err != nil {
		return nil, err
	}

	if err := m.refreshSession(ctx, sess, user); err != nil {
		return nil, err
	}
	return &user, nil
}

// LeaderboardEntry is one ranked row of the XP leaderboard.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Grade    int    `json:"grade"`
	Level    int    `json:"level"`
	XP       int    `json:"xp"`
}

// Leaderboard ranks users by XP, highest first. limit <= 0 returns everyone.
func (m *Manager) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	users, err := m.Users(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].XP > users[j].XP
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}

	entries := make([]LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = LeaderboardEntry{
			Rank:     i + 1,
			UserID:   u.ID,
			Username: u.Username,
			Grade:    u.Grade,
			Level:    u.Level,
			XP:       u.XP,
		}
	}
	return entries, nil
}

// mutateCurrent applies fn to the session user's stored record. It is a
// no-op returning (nil, nil) when nobody is signed in.
func (m *Manager) mutateCurrent(ctx context.Context, sess *Session, fn func(*User)) (*User, error) {
	if sess == nil {
		return nil, nil
	}
	snap, err := m.sessions.Load(ctx, sess.ID)
	if err != nil || snap == nil {
		return nil, err
	}

	user, err := m.updateUser(ctx, snap.ID, *snap, fn)
	if err != nil {
		return nil, err
	}
	if err := m.sessions.Save(ctx, sess.ID, *user); err != nil {
		return nil, err
	}
	return user, nil
}

// updateUser applies fn to the stored record with the given id. If the
// record is missing, fallback is stored in its place.
func (m *Manager) updateUser(ctx context.Context, id string, fallback User, fn func(*User)) (*User, error) {
	var updated User
	err := store.Update(ctx, m.store, store.Users, func(users []User) ([]User, error) {
		idx := -1
		for i := range users {
			if users[i].ID == id {
				idx = i
				break
			}
		}
		u := fallback
		if idx >= 0 {
			u = users[idx]
		}
		applyDefaults(&u)
		fn(&u)
		u.Level = LevelForXP(u.XP)
		updated = u

		if idx >= 0 {
			users[idx] = u
			return users, nil
		}
		return append(users, u), nil
	})
	if err != nil {
		return nil, fmt.Errorf("update user %s: %w", id, err)
	}
	return &updated, nil
}

func (m *Manager) refreshSession(ctx context.Context, sess *Session, user User) error {
	if sess == nil {
		return nil
	}
	current, err := m.sessions.Load(ctx, sess.ID)
	if err != nil {
		return err
	}
	if current == nil || current.ID != user.ID {
		return nil
	}
	return m.sessions.Save(ctx, sess.ID, user)
}

func (m *Manager) date(t time.Time) string {
	return t.In(m.loc).Format(dateLayout)
}
