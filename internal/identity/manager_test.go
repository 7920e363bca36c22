package identity_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/eznannya/internal/identity"
	"github.com/p-n-ai/eznannya/internal/store"
)

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time { return c.t }

func newManager(t *testing.T, now time.Time) (*identity.Manager, *clock, store.Store) {
	t.Helper()
	c := &clock{t: now}
	s := store.NewMemoryStore()
	return identity.NewManager(s, identity.NewMemorySessionStore(), identity.WithClock(c.Now)), c, s
}

func register(t *testing.T, m *identity.Manager, sess *identity.Session, name, email string) *identity.User {
	t.Helper()
	u, err := m.Register(context.Background(), sess, name, email, 7, "secret1")
	if err != nil {
		t.Fatalf("Register(%q) error = %v", email, err)
	}
	return u
}

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp   int
		want int
	}{
		{0, 1},
		{999, 1},
		{1000, 2},
		{2500, 3},
		{-50, 1},
	}
	for _, tt := range tests {
		if got := identity.LevelForXP(tt.xp); got != tt.want {
			t.Errorf("LevelForXP(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestRegister(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	m, _, _ := newManager(t, now)
	sess := identity.NewSession()

	u := register(t, m, sess, "Olena", "olena@example.com")

	if u.XP != 0 || u.Level != 1 || u.Streak != 1 {
		t.Errorf("new user xp/level/streak = %d/%d/%d, want 0/1/1", u.XP, u.Level, u.Streak)
	}
	if u.LastLoginDate != "2024-05-10" {
		t.Errorf("LastLoginDate = %q, want 2024-05-10", u.LastLoginDate)
	}
	if u.Password == "secret1" {
		t.Error("password stored in plaintext")
	}
	if u.PreferredStyle != identity.StyleSchool {
		t.Errorf("PreferredStyle = %q, want school", u.PreferredStyle)
	}

	cur, err := m.CurrentUser(context.Background(), sess)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if cur == nil || cur.ID != u.ID {
		t.Fatalf("CurrentUser() = %+v, want registered user", cur)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	register(t, m, identity.NewSession(), "Olena", "olena@example.com")

	_, err := m.Register(context.Background(), identity.NewSession(), "Other", "olena@example.com", 8, "secret2")
	if !errors.Is(err, identity.ErrEmailTaken) {
		t.Fatalf("Register() error = %v, want ErrEmailTaken", err)
	}

	users, _ := m.Users(context.Background())
	if len(users) != 1 {
		t.Errorf("len(users) = %d, want 1", len(users))
	}
}

func TestRegister_Validation(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	tests := []struct {
		name     string
		username string
		email    string
		grade    int
		password string
		field    string
	}{
		{"short username", "A", "a@example.com", 7, "secret1", "username"},
		{"bad username", "bob!", "a@example.com", 7, "secret1", "username"},
		{"bad email", "Bob", "not-an-email", 7, "secret1", "email"},
		{"short password", "Bob", "a@example.com", 7, "12345", "password"},
		{"password over 72 bytes", "Bob", "a@example.com", 7, strings.Repeat("пароль", 7), "password"},
		{"grade too low", "Bob", "a@example.com", 4, "secret1", "grade"},
		{"grade too high", "Bob", "a@example.com", 12, "secret1", "grade"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Register(context.Background(), identity.NewSession(), tt.username, tt.email, tt.grade, tt.password)
			var verr identity.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Register() error = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestRegister_CyrillicUsername(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	if _, err := m.Register(context.Background(), identity.NewSession(), "Іван Петренко", "ivan@example.com", 9, "secret1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
}

func TestLogin_Streak(t *testing.T) {
	tests := []struct {
		name       string
		lastLogin  string
		streak     int
		wantStreak int
	}{
		{"same day", "2024-05-10", 4, 4},
		{"yesterday", "2024-05-09", 4, 5},
		{"gap", "2024-05-07", 4, 1},
		{"never", "", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2024, 5, 10, 18, 30, 0, 0, time.UTC)
			m, _, _ := newManager(t, now)
			ctx := context.Background()

			u := register(t, m, identity.NewSession(), "Olena", "olena@example.com")
			u.LastLoginDate = tt.lastLogin
			u.Streak = tt.streak
			if _, err := m.SaveUser(ctx, nil, *u); err != nil {
				t.Fatalf("SaveUser() error = %v", err)
			}

			got, err := m.Login(ctx, identity.NewSession(), "olena@example.com", "secret1")
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if got.Streak != tt.wantStreak {
				t.Errorf("Streak = %d, want %d", got.Streak, tt.wantStreak)
			}
			if got.LastLoginDate != "2024-05-10" {
				t.Errorf("LastLoginDate = %q, want 2024-05-10", got.LastLoginDate)
			}
		})
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	register(t, m, identity.NewSession(), "Olena", "olena@example.com")

	sess := identity.NewSession()
	_, err := m.Login(context.Background(), sess, "olena@example.com", "wrong-pass")
	if !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
	}
	cur, _ := m.CurrentUser(context.Background(), sess)
	if cur != nil {
		t.Error("failed login should leave the session empty")
	}
}

func TestLogin_UpgradesPlaintextPassword(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	ctx := context.Background()

	legacy := identity.User{ID: "legacy-1", Username: "Taras", Email: "taras@example.com", Password: "plain-pass", Grade: 6}
	if _, err := m.SaveUser(ctx, nil, legacy); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}

	if _, err := m.Login(ctx, identity.NewSession(), "taras@example.com", "plain-pass"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	stored, _ := m.UserByID(ctx, "legacy-1")
	if stored.Password == "plain-pass" {
		t.Fatal("plaintext password was not upgraded")
	}
	if !identity.CheckPassword("plain-pass", stored.Password) {
		t.Error("upgraded hash does not match the original password")
	}
}

func TestLogin_KeepsLongLegacyPassword(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	ctx := context.Background()

	long := strings.Repeat("пароль", 7)
	legacy := identity.User{ID: "legacy-2", Username: "Oksana", Email: "oksana@example.com", Password: long, Grade: 8}
	if _, err := m.SaveUser(ctx, nil, legacy); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		u, err := m.Login(ctx, identity.NewSession(), "oksana@example.com", long)
		if err != nil {
			t.Fatalf("Login() #%d error = %v", i+1, err)
		}
		if u.ID != "legacy-2" {
			t.Errorf("Login() user = %q, want legacy-2", u.ID)
		}
	}

	stored, _ := m.UserByID(ctx, "legacy-2")
	if stored.Password != long {
		t.Error("unhashable legacy password should be kept as stored")
	}
}

func TestLogout(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	ctx := context.Background()
	sess := identity.NewSession()
	u := register(t, m, sess, "Olena", "olena@example.com")

	if err := m.Logout(ctx, sess); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	cur, _ := m.CurrentUser(ctx, sess)
	if cur != nil {
		t.Error("CurrentUser() should be nil after logout")
	}
	if stored, _ := m.UserByID(ctx, u.ID); stored == nil {
		t.Error("logout must not remove the user record")
	}
}

func TestAddXP(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	ctx := context.Background()
	sess := identity.NewSession()
	register(t, m, sess, "Olena", "olena@example.com")

	u, err := m.AddXP(ctx, sess, 950, "alg-7-1")
	if err != nil {
		t.Fatalf("AddXP() error = %v", err)
	}
	if u.XP != 950 || u.Level != 1 {
		t.Errorf("xp/level = %d/%d, want 950/1", u.XP, u.Level)
	}

	u, err = m.AddXP(ctx, sess, 100, "alg-7-1")
	if err != nil {
		t.Fatalf("AddXP() error = %v", err)
	}
	if u.XP != 1050 || u.Level != 2 {
		t.Errorf("xp/level = %d/%d, want 1050/2", u.XP, u.Level)
	}
	if len(u.CompletedTopics) != 1 {
		t.Errorf("CompletedTopics = %v, want a single entry", u.CompletedTopics)
	}

	stored, _ := m.UserByID(ctx, u.ID)
	if stored.XP != 1050 {
		t.Errorf("stored XP = %d, want 1050", stored.XP)
	}
}

func TestAddXP_NoTopic(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	sess := identity.NewSession()
	register(t, m, sess, "Olena", "olena@example.com")

	u, err := m.AddXP(context.Background(), sess, 40, "")
	if err != nil {
		t.Fatalf("AddXP() error = %v", err)
	}
	if len(u.CompletedTopics) != 0 {
		t.Errorf("CompletedTopics = %v, want empty", u.CompletedTopics)
	}
}

func TestAddXP_Negative(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	sess := identity.NewSession()
	register(t, m, sess, "Olena", "olena@example.com")

	if _, err := m.AddXP(context.Background(), sess, -10, ""); !errors.Is(err, identity.ErrNegativeXP) {
		t.Fatalf("AddXP() error = %v, want ErrNegativeXP", err)
	}
}

func TestAddXP_NoSession(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	u, err := m.AddXP(context.Background(), identity.NewSession(), 100, "x")
	if err != nil || u != nil {
		t.Fatalf("AddXP() = %v, %v; want nil, nil", u, err)
	}
}

func TestSaveQuizResult(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	m, _, _ := newManager(t, now)
	sess := identity.NewSession()
	register(t, m, sess, "Olena", "olena@example.com")

	u, err := m.SaveQuizResult(context.Background(), sess, identity.QuizResult{
		TopicID:        "alg-7-1",
		SubjectID:      "math-7",
		Score:          7,
		TotalQuestions: 10,
		Grade:          9,
		TimeSpent:      185,
	})
	if err != nil {
		t.Fatalf("SaveQuizResult() error = %v", err)
	}
	if len(u.QuizResults) != 1 {
		t.Fatalf("len(QuizResults) = %d, want 1", len(u.QuizResults))
	}
	if !u.QuizResults[0].Date.Equal(now) {
		t.Errorf("Date = %v, want %v", u.QuizResults[0].Date, now)
	}
}

func TestUpdateActivity(t *testing.T) {
	start := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	m, c, _ := newManager(t, start)
	sess := identity.NewSession()
	register(t, m, sess, "Olena", "olena@example.com")

	c.t = start.Add(3 * time.Minute)
	u, err := m.UpdateActivity(context.Background(), sess)
	if err != nil {
		t.Fatalf("UpdateActivity() error = %v", err)
	}
	if !u.LastActive().Equal(c.t) {
		t.Errorf("LastActive() = %v, want %v", u.LastActive(), c.t)
	}
}

func TestUpdateProfile(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	ctx := context.Background()
	sess := identity.NewSession()
	register(t, m, sess, "Olena", "olena@example.com")

	u, err := m.UpdateProfile(ctx, sess, "Olena K", 8, identity.StyleMagical)
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if u.Username != "Olena K" || u.Grade != 8 || u.PreferredStyle != identity.StyleMagical {
		t.Errorf("profile = %q/%d/%q", u.Username, u.Grade, u.PreferredStyle)
	}

	if _, err := m.UpdateProfile(ctx, sess, "Olena", 8, "telepathy"); err == nil {
		t.Error("UpdateProfile() should reject an unknown style")
	}
}

func TestSaveUser_RecomputesLevel(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	ctx := context.Background()
	sess := identity.NewSession()
	u := register(t, m, sess, "Olena", "olena@example.com")

	u.XP = 2500
	u.Level = 1
	saved, err := m.SaveUser(ctx, sess, *u)
	if err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}
	if saved.Level != 3 {
		t.Errorf("Level = %d, want 3", saved.Level)
	}

	cur, _ := m.CurrentUser(ctx, sess)
	if cur.XP != 2500 {
		t.Errorf("session XP = %d, want 2500", cur.XP)
	}
}

func TestCurrentUser_TwoSessionsSeeSameRecord(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	ctx := context.Background()
	phone := identity.NewSession()
	laptop := identity.NewSession()

	register(t, m, phone, "Olena", "olena@example.com")
	if _, err := m.Login(ctx, laptop, "olena@example.com", "secret1"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if _, err := m.AddXP(ctx, phone, 100, ""); err != nil {
		t.Fatalf("AddXP(phone) error = %v", err)
	}
	if _, err := m.AddXP(ctx, laptop, 50, ""); err != nil {
		t.Fatalf("AddXP(laptop) error = %v", err)
	}

	cur, _ := m.CurrentUser(ctx, phone)
	if cur.XP != 150 {
		t.Errorf("XP = %d, want 150", cur.XP)
	}
}

func TestLeaderboard(t *testing.T) {
	m, _, _ := newManager(t, time.Now())
	ctx := context.Background()

	for i, xp := range []int{300, 1200, 50} {
		sess := identity.NewSession()
		register(t, m, sess, []string{"Anna", "Bohdan", "Vira"}[i], []string{"a@x.io", "b@x.io", "v@x.io"}[i])
		if _, err := m.AddXP(ctx, sess, xp, ""); err != nil {
			t.Fatalf("AddXP() error = %v", err)
		}
	}

	board, err := m.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("len(board) = %d, want 2", len(board))
	}
	if board[0].Username != "Bohdan" || board[0].Rank != 1 || board[0].Level != 2 {
		t.Errorf("board[0] = %+v", board[0])
	}
	if board[1].Username != "Anna" {
		t.Errorf("board[1] = %+v", board[1])
	}
}
