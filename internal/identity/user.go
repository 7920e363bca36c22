// Package identity owns user accounts, sessions and progression: login
// streaks, experience points and levels.
package identity

import "time"

// XPPerLevel is the experience needed to advance one level.
const XPPerLevel = 1000

// LearningStyle selects the tone of AI explanations.
type LearningStyle string

const (
	StyleSchool       LearningStyle = "school"
	StyleSimplified   LearningStyle = "simplified"
	StyleStorytelling LearningStyle = "storytelling"
	StyleAnalogy      LearningStyle = "analogy"
	StyleMagical      LearningStyle = "magical"
	StyleUniversity   LearningStyle = "university"
)

// Valid reports whether s is a known style.
func (s LearningStyle) Valid() bool {
	switch s {
	case StyleSchool, StyleSimplified, StyleStorytelling, StyleAnalogy, StyleMagical, StyleUniversity:
		return true
	}
	return false
}

// QuizResult is one finished quiz attempt.
type QuizResult struct {
	TopicID        string    `json:"topicId"`
	SubjectID      string    `json:"subjectId"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Grade          int       `json:"grade"` // 0-12
	Date           time.Time `json:"date"`
	TimeSpent      int       `json:"timeSpent"` // seconds
}

// User is the persisted account and progression record.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	// Password holds a bcrypt hash. Records written before hashing was
	// introduced carry the plaintext; it is upgraded on the next login.
	Password            string        `json:"password,omitempty"`
	Grade               int           `json:"grade"`
	XP                  int           `json:"xp"`
	Level               int           `json:"level"`
	Streak              int           `json:"streak"`
	LastLoginDate       string        `json:"lastLoginDate,omitempty"`
	LastActiveTimestamp int64         `json:"lastActiveTimestamp,omitempty"` // epoch ms
	CompletedTopics     []string      `json:"completedTopics"`
	QuizResults         []QuizResult  `json:"quizResults"`
	Badges              []string      `json:"badges"`
	PreferredStyle      LearningStyle `json:"preferredStyle"`
	Avatar              string        `json:"avatar,omitempty"`
}

// LevelForXP derives the level from experience points.
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// HasCompleted reports whether topicID is in the completed set.
func (u *User) HasCompleted(topicID string) bool {
	for _, id := range u.CompletedTopics {
		if id == topicID {
			return true
		}
	}
	return false
}

// LastActive returns the last activity time, zero if never recorded.
func (u *User) LastActive() time.Time {
	if u.LastActiveTimestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(u.LastActiveTimestamp)
}

// Public strips credentials from a copy of the user.
func (u User) Public() User {
	u.Password = ""
	return u
}

// applyDefaults fills fields that older records may lack.
func applyDefaults(u *User) {
	if u.CompletedTopics == nil {
		u.CompletedTopics = []string{}
	}
	if u.QuizResults == nil {
		u.QuizResults = []QuizResult{}
	}
	if u.Badges == nil {
		u.Badges = []string{}
	}
	if !u.PreferredStyle.Valid() {
		u.PreferredStyle = StyleSchool
	}
	if u.XP < 0 {
		u.XP = 0
	}
	u.Level = LevelForXP(u.XP)
}
