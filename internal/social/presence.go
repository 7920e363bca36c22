package social

import (
	"fmt"
	"time"
)

// DefaultOnlineWindow is how recent the last activity must be for a user
// to count as online.
const DefaultOnlineWindow = 5 * time.Minute

// IsOnline reports whether lastActive falls strictly inside the window
// before now. A zero lastActive is never online.
func IsOnline(now, lastActive time.Time, window time.Duration) bool {
	if lastActive.IsZero() {
		return false
	}
	return now.Sub(lastActive) < window
}

// LastSeen renders a coarse description of when the user was last active.
func LastSeen(now, lastActive time.Time, window time.Duration) string {
	if lastActive.IsZero() {
		return "long ago"
	}
	if IsOnline(now, lastActive, window) {
		return "Online"
	}

	diff := now.Sub(lastActive)
	switch {
	case diff < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	default:
		return "long ago"
	}
}
