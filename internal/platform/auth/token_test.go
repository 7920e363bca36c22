package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)

	token, err := iss.Issue("user-1", "sess-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := iss.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", claims.Subject)
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", claims.SessionID)
	}
}

func TestIssuer_Parse(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	iss := NewIssuer("secret", time.Hour)
	iss.now = func() time.Time { return now }

	valid, _ := iss.Issue("user-1", "sess-1")

	other := NewIssuer("other-secret", time.Hour)
	other.now = iss.now
	forged, _ := other.Issue("user-1", "sess-1")

	noSession, _ := iss.Issue("user-1", "")

	tests := []struct {
		name    string
		token   string
		advance time.Duration
		wantErr bool
	}{
		{"valid", valid, 0, false},
		{"expired", valid, 2 * time.Hour, true},
		{"wrong secret", forged, 0, true},
		{"missing session", noSession, 0, true},
		{"garbage", "not.a.token", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iss.now = func() time.Time { return now.Add(tt.advance) }
			_, err := iss.Parse(tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}
