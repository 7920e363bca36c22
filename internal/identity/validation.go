package identity

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// School grades served by the curriculum.
const (
	MinGrade = 5
	MaxGrade = 11

	minPasswordLen = 6
	// bcrypt rejects longer input.
	maxPasswordBytes = 72
	minUsernameLen = 2
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Zа-яА-ЯіїєґІЇЄҐ0-9\s-]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// ValidationError describes an invalid form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateUsername checks allowed characters and length.
func ValidateUsername(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Field: "username", Message: "username is required"}
	}
	if !usernameRegex.MatchString(name) {
		return ValidationError{Field: "username", Message: "username contains invalid characters"}
	}
	if utf8.RuneCountInString(name) < minUsernameLen {
		return ValidationError{Field: "username", Message: "username must be at least 2 characters"}
	}
	return nil
}

// ValidateEmail checks if an email address is valid.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidatePassword checks the password length. The upper bound is in
// bytes, so it is reached sooner by Cyrillic text.
func ValidatePassword(password string) error {
	if password == "" {
		return ValidationError{Field: "password", Message: "password is required"}
	}
	if len(password) < minPasswordLen {
		return ValidationError{Field: "password", Message: "password must be at least 6 characters"}
	}
	if len(password) > maxPasswordBytes {
		return ValidationError{Field: "password", Message: "password is too long"}
	}
	return nil
}

// ValidateGrade checks the school grade range.
func ValidateGrade(grade int) error {
	if grade < MinGrade || grade > MaxGrade {
		return ValidationError{Field: "grade", Message: fmt.Sprintf("grade must be between %d and %d", MinGrade, MaxGrade)}
	}
	return nil
}
