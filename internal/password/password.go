package password

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const minLength = 8

// Hash returns a bcrypt hash of the password at the default cost.
func Hash(password string) (string, error) {
	sum, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(sum), nil
}

// Verify reports whether password matches the stored bcrypt hash.
func Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Acceptable enforces the signup policy: at least 8 characters, ASCII
// letters and digits only, containing at least one of each.
func Acceptable(password string) bool {
	if len(password) < minLength {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case r < 128 && unicode.IsLetter(r):
			hasLetter = true
		case r < 128 && unicode.IsDigit(r):
			hasDigit = true
		default:
			return false
		}
	}
	return hasLetter && hasDigit
}
