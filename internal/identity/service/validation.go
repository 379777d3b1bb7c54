package service

import (
	"regexp"
	"strings"

	"auth-gateway/internal/security"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(email, password string) error {
	v := &ValidationError{}
	switch {
	case email == "":
		v.add("email", "email is required")
	case !emailPattern.MatchString(email):
		v.add("email", "invalid email format")
	}
	switch {
	case len(password) < MinPasswordLength:
		v.add("password", "password must be at least 6 characters")
	case len(password) > security.MaxPasswordBytes:
		v.add("password", "password must be at most 72 bytes")
	}
	return v.orNil()
}

func validateLogin(email, password string) error {
	v := &ValidationError{}
	if email == "" {
		v.add("email", "email is required")
	}
	if password == "" {
		v.add("password", "password is required")
	}
	return v.orNil()
}
