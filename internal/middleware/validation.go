package middleware

import (
	"errors"
	"unicode/utf8"
)

// maxCommandLength bounds a single command payload.
const maxCommandLength = 4096

// ValidateCommandText validates the free-text command body.
func ValidateCommandText(text string) error {
	if len(text) == 0 {
		return errors.New("command text cannot be empty")
	}
	if len(text) > maxCommandLength {
		return errors.New("command text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("command text must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a session identifier.
func ValidateSessionID(id string) error {
	if len(id) == 0 {
		return errors.New("session ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("session ID exceeds maximum length")
	}
	return nil
}

// ValidateShopID validates a shop identifier.
func ValidateShopID(id string) error {
	if len(id) == 0 {
		return errors.New("shop ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("shop ID exceeds maximum length")
	}
	return nil
}
