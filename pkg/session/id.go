package session

import "github.com/google/uuid"

// GenerateID returns a fresh, URL-safe session identifier for callers that do
// not bring their own.
func GenerateID() string {
	return uuid.NewString()
}
