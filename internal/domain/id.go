package domain

import "github.com/google/uuid"

// NewID generates a UUIDv7 string for runtime-owned artifacts such as
// credential files and schedule entries.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
