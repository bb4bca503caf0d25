package uid

import "github.com/google/uuid"

// New generates a new unique identifier. Identifiers are UUIDv7, so ids
// generated later sort after earlier ones.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
