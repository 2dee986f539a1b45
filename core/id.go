package core

import "github.com/google/uuid"

// NewID generates a unique identifier for executions, conversations and
// status events.
func NewID() string { return uuid.NewString() }
