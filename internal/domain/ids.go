package domain

import "github.com/google/uuid"

// NewID generates an id for any engine entity (process, task, message,
// event). The original engine uses short hex ids; uuid v4 is the
// teacher's own id scheme (internal/domain/workflow.go) so it is kept
// here rather than hand-rolling a hex generator.
func NewID() string {
	return uuid.NewString()
}
