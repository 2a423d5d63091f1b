package subject

import (
	"context"
)

// Repository is the read side of subscriber data consumed by the reminder engine.
type Repository interface {
	// ListActive returns subjects whose subscription state is one of states.
	ListActive(ctx context.Context, states []SubscriptionState) ([]*Profile, error)
	GetByID(ctx context.Context, id string) (*Profile, error)
	GetDisabledRules(ctx context.Context, subjectID string) (map[string]bool, error)
	GetCustomNotes(ctx context.Context, subjectID string) (NoteOverrides, error)
}
