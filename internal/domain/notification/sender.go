package notification

import (
	"context"
)

// Sender delivers a rendered reminder. Failures are treated as transient and
// retried by the next evaluation cycle.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}
