package notification

import (
	"context"
)

// Repository persists delivery records.
type Repository interface {
	Exists(ctx context.Context, key Key) (bool, error)
	// Create inserts rec unless a record with the same key exists.
	// created is false when the record was already there; that is not an error.
	Create(ctx context.Context, rec *Record) (created bool, err error)
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// CycleLock prevents two evaluation cycles from running at the same time
// across processes. TryLock returns ok=false when another holder exists.
type CycleLock interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}
