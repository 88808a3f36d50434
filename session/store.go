package session

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("session not found")

// Store persists sessions. Every method hands out copies: changes to a returned
// session are only visible to others after Save. Get and Save are each atomic,
// but nothing serializes a Get/Save pair, callers that may race on one ID have
// to serialize themselves.
type Store interface {
	// FindOrCreate loads the session with the given ID, or returns a new one
	// with a fresh ID when id is empty or unknown. The bool reports creation.
	// A new session is not stored until it is saved.
	FindOrCreate(ctx context.Context, id string) (*Session, bool, error)
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	// Latest returns the most recently created session among the saved ones.
	Latest(ctx context.Context) (*Session, error)
	Close() error
}
