package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// State is the process-lifetime status of the store handle.
type State int

const (
	StateNotAttempted State = iota
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "not-attempted"
	}
}

// Connection holds the outcome of the single startup connection attempt.
// It is never mutated after construction and is safe for concurrent reads.
type Connection struct {
	state State
	store Store
	err   error
}

// NotAttempted returns a Connection that has not tried to connect.
func NotAttempted() *Connection { return &Connection{} }

// Connected wraps a live store.
func Connected(s Store) *Connection { return &Connection{state: StateConnected, store: s} }

// Failed records a connection error.
func Failed(err error) *Connection { return &Connection{state: StateFailed, err: err} }

// Connect attempts to open the store once. Failures are logged and recorded
// in the returned Connection, never returned or retried.
func Connect(ctx context.Context, p Params, log zerolog.Logger) *Connection {
	s, err := Open(ctx, p)
	if err != nil {
		err = fmt.Errorf("failed to connect to store: %w", err)
		log.Error().Err(err).Str("backend", p.Backend).Msg("store connection failed")
		return Failed(err)
	}
	log.Info().
		Str("backend", p.Backend).
		Str("database", p.Database).
		Str("container", p.Container).
		Msg("connected to store")
	return Connected(s)
}

func (c *Connection) State() State { return c.state }

// Err returns the connection error, if any.
func (c *Connection) Err() error { return c.err }

// Store returns the live store, or an error wrapping ErrNotConnected.
func (c *Connection) Store() (Store, error) {
	switch c.state {
	case StateConnected:
		return c.store, nil
	case StateFailed:
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, c.err)
	default:
		return nil, ErrNotConnected
	}
}

// Close closes the live store, if any.
func (c *Connection) Close(ctx context.Context) error {
	if c.state != StateConnected {
		return nil
	}
	return c.store.Close(ctx)
}
