package tools

import (
	"context"

	"github.com/samsaffron/conductor/internal/loop"
)

type sessionKey struct{}

// WithSession attaches the session's progress state to ctx so plan and
// write tools can record into it.
func WithSession(ctx context.Context, state *loop.SessionState) context.Context {
	return context.WithValue(ctx, sessionKey{}, state)
}

// SessionFrom returns the state attached by WithSession, or nil.
func SessionFrom(ctx context.Context) *loop.SessionState {
	state, _ := ctx.Value(sessionKey{}).(*loop.SessionState)
	return state
}
