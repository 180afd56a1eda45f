package session

import "context"

// The current session rides on context.Context rather than any global:
// every concurrent inbound request sees exactly its own session, under
// goroutines and interleaved scheduling alike.

type contextKey struct{}

// WithSession returns a context carrying s as the current session.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext resolves the current session, if any.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// HasActiveSession reports whether a session is attached to ctx.
func HasActiveSession(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}

// RequireSession resolves the current session or fails with a UsageError.
// For code paths that must only run inside an active request.
func RequireSession(ctx context.Context) (Session, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return nil, &UsageError{
			Op:      "RequireSession",
			Message: "no active session in context",
		}
	}
	return s, nil
}
