package graph

import (
	"context"

	"propie/api/internal/app"
	"propie/api/internal/rbac"
)

type sessionKey struct{}

// WithSession attaches the caller's session. Anonymous callers carry the zero Session.
func WithSession(ctx context.Context, session app.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

func sessionFrom(ctx context.Context) app.Session {
	session, _ := ctx.Value(sessionKey{}).(app.Session)
	return session
}

// Error is a resolver error that carries its own extensions code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Extensions() map[string]any {
	return map[string]any{"code": e.Code}
}

var (
	errUnauthenticated = &Error{Code: "UNAUTHENTICATED", Message: "Authentication required"}
	errForbidden       = &Error{Code: "FORBIDDEN", Message: "Forbidden"}
)

func requireAuth(ctx context.Context) (app.Session, error) {
	session := sessionFrom(ctx)
	if session.UserID == "" {
		return app.Session{}, errUnauthenticated
	}
	return session, nil
}

func requireRole(ctx context.Context, roles ...rbac.Role) (app.Session, error) {
	session, err := requireAuth(ctx)
	if err != nil {
		return app.Session{}, err
	}
	role := rbac.Normalize(session.Role)
	for _, allowed := range roles {
		if role == allowed {
			return session, nil
		}
	}
	return app.Session{}, errForbidden
}
