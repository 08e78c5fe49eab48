package auth

import "context"

type contextKey string

const contextKeyActor contextKey = "auth.actor"

// WithActor stores the acting user's identity in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKeyActor, actor)
}

// ActorFromContext extracts the acting user, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(contextKeyActor).(Actor)
	return actor, ok
}
