package shared

import (
	"context"

	"github.com/google/uuid"
)

type actorContextKey struct{}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorContextKey{}, userID)
}

// ActorFromContext returns the acting user id, or uuid.Nil when the request is anonymous.
func ActorFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(actorContextKey{}).(uuid.UUID)
	return id
}
