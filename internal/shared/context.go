package shared

import "context"

// SystemActorID identifies the background worker in review trails and
// reviewer columns. It sits below the positive id space real users occupy,
// so a forwarded header can never impersonate it.
const SystemActorID int64 = -1

type actorContextKey struct{}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, userID)
}

// ActorFromContext extracts the acting user id from context. The second
// return value is false when no actor was attached.
func ActorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorContextKey{}).(int64)
	return id, ok
}
