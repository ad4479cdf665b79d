package shared

import "context"

// SystemActorID is the seeded user automated processes act as. The seed
// script creates it before any other user.
const SystemActorID int64 = 1

// Actor identifies the principal performing an operation. Automated
// processes (worker, webhook ingestion) use an explicit actor instead of a
// shared system sentinel so every posting stays attributable.
type Actor struct {
	ID     int64
	Name   string
	System bool
}

type actorContextKey struct{}

// ContextWithActor stores the acting principal in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting principal from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
