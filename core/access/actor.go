/*Package access provides the authorization building blocks of the resource
framework: the request actor, the coarse rights bitmask for admin-mode
requests, and the per-record ownership evaluator.
*/
package access

import (
	"context"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

const contextKeyActor contextKey = "_actor_"

// Actor is the caller of a request. An actor is either authenticated, with
// an identity and a rights bitmask, or the anonymous actor. The anonymous
// actor replaces a nullable caller everywhere, so ownership and audit-field
// logic never deals with nil.
type Actor struct {
	identity      string
	rights        Rights
	authenticated bool
}

// Anonymous is the actor of a request without a valid credential.
var Anonymous = Actor{}

// Authenticated returns an actor with the given identity and rights.
func Authenticated(identity string, rights Rights) Actor {
	return Actor{identity: identity, rights: rights, authenticated: true}
}

// Identity returns the actor's identity. The second return value is false
// for the anonymous actor.
func (a Actor) Identity() (string, bool) {
	return a.identity, a.authenticated
}

// Rights returns the actor's rights bitmask. The anonymous actor has none.
func (a Actor) Rights() Rights {
	return a.rights
}

// IsAnonymous returns true for the anonymous actor.
func (a Actor) IsAnonymous() bool {
	return !a.authenticated
}

// ContextWithActor returns a new context carrying the actor.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKeyActor, actor)
}

// ActorFromContext retrieves the actor from the context. A context without
// an actor yields the anonymous actor.
func ActorFromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(contextKeyActor).(Actor); ok {
		return actor
	}
	return Anonymous
}
