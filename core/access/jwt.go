package access

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/docuform-tech/docuform/core/docdb"
	"github.com/docuform-tech/docuform/core/logger"
)

// ActorCache is an in-memory cache for actors, keyed by bearer token. It
// spares the middleware one account lookup per request; a fresh token
// always forces a fresh lookup.
type ActorCache struct {
	mutex sync.RWMutex
	cache map[string]Actor
}

// NewActorCache creates a new actor cache
func NewActorCache() *ActorCache {
	return &ActorCache{cache: make(map[string]Actor)}
}

// Read returns the cached actor for a token. This function is go-routine safe.
func (c *ActorCache) Read(token string) (Actor, bool) {
	c.mutex.RLock()
	actor, ok := c.cache[token]
	c.mutex.RUnlock()
	return actor, ok
}

// Write stores the actor for a token. This function is go-routine safe.
func (c *ActorCache) Write(token string, actor Actor) {
	c.mutex.Lock()
	c.cache[token] = actor
	c.mutex.Unlock()
}

// JwtMiddlewareBuilder is a helper builder for the JWT middleware
type JwtMiddlewareBuilder struct {
	// Secret is the HMAC secret the tokens were signed with. Mandatory.
	Secret string
	// Store is the document store holding the account collection. Mandatory.
	Store docdb.Store
	// AccountCollection is the collection storing accounts. Default "user".
	AccountCollection string
	// IdentityField is the account field matched against the token subject.
	// Default "email".
	IdentityField string
}

// NewJwtMiddleware returns a middleware handler that derives the request
// actor from an "Authorization: Bearer" token.
//
// The token subject is looked up in the account collection; the account
// record supplies the actor identity (its "_id") and its rights bitmask
// (its "rights" field). A request without a token, with an invalid token
// or with an unknown subject proceeds as the anonymous actor - verifying
// credentials is this middleware's job, denying requests is not.
func NewJwtMiddleware(b *JwtMiddlewareBuilder) mux.MiddlewareFunc {
	if b.Secret == "" {
		panic("Secret is missing")
	}
	if b.Store == nil {
		panic("Store is missing")
	}
	collection := b.AccountCollection
	if collection == "" {
		collection = "user"
	}
	identityField := b.IdentityField
	if identityField == "" {
		identityField = "email"
	}

	cache := NewActorCache()
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(b.Secret), nil
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ""
			bearer := r.Header.Get("Authorization")
			if len(bearer) >= 8 && strings.EqualFold(bearer[:7], "bearer ") {
				tokenString = bearer[7:]
			}
			if tokenString == "" {
				h.ServeHTTP(w, r)
				return
			}

			actor, ok := cache.Read(tokenString)
			if !ok {
				actor = Anonymous
				claims := jwt.RegisteredClaims{}
				token, err := jwt.ParseWithClaims(tokenString, &claims, keyFunc)
				if err == nil && token.Valid && claims.Subject != "" {
					account, err := b.Store.FindOne(r.Context(), collection,
						docdb.Document{identityField: claims.Subject})
					if err == nil {
						id, _ := account["_id"].(string)
						actor = Authenticated(id, rightsFromDocument(account))
					} else if err != docdb.ErrNoDocuments {
						logger.FromContext(r.Context()).WithError(err).
							Errorln("cannot look up account for token subject")
					}
				}
				cache.Write(tokenString, actor)
			}

			ctx := ContextWithActor(r.Context(), actor)
			if identity, ok := actor.Identity(); ok {
				ctx, _ = logger.ContextWithLoggerIdentity(ctx, identity)
			}
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rightsFromDocument reads the rights bitmask of an account record. The
// store may hand back any numeric type depending on the driver.
func rightsFromDocument(account docdb.Document) Rights {
	switch v := account["rights"].(type) {
	case int:
		return Rights(v)
	case int32:
		return Rights(v)
	case int64:
		return Rights(v)
	case float64:
		return Rights(v)
	}
	return 0
}
