// Package auth carries the caller identity supplied by the upstream
// authorization collaborator. The workflow core does not resolve group or
// role membership itself; it trusts the capability claims on the context and
// applies only the maker/checker rule.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const (
	actorIDKey      contextKey = "actorID"
	capabilitiesKey contextKey = "capabilities"
)

// Capabilities the authorization collaborator may claim for an actor.
const (
	CapabilitySubmit   = "workflow:submit"
	CapabilityReview   = "workflow:review"
	CapabilityOverride = "workflow:override"
)

// ContextWithActor returns a context carrying the actor id and capability
// claims.
func ContextWithActor(ctx context.Context, actorID string, capabilities ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, actorIDKey, actorID)
	return context.WithValue(ctx, capabilitiesKey, capabilities)
}

// ActorFromContext retrieves the actor id, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	actor, ok := ctx.Value(actorIDKey).(string)
	if !ok || strings.TrimSpace(actor) == "" {
		return "", false
	}
	return actor, true
}

// HasCapability reports whether the context claims the given capability.
func HasCapability(ctx context.Context, capability string) bool {
	if ctx == nil {
		return false
	}
	claims, ok := ctx.Value(capabilitiesKey).([]string)
	if !ok {
		return false
	}
	for _, claim := range claims {
		if claim == capability {
			return true
		}
	}
	return false
}

// RequireActor returns the actor id or an error when none is present.
func RequireActor(ctx context.Context) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("actor identity is required")
	}
	return actor, nil
}

// Middleware lifts the identity headers set by the authorization collaborator
// onto the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
		var capabilities []string
		if raw := r.Header.Get("X-Actor-Capabilities"); raw != "" {
			for _, c := range strings.Split(raw, ",") {
				if c = strings.TrimSpace(c); c != "" {
					capabilities = append(capabilities, c)
				}
			}
		}
		if actor != "" {
			r = r.WithContext(ContextWithActor(r.Context(), actor, capabilities...))
		}
		next.ServeHTTP(w, r)
	})
}
