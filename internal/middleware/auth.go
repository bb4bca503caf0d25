package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"stockledger-api/internal/model"
	"stockledger-api/internal/service"
	"stockledger-api/pkg/apierror"
)

// IdentityKey is the key for storing the caller identity in request context.
const IdentityKey contextKey = "identity"

// IdentityResolver turns a session token into the caller identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*model.Identity, error)
}

var _ IdentityResolver = (*service.TokenService)(nil)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Resolver IdentityResolver
	Log      *zap.Logger
}

// NewAuthMiddleware creates an authentication middleware. The token is read
// from X-Token, or from an Authorization bearer header.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use the X-Token header."))
				return
			}

			identity, err := cfg.Resolver.Resolve(r.Context(), token)
			if err != nil {
				if service.IsKind(err, service.KindUnauthenticated) || service.IsKind(err, service.KindAuthorization) {
					writeError(w, apierror.Unauthorized("Invalid or expired token"))
					return
				}
				log.Error("failed to resolve token", zap.Error(err), zap.String("request_id", GetRequestID(r.Context())))
				writeError(w, apierror.ServiceUnavailable(""))
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest extracts the session token from the request headers.
func TokenFromRequest(r *http.Request) string {
	if token := r.Header.Get("X-Token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// IdentityFromContext retrieves the caller identity from request context.
func IdentityFromContext(ctx context.Context) *model.Identity {
	if id, ok := ctx.Value(IdentityKey).(*model.Identity); ok {
		return id
	}
	return nil
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}
