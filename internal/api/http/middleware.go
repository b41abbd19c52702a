package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"campusledger/internal/logger"
	"campusledger/internal/security"
)

type contextKey string

const principalKey contextKey = "principal"

// principalFrom pulls the authenticated claims out of the request context.
// Handlers behind the auth middleware can rely on it being present.
func principalFrom(ctx context.Context) *security.PrincipalClaims {
	claims, _ := ctx.Value(principalKey).(*security.PrincipalClaims)
	return claims
}

func authMiddleware(validator security.TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				respondWithError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := validator.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireRole gates staff-only endpoints. Roles are flat, not hierarchical,
// so admin is always listed explicitly where it applies.
func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := principalFrom(r.Context())
			if claims == nil {
				respondWithError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondWithError(w, http.StatusForbidden, "insufficient role")
		})
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
