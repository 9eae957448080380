package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// ServiceClaims carries the identity of an authenticated backend service.
// End users never call this API directly; the initiator is always a service.
type ServiceClaims struct {
	ServiceAddress string
	Role           string
}

// TokenValidator validates bearer tokens presented by backend services.
type TokenValidator interface {
	ValidateToken(tokenString string) (*ServiceClaims, error)
}

// RequireAuth enforces a valid service token and stashes the initiator
// address in the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				unauthorized(w)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyInitiator{}, claims.ServiceAddress)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or expired token"}`))
}
