package testserver

import (
	"context"
	"net/http"
)

type contextKey string

const contextKeyClaims contextKey = "claims"

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

func (s *Server) RecordMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("tenant", r.Header.Get(HeaderTenantID)).
			Msg("testserver request")
		next(w, r)
	}
}

// RequireAuth validates the Bearer access token and stores its claims in
// the request context.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.signer.Verify(raw, s.nowFunc)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if claims.Generation < s.currentGeneration() {
			writeError(w, http.StatusUnauthorized, "token revoked")
			return
		}
		if s.isDenied(r.URL.Path) {
			writeError(w, http.StatusUnauthorized, "not permitted")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), contextKeyClaims, claims)))
	}
}

// RequireTenant checks that x-tenant-id names a tenant in the token.
func (s *Server) RequireTenant(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(HeaderTenantID)
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "missing x-tenant-id")
			return
		}
		claims := claimsFrom(r)
		for _, t := range claims.Tenants {
			if t == tenantID {
				next(w, r)
				return
			}
		}
		writeError(w, http.StatusForbidden, "tenant not permitted")
	}
}

func claimsFrom(r *http.Request) *AccessClaims {
	claims, _ := r.Context().Value(contextKeyClaims).(*AccessClaims)
	if claims == nil {
		return &AccessClaims{}
	}
	return claims
}
