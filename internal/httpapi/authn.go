package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"akwaba.app/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if a.issuer == nil {
			writeError(w, r, http.StatusServiceUnavailable, "authentication is not configured")
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}

		claims, err := a.issuer.ParseAndValidate(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				unauthorized(w, r, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), auth.NewPrincipal(claims.Subject, claims.Roles))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission rejects principals without perm.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w, r, "authentication required")
				return
			}
			if !principal.HasPermission(perm) {
				forbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects principals holding none of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
				unauthorized(w, r, "authentication required")
				return
			}
			for _, role := range roles {
				if auth.HasRole(r.Context(), role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			forbidden(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="akwaba"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func forbidden(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="akwaba", error="insufficient_scope"`)
	writeError(w, r, http.StatusForbidden, "forbidden")
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
