package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

type operatorCtxKey struct{}

// WithOperator returns a new context carrying op.
func WithOperator(ctx context.Context, op pallet.Operator) context.Context {
	return context.WithValue(ctx, operatorCtxKey{}, op)
}

// OperatorFromContext returns the authenticated operator, if any.
func OperatorFromContext(ctx context.Context) (pallet.Operator, bool) {
	op, ok := ctx.Value(operatorCtxKey{}).(pallet.Operator)
	return op, ok
}

// Middleware rejects requests without a valid bearer token and stores the
// operator in the request context.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			op, err := svc.Verify(token)
			if err != nil {
				svc.logger.Debug("token rejected", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}

// RequireRole rejects operators without the given role.
func RequireRole(role pallet.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := OperatorFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
				return
			}
			if op.Role != role {
				writeAuthError(w, http.StatusForbidden, "forbidden", "role "+string(role)+" required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
