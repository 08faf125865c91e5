package api

import (
	"context"
	"net/http"

	"github.com/reedfamily/zomboidbot/internal/auth"
)

type operatorContextKey struct{}

func AuthMiddleware(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			op, err := authSvc.ValidateSession(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), operatorContextKey{}, op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFrom returns the operator set by AuthMiddleware.
func OperatorFrom(ctx context.Context) *auth.Operator {
	op, _ := ctx.Value(operatorContextKey{}).(*auth.Operator)
	return op
}
