package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/stockledger/api/responses"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

// guard answers 403 with message when allow rejects the request context.
func guard(logg *logger.Logger, message string, allow func(ctx context.Context) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow(r.Context()) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, message))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStockWriter rejects callers whose role may only read stock.
func RequireStockWriter(logg *logger.Logger) func(http.Handler) http.Handler {
	return guard(logg, "role cannot change stock", func(ctx context.Context) bool {
		return RoleFromContext(ctx).CanMutateStock()
	})
}

// StoreContext requires the token to carry an active store.
func StoreContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return guard(logg, "store context missing", func(ctx context.Context) bool {
		_, ok := StoreIDFromContext(ctx)
		return ok
	})
}
