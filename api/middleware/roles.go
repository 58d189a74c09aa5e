package middleware

import (
	"net/http"

	"github.com/angelmondragon/toolcrib-backend/api/responses"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

func RequireRole(role enums.Role, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) != string(role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Newf(pkgerrors.CodeForbidden, "%s role required", role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
