package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/toolcrib-backend/api/responses"
	pkgAuth "github.com/angelmondragon/toolcrib-backend/pkg/auth"
	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

// Auth admits requests carrying a valid bearer token and seeds the context with
// the caller's id, role and display name.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			userID, role := claims.UserID.String(), string(claims.Role)
			ctx = WithIdentity(ctx, userID, role, claims.Name)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, userID), role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case as well as a bare token.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, "bearer") {
		header = strings.TrimSpace(rest)
	}
	return header, header != ""
}
