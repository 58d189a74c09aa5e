package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/api/middleware"
	"github.com/angelmondragon/toolcrib-backend/internal/notifications"
	"github.com/angelmondragon/toolcrib-backend/internal/requests"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
)

const dateLayout = "2006-01-02"

// actorFromRequest rebuilds the authenticated caller seeded by middleware.Auth.
func actorFromRequest(r *http.Request) (requests.Actor, error) {
	rawID := middleware.UserIDFromContext(r.Context())
	if rawID == "" {
		return requests.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return requests.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return requests.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}
	return requests.Actor{
		UserID: userID,
		Role:   role,
		Name:   middleware.UserNameFromContext(r.Context()),
	}, nil
}

func viewerFromRequest(r *http.Request) (notifications.Viewer, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return notifications.Viewer{}, err
	}
	return notifications.Viewer{UserID: actor.UserID, Role: actor.Role}, nil
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
	}
	return id, nil
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, field+" must be formatted as YYYY-MM-DD").
			WithDetails(map[string]any{"field": field})
	}
	return t, nil
}
