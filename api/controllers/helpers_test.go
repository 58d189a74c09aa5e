package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/toolcrib-backend/api/middleware"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

var testLogger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

// withCaller attaches identity and chi URL params the way the router would.
func withCaller(req *http.Request, userID uuid.UUID, role enums.Role, params map[string]string) *http.Request {
	ctx := middleware.WithIdentity(req.Context(), userID.String(), string(role), "Dana")
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rc))
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

// dataOf decodes the success envelope's data field into T.
func dataOf[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	return env.Data
}
