package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

func TestRequestIDEchoesUsableHeader(t *testing.T) {
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	req.Header.Set(requestIDHeader, "checkout-desk-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "checkout-desk-42", seen)
	assert.Equal(t, "checkout-desk-42", rr.Header().Get(requestIDHeader))
}

func TestRequestIDReplacesUnusableHeader(t *testing.T) {
	for _, bad := range []string{"", "has space", strings.Repeat("x", maxRequestIDLength+1)} {
		var seen string
		handler := RequestID(nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, bad)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.NotEqual(t, bad, seen)
		assert.Len(t, seen, 36)
		assert.Equal(t, seen, rr.Header().Get(requestIDHeader))
	}
}

func TestRecovererWritesInternalEnvelope(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "middleware-test", Output: io.Discard})
	handler := Recoverer(logg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("ledger row vanished")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/requests", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, rr.Body.String(), "ledger row vanished")
}

func TestRecovererReraisesAbort(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
