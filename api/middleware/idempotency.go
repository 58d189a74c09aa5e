package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/toolcrib-backend/api/responses"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	// LifecycleReplayTTL covers request submission and transitions. A client
	// retrying a week-old approve still gets the original answer.
	LifecycleReplayTTL = 7 * 24 * time.Hour
	CatalogReplayTTL   = 24 * time.Hour

	inFlightTTL       = time.Minute
	maxIdempotencyKey = 255
)

// ReplayStore holds one entry per caller and key: a claim while the handler
// runs, then the response it produced.
type ReplayStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type replayEntry struct {
	Fingerprint string `json:"fp"`
	Done        bool   `json:"done"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotent makes a write safe to retry. The first request for a key claims
// it and runs; later requests with the same body replay the stored response,
// with a different body they fail with IDEMPOTENCY_KEY_REUSED, and while the
// first is still running they get a retryable conflict. 5xx responses release
// the claim so a retry executes again.
func Idempotent(store ReplayStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" || len(clientKey) > maxIdempotencyKey {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required (1-255 characters)"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fp := fingerprint(r, body)
			key := store.IdempotencyKey(replayScope(r), clientKey)

			claim, _ := json.Marshal(replayEntry{Fingerprint: fp})
			claimed, err := store.SetNX(ctx, key, string(claim), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayExisting(ctx, store, key, fp, w, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// Detached so a client hang-up cannot leave the key stuck in flight.
			saveCtx := context.WithoutCancel(ctx)
			if capture.statusCode() >= http.StatusInternalServerError {
				if err := store.Del(saveCtx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency claim", err)
				}
				return
			}
			done, err := json.Marshal(replayEntry{
				Fingerprint: fp,
				Done:        true,
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err == nil {
				err = store.Set(saveCtx, key, string(done), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "persist idempotent response", err)
			}
		})
	}
}

func replayExisting(ctx context.Context, store ReplayStore, key, fp string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if err != nil && !errors.Is(err, redis.Nil) {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency key"))
		return
	}
	if raw == "" {
		// The claim expired between SETNX and GET; the caller can simply retry.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeBusy, "idempotency key released, retry the request"))
		return
	}

	var entry replayEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency entry"))
		return
	}
	switch {
	case entry.Fingerprint != fp:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request"))
	case !entry.Done:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeBusy, "a request with this idempotency key is still in progress"))
	default:
		if entry.ContentType != "" {
			w.Header().Set("Content-Type", entry.ContentType)
		}
		w.Header().Set(ReplayedHeader, "true")
		w.WriteHeader(entry.Status)
		_, _ = w.Write(entry.Body)
	}
}

// replayScope keys entries per caller and route so two workers can use the
// same client-generated key without colliding.
func replayScope(r *http.Request) string {
	route := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			route = pattern
		}
	}
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, route}, "|")
}

// fingerprint covers the concrete path as well as the body, so the same key
// sent to /requests/A/decision and /requests/B/decision is a reuse.
func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method + " " + r.URL.Path + "\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
