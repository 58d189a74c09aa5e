package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/types"
)

// retryAfterSeconds is advertised on retryable failures. Ledger locks are
// held for milliseconds, so one second is plenty.
const retryAfterSeconds = 1

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WritePage renders a cursor-paginated listing.
func WritePage(w http.ResponseWriter, items any, nextCursor string) {
	writeJSON(w, http.StatusOK, types.PageEnvelope{Data: items, NextCursor: nextCursor})
}

// WriteError renders err as its coded envelope and logs it: rejections at
// warn, server faults at error with diagnostics.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := coded(err)
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := types.APIError{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		Retryable: meta.Retryable,
	}
	if meta.ExposeMessage && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	logFailure(ctx, logg, err, meta.HTTPStatus)

	if meta.Retryable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr})
}

func coded(err error) *pkgerrors.Error {
	if err == nil {
		err = errors.New("unknown error")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
}

func logFailure(ctx context.Context, logg *logger.Logger, err error, status int) {
	if logg == nil {
		return
	}
	fields := pkgerrors.Diagnose(err).Fields()
	fields["http_status"] = status
	ctx = logg.WithFields(ctx, fields)
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(ctx, "request.rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already out; all that is left is to record it.
		log.Error().Err(err).Int("status", status).Msg("encode response")
	}
}
