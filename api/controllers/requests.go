package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/api/responses"
	"github.com/angelmondragon/toolcrib-backend/api/validators"
	"github.com/angelmondragon/toolcrib-backend/internal/requests"
	"github.com/angelmondragon/toolcrib-backend/internal/reservation"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

type createRequestBody struct {
	ToolID             string  `json:"tool_id" validate:"required,uuid"`
	Quantity           int     `json:"quantity" validate:"required,min=1"`
	ExpectedReturnDate string  `json:"expected_return_date" validate:"required"`
	Notes              *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

func (b createRequestBody) toInput() (reservation.CreateInput, error) {
	toolID, err := uuid.Parse(b.ToolID)
	if err != nil {
		return reservation.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tool_id")
	}
	due, err := parseDate("expected_return_date", b.ExpectedReturnDate)
	if err != nil {
		return reservation.CreateInput{}, err
	}
	return reservation.CreateInput{
		ToolID:             toolID,
		Quantity:           b.Quantity,
		ExpectedReturnDate: due,
		Notes:              b.Notes,
	}, nil
}

type batchItemBody struct {
	ToolID             string  `json:"tool_id" validate:"required,uuid"`
	Quantity           int     `json:"quantity" validate:"required,min=1"`
	ExpectedReturnDate string  `json:"expected_return_date,omitempty"`
	Notes              *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type createBatchBody struct {
	Items []batchItemBody `json:"items" validate:"required,min=1,max=20,dive"`
}

type decisionBody struct {
	Decision string  `json:"decision" validate:"required,oneof=approve reject"`
	Notes    *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type returnBody struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// CreateRequest opens a pending borrow request for the calling worker.
func CreateRequest(svc reservation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createRequestBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Create(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// CreateRequestBatch opens several requests at once; either all are created or none.
func CreateRequestBatch(svc reservation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createBatchBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]reservation.CreateInput, 0, len(body.Items))
		for i, item := range body.Items {
			toolID, err := uuid.Parse(item.ToolID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tool_id").
					WithDetails(map[string]any{"index": i}))
				return
			}
			due, err := parseDate("expected_return_date", item.ExpectedReturnDate)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			items = append(items, reservation.CreateInput{
				ToolID:             toolID,
				Quantity:           item.Quantity,
				ExpectedReturnDate: due,
				Notes:              item.Notes,
			})
		}

		created, err := svc.CreateBatch(r.Context(), actor, items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// DecideRequest approves or rejects a pending request.
func DecideRequest(svc reservation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body decisionBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		decision, err := enums.ParseRequestDecision(body.Decision)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decision"))
			return
		}

		input := reservation.DecisionInput{Notes: body.Notes}
		var dto *requests.RequestDTO
		if decision == enums.RequestDecisionApprove {
			dto, err = svc.Approve(r.Context(), actor, requestID, input)
		} else {
			dto, err = svc.Reject(r.Context(), actor, requestID, input)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// InitiateReturn lets the borrowing worker hand a tool back.
func InitiateReturn(svc reservation.Service, logg *logger.Logger) http.HandlerFunc {
	return requestAction(logg, svc.InitiateReturn)
}

// ConfirmReturn lets a storekeeper confirm the tool is back on the shelf.
func ConfirmReturn(svc reservation.Service, logg *logger.Logger) http.HandlerFunc {
	return requestAction(logg, svc.ConfirmReturn)
}

// requestAction serves the return endpoints. The JSON body is optional.
func requestAction(logg *logger.Logger, action func(context.Context, requests.Actor, uuid.UUID, reservation.ReturnInput) (*requests.RequestDTO, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body returnBody
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := action(r.Context(), actor, requestID, reservation.ReturnInput{Notes: body.Notes})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// ListRequests shows storekeepers every request and workers their own.
func ListRequests(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return listRequests(logg, svc.List)
}

func ListMyRequests(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return listRequests(logg, svc.ListMine)
}

// ListBorrowed returns the caller's currently approved requests.
func ListBorrowed(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return listRequests(logg, svc.ListBorrowed)
}

// ListIssuedTools returns every request still holding stock, newest approval first.
func ListIssuedTools(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return listRequests(logg, svc.ListIssued)
}

func GetRequest(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Get(r.Context(), actor, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

type listFunc func(context.Context, requests.Actor, requests.ListParams) (requests.Page, error)

func listRequests(logg *logger.Logger, list listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := parseRequestListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := list(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := page.Items
		if items == nil {
			items = []requests.RequestDTO{}
		}
		responses.WritePage(w, items, page.NextCursor)
	}
}

func parseRequestListParams(r *http.Request) (requests.ListParams, error) {
	pageParams, err := validators.ParsePagination(r, 0)
	if err != nil {
		return requests.ListParams{}, err
	}
	params := requests.ListParams{Params: pageParams}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseRequestStatus(raw)
		if err != nil {
			return requests.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		params.Status = &status
	}
	if params.WorkerID, err = validators.ParseQueryUUID(r, "workerId"); err != nil {
		return requests.ListParams{}, err
	}
	if params.ToolID, err = validators.ParseQueryUUID(r, "toolId"); err != nil {
		return requests.ListParams{}, err
	}
	return params, nil
}
