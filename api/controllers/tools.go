package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/toolcrib-backend/api/responses"
	"github.com/angelmondragon/toolcrib-backend/api/validators"
	"github.com/angelmondragon/toolcrib-backend/internal/tools"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

type createToolBody struct {
	Name        string  `json:"name" validate:"required,notblank,max=200"`
	Description string  `json:"description" validate:"max=2000"`
	ImageURL    *string `json:"image_url,omitempty" validate:"omitempty,url"`
	Category    *string `json:"category,omitempty" validate:"omitempty,max=100"`
	Location    *string `json:"location,omitempty" validate:"omitempty,max=100"`
	TotalQty    int     `json:"total_qty" validate:"gte=0"`
}

type updateToolBody struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	ImageURL    *string `json:"image_url,omitempty"`
	Category    *string `json:"category,omitempty" validate:"omitempty,max=100"`
	Location    *string `json:"location,omitempty" validate:"omitempty,max=100"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=active maintenance"`
	TotalQty    *int    `json:"total_qty,omitempty" validate:"omitempty,gte=0"`
}

func ListTools(svc tools.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageParams, err := validators.ParsePagination(r, 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := tools.ListParams{
			Search: strings.TrimSpace(r.URL.Query().Get("q")),
			Params: pageParams,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseToolStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			params.Status = &status
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, result.Items, result.Cursor)
	}
}

func GetTool(svc tools.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		toolID, err := pathUUID(r, "toolId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Get(r.Context(), toolID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func CreateTool(svc tools.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createToolBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Create(r.Context(), actor, tools.CreateToolInput{
			Name:        body.Name,
			Description: body.Description,
			ImageURL:    body.ImageURL,
			Category:    body.Category,
			Location:    body.Location,
			TotalQty:    body.TotalQty,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// UpdateTool edits a tool; a new total_qty is applied through the ledger.
func UpdateTool(svc tools.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		toolID, err := pathUUID(r, "toolId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateToolBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := tools.UpdateToolInput{
			Name:        body.Name,
			Description: body.Description,
			ImageURL:    body.ImageURL,
			Category:    body.Category,
			Location:    body.Location,
			TotalQty:    body.TotalQty,
		}
		if body.Status != nil {
			status := enums.ToolStatus(*body.Status)
			input.Status = &status
		}
		dto, err := svc.Update(r.Context(), actor, toolID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// RetireTool is refused while any unit is still issued.
func RetireTool(svc tools.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		toolID, err := pathUUID(r, "toolId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Retire(r.Context(), actor, toolID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func ToolLedgerReport(svc tools.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		toolID, err := pathUUID(r, "toolId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.LedgerReport(r.Context(), actor, toolID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// ReleaseToolQuarantine unfreezes a tool once its counters reconcile again.
func ReleaseToolQuarantine(svc tools.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		toolID, err := pathUUID(r, "toolId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.ReleaseQuarantine(r.Context(), actor, toolID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
