package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/toolcrib-backend/internal/requests"
	"github.com/angelmondragon/toolcrib-backend/internal/tools"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
)

type stubToolService struct {
	tools.Service
	listParams tools.ListParams
	created    *tools.CreateToolInput
	updated    *tools.UpdateToolInput
	retireErr  error
	actor      requests.Actor
}

func (s *stubToolService) List(_ context.Context, params tools.ListParams) (*tools.ListResult, error) {
	s.listParams = params
	return &tools.ListResult{Items: []tools.ToolDTO{{ID: uuid.New(), Name: "Hammer drill"}}, Cursor: "next"}, nil
}

func (s *stubToolService) Create(_ context.Context, actor requests.Actor, input tools.CreateToolInput) (*tools.ToolDTO, error) {
	s.actor = actor
	s.created = &input
	return &tools.ToolDTO{ID: uuid.New(), Name: input.Name, TotalQty: input.TotalQty, AvailableQty: input.TotalQty}, nil
}

func (s *stubToolService) Update(_ context.Context, actor requests.Actor, id uuid.UUID, input tools.UpdateToolInput) (*tools.ToolDTO, error) {
	s.actor = actor
	s.updated = &input
	return &tools.ToolDTO{ID: id}, nil
}

func (s *stubToolService) Retire(_ context.Context, _ requests.Actor, id uuid.UUID) (*tools.ToolDTO, error) {
	if s.retireErr != nil {
		return nil, s.retireErr
	}
	return &tools.ToolDTO{ID: id, Status: enums.ToolStatusRetired}, nil
}

func TestListToolsParsesQuery(t *testing.T) {
	svc := &stubToolService{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools?q=+drill+&status=maintenance&limit=5", nil)
	req = withCaller(req, uuid.New(), enums.RoleWorker, nil)

	resp := httptest.NewRecorder()
	ListTools(svc, testLogger)(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "drill", svc.listParams.Search)
	require.NotNil(t, svc.listParams.Status)
	assert.Equal(t, enums.ToolStatusMaintenance, *svc.listParams.Status)
	assert.Equal(t, 5, svc.listParams.Limit)

	var envelope struct {
		Data       []tools.ToolDTO `json:"data"`
		NextCursor string          `json:"next_cursor"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "next", envelope.NextCursor)
}

func TestListToolsRejectsUnknownStatus(t *testing.T) {
	req := withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/tools?status=lost", nil), uuid.New(), enums.RoleWorker, nil)
	resp := httptest.NewRecorder()
	ListTools(&stubToolService{}, testLogger)(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateToolReturnsCreated(t *testing.T) {
	svc := &stubToolService{}
	body := `{"name":"Torque wrench","description":"1/2 inch drive","total_qty":4,"location":"Bay 3"}`
	req := withCaller(httptest.NewRequest(http.MethodPost, "/api/v1/tools", strings.NewReader(body)), uuid.New(), enums.RoleStorekeeper, nil)

	resp := httptest.NewRecorder()
	CreateTool(svc, testLogger)(resp, req)
	require.Equal(t, http.StatusCreated, resp.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, "Torque wrench", svc.created.Name)
	assert.Equal(t, 4, svc.created.TotalQty)
	require.NotNil(t, svc.created.Location)
	assert.Equal(t, "Bay 3", *svc.created.Location)
	assert.Equal(t, enums.RoleStorekeeper, svc.actor.Role)
}

func TestCreateToolValidatesBody(t *testing.T) {
	cases := map[string]string{
		"missing name":   `{"total_qty":1}`,
		"negative stock": `{"name":"Saw","total_qty":-1}`,
		"bad image url":  `{"name":"Saw","total_qty":1,"image_url":"not a url"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubToolService{}
			req := withCaller(httptest.NewRequest(http.MethodPost, "/api/v1/tools", strings.NewReader(body)), uuid.New(), enums.RoleStorekeeper, nil)
			resp := httptest.NewRecorder()
			CreateTool(svc, testLogger)(resp, req)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Nil(t, svc.created)
		})
	}
}

func TestUpdateToolRejectsRetiredStatus(t *testing.T) {
	toolID := uuid.New()
	svc := &stubToolService{}
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/tools/"+toolID.String(), strings.NewReader(`{"status":"retired"}`))
	req = withCaller(req, uuid.New(), enums.RoleStorekeeper, map[string]string{"toolId": toolID.String()})

	resp := httptest.NewRecorder()
	UpdateTool(svc, testLogger)(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, svc.updated)
}

func TestUpdateToolPassesStockChange(t *testing.T) {
	toolID := uuid.New()
	svc := &stubToolService{}
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/tools/"+toolID.String(), strings.NewReader(`{"total_qty":7,"status":"maintenance"}`))
	req = withCaller(req, uuid.New(), enums.RoleStorekeeper, map[string]string{"toolId": toolID.String()})

	resp := httptest.NewRecorder()
	UpdateTool(svc, testLogger)(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, svc.updated)
	require.NotNil(t, svc.updated.TotalQty)
	assert.Equal(t, 7, *svc.updated.TotalQty)
	require.NotNil(t, svc.updated.Status)
	assert.Equal(t, enums.ToolStatusMaintenance, *svc.updated.Status)
}

func TestRetireToolConflict(t *testing.T) {
	toolID := uuid.New()
	svc := &stubToolService{retireErr: pkgerrors.New(pkgerrors.CodeConflict, "tool has requests still issued")}
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/tools/"+toolID.String(), nil)
	req = withCaller(req, uuid.New(), enums.RoleStorekeeper, map[string]string{"toolId": toolID.String()})

	resp := httptest.NewRecorder()
	RetireTool(svc, testLogger)(resp, req)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestGetToolRejectsMalformedID(t *testing.T) {
	req := withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/tools/abc", nil), uuid.New(), enums.RoleWorker, map[string]string{"toolId": "abc"})
	resp := httptest.NewRecorder()
	GetTool(&stubToolService{}, testLogger)(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
