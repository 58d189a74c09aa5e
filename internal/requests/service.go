package requests

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/pagination"
)

// ListParams are the client supplied listing options.
type ListParams struct {
	Status   *enums.RequestStatus
	WorkerID *uuid.UUID
	ToolID   *uuid.UUID
	pagination.Params
}

// Page is one window of requests.
type Page = pagination.Page[RequestDTO]

// Service answers read-only request queries against committed state.
type Service interface {
	List(ctx context.Context, actor Actor, params ListParams) (Page, error)
	ListMine(ctx context.Context, actor Actor, params ListParams) (Page, error)
	ListBorrowed(ctx context.Context, actor Actor, params ListParams) (Page, error)
	ListIssued(ctx context.Context, actor Actor, params ListParams) (Page, error)
	Get(ctx context.Context, actor Actor, id uuid.UUID) (*RequestDTO, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("request repository required")
	}
	return &service{repo: repo}, nil
}

// List shows storekeepers every request (optionally filtered by worker); workers only see their own.
func (s *service) List(ctx context.Context, actor Actor, params ListParams) (Page, error) {
	filter, err := baseFilter(params)
	if err != nil {
		return Page{}, err
	}
	if actor.IsStorekeeper() {
		filter.WorkerID = params.WorkerID
	} else {
		filter.WorkerID = &actor.UserID
	}
	return s.page(ctx, filter)
}

func (s *service) ListMine(ctx context.Context, actor Actor, params ListParams) (Page, error) {
	filter, err := baseFilter(params)
	if err != nil {
		return Page{}, err
	}
	filter.WorkerID = &actor.UserID
	return s.page(ctx, filter)
}

// ListBorrowed returns the caller's currently approved requests.
func (s *service) ListBorrowed(ctx context.Context, actor Actor, params ListParams) (Page, error) {
	params.Status = nil
	filter, err := baseFilter(params)
	if err != nil {
		return Page{}, err
	}
	filter.WorkerID = &actor.UserID
	filter.Statuses = []enums.RequestStatus{enums.RequestStatusApproved}
	return s.page(ctx, filter)
}

// ListIssued returns every request holding stock, most recently approved first.
func (s *service) ListIssued(ctx context.Context, actor Actor, params ListParams) (Page, error) {
	if !actor.IsStorekeeper() {
		return Page{}, pkgerrors.New(pkgerrors.CodeForbidden, "only storekeepers can list issued tools")
	}
	params.Status = nil
	filter, err := baseFilter(params)
	if err != nil {
		return Page{}, err
	}
	filter.WorkerID = params.WorkerID
	filter.Statuses = enums.StockHoldingStatuses()
	filter.SortBy = SortByApprovalDate
	return s.page(ctx, filter)
}

func (s *service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*RequestDTO, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load request")
	}
	if req == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "request not found")
	}
	if !actor.IsStorekeeper() && req.WorkerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "request belongs to another worker")
	}
	dto := ToDTO(*req)
	return &dto, nil
}

func (s *service) page(ctx context.Context, filter ListFilter) (Page, error) {
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return Page{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list requests")
	}
	sortBy := filter.SortBy
	raw := pagination.BuildPage(rows, filter.Limit, func(r models.ToolRequest) pagination.Cursor {
		return CursorFor(r, sortBy)
	})
	return Page{Items: toDTOs(raw.Items), NextCursor: raw.NextCursor}, nil
}

func baseFilter(params ListParams) (ListFilter, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return ListFilter{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	filter := ListFilter{
		ToolID: params.ToolID,
		Cursor: cursor,
		Limit:  pagination.NormalizeLimit(params.Limit),
	}
	if params.Status != nil {
		if !params.Status.IsValid() {
			return ListFilter{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *params.Status)
		}
		filter.Statuses = []enums.RequestStatus{*params.Status}
	}
	return filter, nil
}
