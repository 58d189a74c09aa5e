package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/internal/ledger"
	"github.com/angelmondragon/toolcrib-backend/internal/requests"
	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/pagination"
)

// Service exposes the tool catalog and its admin operations.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*ToolDTO, error)
	Create(ctx context.Context, actor requests.Actor, input CreateToolInput) (*ToolDTO, error)
	Update(ctx context.Context, actor requests.Actor, id uuid.UUID, input UpdateToolInput) (*ToolDTO, error)
	Retire(ctx context.Context, actor requests.Actor, id uuid.UUID) (*ToolDTO, error)
	LedgerReport(ctx context.Context, actor requests.Actor, id uuid.UUID) (*ledger.Report, error)
	ReleaseQuarantine(ctx context.Context, actor requests.Actor, id uuid.UUID) (*ledger.Report, error)
}

// ListParams filters the catalog.
type ListParams struct {
	Status *enums.ToolStatus
	Search string
	pagination.Params
}

// ListResult wraps returned tools and the cursor for the next page.
type ListResult struct {
	Items  []ToolDTO `json:"items"`
	Cursor string    `json:"cursor"`
}

// CreateToolInput holds the validated payload to add a tool line.
type CreateToolInput struct {
	Name        string
	Description string
	ImageURL    *string
	Category    *string
	Location    *string
	TotalQty    int
}

// UpdateToolInput holds optional edits. TotalQty resizes stock through the ledger.
type UpdateToolInput struct {
	Name        *string
	Description *string
	ImageURL    *string
	Category    *string
	Location    *string
	Status      *enums.ToolStatus
	TotalQty    *int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockLedger interface {
	Resize(ctx context.Context, tx *gorm.DB, toolID uuid.UUID, newTotal int) error
	Report(ctx context.Context, toolID uuid.UUID) (*ledger.Report, error)
	ReleaseQuarantine(ctx context.Context, toolID uuid.UUID) (ledger.Snapshot, error)
}

type service struct {
	repo     *Repository
	db       txRunner
	ledger   stockLedger
	requests requests.Repository
	now      func() time.Time
}

// NewService constructs the tool catalog service.
func NewService(repo *Repository, db txRunner, stock stockLedger, requestRepo requests.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("tool repository required")
	}
	if db == nil {
		return nil, fmt.Errorf("db client required")
	}
	if stock == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if requestRepo == nil {
		return nil, fmt.Errorf("requests repository required")
	}
	return &service{
		repo:     repo,
		db:       db,
		ledger:   stock,
		requests: requestRepo,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid tool status %q", *params.Status)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, listFilter{
		Status: params.Status,
		Search: params.Search,
		Cursor: cursor,
		Limit:  params.Limit,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tools")
	}
	page := pagination.BuildPage(rows, params.Limit, func(t models.Tool) pagination.Cursor {
		return pagination.Cursor{SortAt: t.CreatedAt.UTC(), ID: t.ID}
	})
	items := make([]ToolDTO, 0, len(page.Items))
	for _, row := range page.Items {
		items = append(items, toDTO(row))
	}
	return &ListResult{Items: items, Cursor: page.NextCursor}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ToolDTO, error) {
	tool, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	dto := toDTO(*tool)
	return &dto, nil
}

// Create adds a tool line with all of its units available.
func (s *service) Create(ctx context.Context, actor requests.Actor, input CreateToolInput) (*ToolDTO, error) {
	if err := requireStorekeeper(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tool name is required")
	}
	if input.TotalQty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total quantity cannot be negative")
	}
	tool := &models.Tool{
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		ImageURL:     trimmed(input.ImageURL),
		Category:     trimmed(input.Category),
		Location:     trimmed(input.Location),
		TotalQty:     input.TotalQty,
		AvailableQty: input.TotalQty,
		Status:       enums.ToolStatusActive,
	}
	if err := s.repo.Create(ctx, tool); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert tool")
	}
	dto := toDTO(*tool)
	return &dto, nil
}

// Update edits descriptive fields and optionally resizes stock in one transaction.
func (s *service) Update(ctx context.Context, actor requests.Actor, id uuid.UUID, input UpdateToolInput) (*ToolDTO, error) {
	if err := requireStorekeeper(actor); err != nil {
		return nil, err
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tool name cannot be empty")
	}
	if input.Status != nil {
		switch *input.Status {
		case enums.ToolStatusActive, enums.ToolStatusMaintenance:
		case enums.ToolStatusRetired:
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "use the retire operation to retire a tool")
		default:
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid tool status %q", *input.Status)
		}
	}

	var updated *models.Tool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		tool, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if tool.Status == enums.ToolStatusRetired {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "tool %q is retired", tool.Name)
		}

		fields := map[string]any{}
		if input.Name != nil {
			fields["name"] = strings.TrimSpace(*input.Name)
		}
		if input.Description != nil {
			fields["description"] = strings.TrimSpace(*input.Description)
		}
		if input.ImageURL != nil {
			fields["image_url"] = trimmed(input.ImageURL)
		}
		if input.Category != nil {
			fields["category"] = trimmed(input.Category)
		}
		if input.Location != nil {
			fields["location"] = trimmed(input.Location)
		}
		if input.Status != nil && *input.Status != tool.Status {
			fields["status"] = *input.Status
			if *input.Status == enums.ToolStatusMaintenance {
				fields["last_maintenance_at"] = s.now()
			}
		}
		if err := repo.UpdateFields(ctx, id, fields); err != nil {
			return err
		}
		if input.TotalQty != nil && *input.TotalQty != tool.TotalQty {
			if err := s.ledger.Resize(ctx, tx, id, *input.TotalQty); err != nil {
				return err
			}
		}
		updated, err = repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update tool")
	}
	dto := toDTO(*updated)
	return &dto, nil
}

// Retire takes a tool out of circulation. It is refused while any unit is issued.
// The tool row stays locked until commit so a concurrent approval either lands
// first and blocks the retire, or waits and then finds the tool retired.
func (s *service) Retire(ctx context.Context, actor requests.Actor, id uuid.UUID) (*ToolDTO, error) {
	if err := requireStorekeeper(actor); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tool id is required")
	}

	var retired *models.Tool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		tool, err := repo.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if tool == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "tool not found")
		}
		if tool.Status == enums.ToolStatusRetired {
			retired = tool
			return nil
		}

		affected, err := repo.RetireIfIdle(ctx, id)
		if err != nil {
			return err
		}
		if affected == 0 {
			return s.retireRefused(ctx, tx, repo, id)
		}
		retired, err = repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retire tool")
	}
	dto := toDTO(*retired)
	return &dto, nil
}

// retireRefused explains why the conditional retire matched no row.
func (s *service) retireRefused(ctx context.Context, tx *gorm.DB, repo *Repository, id uuid.UUID) error {
	current, err := repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tool not found")
	}
	outstanding, err := s.requests.WithTx(tx).CountOutstandingForTool(ctx, id)
	if err != nil {
		return err
	}
	return pkgerrors.Newf(pkgerrors.CodeConflict, "tool %q still has issued units", current.Name).
		WithDetails(map[string]any{"outstanding_requests": outstanding})
}

func (s *service) LedgerReport(ctx context.Context, actor requests.Actor, id uuid.UUID) (*ledger.Report, error) {
	if err := requireStorekeeper(actor); err != nil {
		return nil, err
	}
	report, err := s.ledger.Report(ctx, id)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger report")
	}
	return report, nil
}

// ReleaseQuarantine unfreezes the tool after manual reconciliation and returns the fresh report.
func (s *service) ReleaseQuarantine(ctx context.Context, actor requests.Actor, id uuid.UUID) (*ledger.Report, error) {
	if err := requireStorekeeper(actor); err != nil {
		return nil, err
	}
	if _, err := s.ledger.ReleaseQuarantine(ctx, id); err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release quarantine")
	}
	return s.LedgerReport(ctx, actor, id)
}

func (s *service) load(ctx context.Context, repo *Repository, id uuid.UUID) (*models.Tool, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tool id is required")
	}
	tool, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tool")
	}
	if tool == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tool not found")
	}
	return tool, nil
}

func requireStorekeeper(actor requests.Actor) error {
	if actor.UserID == uuid.Nil || !actor.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity is required")
	}
	if !actor.IsStorekeeper() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only storekeepers can manage tools")
	}
	return nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
