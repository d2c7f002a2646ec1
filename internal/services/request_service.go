package services

import (
	"context"
	"fmt"
	"strings"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories"
	"school_resources_backend/pkg/utils"
)

var (
	requestCreators = models.NewRoleSet(models.RoleTeacher, models.RoleLabTechnician, models.RoleAdmin)
	requestDeciders = models.NewRoleSet(models.RoleStorekeeper, models.RoleAdmin)
	cancelOverride  = models.NewRoleSet(models.RoleAdmin)
)

// --- Resource Request DTOs ---
type CreateResourceRequestRequest struct {
	ResourceName    string `json:"resource_name" binding:"required"`
	ResourceType    string `json:"resource_type" binding:"required"`
	Quantity        int    `json:"quantity" binding:"required"`
	Description     string `json:"description"`
	InventoryItemID *int64 `json:"inventory_item_id"`
}

type TransitionRequest struct {
	Action string `json:"action" binding:"required"`
}

// RequestService drives resource requests through their lifecycle.
type RequestService interface {
	CreateRequest(ctx context.Context, p models.Principal, req CreateResourceRequestRequest) (*models.ResourceRequest, error)
	GetRequestByID(ctx context.Context, id int64) (*models.ResourceRequest, error)
	GetRequests(ctx context.Context, filters models.ResourceRequestFilters) ([]models.ResourceRequest, int, error)
	Transition(ctx context.Context, p models.Principal, id int64, action models.Action) (*models.ResourceRequest, error)
	Cancel(ctx context.Context, p models.Principal, id int64) (*models.ResourceRequest, error)
}

type requestService struct {
	repo    repositories.RequestRepository
	gate    Gate
	metrics *Metrics
	machine *Machine[*models.ResourceRequest]
}

// NewRequestService creates a new instance of RequestService.
func NewRequestService(repo repositories.RequestRepository, gate Gate, metrics *Metrics) RequestService {
	s := &requestService{repo: repo, gate: gate, metrics: metrics}
	s.machine = NewMachine(MachineConfig[*models.ResourceRequest]{
		Kind: models.KindResourceRequest,
		Rules: map[models.Action]Rule{
			models.ActionFulfill: {To: models.StatusFulfilled, Allowed: requestDeciders},
			models.ActionReject:  {To: models.StatusRejected, Allowed: requestDeciders},
		},
		Cancellable: true,
		Override:    cancelOverride,
		Get:         repo.GetRequestByID,
		Commit:      repo.TransitionRequest,
	}, gate, metrics)
	return s
}

func (s *requestService) CreateRequest(ctx context.Context, p models.Principal, req CreateResourceRequestRequest) (created *models.ResourceRequest, err error) {
	if _, err := authorize(ctx, s.gate, p, requestCreators, "create resource requests"); err != nil {
		return nil, err
	}
	if utils.IsEmpty(req.ResourceName) || utils.IsEmpty(req.ResourceType) {
		return nil, fmt.Errorf("%w: resource_name and resource_type are required", ErrValidation)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}

	done := s.metrics.track("request.create")
	defer func() { done(err) }()

	created, err = s.repo.CreateRequest(ctx, &models.ResourceRequest{
		RequesterID:     p.ID,
		ResourceName:    strings.TrimSpace(req.ResourceName),
		ResourceType:    strings.TrimSpace(req.ResourceType),
		Quantity:        req.Quantity,
		Description:     req.Description,
		InventoryItemID: req.InventoryItemID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resource request: %w", err)
	}
	return created, nil
}

func (s *requestService) GetRequestByID(ctx context.Context, id int64) (*models.ResourceRequest, error) {
	return s.repo.GetRequestByID(ctx, id)
}

func (s *requestService) GetRequests(ctx context.Context, filters models.ResourceRequestFilters) ([]models.ResourceRequest, int, error) {
	if filters.Status != nil && *filters.Status != "" && !models.IsValidStatus(*filters.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, *filters.Status)
	}
	return s.repo.GetRequests(ctx, filters)
}

func (s *requestService) Transition(ctx context.Context, p models.Principal, id int64, action models.Action) (*models.ResourceRequest, error) {
	if action == models.ActionCancel {
		return s.Cancel(ctx, p, id)
	}
	return s.machine.Transition(ctx, id, action, p)
}

func (s *requestService) Cancel(ctx context.Context, p models.Principal, id int64) (*models.ResourceRequest, error) {
	return s.machine.Cancel(ctx, id, p)
}
