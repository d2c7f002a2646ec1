package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories"
	"school_resources_backend/pkg/utils"
)

var (
	labManagers   = models.NewRoleSet(models.RoleAdmin, models.RoleLabTechnician)
	labReservers  = models.NewRoleSet(models.RoleTeacher, models.RoleLabTechnician, models.RoleAdmin)
	labDeciders   = models.NewRoleSet(models.RoleLabTechnician, models.RoleAdmin)
	labAnnotators = models.NewRoleSet(models.RoleLabTechnician)
)

// recentBookings is the size of the recent-bookings listing.
const recentBookings = 10

// --- Lab DTOs ---
type CreateLabRequest struct {
	LabNumber   string `json:"lab_number" binding:"required"`
	Capacity    int    `json:"capacity"`
	Equipment   string `json:"equipment"`
	IsAvailable *bool  `json:"is_available"`
}

type ReserveLabRequest struct {
	LabNumber    string `json:"lab_number" binding:"required"`
	Date         string `json:"date" binding:"required"`       // YYYY-MM-DD
	StartTime    string `json:"start_time" binding:"required"` // HH:MM
	EndTime      string `json:"end_time" binding:"required"`   // HH:MM
	Requirements string `json:"requirements"`
}

type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"` // approve | reject
}

type AnnotateBookingRequest struct {
	Notes string `json:"notes"`
}

// LabService is the Scheduling Ledger's entry point.
type LabService interface {
	CreateLab(ctx context.Context, p models.Principal, req CreateLabRequest) (*models.Lab, error)
	GetLabs(ctx context.Context) ([]models.Lab, error)
	GetAvailableLabs(ctx context.Context) ([]models.Lab, error)
	Reserve(ctx context.Context, p models.Principal, req ReserveLabRequest) (*models.LabBooking, error)
	GetBookingByID(ctx context.Context, id int64) (*models.LabBooking, error)
	GetBookings(ctx context.Context, filters models.LabBookingFilters) ([]models.LabBooking, int, error)
	GetRecentBookings(ctx context.Context) ([]models.LabBooking, error)
	Decide(ctx context.Context, p models.Principal, id int64, decision models.Action) (*models.LabBooking, error)
	Cancel(ctx context.Context, p models.Principal, id int64) (*models.LabBooking, error)
	Annotate(ctx context.Context, p models.Principal, id int64, notes string) (*models.LabBooking, error)
}

type labService struct {
	repo    repositories.LabBookingRepository
	gate    Gate
	metrics *Metrics
	machine *Machine[*models.LabBooking]
}

// NewLabService creates a new instance of LabService.
func NewLabService(repo repositories.LabBookingRepository, gate Gate, metrics *Metrics) LabService {
	s := &labService{repo: repo, gate: gate, metrics: metrics}
	s.machine = NewMachine(MachineConfig[*models.LabBooking]{
		Kind: models.KindLabBooking,
		Rules: map[models.Action]Rule{
			models.ActionApprove: {To: models.StatusApproved, Allowed: labDeciders},
			models.ActionReject:  {To: models.StatusRejected, Allowed: labDeciders},
		},
		Cancellable: true,
		Override:    cancelOverride,
		Get:         repo.GetBookingByID,
		Commit:      repo.TransitionBooking,
	}, gate, metrics)
	return s
}

func (s *labService) CreateLab(ctx context.Context, p models.Principal, req CreateLabRequest) (lab *models.Lab, err error) {
	if _, err := authorize(ctx, s.gate, p, labManagers, "register labs"); err != nil {
		return nil, err
	}
	if utils.IsEmpty(req.LabNumber) {
		return nil, fmt.Errorf("%w: lab_number is required", ErrValidation)
	}
	if req.Capacity < 0 {
		return nil, fmt.Errorf("%w: capacity must be zero or more", ErrValidation)
	}
	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	done := s.metrics.track("lab.create")
	defer func() { done(err) }()

	lab, err = s.repo.CreateLab(ctx, &models.Lab{
		LabNumber:   strings.TrimSpace(req.LabNumber),
		Capacity:    req.Capacity,
		Equipment:   req.Equipment,
		IsAvailable: available,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register lab: %w", err)
	}
	return lab, nil
}

func (s *labService) GetLabs(ctx context.Context) ([]models.Lab, error) {
	return s.repo.GetLabs(ctx, false)
}

func (s *labService) GetAvailableLabs(ctx context.Context) ([]models.Lab, error) {
	return s.repo.GetLabs(ctx, true)
}

// parseSlot validates the date and the half-open interval of a reservation.
func parseSlot(date, start, end string) (models.ClockTime, models.ClockTime, error) {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return 0, 0, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	startTime, err := models.ParseClock(start)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: start_time: %v", ErrValidation, err)
	}
	endTime, err := models.ParseClock(end)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: end_time: %v", ErrValidation, err)
	}
	if endTime <= startTime {
		return 0, 0, fmt.Errorf("%w: end_time must be after start_time", ErrValidation)
	}
	return startTime, endTime, nil
}

func (s *labService) Reserve(ctx context.Context, p models.Principal, req ReserveLabRequest) (booking *models.LabBooking, err error) {
	if _, err := authorize(ctx, s.gate, p, labReservers, "reserve labs"); err != nil {
		return nil, err
	}
	startTime, endTime, err := parseSlot(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	done := s.metrics.track("lab.reserve")
	defer func() { done(err) }()

	booking, err = s.repo.Reserve(ctx, &models.LabBooking{
		TeacherID:    p.ID,
		LabNumber:    strings.TrimSpace(req.LabNumber),
		Date:         req.Date,
		StartTime:    startTime,
		EndTime:      endTime,
		Requirements: req.Requirements,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reserve lab %s: %w", req.LabNumber, err)
	}
	return booking, nil
}

func (s *labService) GetBookingByID(ctx context.Context, id int64) (*models.LabBooking, error) {
	return s.repo.GetBookingByID(ctx, id)
}

func (s *labService) GetBookings(ctx context.Context, filters models.LabBookingFilters) ([]models.LabBooking, int, error) {
	if filters.Status != nil && *filters.Status != "" && !models.IsValidStatus(*filters.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, *filters.Status)
	}
	return s.repo.GetBookings(ctx, filters)
}

func (s *labService) GetRecentBookings(ctx context.Context) ([]models.LabBooking, error) {
	bookings, _, err := s.repo.GetBookings(ctx, models.LabBookingFilters{Page: 1, PageSize: recentBookings})
	return bookings, err
}

// Decide approves or rejects a pending booking. No overlap re-check happens here:
// the first reservation of a slot wins at reserve time.
func (s *labService) Decide(ctx context.Context, p models.Principal, id int64, decision models.Action) (*models.LabBooking, error) {
	return s.machine.Transition(ctx, id, decision, p)
}

func (s *labService) Cancel(ctx context.Context, p models.Principal, id int64) (*models.LabBooking, error) {
	return s.machine.Cancel(ctx, id, p)
}

func (s *labService) Annotate(ctx context.Context, p models.Principal, id int64, notes string) (*models.LabBooking, error) {
	if _, err := authorize(ctx, s.gate, p, labAnnotators, "annotate lab bookings"); err != nil {
		return nil, err
	}
	return s.repo.AnnotateBooking(ctx, id, notes)
}
