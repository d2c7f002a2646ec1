package memory

import (
	"context"
	"fmt"
	"sort"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories"
	"school_resources_backend/pkg/utils"
)

func bookingKey(id int64) string         { return "booking:" + utils.Int64ToStr(id) }
func slotKey(b models.LabBooking) string { return "slot:" + b.SlotKey() }

func (s *Store) CreateLab(ctx context.Context, lab *models.Lab) (*models.Lab, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	created := *lab
	var duplicate bool
	s.write(func() {
		if _, duplicate = s.labs[created.LabNumber]; duplicate {
			return
		}
		created.CreatedAt = s.nowFn()
		s.labs[created.LabNumber] = created
	})
	if duplicate {
		return nil, fmt.Errorf("%w: lab %q already exists", repositories.ErrConflict, created.LabNumber)
	}
	return &created, nil
}

func (s *Store) GetLabByNumber(_ context.Context, labNumber string) (*models.Lab, error) {
	var (
		lab models.Lab
		ok  bool
	)
	s.read(func() { lab, ok = s.labs[labNumber] })
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &lab, nil
}

func (s *Store) GetLabs(_ context.Context, availableOnly bool) ([]models.Lab, error) {
	labs := []models.Lab{}
	s.read(func() {
		for _, lab := range s.labs {
			if availableOnly && !lab.IsAvailable {
				continue
			}
			labs = append(labs, lab)
		}
	})
	sort.Slice(labs, func(i, j int) bool { return labs[i].LabNumber < labs[j].LabNumber })
	return labs, nil
}

func (s *Store) Reserve(ctx context.Context, booking *models.LabBooking) (*models.LabBooking, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(slotKey(*booking))
	defer unlock()

	created := *booking
	var (
		lab      models.Lab
		labFound bool
		clash    *models.LabBooking
	)
	s.read(func() {
		lab, labFound = s.labs[created.LabNumber]
		for _, existing := range s.bookings {
			if existing.SlotKey() != created.SlotKey() || !existing.HoldsSlot() {
				continue
			}
			if existing.Overlaps(created.StartTime, created.EndTime) {
				clash = &existing
				return
			}
		}
	})
	if !labFound {
		return nil, fmt.Errorf("%w: lab %q", repositories.ErrNotFound, created.LabNumber)
	}
	if !lab.IsAvailable {
		return nil, fmt.Errorf("%w: lab %q is not available for booking", repositories.ErrInvalidState, created.LabNumber)
	}
	if clash != nil {
		return nil, fmt.Errorf("%w: lab %s on %s %s-%s clashes with booking %d",
			repositories.ErrOverlap, created.LabNumber, created.Date, created.StartTime, created.EndTime, clash.ID)
	}

	s.write(func() {
		now := s.nowFn()
		created.ID = s.nextID()
		created.Status = models.StatusPending
		created.CreatedAt = now
		created.UpdatedAt = now
		s.bookings[created.ID] = created
	})
	return &created, nil
}

func (s *Store) GetBookingByID(_ context.Context, id int64) (*models.LabBooking, error) {
	var (
		booking models.LabBooking
		ok      bool
	)
	s.read(func() { booking, ok = s.bookings[id] })
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &booking, nil
}

func (s *Store) GetBookings(_ context.Context, filters models.LabBookingFilters) ([]models.LabBooking, int, error) {
	matched := []models.LabBooking{}
	s.read(func() {
		for _, b := range s.bookings {
			if filters.Status != nil && *filters.Status != "" && string(b.Status) != *filters.Status {
				continue
			}
			if filters.TeacherID != nil && b.TeacherID != *filters.TeacherID {
				continue
			}
			if filters.LabNumber != nil && *filters.LabNumber != "" && b.LabNumber != *filters.LabNumber {
				continue
			}
			if filters.Date != nil && *filters.Date != "" && b.Date != *filters.Date {
				continue
			}
			matched = append(matched, b)
		}
	})
	sortByIDDesc(matched, func(b models.LabBooking) int64 { return b.ID })
	return page(matched, filters.Page, filters.PageSize), len(matched), nil
}

func (s *Store) TransitionBooking(ctx context.Context, id int64, t repositories.Transition) (*models.LabBooking, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, false, err
	}
	unlockBooking := s.locks.lock(bookingKey(id))
	defer unlockBooking()

	current, err := s.GetBookingByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Status == t.To {
		return current, false, nil
	}
	if current.Status != models.StatusPending {
		return nil, false, fmt.Errorf("%w: booking %d is %s", repositories.ErrInvalidState, id, current.Status)
	}

	unlockSlot := s.locks.lock(slotKey(*current))
	defer unlockSlot()

	updated := *current
	s.write(func() {
		updated.Status = t.To
		updated.UpdatedAt = s.nowFn()
		s.bookings[id] = updated
	})
	return &updated, true, nil
}

func (s *Store) AnnotateBooking(ctx context.Context, id int64, notes string) (*models.LabBooking, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(bookingKey(id))
	defer unlock()

	var (
		updated models.LabBooking
		ok      bool
	)
	s.write(func() {
		updated, ok = s.bookings[id]
		if !ok {
			return
		}
		updated.Notes = notes
		updated.UpdatedAt = s.nowFn()
		s.bookings[id] = updated
	})
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &updated, nil
}
