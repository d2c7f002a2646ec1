package models

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of booking dates.
const DateLayout = "2006-01-02"

// ClockLayout is the wire format of booking start and end times.
const ClockLayout = "15:04"

// Lab represents a bookable laboratory room
type Lab struct {
	LabNumber   string    `json:"lab_number" db:"lab_number"`
	Capacity    int       `json:"capacity" db:"capacity"`
	Equipment   string    `json:"equipment" db:"equipment"`
	IsAvailable bool      `json:"is_available" db:"is_available"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ClockTime is a time of day in minutes after midnight.
type ClockTime int

// ParseClock parses "HH:MM" (seconds are accepted and dropped).
func ParseClock(s string) (ClockTime, error) {
	for _, layout := range []string{ClockLayout, "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime(t.Hour()*60 + t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q, use HH:MM", s)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText encodes the clock as "HH:MM".
func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes "HH:MM".
func (c *ClockTime) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// LabBooking is a teacher's reservation of a lab for an interval on a date.
type LabBooking struct {
	ID           int64     `json:"id" db:"id"`
	TeacherID    int64     `json:"teacher_id" db:"teacher_id"`
	LabNumber    string    `json:"lab_number" db:"lab_number"`
	Date         string    `json:"date" db:"date"`
	StartTime    ClockTime `json:"start_time" db:"start_minute"`
	EndTime      ClockTime `json:"end_time" db:"end_minute"`
	Requirements string    `json:"requirements" db:"requirements"`
	Notes        string    `json:"notes" db:"notes"`
	Status       Status    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

func (b LabBooking) LifecycleStatus() Status { return b.Status }
func (b LabBooking) OwnerID() int64          { return b.TeacherID }

// HoldsSlot reports whether the booking blocks its interval for others.
func (b LabBooking) HoldsSlot() bool {
	return b.Status == StatusPending || b.Status == StatusApproved
}

// Overlaps reports whether [start, end) intersects the booking's interval.
// Touching intervals do not overlap.
func (b LabBooking) Overlaps(start, end ClockTime) bool {
	return start < b.EndTime && b.StartTime < end
}

// SlotKey identifies the lab/date pair that reservations serialize on.
func (b LabBooking) SlotKey() string {
	return b.LabNumber + "|" + b.Date
}

// LabBookingFilters defines the available filters for querying lab bookings.
type LabBookingFilters struct {
	Status    *string `form:"status"`
	TeacherID *int64  `form:"teacher_id"`
	LabNumber *string `form:"lab_number"`
	Date      *string `form:"date"`
	Page      int     `form:"page"`
	PageSize  int     `form:"page_size"`
}
