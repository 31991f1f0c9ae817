package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

type Provider struct {
	ID          uuid.UUID
	Name        string
	Email       string
	Phone       string
	Specialties []string
	Rating      float64
	Active      bool
	Calendar    Calendar
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Service is a bookable offering with a fixed duration and an optional
// buffer that must elapse before the next appointment may start.
type Service struct {
	ID           uuid.UUID
	Name         string
	Description  string
	DurationMins int
	BufferMins   int
	PriceCents   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMins) * time.Minute
}

func (s Service) Buffer() time.Duration {
	return time.Duration(s.BufferMins) * time.Minute
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

// Appointment is a committed booking. BufferMins is snapshotted from the
// service at booking time so conflict checks against history never depend
// on later service edits.
type Appointment struct {
	ID             uuid.UUID
	ProviderID     uuid.UUID
	ServiceID      uuid.UUID
	Customer       Customer
	StartAt        time.Time
	EndAt          time.Time
	BufferMins     int
	Status         AppointmentStatus
	IdempotencyKey string
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Occupied is the interval this appointment blocks, buffer included.
func (a Appointment) Occupied() Interval {
	return Interval{
		Start: a.StartAt,
		End:   a.EndAt.Add(time.Duration(a.BufferMins) * time.Minute),
	}
}

// Slot is an ephemeral candidate start time. Slots are recomputed on every
// availability query and never persisted.
type Slot struct {
	Start    time.Time
	Duration time.Duration
}

func (s Slot) End() time.Time {
	return s.Start.Add(s.Duration)
}

// Occupied is the interval the slot would block if booked, buffer included.
func (s Slot) Occupied(buffer time.Duration) Interval {
	return Interval{Start: s.Start, End: s.Start.Add(s.Duration + buffer)}
}

// Interval is a half-open [Start, End) time span.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. An interval
// ending exactly when another begins does not overlap it.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

// ScheduleKey identifies the serialization boundary for booking commits:
// one provider's schedule on one date.
type ScheduleKey struct {
	ProviderID uuid.UUID
	Day        Date
}

func (k ScheduleKey) String() string {
	return fmt.Sprintf("%s:%s", k.ProviderID, k.Day)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
