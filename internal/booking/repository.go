package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all store interactions needed by the engine. For the
// booking commit path, reads must reflect the latest committed state at
// call time; the engine supplies its own serialization in front of stores
// that cannot do atomic read-modify-write.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListProviders(ctx context.Context) ([]Provider, error)

	GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error)
	ListServices(ctx context.Context) ([]Service, error)

	// ListConfirmedAppointments returns confirmed appointments whose
	// [start, end) intersects [from, to), so bookings straddling a range
	// boundary are still seen.
	ListConfirmedAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentByIdempotencyKey(ctx context.Context, key string) (*Appointment, error)
	ListAppointmentsByCustomerEmail(ctx context.Context, email string) ([]Appointment, error)

	InsertAppointment(ctx context.Context, appt *Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// Completion worker
	ListFinishedConfirmed(ctx context.Context, now time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
