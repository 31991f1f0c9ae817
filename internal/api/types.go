package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/barberflow/booking-engine/internal/booking"
)

type ProviderResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Specialties []string  `json:"specialties,omitempty"`
	Rating      float64   `json:"rating"`
	Active      bool      `json:"active"`
	Timezone    string    `json:"timezone"`
}

type ServiceResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	DurationMins int       `json:"duration_mins"`
	BufferMins   int       `json:"buffer_mins"`
	PriceCents   int64     `json:"price_cents"`
}

type SlotResponse struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	DurationMins int       `json:"duration_mins"`
}

type AvailabilityResponse struct {
	ProviderID uuid.UUID      `json:"provider_id"`
	ServiceID  uuid.UUID      `json:"service_id"`
	Date       string         `json:"date"`
	Slots      []SlotResponse `json:"slots"`
}

type SlotCheckResponse struct {
	Available    bool           `json:"available"`
	Reason       string         `json:"reason"`
	Alternatives []SlotResponse `json:"alternatives,omitempty"`
}

type CreateBookingRequest struct {
	ProviderID     string    `json:"provider_id"`
	ServiceID      string    `json:"service_id"`
	Start          time.Time `json:"start"`
	IdempotencyKey string    `json:"idempotency_key"`
	CustomerName   string    `json:"customer_name"`
	CustomerEmail  string    `json:"customer_email"`
	CustomerPhone  string    `json:"customer_phone"`
	Notes          string    `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID            uuid.UUID `json:"id"`
	ProviderID    uuid.UUID `json:"provider_id"`
	ServiceID     uuid.UUID `json:"service_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
}

type ErrorResponse struct {
	Error         string     `json:"error"`
	Details       string     `json:"details,omitempty"`
	ConflictStart *time.Time `json:"conflict_start,omitempty"`
	ConflictEnd   *time.Time `json:"conflict_end,omitempty"`
	RetryAfterSec int        `json:"retry_after_sec,omitempty"`
}

func slotResponses(slots []booking.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			Start:        s.Start,
			End:          s.End(),
			DurationMins: int(s.Duration.Minutes()),
		})
	}
	return out
}

func appointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		ProviderID:    a.ProviderID,
		ServiceID:     a.ServiceID,
		CustomerName:  a.Customer.Name,
		CustomerEmail: a.Customer.Email,
		CustomerPhone: a.Customer.Phone,
		StartAt:       a.StartAt,
		EndAt:         a.EndAt,
		Status:        string(a.Status),
		Notes:         a.Notes,
	}
}
