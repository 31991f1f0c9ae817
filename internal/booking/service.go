package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/barberflow/booking-engine/internal/config"
)

const (
	EventBookingCreated   = "BOOKING_CREATED"
	EventBookingCancelled = "BOOKING_CANCELLED"
	EventBookingCompleted = "BOOKING_COMPLETED"
)

// Engine is the availability and booking engine. Slot generation and
// conflict filtering are pure reads and run without coordination; Book and
// Cancel are serialized per (provider, date) through the Locker.
type Engine struct {
	repo   Repository
	locker Locker
	cfg    config.Config
	log    zerolog.Logger

	// now is the wall clock used for record timestamps and past-start
	// rejection. Availability queries always take now as an explicit
	// argument instead.
	now func() time.Time
}

func NewEngine(repo Repository, locker Locker, cfg config.Config, logger zerolog.Logger) *Engine {
	return &Engine{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    logger,
		now:    time.Now,
	}
}

// BookingRequest is a fully-resolved booking attempt: the caller has
// already disambiguated provider, service, and start time.
type BookingRequest struct {
	ProviderID     uuid.UUID
	ServiceID      uuid.UUID
	Start          time.Time
	IdempotencyKey string
	Customer       Customer
	Notes          string
}

// Availability returns the ordered free slots for a provider, date, and
// service. The read may race concurrent bookings; Book re-validates under
// the schedule lock, so a stale listing can never cause a double booking.
func (e *Engine) Availability(ctx context.Context, providerID, serviceID uuid.UUID, date Date, now time.Time) ([]Slot, error) {
	provider, err := e.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if !provider.Active {
		return nil, nil
	}

	svc, err := e.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	if svc.DurationMins <= 0 {
		return nil, fmt.Errorf("%w: service duration must be positive", ErrInvalidInput)
	}

	return e.freeSlots(ctx, provider, svc, date, now)
}

func (e *Engine) freeSlots(ctx context.Context, provider *Provider, svc *Service, date Date, now time.Time) ([]Slot, error) {
	candidates := GenerateSlots(provider.Calendar, date, svc.Duration(), e.cfg.SlotStep, now)
	if len(candidates) == 0 {
		return nil, nil
	}

	existing, err := e.dayAppointments(ctx, provider, date)
	if err != nil {
		return nil, err
	}

	return FilterAvailable(candidates, existing, svc.Buffer()), nil
}

// dayAppointments loads the confirmed appointments relevant to one date.
// The window is widened so appointments whose buffer bleeds across
// midnight are still seen.
func (e *Engine) dayAppointments(ctx context.Context, provider *Provider, date Date) ([]Appointment, error) {
	loc := provider.Calendar.Location
	if loc == nil {
		loc = time.UTC
	}
	dayStart := date.In(loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	appts, err := e.repo.ListConfirmedAppointments(ctx, provider.ID, dayStart.Add(-2*time.Hour), dayEnd.Add(2*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list confirmed appointments: %w", err)
	}
	return appts, nil
}

// Book commits a booking if and only if it does not conflict with any
// concurrently committed appointment for the same provider and date. The
// conflict re-check and the insert run as one unit inside the schedule
// lock; no other commit for that schedule can interleave.
func (e *Engine) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrInvalidInput)
	}
	if req.Start.IsZero() {
		return nil, fmt.Errorf("%w: start time is required", ErrInvalidInput)
	}

	provider, err := e.repo.GetProviderByID(ctx, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	svc, err := e.repo.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	if svc.DurationMins <= 0 {
		return nil, fmt.Errorf("%w: service duration must be positive", ErrInvalidInput)
	}
	if !provider.Active {
		return nil, &ConflictError{Reason: "provider is not accepting bookings"}
	}

	loc := provider.Calendar.Location
	if loc == nil {
		loc = time.UTC
	}
	start := req.Start.In(loc)
	key := ScheduleKey{ProviderID: provider.ID, Day: DateOf(start)}

	// Fast path for retries: a repeat of an already committed booking
	// returns the original appointment without touching the lock.
	if appt, err := e.replayedBooking(ctx, req, start); err != nil || appt != nil {
		return appt, err
	}

	if start.Before(e.now()) {
		return nil, &ConflictError{Reason: "start time is in the past"}
	}

	var booked *Appointment

	err = e.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
		// Re-check under the lock: a concurrent attempt with the same key
		// may have committed between the fast path and here.
		if appt, err := e.replayedBooking(lockCtx, req, start); err != nil {
			return err
		} else if appt != nil {
			booked = appt
			return nil
		}

		if !e.withinWorkingHours(provider, start, svc.Duration()) {
			return &ConflictError{Reason: "outside working hours"}
		}

		existing, err := e.dayAppointments(lockCtx, provider, key.Day)
		if err != nil {
			return err
		}

		occupied := Slot{Start: start, Duration: svc.Duration()}.Occupied(svc.Buffer())
		if c := findConflict(occupied, existing); c != nil {
			return &ConflictError{
				Reason:        "conflicts with an existing appointment",
				ConflictStart: c.StartAt,
				ConflictEnd:   c.EndAt,
			}
		}

		now := e.now()
		appt := &Appointment{
			ID:             uuid.New(),
			ProviderID:     provider.ID,
			ServiceID:      svc.ID,
			Customer:       req.Customer,
			StartAt:        start,
			EndAt:          start.Add(svc.Duration()),
			BufferMins:     svc.BufferMins,
			Status:         StatusConfirmed,
			IdempotencyKey: req.IdempotencyKey,
			Notes:          req.Notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := e.repo.InsertAppointment(lockCtx, appt); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}

		booked = appt
		e.logEvent(lockCtx, appt.ID, EventBookingCreated, map[string]any{
			"provider_id": provider.ID.String(),
			"service_id":  svc.ID.String(),
			"start_at":    appt.StartAt,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			return nil, &BusyError{RetryAfter: e.cfg.LockWait}
		}
		return nil, err
	}

	return booked, nil
}

// replayedBooking resolves an idempotent retry. A repeated key with the
// same start returns the originally committed appointment; the same key
// with different arguments is a caller bug.
func (e *Engine) replayedBooking(ctx context.Context, req BookingRequest, start time.Time) (*Appointment, error) {
	existing, err := e.repo.GetAppointmentByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if !existing.StartAt.Equal(start) || existing.ProviderID != req.ProviderID || existing.ServiceID != req.ServiceID {
		return nil, fmt.Errorf("%w: idempotency key reused with different arguments", ErrInvalidInput)
	}
	return existing, nil
}

func (e *Engine) withinWorkingHours(provider *Provider, start time.Time, duration time.Duration) bool {
	loc := provider.Calendar.Location
	if loc == nil {
		loc = time.UTC
	}
	local := start.In(loc)
	date := DateOf(local)
	midnight := date.In(loc)

	from := local.Sub(midnight)
	to := from + duration
	for _, iv := range provider.Calendar.EffectiveIntervals(date) {
		open := time.Duration(iv.Open) * time.Minute
		close := time.Duration(iv.Close) * time.Minute
		if from >= open && to <= close {
			return true
		}
	}
	return false
}

// Cancel transitions a confirmed appointment to cancelled. It runs under
// the same schedule lock as Book so a booking attempt is never validated
// against a half-applied cancellation. Cancelling twice is a no-op
// success.
func (e *Engine) Cancel(ctx context.Context, appointmentID uuid.UUID) error {
	appt, err := e.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}

	provider, err := e.repo.GetProviderByID(ctx, appt.ProviderID)
	if err != nil {
		return fmt.Errorf("load provider: %w", err)
	}
	loc := provider.Calendar.Location
	if loc == nil {
		loc = time.UTC
	}
	key := ScheduleKey{ProviderID: provider.ID, Day: DateOf(appt.StartAt.In(loc))}

	err = e.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
		current, err := e.repo.GetAppointmentByID(lockCtx, appointmentID)
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}
		switch current.Status {
		case StatusCancelled:
			return nil
		case StatusCompleted:
			return fmt.Errorf("%w: appointment already completed", ErrInvalidTransition)
		}

		if _, err := e.repo.UpdateAppointmentStatus(lockCtx, appointmentID, StatusConfirmed, StatusCancelled); err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}
		e.logEvent(lockCtx, appointmentID, EventBookingCancelled, map[string]any{})
		return nil
	})

	if errors.Is(err, ErrLockNotAcquired) {
		return &BusyError{RetryAfter: e.cfg.LockWait}
	}
	return err
}

// GetAppointment retrieves one appointment by id.
func (e *Engine) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := e.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointmentsByEmail returns a customer's bookings, newest first.
func (e *Engine) ListAppointmentsByEmail(ctx context.Context, email string) ([]Appointment, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: customer email is required", ErrInvalidInput)
	}
	appts, err := e.repo.ListAppointmentsByCustomerEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list appointments by email: %w", err)
	}
	return appts, nil
}

// ListProviders returns all providers.
func (e *Engine) ListProviders(ctx context.Context) ([]Provider, error) {
	providers, err := e.repo.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return providers, nil
}

// ListServices returns all bookable services.
func (e *Engine) ListServices(ctx context.Context) ([]Service, error) {
	services, err := e.repo.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

// SlotCheck is the verdict on one specific requested start time.
type SlotCheck struct {
	Available    bool
	Reason       string
	Alternatives []Slot
}

// CheckSlot reports whether one specific start time is bookable and, when
// it is not, suggests alternatives: same-day free slots first, then a
// forward scan over the coming days when the requested day has nothing.
func (e *Engine) CheckSlot(ctx context.Context, providerID, serviceID uuid.UUID, start, now time.Time) (*SlotCheck, error) {
	provider, err := e.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	svc, err := e.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	if svc.DurationMins <= 0 {
		return nil, fmt.Errorf("%w: service duration must be positive", ErrInvalidInput)
	}

	if !provider.Active {
		return &SlotCheck{Reason: "provider is not accepting bookings"}, nil
	}

	loc := provider.Calendar.Location
	if loc == nil {
		loc = time.UTC
	}
	local := start.In(loc)
	date := DateOf(local)

	if start.Before(now) {
		alts, err := e.upcomingSlots(ctx, provider, svc, DateOf(now.In(loc)), now)
		if err != nil {
			return nil, err
		}
		return &SlotCheck{Reason: "start time is in the past", Alternatives: alts}, nil
	}

	if !e.withinWorkingHours(provider, start, svc.Duration()) {
		alts, err := e.upcomingSlots(ctx, provider, svc, date, now)
		if err != nil {
			return nil, err
		}
		return &SlotCheck{Reason: "outside working hours", Alternatives: alts}, nil
	}

	existing, err := e.dayAppointments(ctx, provider, date)
	if err != nil {
		return nil, err
	}
	occupied := Slot{Start: local, Duration: svc.Duration()}.Occupied(svc.Buffer())
	if c := findConflict(occupied, existing); c != nil {
		alts, err := e.upcomingSlots(ctx, provider, svc, date, now)
		if err != nil {
			return nil, err
		}
		return &SlotCheck{Reason: "conflicts with an existing appointment", Alternatives: alts}, nil
	}

	return &SlotCheck{Available: true, Reason: "slot is available"}, nil
}

// upcomingSlots scans forward from the given date until it finds a day
// with free slots, bounded by the configured horizon, and caps the result
// at the configured alternative limit.
func (e *Engine) upcomingSlots(ctx context.Context, provider *Provider, svc *Service, from Date, now time.Time) ([]Slot, error) {
	horizon := e.cfg.SearchHorizonDays
	if horizon <= 0 {
		horizon = 1
	}

	date := from
	for i := 0; i < horizon; i++ {
		free, err := e.freeSlots(ctx, provider, svc, date, now)
		if err != nil {
			return nil, err
		}
		if len(free) > 0 {
			if limit := e.cfg.AlternativeLimit; limit > 0 && len(free) > limit {
				free = free[:limit]
			}
			return free, nil
		}
		date = date.AddDays(1)
	}
	return nil, nil
}

// CompleteFinished marks confirmed appointments whose end time has passed
// as completed. Intended to be called periodically by the worker. Past
// appointments can no longer collide with new bookings, so this sweep does
// not take schedule locks.
func (e *Engine) CompleteFinished(ctx context.Context, now time.Time) error {
	finished, err := e.repo.ListFinishedConfirmed(ctx, now)
	if err != nil {
		return fmt.Errorf("find finished appointments: %w", err)
	}

	for _, appt := range finished {
		_, err := e.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusConfirmed, StatusCompleted)
		if err != nil {
			// The guarded transition did not apply, typically because the
			// appointment was cancelled after the read above. No event: the
			// log must only record transitions that happened.
			if !errors.Is(err, ErrAppointmentNotFound) {
				e.log.Warn().Err(err).Stringer("appointment_id", appt.ID).Msg("failed to complete appointment")
			}
			continue
		}
		e.logEvent(ctx, appt.ID, EventBookingCompleted, map[string]any{
			"reason": "worker",
		})
	}
	return nil
}

func (e *Engine) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     e.now(),
	}

	if err := e.repo.InsertEvent(ctx, ev); err != nil {
		e.log.Warn().Err(err).Str("event_type", eventType).Stringer("appointment_id", appointmentID).Msg("failed to insert event log")
	}
}
