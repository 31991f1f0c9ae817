package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Description,
		&s.DurationMins,
		&s.BufferMins,
		&s.PriceCents,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes *string

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.ServiceID,
		&a.Customer.Name,
		&a.Customer.Email,
		&a.Customer.Phone,
		&a.StartAt,
		&a.EndAt,
		&a.BufferMins,
		&a.Status,
		&a.IdempotencyKey,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if notes != nil {
		a.Notes = *notes
	}
	return &a, nil
}

const appointmentColumns = `
	id, provider_id, service_id,
	customer_name, customer_email, customer_phone,
	start_at, end_at, buffer_mins, status, idempotency_key, notes,
	created_at, updated_at`

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, specialties, rating, active, timezone, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)

	p, tz, err := scanProvider(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadCalendar(ctx, p, tz); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PgRepository) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, phone, specialties, rating, active, timezone, created_at, updated_at
		FROM providers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Provider
	var zones []string
	for rows.Next() {
		p, tz, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
		zones = append(zones, tz)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if err := r.loadCalendar(ctx, &result[i], zones[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func scanProvider(row pgx.Row) (*Provider, string, error) {
	var p Provider
	var tz string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.Specialties,
		&p.Rating,
		&p.Active,
		&tz,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrProviderNotFound
		}
		return nil, "", err
	}
	return &p, tz, nil
}

// loadCalendar hydrates the weekly rules and date overrides for one
// provider. Rules come back one row per open interval and are grouped per
// weekday here.
func (r *PgRepository) loadCalendar(ctx context.Context, p *Provider, tz string) error {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("load provider timezone %q: %w", tz, err)
	}
	p.Calendar.Location = loc

	rows, err := r.pool.Query(ctx, `
		SELECT weekday, open_mins, close_mins
		FROM working_hours
		WHERE provider_id = $1
		ORDER BY weekday, open_mins
	`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	byWeekday := make(map[time.Weekday][]OpenInterval)
	for rows.Next() {
		var weekday int
		var open, close int
		if err := rows.Scan(&weekday, &open, &close); err != nil {
			return err
		}
		wd := time.Weekday(weekday)
		byWeekday[wd] = append(byWeekday[wd], OpenInterval{Open: TimeOfDay(open), Close: TimeOfDay(close)})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	p.Calendar.Rules = p.Calendar.Rules[:0]
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if intervals, ok := byWeekday[wd]; ok {
			p.Calendar.Rules = append(p.Calendar.Rules, WorkingHoursRule{Weekday: wd, Intervals: intervals})
		}
	}

	return r.loadOverrides(ctx, p)
}

func (r *PgRepository) loadOverrides(ctx context.Context, p *Provider) error {
	rows, err := r.pool.Query(ctx, `
		SELECT day, closed, open_mins, close_mins
		FROM date_overrides
		WHERE provider_id = $1
		ORDER BY day, open_mins NULLS FIRST
	`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	byDay := make(map[Date]*DateOverride)
	var order []Date
	for rows.Next() {
		var day time.Time
		var closed bool
		var open, close *int
		if err := rows.Scan(&day, &closed, &open, &close); err != nil {
			return err
		}

		d := DateOf(day)
		o, ok := byDay[d]
		if !ok {
			o = &DateOverride{Date: d}
			byDay[d] = o
			order = append(order, d)
		}
		if closed {
			o.Closed = true
			continue
		}
		if open != nil && close != nil {
			o.Intervals = append(o.Intervals, OpenInterval{Open: TimeOfDay(*open), Close: TimeOfDay(*close)})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	p.Calendar.Overrides = p.Calendar.Overrides[:0]
	for _, d := range order {
		p.Calendar.Overrides = append(p.Calendar.Overrides, *byDay[d])
	}
	return nil
}

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, duration_mins, buffer_mins, price_cents, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (r *PgRepository) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, duration_mins, buffer_mins, price_cents, created_at, updated_at
		FROM services
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ListConfirmedAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND status = 'confirmed'
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByIdempotencyKey(ctx context.Context, key string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE idempotency_key = $1
	`, key)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByCustomerEmail(ctx context.Context, email string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE customer_email = $1
		ORDER BY start_at DESC
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) InsertAppointment(ctx context.Context, appt *Appointment) error {
	var notes *string
	if appt.Notes != "" {
		notes = &appt.Notes
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (
			id, provider_id, service_id,
			customer_name, customer_email, customer_phone,
			start_at, end_at, buffer_mins, status, idempotency_key, notes,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		appt.ID, appt.ProviderID, appt.ServiceID,
		appt.Customer.Name, appt.Customer.Email, appt.Customer.Phone,
		appt.StartAt, appt.EndAt, appt.BufferMins, appt.Status, appt.IdempotencyKey, notes,
		appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) ListFinishedConfirmed(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND end_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
