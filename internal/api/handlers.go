package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/barberflow/booking-engine/internal/booking"
)

func listProvidersHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := engine.ListProviders(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]ProviderResponse, 0, len(providers))
		for _, p := range providers {
			tz := "UTC"
			if p.Calendar.Location != nil {
				tz = p.Calendar.Location.String()
			}
			resp = append(resp, ProviderResponse{
				ID:          p.ID,
				Name:        p.Name,
				Email:       p.Email,
				Phone:       p.Phone,
				Specialties: p.Specialties,
				Rating:      p.Rating,
				Active:      p.Active,
				Timezone:    tz,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listServicesHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := engine.ListServices(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]ServiceResponse, 0, len(services))
		for _, s := range services {
			resp = append(resp, ServiceResponse{
				ID:           s.ID,
				Name:         s.Name,
				Description:  s.Description,
				DurationMins: s.DurationMins,
				BufferMins:   s.BufferMins,
				PriceCents:   s.PriceCents,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAvailabilityHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(r.URL.Query().Get("service_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		date, err := booking.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		now, err := parseNowParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_now", "now must be RFC 3339")
			return
		}

		slots, err := engine.Availability(r.Context(), providerID, serviceID, date, now)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			ProviderID: providerID,
			ServiceID:  serviceID,
			Date:       date.String(),
			Slots:      slotResponses(slots),
		})
	}
}

func slotCheckHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(r.URL.Query().Get("service_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be RFC 3339")
			return
		}
		now, err := parseNowParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_now", "now must be RFC 3339")
			return
		}

		check, err := engine.CheckSlot(r.Context(), providerID, serviceID, start, now)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotCheckResponse{
			Available:    check.Available,
			Reason:       check.Reason,
			Alternatives: slotResponses(check.Alternatives),
		})
	}
}

func createBookingHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		appt, err := engine.Book(r.Context(), booking.BookingRequest{
			ProviderID:     providerID,
			ServiceID:      serviceID,
			Start:          req.Start,
			IdempotencyKey: req.IdempotencyKey,
			Customer: booking.Customer{
				Name:  req.CustomerName,
				Email: req.CustomerEmail,
				Phone: req.CustomerPhone,
			},
			Notes: req.Notes,
		})
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(appt))
	}
}

func listBookingsHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("customer_email")
		if email == "" {
			writeError(w, http.StatusBadRequest, "missing_customer_email", "customer_email query parameter is required")
			return
		}

		appts, err := engine.ListAppointmentsByEmail(r.Context(), email)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, appointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getBookingHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		appt, err := engine.GetAppointment(r.Context(), id)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func cancelBookingHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		if err := engine.Cancel(r.Context(), id); err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

// parseNowParam reads the optional now query parameter so callers can pin
// the clock for deterministic availability. Absent, the server clock is
// used.
func parseNowParam(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("now")
	if raw == "" {
		return time.Now(), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func handleEngineError(w http.ResponseWriter, err error) {
	var conflict *booking.ConflictError
	var busy *booking.BusyError

	switch {
	case errors.As(err, &busy):
		retryAfter := int(busy.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSONError(w, http.StatusConflict, ErrorResponse{
			Error:         "schedule_busy",
			Details:       err.Error(),
			RetryAfterSec: retryAfter,
		})
	case errors.As(err, &conflict):
		resp := ErrorResponse{
			Error:   "slot_unavailable",
			Details: err.Error(),
		}
		if !conflict.ConflictStart.IsZero() {
			resp.ConflictStart = &conflict.ConflictStart
			resp.ConflictEnd = &conflict.ConflictEnd
		}
		writeJSONError(w, http.StatusConflict, resp)
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, booking.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		fmt.Fprintf(w, `{"error":"encoding_failed"}`)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSONError(w, status, ErrorResponse{Error: code, Details: details})
}

func writeJSONError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}
