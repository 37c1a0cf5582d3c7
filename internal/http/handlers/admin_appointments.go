// Package handlers serves the staff-facing admin API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/booking"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	httpmiddleware "github.com/wolfman30/dental-whatsapp-bot/internal/http/middleware"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// Canceller cancels the appointment holding a slot.
type Canceller interface {
	Cancel(ctx context.Context, start time.Time, phone string) (appointments.Record, error)
}

// AdminAppointmentsHandler lets staff inspect the ledger and free slots.
type AdminAppointmentsHandler struct {
	ledger    appointments.Ledger
	canceller Canceller
	clinic    *clinic.Clinic
	logger    *logging.Logger
}

// NewAdminAppointmentsHandler creates the handler.
func NewAdminAppointmentsHandler(ledger appointments.Ledger, canceller Canceller, c *clinic.Clinic, logger *logging.Logger) *AdminAppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminAppointmentsHandler{
		ledger:    ledger,
		canceller: canceller,
		clinic:    c,
		logger:    logger,
	}
}

// AppointmentResponse is one ledger row in API responses.
type AppointmentResponse struct {
	Row          int    `json:"row"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Start        string `json:"start"`
	Procedure    string `json:"procedure"`
	Status       string `json:"status"`
	Language     string `json:"language"`
	ReminderSent bool   `json:"reminder_sent"`
	ReminderAck  bool   `json:"reminder_ack"`
	FollowUpDate string `json:"follow_up_date,omitempty"`
	FollowUpSent bool   `json:"follow_up_sent"`
}

// ListAppointmentsResponse wraps a ledger listing.
type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
	Date         string                `json:"date,omitempty"`
}

// CancelAppointmentRequest addresses a slot. Phone is optional.
type CancelAppointmentRequest struct {
	Start string `json:"start"`
	Phone string `json:"phone"`
}

// ListAppointments handles GET /admin/appointments?date=YYYY-MM-DD. Without
// a date every row is returned; cancelled rows are skipped unless
// include_cancelled=true.
func (h *AdminAppointmentsHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date != "" {
		if _, err := h.clinic.StartOfDay(date); err != nil {
			jsonError(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	includeCancelled := r.URL.Query().Get("include_cancelled") == "true"

	rows, err := h.ledger.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err)
		jsonError(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	out := make([]AppointmentResponse, 0, len(rows))
	for _, row := range rows {
		rec := row.Record
		if rec.StartTime.IsZero() {
			continue
		}
		if !includeCancelled && rec.Status == appointments.Cancelled {
			continue
		}
		if date != "" && h.clinic.LocalDate(rec.StartTime) != date {
			continue
		}
		out = append(out, h.toResponse(row))
	}

	writeJSON(w, http.StatusOK, ListAppointmentsResponse{
		Appointments: out,
		Count:        len(out),
		Date:         date,
	})
}

// CancelAppointment handles POST /admin/appointments/cancel.
func (h *AdminAppointmentsHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req CancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	start, err := h.clinic.ParseSlot(req.Start)
	if err != nil {
		jsonError(w, "start must be RFC 3339", http.StatusBadRequest)
		return
	}

	rec, err := h.canceller.Cancel(r.Context(), start, strings.TrimSpace(req.Phone))
	if errors.Is(err, booking.ErrNotFound) {
		jsonError(w, "appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to cancel appointment", "error", err, "slot", req.Start)
		jsonError(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}

	staff := "unknown"
	if claims, ok := httpmiddleware.StaffClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		staff = claims.Subject
	}
	h.logger.Info("appointment cancelled by staff", "appt_key", rec.Key().String(), "staff", staff)
	writeJSON(w, http.StatusOK, h.toResponse(appointments.Row{Record: rec}))
}

func (h *AdminAppointmentsHandler) toResponse(row appointments.Row) AppointmentResponse {
	rec := row.Record
	resp := AppointmentResponse{
		Row:          row.Index,
		Key:          rec.Key().String(),
		Name:         rec.Name,
		Phone:        rec.Phone,
		Start:        h.clinic.FormatSlot(rec.StartTime),
		Procedure:    string(rec.Procedure),
		Status:       string(rec.Status),
		Language:     string(rec.Language),
		ReminderSent: rec.Confirm3hSent,
		ReminderAck:  rec.ReminderAck,
		FollowUpSent: rec.FollowUpSent,
	}
	if !rec.FollowUpDate.IsZero() {
		resp.FollowUpDate = h.clinic.LocalDate(rec.FollowUpDate)
	}
	return resp
}
