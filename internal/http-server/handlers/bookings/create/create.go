package create

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"booking-service/api"
	"booking-service/internal/booking"
	"booking-service/internal/idempotency"
	"booking-service/internal/models"
	"booking-service/pkg/response"
	"booking-service/pkg/sl"
)

type BookingCreator interface {
	Create(ctx context.Context, tenant string, req booking.CreateRequest) (*models.Appointment, error)
}

type Request struct {
	api.CreateBookingRequest
}

func New(log *slog.Logger, creator BookingCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.create.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		tenant := chi.URLParam(r, "tenant")

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		if req.ServiceID == "" {
			log.Error("service_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "service_id is required"))
			return
		}

		if req.StartTime.IsZero() {
			log.Error("start_time is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "start_time is required"))
			return
		}

		if req.Contact.Name == "" {
			log.Error("contact name is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "contact.name is required"))
			return
		}

		appt, err := creator.Create(r.Context(), tenant, booking.CreateRequest{
			ServiceID:        req.ServiceID,
			Start:            req.StartTime,
			ProviderID:       req.ProviderID,
			Contact:          models.Contact{Name: req.Contact.Name, Email: req.Contact.Email, Phone: req.Contact.Phone},
			Notes:            req.Notes,
			IdempotencyToken: r.Header.Get("Idempotency-Key"),
		})

		if errors.Is(err, response.ErrLocked) || errors.Is(err, idempotency.ErrInFlight) {
			log.Error("resource is locked")
			w.WriteHeader(http.StatusLocked)
			render.JSON(w, r, response.Error(string(response.LOCKED), "another request is booking this slot"))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("slot is not available")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "slot is no longer available"))
			return
		}

		if errors.Is(err, response.ErrPolicyViolation) {
			log.Error("booking policy violation")
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.POLICY_VIOLATION), "booking violates the service policy"))
			return
		}

		if errors.Is(err, response.ErrValidation) {
			log.Error("validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "invalid booking request"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("resource not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if errors.Is(err, response.ErrUnavailable) {
			log.Error("commit retries exhausted")
			w.WriteHeader(http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error(string(response.UNAVAILABLE), "try again later"))
			return
		}

		if err != nil {
			log.Error("Failed to create booking", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create booking"))
			return
		}

		log.Info("Booking created", slog.String("reference", appt.BookingReference))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, api.BookingResponse{Booking: api.ToBookingDTO(appt)})
	}
}
