package reschedule

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"booking-service/api"
	"booking-service/internal/models"
	"booking-service/pkg/response"
	"booking-service/pkg/sl"
)

type BookingRescheduler interface {
	Reschedule(ctx context.Context, tenant, reference string, newStart time.Time, providerID *string) (*models.Appointment, error)
}

type Request struct {
	api.RescheduleBookingRequest
}

func New(log *slog.Logger, rescheduler BookingRescheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.reschedule.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		tenant := chi.URLParam(r, "tenant")
		reference := chi.URLParam(r, "reference")

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		if req.StartTime.IsZero() {
			log.Error("start_time is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "start_time is required"))
			return
		}

		appt, err := rescheduler.Reschedule(r.Context(), tenant, reference, req.StartTime, req.ProviderID)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("booking not found", slog.String("reference", reference))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "booking not found"))
			return
		}

		if errors.Is(err, response.ErrLocked) {
			log.Error("resource is locked")
			w.WriteHeader(http.StatusLocked)
			render.JSON(w, r, response.Error(string(response.LOCKED), "another request is booking this slot"))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("target slot is not available")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "target slot is not available"))
			return
		}

		if errors.Is(err, response.ErrPolicyViolation) {
			log.Error("reschedule policy violation")
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.POLICY_VIOLATION), "reschedule violates the service policy"))
			return
		}

		if errors.Is(err, response.ErrUnavailable) {
			log.Error("commit retries exhausted")
			w.WriteHeader(http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error(string(response.UNAVAILABLE), "try again later"))
			return
		}

		if err != nil {
			log.Error("Failed to reschedule booking", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to reschedule booking"))
			return
		}

		log.Info("Booking rescheduled",
			slog.String("from", reference),
			slog.String("to", appt.BookingReference),
		)

		render.JSON(w, r, api.BookingResponse{Booking: api.ToBookingDTO(appt)})
	}
}
