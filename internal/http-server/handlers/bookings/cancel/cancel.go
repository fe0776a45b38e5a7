package cancel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"booking-service/api"
	"booking-service/internal/models"
	"booking-service/pkg/response"
	"booking-service/pkg/sl"
)

type BookingCanceller interface {
	Cancel(ctx context.Context, tenant, reference, by, reason string) (*models.Appointment, error)
}

type Request struct {
	api.CancelBookingRequest
}

func New(log *slog.Logger, canceller BookingCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.cancel.New"

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

		appt, err := canceller.Cancel(r.Context(), tenant, reference, req.CancelledBy, req.Reason)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("booking not found", slog.String("reference", reference))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "booking not found"))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("booking is not cancellable")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "booking is not in a cancellable state"))
			return
		}

		if errors.Is(err, response.ErrPolicyViolation) {
			log.Error("cancellation inside guard window")
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.POLICY_VIOLATION), "too close to the appointment start"))
			return
		}

		if err != nil {
			log.Error("Failed to cancel booking", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to cancel booking"))
			return
		}

		log.Info("Booking cancelled", slog.String("reference", reference))

		render.JSON(w, r, api.BookingResponse{Booking: api.ToBookingDTO(appt)})
	}
}
