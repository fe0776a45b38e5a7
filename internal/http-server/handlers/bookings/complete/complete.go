package complete

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

type BookingCompleter interface {
	Complete(ctx context.Context, tenant, reference string) (*models.Appointment, error)
}

func New(log *slog.Logger, completer BookingCompleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.complete.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		tenant := chi.URLParam(r, "tenant")
		reference := chi.URLParam(r, "reference")

		appt, err := completer.Complete(r.Context(), tenant, reference)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("booking not found", slog.String("reference", reference))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "booking not found"))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("booking is not completable")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "booking is not in a completable state"))
			return
		}

		if errors.Is(err, response.ErrPolicyViolation) {
			log.Error("appointment has not started yet")
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.POLICY_VIOLATION), "appointment has not started yet"))
			return
		}

		if err != nil {
			log.Error("Failed to complete booking", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to complete booking"))
			return
		}

		log.Info("Booking completed", slog.String("reference", reference))

		render.JSON(w, r, api.BookingResponse{Booking: api.ToBookingDTO(appt)})
	}
}
