package recurring

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
	"booking-service/internal/models"
	"booking-service/internal/recurrence"
	"booking-service/pkg/response"
	"booking-service/pkg/sl"
)

type SeriesBooker interface {
	Run(ctx context.Context, tenant string, p recurrence.Pattern, req booking.CreateRequest) ([]recurrence.Occurrence, error)
}

type Request struct {
	api.RecurringBookingRequest
}

func New(log *slog.Logger, booker SeriesBooker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.recurring.New"

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

		occurrences, err := booker.Run(r.Context(), tenant, recurrence.Pattern{
			Anchor:   req.StartTime,
			Weekdays: req.Weekdays,
			Weeks:    req.Weeks,
		}, booking.CreateRequest{
			ServiceID:        req.ServiceID,
			ProviderID:       req.ProviderID,
			Contact:          models.Contact{Name: req.Contact.Name, Email: req.Contact.Email, Phone: req.Contact.Phone},
			Notes:            req.Notes,
			IdempotencyToken: r.Header.Get("Idempotency-Key"),
		})

		if errors.Is(err, response.ErrValidation) {
			log.Error("invalid recurrence pattern", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "invalid recurrence pattern"))
			return
		}

		if err != nil {
			log.Error("Failed to book series", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to book series"))
			return
		}

		resp := api.RecurringBookingResponse{
			Requested:   len(occurrences),
			Occurrences: make([]api.OccurrenceDTO, 0, len(occurrences)),
		}

		for _, occ := range occurrences {
			dto := api.OccurrenceDTO{Start: occ.Start}
			if occ.Err != nil {
				dto.Error = occ.Err.Error()
			} else {
				dto.Booked = true
				b := api.ToBookingDTO(occ.Appointment)
				dto.Booking = &b
				resp.Booked++
			}
			resp.Occurrences = append(resp.Occurrences, dto)
		}

		log.Info("Series booked",
			slog.Int("requested", resp.Requested),
			slog.Int("booked", resp.Booked),
		)

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, resp)
	}
}
