package get

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
	"booking-service/internal/availability"
	"booking-service/internal/metrics"
	"booking-service/pkg/response"
	"booking-service/pkg/sl"
)

type AvailabilityProvider interface {
	Slots(ctx context.Context, tenant, serviceID string, date time.Time, providerID *string, now time.Time) (*availability.DayAvailability, error)
}

func New(log *slog.Logger, provider AvailabilityProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.availability.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		tenant := chi.URLParam(r, "tenant")
		serviceID := chi.URLParam(r, "service")

		dateStr := r.URL.Query().Get("date")
		date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
		if err != nil {
			log.Error("invalid date", slog.String("date", dateStr))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "date must be YYYY-MM-DD"))
			return
		}

		var providerID *string
		if p := r.URL.Query().Get("provider_id"); p != "" {
			providerID = &p
		}

		started := time.Now()
		day, err := provider.Slots(r.Context(), tenant, serviceID, date, providerID, time.Now())
		metrics.ObserveAvailabilityDuration(time.Since(started).Seconds())

		if errors.Is(err, response.ErrNotFound) {
			log.Error("service not found", slog.String("service_id", serviceID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "service not found"))
			return
		}

		if err != nil {
			log.Error("Failed to compute availability", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to compute availability"))
			return
		}

		slots := make([]api.SlotDTO, 0, len(day.Slots))
		for _, s := range day.Slots {
			slots = append(slots, api.SlotDTO{
				Start:                s.Start,
				End:                  s.End,
				Available:            s.Available,
				RemainingCapacity:    s.RemainingCapacity,
				CandidateProviderIDs: s.CandidateProviderIDs,
			})
		}

		render.JSON(w, r, api.AvailabilityResponse{
			Date:       day.Date.Format("2006-01-02"),
			ServiceID:  day.ServiceID,
			TemplateID: day.TemplateID,
			Rule:       string(day.Rule),
			Slots:      slots,
		})
	}
}
