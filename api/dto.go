// Package api holds the wire types of the HTTP surface.
package api

import (
	"time"

	"booking-service/internal/models"
	"booking-service/pkg/response"
)

type ContactDTO struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type SlotDTO struct {
	Start                time.Time `json:"start"`
	End                  time.Time `json:"end"`
	Available            bool      `json:"available"`
	RemainingCapacity    int       `json:"remaining_capacity"`
	CandidateProviderIDs []string  `json:"candidate_provider_ids,omitempty"`
}

type AvailabilityResponse struct {
	response.Response
	Date       string    `json:"date"`
	ServiceID  string    `json:"service_id"`
	TemplateID string    `json:"template_id"`
	Rule       string    `json:"rule"`
	Slots      []SlotDTO `json:"slots"`
}

type CreateBookingRequest struct {
	ServiceID  string     `json:"service_id"`
	StartTime  time.Time  `json:"start_time"`
	ProviderID *string    `json:"provider_id,omitempty"`
	Contact    ContactDTO `json:"contact"`
	Notes      string     `json:"notes,omitempty"`
}

type BookingDTO struct {
	Reference       string     `json:"reference"`
	ServiceID       string     `json:"service_id"`
	ProviderID      *string    `json:"provider_id,omitempty"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	Status          string     `json:"status"`
	Contact         ContactDTO `json:"contact"`
	Notes           string     `json:"notes,omitempty"`
	RescheduleCount int        `json:"reschedule_count"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CancelReason    string     `json:"cancellation_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type BookingResponse struct {
	response.Response
	Booking BookingDTO `json:"booking"`
}

type CancelBookingRequest struct {
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}

type RescheduleBookingRequest struct {
	StartTime  time.Time `json:"start_time"`
	ProviderID *string   `json:"provider_id,omitempty"`
}

type RecurringBookingRequest struct {
	ServiceID  string     `json:"service_id"`
	StartTime  time.Time  `json:"start_time"`
	Weekdays   []int      `json:"weekdays"`
	Weeks      int        `json:"weeks"`
	ProviderID *string    `json:"provider_id,omitempty"`
	Contact    ContactDTO `json:"contact"`
	Notes      string     `json:"notes,omitempty"`
}

type OccurrenceDTO struct {
	Start   time.Time   `json:"start"`
	Booked  bool        `json:"booked"`
	Booking *BookingDTO `json:"booking,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type RecurringBookingResponse struct {
	response.Response
	Requested   int             `json:"requested"`
	Booked      int             `json:"booked"`
	Occurrences []OccurrenceDTO `json:"occurrences"`
}

// ToBookingDTO maps a ledger row to its wire shape.
func ToBookingDTO(a *models.Appointment) BookingDTO {
	return BookingDTO{
		Reference:       a.BookingReference,
		ServiceID:       a.ServiceID,
		ProviderID:      a.ProviderID,
		Start:           a.Start,
		End:             a.End,
		Status:          string(a.Status),
		Contact:         ContactDTO{Name: a.Contact.Name, Email: a.Contact.Email, Phone: a.Contact.Phone},
		Notes:           a.Notes,
		RescheduleCount: a.RescheduleCount,
		CancelledAt:     a.CancelledAt,
		CancelReason:    a.CancelReason,
		CreatedAt:       a.CreatedAt,
	}
}
