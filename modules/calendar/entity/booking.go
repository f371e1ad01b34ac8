package entity

import (
	"time"

	"calendar-engine/core/entity"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusNoShow    BookingStatus = "NO_SHOW"
)

// CalendarBooking is an appointment captured by the engine. Rows are
// never hard-deleted; cancellation is a status transition.
type CalendarBooking struct {
	OrganizationID     uuid.UUID     `db:"organization_id" json:"organization_id"`
	IntegrationID      uuid.UUID     `db:"integration_id" json:"integration_id"`
	Reference          string        `db:"reference" json:"reference"`
	CallerName         string        `db:"caller_name" json:"caller_name"`
	CallerPhone        string        `db:"caller_phone" json:"caller_phone"`
	CallerEmail        *string       `db:"caller_email" json:"caller_email,omitempty"`
	Purpose            string        `db:"purpose" json:"purpose"`
	StartTime          time.Time     `db:"start_time" json:"start_time"`
	DurationMinutes    int           `db:"duration_minutes" json:"duration_minutes"`
	Status             BookingStatus `db:"status" json:"status"`
	ExternalEventID    *string       `db:"external_event_id" json:"external_event_id,omitempty"`
	SchedulingURL      *string       `db:"scheduling_url" json:"scheduling_url,omitempty"`
	NeedsInviteeAction bool          `db:"needs_invitee_action" json:"needs_invitee_action"`
	CancelReason       *string       `db:"cancel_reason" json:"cancel_reason,omitempty"`
	entity.BaseEntity
}

func (b *CalendarBooking) EndTime() time.Time {
	return b.StartTime.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

func (b *CalendarBooking) CanCancel() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

func (b *CalendarBooking) CanReschedule() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

func (b *CalendarBooking) CanComplete() bool {
	return b.Status == BookingStatusConfirmed
}

func (b *CalendarBooking) CanMarkNoShow() bool {
	return b.Status == BookingStatusConfirmed
}

type PaginatedBookingEntity = entity.Pagination[CalendarBooking]
