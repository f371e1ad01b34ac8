package dto

import (
	"time"

	"github.com/google/uuid"

	"calendar-engine/modules/calendar/entity"
)

// ========== OAuth connection DTOs ==========

// ConnectResponse carries the provider consent URL the user must visit
type ConnectResponse struct {
	Provider string `json:"provider"`
	AuthURL  string `json:"auth_url"`
}

// CallbackResponse confirms which integration a completed callback stored
type CallbackResponse struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Provider       string    `json:"provider"`
	IntegrationID  uuid.UUID `json:"integration_id"`
	Enabled        bool      `json:"enabled"`
}

// ========== Availability DTOs ==========

// AvailabilityRequest asks for open slots on a spoken or ISO date
type AvailabilityRequest struct {
	Date            string `json:"date" validate:"required"`
	DurationMinutes int    `json:"duration_minutes"`
}

// AvailabilityResponse is non-throwing: callers branch on Available, not errors
type AvailabilityResponse struct {
	Available bool              `json:"available"`
	Slots     []entity.TimeSlot `json:"slots"`
	Date      string            `json:"date,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// ========== Booking DTOs ==========

// BookRequest books an appointment from spoken date/time expressions
type BookRequest struct {
	Date            string `json:"date" validate:"required"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	CallerName      string `json:"caller_name" validate:"required"`
	CallerPhone     string `json:"caller_phone" validate:"required"`
	CallerEmail     string `json:"caller_email"`
	Purpose         string `json:"purpose"`
	Title           string `json:"title"`
	AutoConference  bool   `json:"auto_conference"`
}

// BookingResponse reports the booking outcome; NeedsManualBooking tells an
// automated caller to hand the request to a human instead of retrying
type BookingResponse struct {
	Success            bool       `json:"success"`
	BookingID          *uuid.UUID `json:"booking_id,omitempty"`
	Reference          string     `json:"reference,omitempty"`
	EventID            string     `json:"event_id,omitempty"`
	EventLink          string     `json:"event_link,omitempty"`
	MeetingLink        string     `json:"meeting_link,omitempty"`
	SchedulingURL      string     `json:"scheduling_url,omitempty"`
	ConfirmedTime      *time.Time `json:"confirmed_time,omitempty"`
	NeedsInviteeAction bool       `json:"needs_invitee_action,omitempty"`
	NeedsManualBooking bool       `json:"needs_manual_booking,omitempty"`
	Error              string     `json:"error,omitempty"`
}

// CancelRequest optionally records why the appointment was cancelled
type CancelRequest struct {
	Reason string `json:"reason"`
}

// CancelResponse reports the cancel outcome
type CancelResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RescheduleRequest moves an appointment to a new spoken date/time
type RescheduleRequest struct {
	Date string `json:"date" validate:"required"`
	Time string `json:"time"`
}

// RescheduleResponse reports the reschedule outcome
type RescheduleResponse struct {
	Success            bool       `json:"success"`
	NewTime            *time.Time `json:"new_time,omitempty"`
	EventID            string     `json:"event_id,omitempty"`
	EventLink          string     `json:"event_link,omitempty"`
	SchedulingURL      string     `json:"scheduling_url,omitempty"`
	NeedsInviteeAction bool       `json:"needs_invitee_action,omitempty"`
	Error              string     `json:"error,omitempty"`
}

// ========== Appointment listing DTOs ==========

// AppointmentSummary merges a provider event with the local booking record
// when one matches
type AppointmentSummary struct {
	EventID     string     `json:"event_id,omitempty"`
	Title       string     `json:"title"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	Status      string     `json:"status"`
	MeetingLink string     `json:"meeting_link,omitempty"`
	BookingID   *uuid.UUID `json:"booking_id,omitempty"`
	Reference   string     `json:"reference,omitempty"`
	CallerName  string     `json:"caller_name,omitempty"`
	CallerPhone string     `json:"caller_phone,omitempty"`
	Purpose     string     `json:"purpose,omitempty"`
}

// UpcomingResponse lists appointments inside the requested window
type UpcomingResponse struct {
	Appointments []AppointmentSummary `json:"appointments"`
	Error        string               `json:"error,omitempty"`
}

// ========== Integration settings DTOs ==========

// UpdateSettingsRequest changes scheduling defaults; nil fields are left alone
type UpdateSettingsRequest struct {
	CalendarID             *string  `json:"calendar_id"`
	DefaultDurationMinutes *int     `json:"default_duration_minutes"`
	BusinessStart          *string  `json:"business_start"`
	BusinessEnd            *string  `json:"business_end"`
	BusinessDays           []string `json:"business_days"`
	Timezone               *string  `json:"timezone"`
}
