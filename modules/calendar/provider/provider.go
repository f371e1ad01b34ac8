package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"calendar-engine/core/constants"
	"calendar-engine/core/errors"
	"calendar-engine/modules/calendar/entity"
)

// CreateEventRequest carries everything a provider needs to place an
// appointment on the external calendar.
type CreateEventRequest struct {
	Title           string
	Description     string
	Start           time.Time
	DurationMinutes int
	CallerName      string
	CallerPhone     string
	CallerEmail     string
	Purpose         string
	AutoConference  bool
}

func (r *CreateEventRequest) End() time.Time {
	return r.Start.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

type EventResult struct {
	EventID            string    `json:"event_id"`
	Status             string    `json:"status"`
	HTMLLink           string    `json:"html_link,omitempty"`
	MeetingLink        string    `json:"meeting_link,omitempty"`
	SchedulingURL      string    `json:"scheduling_url,omitempty"`
	NeedsInviteeAction bool      `json:"needs_invitee_action"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
}

type ProviderEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Status      string    `json:"status"`
	MeetingLink string    `json:"meeting_link,omitempty"`
}

// CalendarProvider is the uniform surface over Google, Outlook and
// Calendly. Implementations never auto-refresh inside operations; the
// orchestrator calls Initialize first.
type CalendarProvider interface {
	Initialize(ctx context.Context) error
	IsTokenExpired() bool
	RefreshAccessToken(ctx context.Context) error
	GetAvailableSlots(ctx context.Context, date time.Time, durationMinutes int) ([]entity.TimeSlot, error)
	CreateEvent(ctx context.Context, req *CreateEventRequest) (*EventResult, error)
	UpdateEvent(ctx context.Context, eventID string, req *CreateEventRequest) (*EventResult, error)
	DeleteEvent(ctx context.Context, eventID, reason string) error
	GetEvents(ctx context.Context, start, end time.Time) ([]ProviderEvent, error)
}

type Deps struct {
	Tokens     *TokenManager
	HTTPClient *http.Client
	NowFunc    func() time.Time
}

func (d Deps) fill() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: constants.ProviderHTTPTimeout}
	}
	if d.NowFunc == nil {
		d.NowFunc = time.Now
	}
	return d
}

// New builds the provider instance for an integration.
func New(integration *entity.CalendarIntegration, deps Deps) (CalendarProvider, error) {
	switch integration.Provider {
	case entity.ProviderGoogle:
		return NewGoogleProvider(integration, deps), nil
	case entity.ProviderOutlook:
		return NewOutlookProvider(integration, deps), nil
	case entity.ProviderCalendly:
		return NewCalendlyProvider(integration, deps), nil
	}
	return nil, errors.NewAppError(errors.ErrInvalidInput, fmt.Sprintf("Unknown provider %q", integration.Provider), nil)
}

// transportError classifies failed round trips. Timeouts and connection
// failures are retryable, unlike auth rejections.
func transportError(provider entity.Provider, op string, err error) error {
	return errors.NewAppError(errors.ErrProviderUnavailable,
		fmt.Sprintf("%s %s request failed", provider, op), err)
}

func statusError(provider entity.Provider, op string, statusCode int, body []byte) error {
	cause := fmt.Errorf("status %d: %s", statusCode, string(body))
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return errors.NewAppError(errors.ErrUnauthorized,
			fmt.Sprintf("%s rejected the stored credentials for %s", provider, op), cause)
	case statusCode == http.StatusNotFound:
		return errors.NewAppError(errors.ErrNotFound,
			fmt.Sprintf("%s %s target not found", provider, op), cause)
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return errors.NewAppError(errors.ErrProviderUnavailable,
			fmt.Sprintf("%s is unavailable for %s", provider, op), cause)
	}
	return errors.NewAppError(errors.ErrInternalServer,
		fmt.Sprintf("%s %s failed", provider, op), cause)
}
