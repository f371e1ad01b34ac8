package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"calendar-engine/core/constants"
	"calendar-engine/core/errors"
	"calendar-engine/core/logger"
	"calendar-engine/modules/calendar/entity"
)

const calendlyAPIBase = "https://api.calendly.com"

// CalendlyProvider books through single-use scheduling links. Calendly
// owns the event lifecycle, so creation hands the caller a link instead
// of a finished event, and updates are not possible at all.
type CalendlyProvider struct {
	integration *entity.CalendarIntegration
	tokens      *TokenManager
	httpClient  *http.Client
	apiBase     string
	nowFunc     func() time.Time

	// Resolved lazily from the account's event types, then reused for
	// the life of this instance.
	eventTypeURI      string
	eventTypeDuration int
}

func NewCalendlyProvider(integration *entity.CalendarIntegration, deps Deps) *CalendlyProvider {
	deps = deps.fill()
	return &CalendlyProvider{
		integration: integration,
		tokens:      deps.Tokens,
		httpClient:  deps.HTTPClient,
		apiBase:     calendlyAPIBase,
		nowFunc:     deps.NowFunc,
	}
}

func (p *CalendlyProvider) Initialize(ctx context.Context) error {
	return p.tokens.EnsureValid(ctx, p.integration)
}

func (p *CalendlyProvider) IsTokenExpired() bool {
	return p.tokens.IsExpired(p.integration)
}

func (p *CalendlyProvider) RefreshAccessToken(ctx context.Context) error {
	return p.tokens.Refresh(ctx, p.integration)
}

// userURI is the Calendly user resource captured when the account was
// connected.
func (p *CalendlyProvider) userURI() string {
	return p.integration.CalendarID
}

func (p *CalendlyProvider) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+p.integration.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	return p.httpClient.Do(req)
}

func (p *CalendlyProvider) getJSON(ctx context.Context, endpoint string, op string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := p.do(req)
	if err != nil {
		return transportError(entity.ProviderCalendly, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return statusError(entity.ProviderCalendly, op, resp.StatusCode, respBody)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// resolveEventType picks the event type bookings go through: the first
// active one matching the configured duration, else the first active
// one at all.
func (p *CalendlyProvider) resolveEventType(ctx context.Context) error {
	if p.eventTypeURI != "" {
		return nil
	}
	if p.userURI() == "" {
		return errors.NewAppError(errors.ErrNotConfigured, "calendly integration has no user resource stored", nil)
	}

	query := url.Values{}
	query.Set("user", p.userURI())
	query.Set("active", "true")

	var result struct {
		Collection []struct {
			URI      string `json:"uri"`
			Name     string `json:"name"`
			Active   bool   `json:"active"`
			Duration int    `json:"duration"`
		} `json:"collection"`
	}
	if err := p.getJSON(ctx, p.apiBase+"/event_types?"+query.Encode(), "listEventTypes", &result); err != nil {
		return err
	}

	wantDuration := p.integration.DefaultDurationMinutes
	if wantDuration <= 0 {
		wantDuration = constants.DefaultDurationMinutes
	}

	for _, eventType := range result.Collection {
		if eventType.Active && eventType.Duration == wantDuration {
			p.eventTypeURI = eventType.URI
			p.eventTypeDuration = eventType.Duration
			logger.Info("CalendlyProvider:ResolveEventType:Matched", "name", eventType.Name, "duration", eventType.Duration)
			return nil
		}
	}
	for _, eventType := range result.Collection {
		if eventType.Active {
			p.eventTypeURI = eventType.URI
			p.eventTypeDuration = eventType.Duration
			logger.Info("CalendlyProvider:ResolveEventType:Fallback", "name", eventType.Name, "duration", eventType.Duration)
			return nil
		}
	}
	return errors.NewAppError(errors.ErrNotFound, "no active calendly event type found", nil)
}

// GetAvailableSlots returns Calendly's own availability for the default
// event type, clipped to the configured business window.
func (p *CalendlyProvider) GetAvailableSlots(ctx context.Context, date time.Time, durationMinutes int) ([]entity.TimeSlot, error) {
	loc := p.integration.Location()
	if !p.integration.IsBusinessDay(date.In(loc).Weekday()) {
		return []entity.TimeSlot{}, nil
	}

	windowStart, windowEnd, err := p.integration.BusinessWindow(date.In(loc))
	if err != nil {
		return nil, err
	}

	if err := p.resolveEventType(ctx); err != nil {
		return nil, err
	}

	// Calendly rejects ranges that start in the past.
	queryStart := windowStart
	if now := p.nowFunc(); now.After(queryStart) {
		queryStart = now
	}
	if !queryStart.Before(windowEnd) {
		return []entity.TimeSlot{}, nil
	}

	query := url.Values{}
	query.Set("event_type", p.eventTypeURI)
	query.Set("start_time", queryStart.UTC().Format(time.RFC3339))
	query.Set("end_time", windowEnd.UTC().Format(time.RFC3339))

	var result struct {
		Collection []struct {
			Status    string `json:"status"`
			StartTime string `json:"start_time"`
		} `json:"collection"`
	}
	if err := p.getJSON(ctx, p.apiBase+"/event_type_available_times?"+query.Encode(), "availableTimes", &result); err != nil {
		return nil, err
	}

	duration := time.Duration(p.eventTypeDuration) * time.Minute
	slots := []entity.TimeSlot{}
	for _, item := range result.Collection {
		if item.Status != "available" {
			continue
		}
		start, err := time.Parse(time.RFC3339, item.StartTime)
		if err != nil {
			logger.Warn("CalendlyProvider:GetAvailableSlots:BadStart", "value", item.StartTime)
			continue
		}
		start = start.In(loc)
		end := start.Add(duration)
		if start.Before(windowStart) || end.After(windowEnd) {
			continue
		}
		slots = append(slots, entity.NewTimeSlot(start, end))
	}
	return slots, nil
}

// CreateEvent cannot place an event directly; Calendly requires the
// invitee to pick the time themselves. We mint a single-use scheduling
// link and flag the result so callers relay it.
func (p *CalendlyProvider) CreateEvent(ctx context.Context, req *CreateEventRequest) (*EventResult, error) {
	if err := p.resolveEventType(ctx); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"max_event_count": 1,
		"owner":           p.eventTypeURI,
		"owner_type":      "EventType",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/scheduling_links", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := p.do(httpReq)
	if err != nil {
		return nil, transportError(entity.ProviderCalendly, "createSchedulingLink", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(entity.ProviderCalendly, "createSchedulingLink", resp.StatusCode, respBody)
	}

	var created struct {
		Resource struct {
			BookingURL string `json:"booking_url"`
		} `json:"resource"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, err
	}

	logger.Info("CalendlyProvider:CreateEvent:LinkCreated", "caller", req.CallerName, "url", created.Resource.BookingURL)
	return &EventResult{
		Status:             "pending",
		SchedulingURL:      created.Resource.BookingURL,
		NeedsInviteeAction: true,
		Start:              req.Start,
		End:                req.End(),
	}, nil
}

// UpdateEvent is not something Calendly's API offers; rescheduling goes
// through a fresh scheduling link.
func (p *CalendlyProvider) UpdateEvent(ctx context.Context, eventID string, req *CreateEventRequest) (*EventResult, error) {
	return nil, errors.NewAppError(errors.ErrUnsupportedOperation, "calendly does not support event updates", nil)
}

func (p *CalendlyProvider) DeleteEvent(ctx context.Context, eventID, reason string) error {
	payload := map[string]any{}
	if reason != "" {
		payload["reason"] = reason
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/scheduled_events/%s/cancellation", p.apiBase, url.PathEscape(eventID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}

	resp, err := p.do(req)
	if err != nil {
		return transportError(entity.ProviderCalendly, "cancelEvent", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusNotFound:
		logger.Warn("CalendlyProvider:DeleteEvent:AlreadyGone", "event_id", eventID)
		return nil
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return statusError(entity.ProviderCalendly, "cancelEvent", resp.StatusCode, respBody)
	}
}

func (p *CalendlyProvider) GetEvents(ctx context.Context, start, end time.Time) ([]ProviderEvent, error) {
	if p.userURI() == "" {
		return nil, errors.NewAppError(errors.ErrNotConfigured, "calendly integration has no user resource stored", nil)
	}

	query := url.Values{}
	query.Set("user", p.userURI())
	query.Set("min_start_time", start.UTC().Format(time.RFC3339))
	query.Set("max_start_time", end.UTC().Format(time.RFC3339))
	query.Set("status", "active")
	query.Set("sort", "start_time:asc")

	var result struct {
		Collection []struct {
			URI       string `json:"uri"`
			Name      string `json:"name"`
			Status    string `json:"status"`
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
			Location  struct {
				JoinURL string `json:"join_url"`
			} `json:"location"`
		} `json:"collection"`
	}
	if err := p.getJSON(ctx, p.apiBase+"/scheduled_events?"+query.Encode(), "listEvents", &result); err != nil {
		return nil, err
	}

	loc := p.integration.Location()
	events := make([]ProviderEvent, 0, len(result.Collection))
	for _, item := range result.Collection {
		eventStart, err := time.Parse(time.RFC3339, item.StartTime)
		if err != nil {
			continue
		}
		eventEnd, err := time.Parse(time.RFC3339, item.EndTime)
		if err != nil {
			continue
		}

		events = append(events, ProviderEvent{
			ID:          eventUUIDFromURI(item.URI),
			Title:       item.Name,
			Start:       eventStart.In(loc),
			End:         eventEnd.In(loc),
			Status:      item.Status,
			MeetingLink: item.Location.JoinURL,
		})
	}
	return events, nil
}

// eventUUIDFromURI strips the resource prefix from a scheduled event
// URI, leaving the identifier the cancellation endpoint expects.
func eventUUIDFromURI(uri string) string {
	if idx := strings.LastIndex(uri, "/"); idx >= 0 {
		return uri[idx+1:]
	}
	return uri
}
