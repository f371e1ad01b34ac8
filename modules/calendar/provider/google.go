package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"calendar-engine/core/logger"
	"calendar-engine/core/utils"
	"calendar-engine/modules/calendar/entity"
)

const googleAPIBase = "https://www.googleapis.com/calendar/v3"

type GoogleProvider struct {
	integration *entity.CalendarIntegration
	tokens      *TokenManager
	httpClient  *http.Client
	apiBase     string
}

func NewGoogleProvider(integration *entity.CalendarIntegration, deps Deps) *GoogleProvider {
	deps = deps.fill()
	return &GoogleProvider{
		integration: integration,
		tokens:      deps.Tokens,
		httpClient:  deps.HTTPClient,
		apiBase:     googleAPIBase,
	}
}

func (p *GoogleProvider) calendarID() string {
	if p.integration.CalendarID == "" {
		return "primary"
	}
	return p.integration.CalendarID
}

func (p *GoogleProvider) Initialize(ctx context.Context) error {
	return p.tokens.EnsureValid(ctx, p.integration)
}

func (p *GoogleProvider) IsTokenExpired() bool {
	return p.tokens.IsExpired(p.integration)
}

func (p *GoogleProvider) RefreshAccessToken(ctx context.Context) error {
	return p.tokens.Refresh(ctx, p.integration)
}

func (p *GoogleProvider) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+p.integration.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	return p.httpClient.Do(req)
}

// fetchBusy queries free/busy scoped to the selected calendar.
func (p *GoogleProvider) fetchBusy(ctx context.Context, from, to time.Time) ([]entity.TimeSlot, error) {
	payload := map[string]any{
		"timeMin": from.Format(time.RFC3339),
		"timeMax": to.Format(time.RFC3339),
		"items":   []map[string]string{{"id": p.calendarID()}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/freeBusy", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := p.do(req)
	if err != nil {
		return nil, transportError(entity.ProviderGoogle, "freeBusy", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(entity.ProviderGoogle, "freeBusy", resp.StatusCode, respBody)
	}

	var result struct {
		Calendars map[string]struct {
			Busy []struct {
				Start time.Time `json:"start"`
				End   time.Time `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	loc := p.integration.Location()
	var busy []entity.TimeSlot
	for _, cal := range result.Calendars {
		for _, b := range cal.Busy {
			busy = append(busy, entity.TimeSlot{Start: b.Start.In(loc), End: b.End.In(loc)})
		}
	}
	return busy, nil
}

func (p *GoogleProvider) GetAvailableSlots(ctx context.Context, date time.Time, durationMinutes int) ([]entity.TimeSlot, error) {
	loc := p.integration.Location()
	if !p.integration.IsBusinessDay(date.In(loc).Weekday()) {
		return []entity.TimeSlot{}, nil
	}

	windowStart, windowEnd, err := p.integration.BusinessWindow(date.In(loc))
	if err != nil {
		return nil, err
	}

	busy, err := p.fetchBusy(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	return GenerateSlots(windowStart, windowEnd, MergeBusy(busy), durationMinutes), nil
}

func (p *GoogleProvider) CreateEvent(ctx context.Context, req *CreateEventRequest) (*EventResult, error) {
	event := map[string]any{
		"summary":     req.Title,
		"description": req.Description,
		"start":       map[string]string{"dateTime": req.Start.Format(time.RFC3339)},
		"end":         map[string]string{"dateTime": req.End().Format(time.RFC3339)},
		// Tag automated bookings so downstream tooling can tell them from
		// events a human created.
		"extendedProperties": map[string]any{
			"private": map[string]string{
				"automated_booking": "true",
				"caller_name":       req.CallerName,
				"caller_phone":      req.CallerPhone,
				"purpose":           req.Purpose,
			},
		},
	}
	if req.CallerEmail != "" {
		event["attendees"] = []map[string]string{{"email": req.CallerEmail}}
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events", p.apiBase, url.PathEscape(p.calendarID()))
	if req.AutoConference {
		event["conferenceData"] = map[string]any{
			"createRequest": map[string]any{
				"requestId":             utils.GenerateID(),
				"conferenceSolutionKey": map[string]string{"type": "hangoutsMeet"},
			},
		}
		endpoint += "?conferenceDataVersion=1"
	}

	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := p.do(httpReq)
	if err != nil {
		return nil, transportError(entity.ProviderGoogle, "createEvent", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(entity.ProviderGoogle, "createEvent", resp.StatusCode, respBody)
	}

	return p.decodeEvent(resp.Body, req.Start, req.End())
}

func (p *GoogleProvider) UpdateEvent(ctx context.Context, eventID string, req *CreateEventRequest) (*EventResult, error) {
	patch := map[string]any{
		"start": map[string]string{"dateTime": req.Start.Format(time.RFC3339)},
		"end":   map[string]string{"dateTime": req.End().Format(time.RFC3339)},
	}
	if req.Title != "" {
		patch["summary"] = req.Title
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		p.apiBase, url.PathEscape(p.calendarID()), url.PathEscape(eventID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := p.do(httpReq)
	if err != nil {
		return nil, transportError(entity.ProviderGoogle, "updateEvent", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(entity.ProviderGoogle, "updateEvent", resp.StatusCode, respBody)
	}

	return p.decodeEvent(resp.Body, req.Start, req.End())
}

func (p *GoogleProvider) decodeEvent(r io.Reader, start, end time.Time) (*EventResult, error) {
	var created struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		HTMLLink    string `json:"htmlLink"`
		HangoutLink string `json:"hangoutLink"`
	}
	if err := json.NewDecoder(r).Decode(&created); err != nil {
		return nil, err
	}

	return &EventResult{
		EventID:     created.ID,
		Status:      created.Status,
		HTMLLink:    created.HTMLLink,
		MeetingLink: created.HangoutLink,
		Start:       start,
		End:         end,
	}, nil
}

func (p *GoogleProvider) DeleteEvent(ctx context.Context, eventID, reason string) error {
	if reason != "" {
		logger.Info("GoogleProvider:DeleteEvent:Reason", "event_id", eventID, "reason", reason)
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		p.apiBase, url.PathEscape(p.calendarID()), url.PathEscape(eventID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := p.do(req)
	if err != nil {
		return transportError(entity.ProviderGoogle, "deleteEvent", err)
	}
	defer resp.Body.Close()

	// 410 means the event is already gone, which is what we wanted.
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusGone {
		respBody, _ := io.ReadAll(resp.Body)
		return statusError(entity.ProviderGoogle, "deleteEvent", resp.StatusCode, respBody)
	}
	return nil
}

func (p *GoogleProvider) GetEvents(ctx context.Context, start, end time.Time) ([]ProviderEvent, error) {
	query := url.Values{}
	query.Set("timeMin", start.Format(time.RFC3339))
	query.Set("timeMax", end.Format(time.RFC3339))
	query.Set("singleEvents", "true")
	query.Set("orderBy", "startTime")
	query.Set("maxResults", "250")

	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s",
		p.apiBase, url.PathEscape(p.calendarID()), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.do(req)
	if err != nil {
		return nil, transportError(entity.ProviderGoogle, "listEvents", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(entity.ProviderGoogle, "listEvents", resp.StatusCode, respBody)
	}

	var result struct {
		Items []struct {
			ID      string `json:"id"`
			Summary string `json:"summary"`
			Status  string `json:"status"`
			Start   struct {
				DateTime time.Time `json:"dateTime"`
				Date     string    `json:"date"`
			} `json:"start"`
			End struct {
				DateTime time.Time `json:"dateTime"`
				Date     string    `json:"date"`
			} `json:"end"`
			HangoutLink string `json:"hangoutLink"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	loc := p.integration.Location()
	events := make([]ProviderEvent, 0, len(result.Items))
	for _, item := range result.Items {
		if item.Status == "cancelled" {
			continue
		}

		eventStart := item.Start.DateTime
		eventEnd := item.End.DateTime
		if eventStart.IsZero() && item.Start.Date != "" {
			// All-day events carry a date only.
			eventStart, _ = time.ParseInLocation("2006-01-02", item.Start.Date, loc)
			eventEnd, _ = time.ParseInLocation("2006-01-02", item.End.Date, loc)
		}

		events = append(events, ProviderEvent{
			ID:          item.ID,
			Title:       item.Summary,
			Start:       eventStart.In(loc),
			End:         eventEnd.In(loc),
			Status:      item.Status,
			MeetingLink: item.HangoutLink,
		})
	}
	return events, nil
}
