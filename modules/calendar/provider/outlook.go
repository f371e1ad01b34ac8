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

	"calendar-engine/core/logger"
	"calendar-engine/modules/calendar/entity"
)

const graphAPIBase = "https://graph.microsoft.com/v1.0"

// graphDateTime is how Graph serializes local datetimes: no zone
// designator, the zone travels in a separate timeZone field. This format
// stays inside this file.
const graphDateTime = "2006-01-02T15:04:05"

type OutlookProvider struct {
	integration *entity.CalendarIntegration
	tokens      *TokenManager
	httpClient  *http.Client
	apiBase     string
}

func NewOutlookProvider(integration *entity.CalendarIntegration, deps Deps) *OutlookProvider {
	deps = deps.fill()
	return &OutlookProvider{
		integration: integration,
		tokens:      deps.Tokens,
		httpClient:  deps.HTTPClient,
		apiBase:     graphAPIBase,
	}
}

func (p *OutlookProvider) Initialize(ctx context.Context) error {
	return p.tokens.EnsureValid(ctx, p.integration)
}

func (p *OutlookProvider) IsTokenExpired() bool {
	return p.tokens.IsExpired(p.integration)
}

func (p *OutlookProvider) RefreshAccessToken(ctx context.Context) error {
	return p.tokens.Refresh(ctx, p.integration)
}

func (p *OutlookProvider) timezone() string {
	if p.integration.Timezone == "" {
		return "UTC"
	}
	return p.integration.Timezone
}

func (p *OutlookProvider) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+p.integration.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", fmt.Sprintf("outlook.timezone=%q", p.timezone()))
	return p.httpClient.Do(req)
}

func (p *OutlookProvider) graphTime(t time.Time) map[string]string {
	return map[string]string{
		"dateTime": t.In(p.integration.Location()).Format(graphDateTime),
		"timeZone": p.timezone(),
	}
}

// fetchBusy asks Graph for the mailbox schedule and keeps everything
// that blocks the slot (busy, tentative, out of office).
func (p *OutlookProvider) fetchBusy(ctx context.Context, from, to time.Time) ([]entity.TimeSlot, error) {
	scheduleID := p.integration.CalendarID
	if scheduleID == "" {
		return nil, fmt.Errorf("outlook integration has no mailbox address stored")
	}

	payload := map[string]any{
		"schedules":                []string{scheduleID},
		"startTime":                p.graphTime(from),
		"endTime":                  p.graphTime(to),
		"availabilityViewInterval": 30,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/me/calendar/getSchedule", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := p.do(req)
	if err != nil {
		return nil, transportError(entity.ProviderOutlook, "getSchedule", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(entity.ProviderOutlook, "getSchedule", resp.StatusCode, respBody)
	}

	var result struct {
		Value []struct {
			ScheduleItems []struct {
				Status string `json:"status"`
				Start  struct {
					DateTime string `json:"dateTime"`
				} `json:"start"`
				End struct {
					DateTime string `json:"dateTime"`
				} `json:"end"`
			} `json:"scheduleItems"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	loc := p.integration.Location()
	var busy []entity.TimeSlot
	for _, schedule := range result.Value {
		for _, item := range schedule.ScheduleItems {
			switch item.Status {
			case "busy", "tentative", "oof":
			default:
				continue
			}

			// Graph appends fractional seconds that carry no information.
			start, err := time.ParseInLocation(graphDateTime, strings.SplitN(item.Start.DateTime, ".", 2)[0], loc)
			if err != nil {
				logger.Warn("OutlookProvider:FetchBusy:BadStart", "value", item.Start.DateTime)
				continue
			}
			end, err := time.ParseInLocation(graphDateTime, strings.SplitN(item.End.DateTime, ".", 2)[0], loc)
			if err != nil {
				logger.Warn("OutlookProvider:FetchBusy:BadEnd", "value", item.End.DateTime)
				continue
			}
			busy = append(busy, entity.TimeSlot{Start: start, End: end})
		}
	}
	return busy, nil
}

func (p *OutlookProvider) GetAvailableSlots(ctx context.Context, date time.Time, durationMinutes int) ([]entity.TimeSlot, error) {
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

func (p *OutlookProvider) CreateEvent(ctx context.Context, req *CreateEventRequest) (*EventResult, error) {
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Booked for %s (%s). Purpose: %s", req.CallerName, req.CallerPhone, req.Purpose)
	}

	event := map[string]any{
		"subject": req.Title,
		"body": map[string]string{
			"contentType": "text",
			"content":     description,
		},
		"start": p.graphTime(req.Start),
		"end":   p.graphTime(req.End()),
	}
	if req.CallerEmail != "" {
		event["attendees"] = []map[string]any{
			{
				"emailAddress": map[string]string{
					"address": req.CallerEmail,
					"name":    req.CallerName,
				},
				"type": "required",
			},
		}
	}
	if req.AutoConference {
		event["isOnlineMeeting"] = true
		event["onlineMeetingProvider"] = "teamsForBusiness"
	}

	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/me/events", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := p.do(httpReq)
	if err != nil {
		return nil, transportError(entity.ProviderOutlook, "createEvent", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(entity.ProviderOutlook, "createEvent", resp.StatusCode, respBody)
	}

	return p.decodeEvent(resp.Body, req.Start, req.End())
}

func (p *OutlookProvider) UpdateEvent(ctx context.Context, eventID string, req *CreateEventRequest) (*EventResult, error) {
	patch := map[string]any{
		"start": p.graphTime(req.Start),
		"end":   p.graphTime(req.End()),
	}
	if req.Title != "" {
		patch["subject"] = req.Title
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}

	endpoint := p.apiBase + "/me/events/" + url.PathEscape(eventID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := p.do(httpReq)
	if err != nil {
		return nil, transportError(entity.ProviderOutlook, "updateEvent", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(entity.ProviderOutlook, "updateEvent", resp.StatusCode, respBody)
	}

	return p.decodeEvent(resp.Body, req.Start, req.End())
}

func (p *OutlookProvider) decodeEvent(r io.Reader, start, end time.Time) (*EventResult, error) {
	var created struct {
		ID            string `json:"id"`
		WebLink       string `json:"webLink"`
		OnlineMeeting struct {
			JoinURL string `json:"joinUrl"`
		} `json:"onlineMeeting"`
	}
	if err := json.NewDecoder(r).Decode(&created); err != nil {
		return nil, err
	}

	return &EventResult{
		EventID:     created.ID,
		Status:      "confirmed",
		HTMLLink:    created.WebLink,
		MeetingLink: created.OnlineMeeting.JoinURL,
		Start:       start,
		End:         end,
	}, nil
}

func (p *OutlookProvider) DeleteEvent(ctx context.Context, eventID, reason string) error {
	if reason != "" {
		logger.Info("OutlookProvider:DeleteEvent:Reason", "event_id", eventID, "reason", reason)
	}

	endpoint := p.apiBase + "/me/events/" + url.PathEscape(eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := p.do(req)
	if err != nil {
		return transportError(entity.ProviderOutlook, "deleteEvent", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		respBody, _ := io.ReadAll(resp.Body)
		return statusError(entity.ProviderOutlook, "deleteEvent", resp.StatusCode, respBody)
	}
	return nil
}

func (p *OutlookProvider) GetEvents(ctx context.Context, start, end time.Time) ([]ProviderEvent, error) {
	query := url.Values{}
	query.Set("startDateTime", start.UTC().Format(time.RFC3339))
	query.Set("endDateTime", end.UTC().Format(time.RFC3339))
	query.Set("$orderby", "start/dateTime")
	query.Set("$top", "250")

	endpoint := p.apiBase + "/me/calendarView?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.do(req)
	if err != nil {
		return nil, transportError(entity.ProviderOutlook, "listEvents", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(entity.ProviderOutlook, "listEvents", resp.StatusCode, respBody)
	}

	var result struct {
		Value []struct {
			ID      string `json:"id"`
			Subject string `json:"subject"`
			Start   struct {
				DateTime string `json:"dateTime"`
			} `json:"start"`
			End struct {
				DateTime string `json:"dateTime"`
			} `json:"end"`
			IsCancelled bool   `json:"isCancelled"`
			WebLink     string `json:"webLink"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	loc := p.integration.Location()
	events := make([]ProviderEvent, 0, len(result.Value))
	for _, item := range result.Value {
		if item.IsCancelled {
			continue
		}

		// The Prefer header puts response times in the integration zone.
		eventStart, err := time.ParseInLocation(graphDateTime, strings.SplitN(item.Start.DateTime, ".", 2)[0], loc)
		if err != nil {
			logger.Warn("OutlookProvider:GetEvents:BadStart", "value", item.Start.DateTime)
			continue
		}
		eventEnd, err := time.ParseInLocation(graphDateTime, strings.SplitN(item.End.DateTime, ".", 2)[0], loc)
		if err != nil {
			continue
		}

		events = append(events, ProviderEvent{
			ID:          item.ID,
			Title:       item.Subject,
			Start:       eventStart,
			End:         eventEnd,
			Status:      "confirmed",
			MeetingLink: item.WebLink,
		})
	}
	return events, nil
}
