package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"calendar-engine/core/errors"
	"calendar-engine/modules/calendar/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func googleTestProvider(srv *httptest.Server) *GoogleProvider {
	integration := &entity.CalendarIntegration{
		OrganizationID:         uuid.New(),
		Provider:               entity.ProviderGoogle,
		AccessToken:            "access-token",
		DefaultDurationMinutes: 30,
		BusinessStart:          "09:00",
		BusinessEnd:            "17:00",
		BusinessDays:           entity.DefaultBusinessDays(),
		Timezone:               "UTC",
	}
	integration.ID = uuid.New()

	p := NewGoogleProvider(integration, Deps{HTTPClient: srv.Client()})
	p.apiBase = srv.URL
	return p
}

func TestGoogleProviderGetAvailableSlots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/freeBusy", r.URL.Path)
		require.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))

		var body struct {
			Items []map[string]string `json:"items"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Items, 1)
		assert.Equal(t, "primary", body.Items[0]["id"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"calendars":{"primary":{"busy":[
			{"start":"2024-03-13T10:00:00Z","end":"2024-03-13T11:00:00Z"}
		]}}}`))
	}))
	defer srv.Close()

	p := googleTestProvider(srv)
	date := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)

	slots, err := p.GetAvailableSlots(context.Background(), date, 60)
	require.NoError(t, err)
	require.Len(t, slots, 12)

	busyStart := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)
	busyEnd := busyStart.Add(time.Hour)
	for _, s := range slots {
		assert.False(t, s.Start.Before(busyEnd) && s.End.After(busyStart),
			"slot %s overlaps the busy hour", s.Label)
	}
}

func TestGoogleProviderGetAvailableSlotsSkipsNonBusinessDay(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	p := googleTestProvider(srv)
	saturday := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)

	slots, err := p.GetAvailableSlots(context.Background(), saturday, 30)
	require.NoError(t, err)
	require.NotNil(t, slots)
	assert.Empty(t, slots)
	assert.Equal(t, int32(0), hits.Load(), "non-business days must not hit the provider")
}

func TestGoogleProviderCreateEvent(t *testing.T) {
	t.Run("tags the event and maps the result", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/calendars/primary/events", r.URL.Path)

			var event map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
			assert.Equal(t, "Checkup - Pat Doe", event["summary"])

			private := event["extendedProperties"].(map[string]any)["private"].(map[string]any)
			assert.Equal(t, "true", private["automated_booking"])
			assert.Equal(t, "Pat Doe", private["caller_name"])

			attendees := event["attendees"].([]any)
			require.Len(t, attendees, 1)
			assert.Equal(t, "pat@example.com", attendees[0].(map[string]any)["email"])

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"evt-123","status":"confirmed","htmlLink":"https://calendar.google.com/event","hangoutLink":"https://meet.google.com/abc"}`))
		}))
		defer srv.Close()

		p := googleTestProvider(srv)
		start := time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)
		result, err := p.CreateEvent(context.Background(), &CreateEventRequest{
			Title:           "Checkup - Pat Doe",
			Start:           start,
			DurationMinutes: 30,
			CallerName:      "Pat Doe",
			CallerPhone:     "+15550100",
			CallerEmail:     "pat@example.com",
			Purpose:         "Checkup",
		})

		require.NoError(t, err)
		assert.Equal(t, "evt-123", result.EventID)
		assert.Equal(t, "confirmed", result.Status)
		assert.Equal(t, "https://calendar.google.com/event", result.HTMLLink)
		assert.Equal(t, "https://meet.google.com/abc", result.MeetingLink)
		assert.False(t, result.NeedsInviteeAction)
		assert.Equal(t, start, result.Start)
		assert.Equal(t, start.Add(30*time.Minute), result.End)
	})

	t.Run("requests a meet link when asked", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "1", r.URL.Query().Get("conferenceDataVersion"))

			var event map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
			require.Contains(t, event, "conferenceData")

			w.Write([]byte(`{"id":"evt-124","status":"confirmed"}`))
		}))
		defer srv.Close()

		p := googleTestProvider(srv)
		_, err := p.CreateEvent(context.Background(), &CreateEventRequest{
			Title:           "Call",
			Start:           time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC),
			DurationMinutes: 30,
			CallerName:      "Pat Doe",
			AutoConference:  true,
		})
		require.NoError(t, err)
	})
}

func TestGoogleProviderUpdateEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/calendars/primary/events/evt-123", r.URL.Path)

		var patch map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		assert.NotContains(t, patch, "summary", "an untitled reschedule must not blank the title")
		assert.Contains(t, patch, "start")

		w.Write([]byte(`{"id":"evt-123","status":"confirmed"}`))
	}))
	defer srv.Close()

	p := googleTestProvider(srv)
	result, err := p.UpdateEvent(context.Background(), "evt-123", &CreateEventRequest{
		Start:           time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-123", result.EventID)
}

func TestGoogleProviderDeleteEvent(t *testing.T) {
	t.Run("tolerates an already deleted event", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusGone)
		}))
		defer srv.Close()

		p := googleTestProvider(srv)
		assert.NoError(t, p.DeleteEvent(context.Background(), "evt-123", "caller cancelled"))
	})

	t.Run("reports provider outages", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		p := googleTestProvider(srv)
		err := p.DeleteEvent(context.Background(), "evt-123", "")
		require.Error(t, err)
		assert.True(t, errors.IsProviderUnavailable(err))
	})
}

func TestGoogleProviderGetEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/calendars/primary/events", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		assert.Equal(t, "startTime", r.URL.Query().Get("orderBy"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"id":"evt-1","summary":"Checkup","status":"confirmed",
			 "start":{"dateTime":"2024-03-13T10:00:00Z"},"end":{"dateTime":"2024-03-13T10:30:00Z"},
			 "hangoutLink":"https://meet.google.com/abc"},
			{"id":"evt-2","summary":"Ghost","status":"cancelled",
			 "start":{"dateTime":"2024-03-13T11:00:00Z"},"end":{"dateTime":"2024-03-13T11:30:00Z"}},
			{"id":"evt-3","summary":"Conference","status":"confirmed",
			 "start":{"date":"2024-03-14"},"end":{"date":"2024-03-15"}}
		]}`))
	}))
	defer srv.Close()

	p := googleTestProvider(srv)
	from := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	events, err := p.GetEvents(context.Background(), from, from.AddDate(0, 0, 7))

	require.NoError(t, err)
	require.Len(t, events, 2, "cancelled events are dropped")
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, "https://meet.google.com/abc", events[0].MeetingLink)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), events[1].Start, "all-day events resolve to local midnight")
}
