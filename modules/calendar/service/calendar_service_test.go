package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"calendar-engine/core/config"
	"calendar-engine/core/events"
	"calendar-engine/core/params"
	"calendar-engine/modules/calendar/dto"
	"calendar-engine/modules/calendar/entity"
	"calendar-engine/modules/calendar/oauth"
	"calendar-engine/modules/calendar/provider"
	"calendar-engine/modules/calendar/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serviceNow is a Tuesday morning; "tomorrow" resolves to a business day.
var serviceNow = time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T {
	return &v
}

type stubIntegrations struct {
	mu          sync.Mutex
	enabled     *entity.CalendarIntegration
	enabledErr  error
	byProvider  map[entity.Provider]*entity.CalendarIntegration
	upserted    []*entity.CalendarIntegration
	settings    []*entity.CalendarIntegration
	disconnects []entity.Provider
}

var _ repository.IntegrationRepository = (*stubIntegrations)(nil)

func (s *stubIntegrations) Upsert(ctx context.Context, integration *entity.CalendarIntegration) (*entity.CalendarIntegration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	s.upserted = append(s.upserted, integration)
	return integration, nil
}

func (s *stubIntegrations) GetEnabledByOrganization(ctx context.Context, organizationID uuid.UUID) (*entity.CalendarIntegration, error) {
	return s.enabled, s.enabledErr
}

func (s *stubIntegrations) GetByOrganizationAndProvider(ctx context.Context, organizationID uuid.UUID, p entity.Provider) (*entity.CalendarIntegration, error) {
	return s.byProvider[p], nil
}

func (s *stubIntegrations) GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarIntegration, error) {
	return nil, nil
}

func (s *stubIntegrations) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]entity.CalendarIntegration, error) {
	if s.enabled == nil {
		return nil, nil
	}
	return []entity.CalendarIntegration{*s.enabled}, nil
}

func (s *stubIntegrations) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	return nil
}

func (s *stubIntegrations) UpdateSettings(ctx context.Context, integration *entity.CalendarIntegration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = append(s.settings, integration)
	return nil
}

func (s *stubIntegrations) SetEnabled(ctx context.Context, organizationID uuid.UUID, p entity.Provider, enabled bool) error {
	return nil
}

func (s *stubIntegrations) Disconnect(ctx context.Context, organizationID uuid.UUID, p entity.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects = append(s.disconnects, p)
	return nil
}

type statusUpdate struct {
	id     uuid.UUID
	status entity.BookingStatus
	reason *string
}

type stubBookings struct {
	mu              sync.Mutex
	createErr       error
	created         []*entity.CalendarBooking
	byID            map[uuid.UUID]*entity.CalendarBooking
	byExternalID    map[string]*entity.CalendarBooking
	byReference     map[string]*entity.CalendarBooking
	statusUpdates   []statusUpdate
	scheduleUpdates []entity.CalendarBooking
	upcoming        []entity.CalendarBooking
}

var _ repository.BookingRepository = (*stubBookings)(nil)

func (s *stubBookings) Create(ctx context.Context, booking *entity.CalendarBooking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	booking.ID = uuid.New()
	s.created = append(s.created, booking)
	return nil
}

func (s *stubBookings) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*entity.CalendarBooking, error) {
	return s.byID[id], nil
}

func (s *stubBookings) GetByExternalEventID(ctx context.Context, organizationID uuid.UUID, externalEventID string) (*entity.CalendarBooking, error) {
	return s.byExternalID[externalEventID], nil
}

func (s *stubBookings) GetByReference(ctx context.Context, organizationID uuid.UUID, reference string) (*entity.CalendarBooking, error) {
	return s.byReference[reference], nil
}

func (s *stubBookings) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.BookingStatus, cancelReason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusUpdates = append(s.statusUpdates, statusUpdate{id: id, status: status, reason: cancelReason})
	return nil
}

func (s *stubBookings) UpdateSchedule(ctx context.Context, booking *entity.CalendarBooking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleUpdates = append(s.scheduleUpdates, *booking)
	return nil
}

func (s *stubBookings) ListUpcoming(ctx context.Context, organizationID uuid.UUID, from, to time.Time) ([]entity.CalendarBooking, error) {
	return s.upcoming, nil
}

func (s *stubBookings) ListByOrganization(ctx context.Context, organizationID uuid.UUID, queryParams params.QueryParams) (*entity.PaginatedBookingEntity, error) {
	return &entity.PaginatedBookingEntity{
		Items:      s.upcoming,
		TotalItems: len(s.upcoming),
		PageNumber: queryParams.PageNumber,
		PageSize:   queryParams.PageSize,
	}, nil
}

type publishedEvent struct {
	eventType string
	event     events.BookingEvent
}

type stubPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (s *stubPublisher) PublishBookingEvent(ctx context.Context, eventType string, event events.BookingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, publishedEvent{eventType: eventType, event: event})
	return nil
}

// roundTripFunc intercepts the provider HTTP calls the service makes
// against the real API hosts.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func unreachedTransport(t *testing.T) roundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		t.Errorf("unexpected provider call %s %s", req.Method, req.URL)
		return jsonResponse(http.StatusInternalServerError, `{}`), nil
	}
}

func newTestService(integrations *stubIntegrations, bookings *stubBookings, rt roundTripFunc) (*calendarService, *stubPublisher) {
	pub := &stubPublisher{}
	client := &http.Client{Transport: rt}
	return &calendarService{
		integrations: integrations,
		bookings:     bookings,
		states:       oauth.NewMemoryStateStore(),
		tokens:       provider.NewTokenManager(integrations, client),
		connectors:   map[entity.Provider]oauth.Connector{},
		publisher:    pub,
		httpClient:   client,
		cfg:          &config.Config{},
		nowFunc:      func() time.Time { return serviceNow },
	}, pub
}

func connectedIntegration(p entity.Provider) *entity.CalendarIntegration {
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	integration := &entity.CalendarIntegration{
		OrganizationID:         uuid.New(),
		Provider:               p,
		AccessToken:            "access-token",
		TokenExpiresAt:         &expiry,
		Enabled:                true,
		DefaultDurationMinutes: 30,
		BusinessStart:          "09:00",
		BusinessEnd:            "17:00",
		BusinessDays:           entity.DefaultBusinessDays(),
		Timezone:               "UTC",
	}
	if p == entity.ProviderCalendly {
		integration.CalendarID = "https://api.calendly.com/users/USER-1"
	}
	integration.ID = uuid.New()
	return integration
}

func TestCheckAvailability(t *testing.T) {
	t.Run("no integration is an outcome, not an error", func(t *testing.T) {
		svc, _ := newTestService(&stubIntegrations{}, &stubBookings{}, unreachedTransport(t))

		resp, appErr := svc.CheckAvailability(context.Background(), uuid.New(), &dto.AvailabilityRequest{Date: "tomorrow"})

		require.Nil(t, appErr)
		assert.False(t, resp.Available)
		require.NotNil(t, resp.Slots)
		assert.Empty(t, resp.Slots)
		assert.Equal(t, "No calendar connected", resp.Error)
	})

	t.Run("returns open slots for a spoken date", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "www.googleapis.com", req.URL.Host)
			require.Equal(t, "/calendar/v3/freeBusy", req.URL.Path)
			return jsonResponse(http.StatusOK, `{"calendars":{"primary":{"busy":[
				{"start":"2024-03-13T13:00:00Z","end":"2024-03-13T14:00:00Z"}
			]}}}`), nil
		})
		svc, _ := newTestService(&stubIntegrations{enabled: integration}, &stubBookings{}, rt)

		resp, appErr := svc.CheckAvailability(context.Background(), integration.OrganizationID, &dto.AvailabilityRequest{Date: "tomorrow"})

		require.Nil(t, appErr)
		assert.True(t, resp.Available)
		assert.Len(t, resp.Slots, 14)
		assert.Equal(t, "2024-03-13", resp.Date)
	})

	t.Run("a closed day has no slots and no error", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		svc, _ := newTestService(&stubIntegrations{enabled: integration}, &stubBookings{}, unreachedTransport(t))

		resp, appErr := svc.CheckAvailability(context.Background(), integration.OrganizationID, &dto.AvailabilityRequest{Date: "saturday"})

		require.Nil(t, appErr)
		assert.False(t, resp.Available)
		require.NotNil(t, resp.Slots)
		assert.Empty(t, resp.Slots)
		assert.Equal(t, "2024-03-16", resp.Date)
		assert.Empty(t, resp.Error)
	})

	t.Run("a date the parser rejects reads as unavailable", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		svc, _ := newTestService(&stubIntegrations{enabled: integration}, &stubBookings{}, unreachedTransport(t))

		resp, appErr := svc.CheckAvailability(context.Background(), integration.OrganizationID, &dto.AvailabilityRequest{Date: "whenever suits"})

		require.Nil(t, appErr)
		assert.False(t, resp.Available)
		assert.Equal(t, "Could not understand the requested date", resp.Error)
	})

	t.Run("provider outage degrades to unavailable", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, `{"error":"backendError"}`), nil
		})
		svc, _ := newTestService(&stubIntegrations{enabled: integration}, &stubBookings{}, rt)

		resp, appErr := svc.CheckAvailability(context.Background(), integration.OrganizationID, &dto.AvailabilityRequest{Date: "tomorrow"})

		require.Nil(t, appErr)
		assert.False(t, resp.Available)
		require.NotNil(t, resp.Slots)
		assert.Empty(t, resp.Slots)
		assert.Contains(t, resp.Error, "unavailable")
		assert.NotContains(t, resp.Error, "backendError")
	})
}

func TestBookAppointment(t *testing.T) {
	t.Run("books and logs the appointment", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		bookings := &stubBookings{}

		var eventBody map[string]any
		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodPost, req.Method)
			require.Equal(t, "/calendar/v3/calendars/primary/events", req.URL.Path)
			require.NoError(t, json.NewDecoder(req.Body).Decode(&eventBody))
			return jsonResponse(http.StatusOK, `{"id":"evt-9","status":"confirmed","htmlLink":"https://calendar.google.com/event?eid=evt-9"}`), nil
		})
		svc, pub := newTestService(&stubIntegrations{enabled: integration}, bookings, rt)

		resp, appErr := svc.BookAppointment(context.Background(), integration.OrganizationID, &dto.BookRequest{
			Date:        "tomorrow",
			Time:        "2pm",
			CallerName:  "Pat Doe",
			CallerPhone: "+15550100",
			Purpose:     "Consultation",
		})

		require.Nil(t, appErr)
		assert.True(t, resp.Success)
		assert.Equal(t, "evt-9", resp.EventID)
		require.NotNil(t, resp.ConfirmedTime)
		assert.Equal(t, time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC), *resp.ConfirmedTime)
		require.NotNil(t, resp.BookingID)
		assert.NotEmpty(t, resp.Reference)

		assert.Equal(t, "Consultation - Pat Doe", eventBody["summary"])

		require.Len(t, bookings.created, 1)
		logged := bookings.created[0]
		assert.Equal(t, entity.BookingStatusConfirmed, logged.Status)
		require.NotNil(t, logged.ExternalEventID)
		assert.Equal(t, "evt-9", *logged.ExternalEventID)
		assert.Equal(t, 30, logged.DurationMinutes)

		require.Len(t, pub.events, 1)
		assert.Equal(t, events.TypeBookingCreated, pub.events[0].eventType)
		assert.Equal(t, "GOOGLE", pub.events[0].event.Provider)
		assert.Equal(t, logged.ID, pub.events[0].event.BookingID)
	})

	t.Run("provider failure asks for a manual booking", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		bookings := &stubBookings{}
		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return nil, fmt.Errorf("connect: connection refused")
		})
		svc, pub := newTestService(&stubIntegrations{enabled: integration}, bookings, rt)

		resp, appErr := svc.BookAppointment(context.Background(), integration.OrganizationID, &dto.BookRequest{
			Date:        "tomorrow",
			Time:        "2pm",
			CallerName:  "Pat Doe",
			CallerPhone: "+15550100",
		})

		require.Nil(t, appErr)
		assert.False(t, resp.Success)
		assert.True(t, resp.NeedsManualBooking)
		assert.Contains(t, resp.Error, "request failed")
		assert.Empty(t, bookings.created)
		assert.Empty(t, pub.events)
	})

	t.Run("a date the parser rejects is not a manual-booking case", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		svc, _ := newTestService(&stubIntegrations{enabled: integration}, &stubBookings{}, unreachedTransport(t))

		resp, appErr := svc.BookAppointment(context.Background(), integration.OrganizationID, &dto.BookRequest{
			Date:        "tomorrow",
			Time:        "13pm",
			CallerName:  "Pat Doe",
			CallerPhone: "+15550100",
		})

		require.Nil(t, appErr)
		assert.False(t, resp.Success)
		assert.False(t, resp.NeedsManualBooking)
		assert.Equal(t, "Could not understand the requested date and time", resp.Error)
	})

	t.Run("no integration asks for a manual booking", func(t *testing.T) {
		svc, _ := newTestService(&stubIntegrations{}, &stubBookings{}, unreachedTransport(t))

		resp, appErr := svc.BookAppointment(context.Background(), uuid.New(), &dto.BookRequest{
			Date:        "tomorrow",
			CallerName:  "Pat Doe",
			CallerPhone: "+15550100",
		})

		require.Nil(t, appErr)
		assert.False(t, resp.Success)
		assert.True(t, resp.NeedsManualBooking)
		assert.Equal(t, "No calendar connected", resp.Error)
	})

	t.Run("persistence failure never undoes the provider event", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		bookings := &stubBookings{createErr: fmt.Errorf("connection reset")}
		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"id":"evt-9","status":"confirmed"}`), nil
		})
		svc, pub := newTestService(&stubIntegrations{enabled: integration}, bookings, rt)

		resp, appErr := svc.BookAppointment(context.Background(), integration.OrganizationID, &dto.BookRequest{
			Date:        "tomorrow",
			Time:        "2pm",
			CallerName:  "Pat Doe",
			CallerPhone: "+15550100",
		})

		require.Nil(t, appErr)
		assert.True(t, resp.Success, "the caller's appointment exists regardless of the local log")
		assert.Equal(t, "evt-9", resp.EventID)
		assert.Nil(t, resp.BookingID)
		assert.Empty(t, resp.Reference)
		assert.Empty(t, pub.events)
	})
}

func confirmedBooking(organizationID uuid.UUID) *entity.CalendarBooking {
	booking := &entity.CalendarBooking{
		OrganizationID:  organizationID,
		IntegrationID:   uuid.New(),
		Reference:       "APT-7F3K",
		CallerName:      "Pat Doe",
		CallerPhone:     "+15550100",
		Purpose:         "Checkup",
		StartTime:       time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Status:          entity.BookingStatusConfirmed,
		ExternalEventID: ptr("evt-9"),
	}
	booking.ID = uuid.New()
	return booking
}

func TestCancelAppointment(t *testing.T) {
	t.Run("cancels locally and at the provider", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		booking := confirmedBooking(integration.OrganizationID)
		bookings := &stubBookings{byReference: map[string]*entity.CalendarBooking{booking.Reference: booking}}

		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodDelete, req.Method)
			require.Equal(t, "/calendar/v3/calendars/primary/events/evt-9", req.URL.Path)
			return jsonResponse(http.StatusNoContent, ``), nil
		})
		svc, pub := newTestService(&stubIntegrations{enabled: integration}, bookings, rt)

		resp, appErr := svc.CancelAppointment(context.Background(), integration.OrganizationID, booking.Reference, "patient request")

		require.Nil(t, appErr)
		assert.True(t, resp.Success)

		require.Len(t, bookings.statusUpdates, 1)
		assert.Equal(t, booking.ID, bookings.statusUpdates[0].id)
		assert.Equal(t, entity.BookingStatusCancelled, bookings.statusUpdates[0].status)
		require.NotNil(t, bookings.statusUpdates[0].reason)
		assert.Equal(t, "patient request", *bookings.statusUpdates[0].reason)

		require.Len(t, pub.events, 1)
		assert.Equal(t, events.TypeBookingCancelled, pub.events[0].eventType)
		assert.Equal(t, "patient request", pub.events[0].event.Reason)
	})

	t.Run("records the cancellation even when the provider fails", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		booking := confirmedBooking(integration.OrganizationID)
		bookings := &stubBookings{byReference: map[string]*entity.CalendarBooking{booking.Reference: booking}}

		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, `{"error":"backendError"}`), nil
		})
		svc, pub := newTestService(&stubIntegrations{enabled: integration}, bookings, rt)

		resp, appErr := svc.CancelAppointment(context.Background(), integration.OrganizationID, booking.Reference, "")

		require.Nil(t, appErr)
		assert.True(t, resp.Success, "the local record is the source of truth for the organization")
		require.Len(t, bookings.statusUpdates, 1)
		assert.Equal(t, entity.BookingStatusCancelled, bookings.statusUpdates[0].status)
		assert.Len(t, pub.events, 1)
	})

	t.Run("refuses a booking already closed out", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		booking := confirmedBooking(integration.OrganizationID)
		booking.Status = entity.BookingStatusCancelled
		bookings := &stubBookings{byReference: map[string]*entity.CalendarBooking{booking.Reference: booking}}
		svc, _ := newTestService(&stubIntegrations{enabled: integration}, bookings, unreachedTransport(t))

		resp, appErr := svc.CancelAppointment(context.Background(), integration.OrganizationID, booking.Reference, "")

		require.Nil(t, appErr)
		assert.False(t, resp.Success)
		assert.Equal(t, "Booking is already cancelled", resp.Error)
		assert.Empty(t, bookings.statusUpdates)
	})

	t.Run("nothing to cancel without an integration or a booking", func(t *testing.T) {
		svc, _ := newTestService(&stubIntegrations{}, &stubBookings{}, unreachedTransport(t))

		resp, appErr := svc.CancelAppointment(context.Background(), uuid.New(), "APT-NONE", "")

		require.Nil(t, appErr)
		assert.False(t, resp.Success)
		assert.Equal(t, "No calendar connected", resp.Error)
	})

	t.Run("a raw event id passes through when no local row exists", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		bookings := &stubBookings{}

		var deleted string
		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodDelete, req.Method)
			deleted = req.URL.Path
			return jsonResponse(http.StatusNoContent, ``), nil
		})
		svc, pub := newTestService(&stubIntegrations{enabled: integration}, bookings, rt)

		resp, appErr := svc.CancelAppointment(context.Background(), integration.OrganizationID, "evt-external", "")

		require.Nil(t, appErr)
		assert.True(t, resp.Success)
		assert.Equal(t, "/calendar/v3/calendars/primary/events/evt-external", deleted)
		assert.Empty(t, bookings.statusUpdates)
		assert.Empty(t, pub.events)
	})
}

func TestRescheduleAppointment(t *testing.T) {
	t.Run("moves the event in place", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		booking := confirmedBooking(integration.OrganizationID)
		booking.DurationMinutes = 45
		bookings := &stubBookings{byReference: map[string]*entity.CalendarBooking{booking.Reference: booking}}

		var patchBody map[string]any
		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodPatch, req.Method)
			require.Equal(t, "/calendar/v3/calendars/primary/events/evt-9", req.URL.Path)
			require.NoError(t, json.NewDecoder(req.Body).Decode(&patchBody))
			return jsonResponse(http.StatusOK, `{"id":"evt-9","status":"confirmed"}`), nil
		})
		svc, pub := newTestService(&stubIntegrations{enabled: integration}, bookings, rt)

		resp, appErr := svc.RescheduleAppointment(context.Background(), integration.OrganizationID, booking.Reference, &dto.RescheduleRequest{
			Date: "tomorrow",
			Time: "9am",
		})

		require.Nil(t, appErr)
		assert.True(t, resp.Success)
		assert.Equal(t, "evt-9", resp.EventID)
		require.NotNil(t, resp.NewTime)
		assert.Equal(t, time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC), *resp.NewTime)

		start := patchBody["start"].(map[string]any)
		assert.Equal(t, "2024-03-13T09:00:00Z", start["dateTime"])
		end := patchBody["end"].(map[string]any)
		assert.Equal(t, "2024-03-13T09:45:00Z", end["dateTime"], "the booking's own duration is kept")

		require.Len(t, bookings.scheduleUpdates, 1)
		updated := bookings.scheduleUpdates[0]
		assert.Equal(t, time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC), updated.StartTime)
		assert.Equal(t, 45, updated.DurationMinutes)
		assert.Equal(t, entity.BookingStatusConfirmed, updated.Status)

		require.Len(t, pub.events, 1)
		assert.Equal(t, events.TypeBookingRescheduled, pub.events[0].eventType)
	})

	t.Run("falls back to cancel and rebook when updates are unsupported", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderCalendly)
		booking := confirmedBooking(integration.OrganizationID)
		booking.ExternalEventID = ptr("EVT-1")
		bookings := &stubBookings{byReference: map[string]*entity.CalendarBooking{booking.Reference: booking}}

		var cancellations int
		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			switch {
			case req.URL.Path == "/scheduled_events/EVT-1/cancellation":
				cancellations++
				return jsonResponse(http.StatusCreated, `{}`), nil
			case req.URL.Path == "/event_types":
				return jsonResponse(http.StatusOK, `{"collection":[
					{"uri":"https://api.calendly.com/event_types/ET-30","name":"Standard Visit","active":true,"duration":30}
				]}`), nil
			case req.URL.Path == "/scheduling_links":
				return jsonResponse(http.StatusCreated, `{"resource":{"booking_url":"https://calendly.com/d/new-slot"}}`), nil
			}
			t.Errorf("unexpected provider call %s %s", req.Method, req.URL)
			return jsonResponse(http.StatusInternalServerError, `{}`), nil
		})
		svc, pub := newTestService(&stubIntegrations{enabled: integration}, bookings, rt)

		resp, appErr := svc.RescheduleAppointment(context.Background(), integration.OrganizationID, booking.Reference, &dto.RescheduleRequest{
			Date: "tomorrow",
			Time: "10am",
		})

		require.Nil(t, appErr)
		assert.True(t, resp.Success)
		assert.Equal(t, 1, cancellations, "the old event is cancelled before rebooking")
		assert.Empty(t, resp.EventID)
		assert.Equal(t, "https://calendly.com/d/new-slot", resp.SchedulingURL)
		assert.True(t, resp.NeedsInviteeAction)

		require.Len(t, bookings.scheduleUpdates, 1)
		updated := bookings.scheduleUpdates[0]
		assert.Equal(t, entity.BookingStatusPending, updated.Status, "no event exists until the invitee books")
		assert.Nil(t, updated.ExternalEventID)
		require.NotNil(t, updated.SchedulingURL)
		assert.Equal(t, "https://calendly.com/d/new-slot", *updated.SchedulingURL)

		require.Len(t, pub.events, 1)
		assert.Equal(t, events.TypeBookingRescheduled, pub.events[0].eventType)
	})

	t.Run("refuses a completed booking", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		booking := confirmedBooking(integration.OrganizationID)
		booking.Status = entity.BookingStatusCompleted
		bookings := &stubBookings{byReference: map[string]*entity.CalendarBooking{booking.Reference: booking}}
		svc, _ := newTestService(&stubIntegrations{enabled: integration}, bookings, unreachedTransport(t))

		resp, appErr := svc.RescheduleAppointment(context.Background(), integration.OrganizationID, booking.Reference, &dto.RescheduleRequest{
			Date: "tomorrow",
		})

		require.Nil(t, appErr)
		assert.False(t, resp.Success)
		assert.Equal(t, "Booking is already completed", resp.Error)
		assert.Empty(t, bookings.scheduleUpdates)
	})
}

func TestGetUpcomingAppointments(t *testing.T) {
	t.Run("merges provider events with local bookings", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)

		matched := confirmedBooking(integration.OrganizationID)
		matched.Reference = "APT-A"
		matched.CallerName = "Alice Adams"
		matched.ExternalEventID = ptr("evt-1")
		matched.StartTime = time.Date(2024, 3, 13, 13, 0, 0, 0, time.UTC)

		pending := confirmedBooking(integration.OrganizationID)
		pending.Reference = "APT-B"
		pending.CallerName = "Bob Brown"
		pending.Purpose = "Intro call"
		pending.Status = entity.BookingStatusPending
		pending.ExternalEventID = nil
		pending.SchedulingURL = ptr("https://calendly.com/d/xyz")
		pending.StartTime = time.Date(2024, 3, 13, 16, 0, 0, 0, time.UTC)

		bookings := &stubBookings{upcoming: []entity.CalendarBooking{*matched, *pending}}

		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "/calendar/v3/calendars/primary/events", req.URL.Path)
			return jsonResponse(http.StatusOK, `{"items":[
				{"id":"evt-1","summary":"Checkup","status":"confirmed",
				 "start":{"dateTime":"2024-03-13T13:00:00Z"},"end":{"dateTime":"2024-03-13T13:30:00Z"}},
				{"id":"evt-2","summary":"Team sync","status":"confirmed",
				 "start":{"dateTime":"2024-03-13T15:00:00Z"},"end":{"dateTime":"2024-03-13T15:30:00Z"}}
			]}`), nil
		})
		svc, _ := newTestService(&stubIntegrations{enabled: integration}, bookings, rt)

		resp, appErr := svc.GetUpcomingAppointments(context.Background(), integration.OrganizationID, 7)

		require.Nil(t, appErr)
		require.Len(t, resp.Appointments, 3)

		first := resp.Appointments[0]
		assert.Equal(t, "evt-1", first.EventID)
		assert.Equal(t, "APT-A", first.Reference, "a matching local row enriches the provider event")
		assert.Equal(t, "Alice Adams", first.CallerName)
		require.NotNil(t, first.BookingID)

		second := resp.Appointments[1]
		assert.Equal(t, "evt-2", second.EventID)
		assert.Nil(t, second.BookingID, "events booked outside the engine still show up")
		assert.Empty(t, second.Reference)

		third := resp.Appointments[2]
		assert.Equal(t, "pending", third.Status)
		assert.Equal(t, "Intro call", third.Title)
		assert.Equal(t, "https://calendly.com/d/xyz", third.MeetingLink)
		assert.Empty(t, third.EventID)
	})

	t.Run("keeps local bookings visible without a connected calendar", func(t *testing.T) {
		pending := confirmedBooking(uuid.New())
		pending.Status = entity.BookingStatusPending
		pending.ExternalEventID = nil
		bookings := &stubBookings{upcoming: []entity.CalendarBooking{*pending}}
		svc, _ := newTestService(&stubIntegrations{}, bookings, unreachedTransport(t))

		resp, appErr := svc.GetUpcomingAppointments(context.Background(), pending.OrganizationID, 0)

		require.Nil(t, appErr)
		assert.Equal(t, "No calendar connected", resp.Error)
		require.Len(t, resp.Appointments, 1)
		assert.Equal(t, "pending", resp.Appointments[0].Status)
	})

	t.Run("provider outage still lists local rows", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		local := confirmedBooking(integration.OrganizationID)
		bookings := &stubBookings{upcoming: []entity.CalendarBooking{*local}}

		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, `{}`), nil
		})
		svc, _ := newTestService(&stubIntegrations{enabled: integration}, bookings, rt)

		resp, appErr := svc.GetUpcomingAppointments(context.Background(), integration.OrganizationID, 7)

		require.Nil(t, appErr)
		assert.NotEmpty(t, resp.Error)
		require.Len(t, resp.Appointments, 1)
		assert.Equal(t, "confirmed", resp.Appointments[0].Status)
	})

	t.Run("a fresh booking comes back with its event id", func(t *testing.T) {
		integration := connectedIntegration(entity.ProviderGoogle)
		bookings := &stubBookings{}

		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if req.Method == http.MethodPost {
				return jsonResponse(http.StatusOK, `{"id":"evt-42","status":"confirmed","htmlLink":"https://calendar.google.com/event?eid=evt-42"}`), nil
			}
			return jsonResponse(http.StatusOK, `{"items":[
				{"id":"evt-42","summary":"Checkup - Pat Doe","status":"confirmed",
				 "start":{"dateTime":"2024-03-13T14:00:00Z"},"end":{"dateTime":"2024-03-13T14:30:00Z"}}
			]}`), nil
		})
		svc, _ := newTestService(&stubIntegrations{enabled: integration}, bookings, rt)

		booked, appErr := svc.BookAppointment(context.Background(), integration.OrganizationID, &dto.BookRequest{
			Date:        "tomorrow",
			Time:        "2pm",
			CallerName:  "Pat Doe",
			CallerPhone: "+15550100",
			Purpose:     "Checkup",
		})
		require.Nil(t, appErr)
		require.True(t, booked.Success)
		require.NotNil(t, booked.BookingID)

		// The listing reads what the booking wrote.
		require.Len(t, bookings.created, 1)
		bookings.upcoming = []entity.CalendarBooking{*bookings.created[0]}

		resp, appErr := svc.GetUpcomingAppointments(context.Background(), integration.OrganizationID, 7)

		require.Nil(t, appErr)
		require.Len(t, resp.Appointments, 1)
		assert.Equal(t, "evt-42", resp.Appointments[0].EventID)
		assert.Equal(t, booked.Reference, resp.Appointments[0].Reference)
		require.NotNil(t, resp.Appointments[0].BookingID)
		assert.Equal(t, *booked.BookingID, *resp.Appointments[0].BookingID)
	})
}
