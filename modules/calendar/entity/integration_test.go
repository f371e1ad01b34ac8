package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input string
		want  Provider
		ok    bool
	}{
		{"google", ProviderGoogle, true},
		{"GOOGLE", ProviderGoogle, true},
		{" outlook ", ProviderOutlook, true},
		{"Calendly", ProviderCalendly, true},
		{"fax", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseProvider(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsBusinessDay(t *testing.T) {
	integration := &CalendarIntegration{BusinessDays: DefaultBusinessDays()}

	assert.True(t, integration.IsBusinessDay(time.Monday))
	assert.True(t, integration.IsBusinessDay(time.Friday))
	assert.False(t, integration.IsBusinessDay(time.Saturday))
	assert.False(t, integration.IsBusinessDay(time.Sunday))

	// Stored day names match regardless of case.
	integration.BusinessDays = []string{"Saturday"}
	assert.True(t, integration.IsBusinessDay(time.Saturday))
	assert.False(t, integration.IsBusinessDay(time.Monday))
}

func TestBusinessWindow(t *testing.T) {
	date := time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)

	t.Run("resolves in the integration's timezone", func(t *testing.T) {
		integration := &CalendarIntegration{
			BusinessStart: "09:00",
			BusinessEnd:   "17:30",
			Timezone:      "America/New_York",
		}

		start, end, err := integration.BusinessWindow(date)
		require.NoError(t, err)

		loc, locErr := time.LoadLocation("America/New_York")
		require.NoError(t, locErr)
		assert.Equal(t, time.Date(2024, 3, 13, 9, 0, 0, 0, loc), start)
		assert.Equal(t, time.Date(2024, 3, 13, 17, 30, 0, 0, loc), end)
	})

	t.Run("rejects an inverted window", func(t *testing.T) {
		integration := &CalendarIntegration{BusinessStart: "18:00", BusinessEnd: "09:00"}
		_, _, err := integration.BusinessWindow(date)
		assert.Error(t, err)
	})

	t.Run("rejects a zero-length window", func(t *testing.T) {
		integration := &CalendarIntegration{BusinessStart: "09:00", BusinessEnd: "09:00"}
		_, _, err := integration.BusinessWindow(date)
		assert.Error(t, err)
	})

	t.Run("rejects hours that do not parse", func(t *testing.T) {
		integration := &CalendarIntegration{BusinessStart: "9am", BusinessEnd: "17:00"}
		_, _, err := integration.BusinessWindow(date)
		assert.Error(t, err)
	})
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, (&CalendarIntegration{}).Location())
	assert.Equal(t, time.UTC, (&CalendarIntegration{Timezone: "Neverwhere/Nowhere"}).Location())

	loc := (&CalendarIntegration{Timezone: "Europe/Berlin"}).Location()
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestNewTimeSlot(t *testing.T) {
	start := time.Date(2024, 3, 13, 14, 30, 0, 0, time.UTC)
	slot := NewTimeSlot(start, start.Add(30*time.Minute))

	assert.Equal(t, start, slot.Start)
	assert.Equal(t, "2:30 PM", slot.Label)
}
