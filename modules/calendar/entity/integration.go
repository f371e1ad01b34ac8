package entity

import (
	"fmt"
	"strings"
	"time"

	"calendar-engine/core/entity"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Provider string

const (
	ProviderGoogle   Provider = "GOOGLE"
	ProviderOutlook  Provider = "OUTLOOK"
	ProviderCalendly Provider = "CALENDLY"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderOutlook, ProviderCalendly:
		return true
	}
	return false
}

// ParseProvider accepts the enum in any case ("google", "GOOGLE").
func ParseProvider(s string) (Provider, bool) {
	p := Provider(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.Valid()
}

// CalendarIntegration is one organization's connection to an external
// calendar provider. At most one integration per organization is enabled
// at a time; the repository enforces this on enable.
type CalendarIntegration struct {
	OrganizationID         uuid.UUID      `db:"organization_id" json:"organization_id"`
	Provider               Provider       `db:"provider" json:"provider"`
	AccessToken            string         `db:"access_token" json:"-"`
	RefreshToken           *string        `db:"refresh_token" json:"-"`
	TokenExpiresAt         *time.Time     `db:"token_expires_at" json:"-"`
	CalendarID             string         `db:"calendar_id" json:"calendar_id"`
	Scopes                 pq.StringArray `db:"scopes" json:"-"`
	Enabled                bool           `db:"enabled" json:"enabled"`
	DefaultDurationMinutes int            `db:"default_duration_minutes" json:"default_duration_minutes"`
	BusinessStart          string         `db:"business_start" json:"business_start"`
	BusinessEnd            string         `db:"business_end" json:"business_end"`
	BusinessDays           pq.StringArray `db:"business_days" json:"business_days"`
	Timezone               string         `db:"timezone" json:"timezone"`
	entity.BaseEntity
}

func (i *CalendarIntegration) IsBusinessDay(day time.Weekday) bool {
	name := strings.ToLower(day.String())
	for _, d := range i.BusinessDays {
		if strings.ToLower(d) == name {
			return true
		}
	}
	return false
}

// IsWeekdayName reports whether s names a weekday, in any case.
func IsWeekdayName(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday":
		return true
	}
	return false
}

// DefaultBusinessDays is the weekday set new integrations start with.
func DefaultBusinessDays() pq.StringArray {
	return pq.StringArray{"monday", "tuesday", "wednesday", "thursday", "friday"}
}

// Location resolves the integration timezone, falling back to UTC when
// the stored name is invalid.
func (i *CalendarIntegration) Location() *time.Location {
	if i.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(i.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BusinessWindow returns the working window for the given date in the
// integration's timezone.
func (i *CalendarIntegration) BusinessWindow(date time.Time) (time.Time, time.Time, error) {
	loc := i.Location()

	startH, startM, err := parseHourMinute(i.BusinessStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid business_start %q: %w", i.BusinessStart, err)
	}
	endH, endM, err := parseHourMinute(i.BusinessEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid business_end %q: %w", i.BusinessEnd, err)
	}

	start := time.Date(date.Year(), date.Month(), date.Day(), startH, startM, 0, 0, loc)
	end := time.Date(date.Year(), date.Month(), date.Day(), endH, endM, 0, 0, loc)
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("business window %s-%s is empty", i.BusinessStart, i.BusinessEnd)
	}
	return start, end, nil
}

func parseHourMinute(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// TimeSlot is a transient bookable window. Never persisted.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

func NewTimeSlot(start, end time.Time) TimeSlot {
	return TimeSlot{
		Start: start,
		End:   end,
		Label: start.Format("3:04 PM"),
	}
}
