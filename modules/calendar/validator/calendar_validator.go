package validator

import (
	"strings"
	"time"

	"calendar-engine/modules/calendar/dto"
	"calendar-engine/modules/calendar/entity"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationResult struct {
	Errors []ValidationError `json:"errors"`
}

func (r *ValidationResult) HasError() bool {
	return len(r.Errors) > 0
}

func (r *ValidationResult) add(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

func ValidateAvailabilityRequest(req *dto.AvailabilityRequest) *ValidationResult {
	result := &ValidationResult{}
	if strings.TrimSpace(req.Date) == "" {
		result.add("date", "date is required")
	}
	if req.DurationMinutes < 0 {
		result.add("duration_minutes", "duration must not be negative")
	}
	return result
}

func ValidateBookRequest(req *dto.BookRequest) *ValidationResult {
	result := &ValidationResult{}
	if strings.TrimSpace(req.Date) == "" {
		result.add("date", "date is required")
	}
	if strings.TrimSpace(req.CallerName) == "" {
		result.add("caller_name", "caller name is required")
	}
	if strings.TrimSpace(req.CallerPhone) == "" {
		result.add("caller_phone", "caller phone is required")
	}
	if req.CallerEmail != "" && !strings.Contains(req.CallerEmail, "@") {
		result.add("caller_email", "caller email is not valid")
	}
	if req.DurationMinutes < 0 {
		result.add("duration_minutes", "duration must not be negative")
	}
	return result
}

func ValidateCancelRequest(req *dto.CancelRequest) *ValidationResult {
	result := &ValidationResult{}
	if len(req.Reason) > 500 {
		result.add("reason", "reason must be at most 500 characters")
	}
	return result
}

func ValidateRescheduleRequest(req *dto.RescheduleRequest) *ValidationResult {
	result := &ValidationResult{}
	if strings.TrimSpace(req.Date) == "" {
		result.add("date", "date is required")
	}
	return result
}

func ValidateUpdateSettingsRequest(req *dto.UpdateSettingsRequest) *ValidationResult {
	result := &ValidationResult{}
	if req.DefaultDurationMinutes != nil && *req.DefaultDurationMinutes <= 0 {
		result.add("default_duration_minutes", "duration must be positive")
	}
	if req.BusinessStart != nil {
		if _, err := time.Parse("15:04", *req.BusinessStart); err != nil {
			result.add("business_start", "must be HH:MM")
		}
	}
	if req.BusinessEnd != nil {
		if _, err := time.Parse("15:04", *req.BusinessEnd); err != nil {
			result.add("business_end", "must be HH:MM")
		}
	}
	for _, day := range req.BusinessDays {
		if !entity.IsWeekdayName(day) {
			result.add("business_days", "unknown weekday "+day)
		}
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			result.add("timezone", "unknown timezone")
		}
	}
	return result
}
