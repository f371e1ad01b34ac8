package constants

import "time"

// Service timeouts
const (
	DefaultTimeout      = 30 * time.Second
	ProviderHTTPTimeout = 10 * time.Second
)

// Database pool settings
const (
	DatabaseSSLMode         = "disable"
	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 5
	DatabaseConnMaxLifetime = 30 // minutes
)

// Token lifecycle
const (
	// Access tokens are refreshed proactively when they are within
	// this buffer of their expiry.
	TokenRefreshBuffer = 5 * time.Minute

	// OAuth state entries are single-use and rejected after this TTL,
	// enforced at read time.
	OAuthStateTTL = 10 * time.Minute
)

// Scheduling
const (
	SlotStepMinutes        = 30
	DefaultDurationMinutes = 30
	UpcomingWindowDays     = 30
	DefaultBusinessStart   = "09:00"
	DefaultBusinessEnd     = "17:00"
)

// JWT scopes
const (
	ScopeTokenAccess = "access"
)

// Echo context keys
const (
	ContextOrganizationID = "organization_id"
	ContextUserID         = "user_id"
	ContextTokenData      = "token_data"
)

// Redis key prefixes
const (
	RedisKeyOAuthState = "oauth_state:"
)
